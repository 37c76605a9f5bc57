// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package tidbitmap

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// IterateResult describes one page produced by an iterator.
type IterateResult struct {
	Block BlockNumber
	// NTuples is the number of Offsets, or -1 if the page is lossy and every
	// row on it must be examined.
	NTuples int
	// Recheck is set if the matches must be rechecked against the rows.
	Recheck bool
	// Offsets lists the matching row offsets in ascending order. The slice is
	// owned by the iterator and only valid until the next call to Next.
	Offsets []OffsetNumber
}

// Lossy returns true if the page carries no row detail.
func (r IterateResult) Lossy() bool { return r.NTuples < 0 }

func (r IterateResult) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "block=%d", r.Block)
	if r.Lossy() {
		buf.WriteString(" lossy")
	} else {
		fmt.Fprintf(&buf, " offsets=%v", r.Offsets)
	}
	if r.Recheck {
		buf.WriteString(" recheck")
	}
	return buf.String()
}

// Iter is implemented by every source of pages in ascending block order.
type Iter interface {
	Next() (IterateResult, bool)
}

var _ Iter = (*Iterator)(nil)
var _ Iter = (*SharedIterator)(nil)
var _ Iter = (*StreamBitmap)(nil)

// cursor merges the sorted exact pages with the pages of the sorted chunk
// headers, always producing the lower block first.
type cursor struct {
	spageptr  int
	schunkptr int
	schunkbit int
}

// next returns the next entry, or false once both arrays are exhausted. A
// lossy page is returned as a one page chunk entry written to scratch.
func (c *cursor) next(spages, schunks []*pageEntry, scratch *pageEntry) (*pageEntry, bool) {
	for c.schunkptr < len(schunks) {
		chunk := schunks[c.schunkptr]
		for c.schunkbit < pagesPerChunk && !chunk.hasBit(c.schunkbit) {
			c.schunkbit++
		}
		if c.schunkbit < pagesPerChunk {
			break
		}
		c.schunkptr++
		c.schunkbit = 0
	}
	if c.schunkptr < len(schunks) {
		block := schunks[c.schunkptr].blockno + BlockNumber(c.schunkbit)
		if c.spageptr >= len(spages) || block < spages[c.spageptr].blockno {
			*scratch = pageEntry{blockno: block, ischunk: true, recheck: true}
			c.schunkbit++
			return scratch, true
		}
	}
	if c.spageptr < len(spages) {
		page := spages[c.spageptr]
		c.spageptr++
		return page, true
	}
	return nil, false
}

// expandPage converts an entry into a result, writing offsets into buf.
func expandPage(page *pageEntry, buf []OffsetNumber) IterateResult {
	res := IterateResult{Block: page.blockno, Recheck: page.recheck}
	if page.ischunk {
		res.NTuples = -1
		res.Recheck = true
		return res
	}
	n := 0
	for i, w := range page.words {
		for off := i*bitsPerWord + 1; w != 0; off++ {
			if w&1 != 0 {
				buf[n] = OffsetNumber(off)
				n++
			}
			w >>= 1
		}
	}
	res.NTuples = n
	res.Offsets = buf[:n]
	return res
}

// freeze marks the bitmap read-only and builds the sorted entry arrays.
func (b *Bitmap) freeze() {
	if b.iterating {
		return
	}
	b.iterating = true
	switch b.status {
	case OnePage:
		b.spages = []*pageEntry{&b.entry1}
	case Hash:
		pageBlocks := make([]BlockNumber, 0, b.npages)
		chunkBlocks := make([]BlockNumber, 0, b.nchunks)
		b.pages.All(func(k BlockNumber, page *pageEntry) bool {
			if page.ischunk {
				chunkBlocks = append(chunkBlocks, k)
			} else {
				pageBlocks = append(pageBlocks, k)
			}
			return true
		})
		b.spages = b.sortedEntries(pageBlocks)
		b.schunks = b.sortedEntries(chunkBlocks)
	}
}

func (b *Bitmap) sortedEntries(blocks []BlockNumber) []*pageEntry {
	slices.Sort(blocks)
	res := make([]*pageEntry, len(blocks))
	for i, k := range blocks {
		res[i], _ = b.pages.Get(k)
	}
	return res
}

// Iterator walks a frozen bitmap in ascending block order. Several iterators
// may walk the same bitmap; an Iterator itself is not safe for concurrent use.
type Iterator struct {
	c       cursor
	spages  []*pageEntry
	schunks []*pageEntry
	scratch pageEntry
	offsets []OffsetNumber
}

// BeginIterate freezes the bitmap and returns an iterator positioned before
// the first page. Any later modification of the bitmap panics.
func (b *Bitmap) BeginIterate() *Iterator {
	b.freeze()
	return &Iterator{
		spages:  b.spages,
		schunks: b.schunks,
		offsets: make([]OffsetNumber, MaxTuplesPerPage),
	}
}

// Next returns the next page, or false when the bitmap is exhausted.
func (it *Iterator) Next() (IterateResult, bool) {
	page, ok := it.nextEntry()
	if !ok {
		return IterateResult{}, false
	}
	return expandPage(page, it.offsets), true
}

func (it *Iterator) nextEntry() (*pageEntry, bool) {
	return it.c.next(it.spages, it.schunks, &it.scratch)
}
