// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package tidbitmap implements an in-memory set of tuple identifiers that
// degrades gracefully under memory pressure. Each heap page with matches is
// stored either exactly, as a bitmap of row offsets, or lossily, as one bit in
// a chunk entry covering pagesPerChunk consecutive pages. Lossy pages must be
// rechecked by the consumer.
//
// A Bitmap is populated by AddTuples and AddPage, optionally combined with
// Union and Intersect, and then frozen by BeginIterate. Several iterators may
// read a frozen bitmap at once. Streams (see stream.go) compose bitmaps lazily
// one page at a time instead.
package tidbitmap

import (
	"context"
	"fmt"
	"math"
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/physprops/pkg/sql/opt/optconfig"
	"github.com/cockroachdb/physprops/pkg/util/buildutil"
	"github.com/cockroachdb/physprops/pkg/util/humanizeutil"
	"github.com/cockroachdb/physprops/pkg/util/log"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/swiss"
	"golang.org/x/exp/slices"
)

// BlockNumber identifies a heap page.
type BlockNumber = uint32

// InvalidBlockNumber is never a valid heap page.
const InvalidBlockNumber BlockNumber = math.MaxUint32

// OffsetNumber identifies a row within a heap page. Offsets are 1-based.
type OffsetNumber = uint16

// TID is a tuple identifier.
type TID struct {
	Block  BlockNumber
	Offset OffsetNumber
}

func (t TID) String() string {
	return fmt.Sprintf("(%d,%d)", t.Block, t.Offset)
}

const (
	// MaxTuplesPerPage is the largest row offset an exact page can hold.
	MaxTuplesPerPage = 291

	bitsPerWord   = 64
	pagesPerChunk = 256

	wordsPerPage  = (MaxTuplesPerPage-1)/bitsPerWord + 1
	wordsPerChunk = (pagesPerChunk-1)/bitsPerWord + 1
	// numWords is max(wordsPerPage, wordsPerChunk).
	numWords = wordsPerPage

	// Fails to compile if a chunk needs more words than a page.
	_ uint = numWords - wordsPerChunk

	minMaxEntries = 16
)

// bytesPerEntry estimates the memory charged per page table entry, including
// hash slot overhead and the pointers held by the sorted iteration arrays.
var bytesPerEntry = int64(unsafe.Sizeof(pageEntry{})) + 16 + 2*int64(unsafe.Sizeof(uintptr(0)))

// pageEntry is either an exact page, where bit k means row offset k+1 is
// present, or a lossy chunk header, where bit k means page blockno+k must be
// visited in full. Chunk headers only live at multiples of pagesPerChunk.
type pageEntry struct {
	blockno BlockNumber
	ischunk bool
	recheck bool
	words   [numWords]uint64
}

func (p *pageEntry) setBit(n int) {
	p.words[n/bitsPerWord] |= 1 << uint(n%bitsPerWord)
}

func (p *pageEntry) hasBit(n int) bool {
	return p.words[n/bitsPerWord]&(1<<uint(n%bitsPerWord)) != 0
}

func (p *pageEntry) empty() bool {
	for _, w := range p.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// Status describes how the page table is stored.
type Status int8

const (
	// Empty means no entry was ever added.
	Empty Status = iota
	// OnePage means a single exact entry is stored inline.
	OnePage
	// Hash means the entries live in a hash table. A bitmap never leaves this
	// state, even if it shrinks back to one entry or none.
	Hash
)

func (s Status) String() string {
	switch s {
	case Empty:
		return "empty"
	case OnePage:
		return "one-page"
	case Hash:
		return "hash"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// capRaisedEvery rate limits the warning logged when lossification cannot
// bring a bitmap under its budget.
var capRaisedEvery = log.Every(10 * time.Second)

// Bitmap is a set of TIDs. The zero value is not usable; call New.
type Bitmap struct {
	status Status
	// entry1 holds the only entry while status is OnePage.
	entry1 pageEntry
	pages  *swiss.Map[BlockNumber, *pageEntry]

	nentries   int
	npages     int
	nchunks    int
	hwm        int
	maxEntries int

	// lossifyStart is the block at which the next lossify pass begins. It
	// rotates so that successive passes do not keep degrading the same range.
	lossifyStart BlockNumber

	iterating bool
	// spages and schunks are the sorted exact pages and chunk headers. They
	// are built by the first BeginIterate and shared by all iterators.
	spages  []*pageEntry
	schunks []*pageEntry
}

// New creates an empty bitmap whose page table is limited to approximately
// maxBytes of memory.
func New(maxBytes int64) *Bitmap {
	n := maxBytes / bytesPerEntry
	if n > math.MaxInt32-1 {
		n = math.MaxInt32 - 1
	}
	if n < minMaxEntries {
		n = minMaxEntries
	}
	return NewWithMaxEntries(int(n))
}

// NewWithMaxEntries creates an empty bitmap allowed to hold n page table
// entries before it starts discarding detail.
func NewWithMaxEntries(n int) *Bitmap {
	if n < 1 {
		panic(errors.AssertionFailedf("invalid max entries %d", redact.Safe(n)))
	}
	return &Bitmap{maxEntries: n}
}

// NewFromConfig creates an empty bitmap sized by the bitmap work-mem setting.
func NewFromConfig(c *optconfig.Config) *Bitmap {
	return New(c.BitmapMaxBytes())
}

// Status returns the storage state of the page table.
func (b *Bitmap) Status() Status { return b.status }

// IsEmpty returns true if the bitmap has no entries.
func (b *Bitmap) IsEmpty() bool { return b.nentries == 0 }

// NumEntries returns the number of page table entries.
func (b *Bitmap) NumEntries() int { return b.nentries }

// NumPages returns the number of exact page entries.
func (b *Bitmap) NumPages() int { return b.npages }

// NumChunks returns the number of lossy chunk entries.
func (b *Bitmap) NumChunks() int { return b.nchunks }

// MaxEntries returns the current entry cap. It can grow when lossification
// is unable to honor it.
func (b *Bitmap) MaxEntries() int { return b.maxEntries }

// MemUsed returns the memory charged for the largest page table this bitmap
// has held.
func (b *Bitmap) MemUsed() int64 {
	hwm := b.hwm
	if b.nentries > hwm {
		hwm = b.nentries
	}
	return int64(hwm) * bytesPerEntry
}

// String summarizes the bitmap for debugging output.
func (b *Bitmap) String() string {
	return fmt.Sprintf("%s entries=%d pages=%d chunks=%d max=%d mem=%s",
		b.status, b.nentries, b.npages, b.nchunks, b.maxEntries,
		humanizeutil.IBytes(b.MemUsed()))
}

func (b *Bitmap) assertMutable() {
	if b.iterating {
		panic(errors.AssertionFailedf("bitmap modified after iteration began"))
	}
}

func (b *Bitmap) noteEntries() {
	if b.nentries > b.hwm {
		b.hwm = b.nentries
	}
}

// AddTuples adds the given TIDs. If recheck is set, the pages they are on
// will be reported as needing a recheck.
func (b *Bitmap) AddTuples(tids []TID, recheck bool) {
	b.assertMutable()
	for _, tid := range tids {
		if tid.Offset < 1 || tid.Offset > MaxTuplesPerPage {
			panic(errors.AssertionFailedf("tuple offset out of range: %d", redact.Safe(tid.Offset)))
		}
		if tid.Block == InvalidBlockNumber {
			panic(errors.AssertionFailedf("invalid block number"))
		}
		if b.pageIsLossy(tid.Block) {
			continue
		}
		page := b.getPageEntry(tid.Block)
		if page.ischunk {
			// The page is also a chunk header; its own bit is bit 0.
			page.setBit(0)
		} else {
			page.setBit(int(tid.Offset) - 1)
		}
		page.recheck = page.recheck || recheck
		// page may be lossified below and must not be used afterwards.
		if b.nentries > b.maxEntries {
			b.lossify()
		}
	}
}

// AddPage adds a whole page. The page is reported lossily.
func (b *Bitmap) AddPage(block BlockNumber) {
	b.assertMutable()
	if block == InvalidBlockNumber {
		panic(errors.AssertionFailedf("invalid block number"))
	}
	b.markPageLossy(block)
	if b.nentries > b.maxEntries {
		b.lossify()
	}
}

// Union adds the contents of o to b. o is not modified.
func (b *Bitmap) Union(o *Bitmap) {
	b.assertMutable()
	if o.nentries == 0 || o == b {
		return
	}
	if o.status == OnePage {
		b.unionPage(&o.entry1)
		return
	}
	o.pages.All(func(_ BlockNumber, opage *pageEntry) bool {
		b.unionPage(opage)
		return true
	})
}

func (b *Bitmap) unionPage(opage *pageEntry) {
	switch {
	case opage.ischunk:
		for bit := 0; bit < pagesPerChunk; bit++ {
			if opage.hasBit(bit) {
				b.markPageLossy(opage.blockno + BlockNumber(bit))
			}
		}
	case b.pageIsLossy(opage.blockno):
		return
	default:
		page := b.getPageEntry(opage.blockno)
		if page.ischunk {
			page.setBit(0)
		} else {
			for i := range page.words {
				page.words[i] |= opage.words[i]
			}
		}
		page.recheck = page.recheck || opage.recheck
	}
	if b.nentries > b.maxEntries {
		b.lossify()
	}
}

// Intersect removes from b everything not in o. o is not modified. Exact
// pages of b that are lossy in o keep all their rows and are marked for
// recheck.
func (b *Bitmap) Intersect(o *Bitmap) {
	b.assertMutable()
	if b.nentries == 0 {
		return
	}
	b.noteEntries()
	if b.status == OnePage {
		if b.intersectPage(&b.entry1, o) {
			b.npages--
			b.nentries--
			b.status = Empty
		}
		return
	}
	var drop []*pageEntry
	b.pages.All(func(_ BlockNumber, page *pageEntry) bool {
		if b.intersectPage(page, o) {
			drop = append(drop, page)
		}
		return true
	})
	for _, page := range drop {
		if page.ischunk {
			b.nchunks--
		} else {
			b.npages--
		}
		b.nentries--
		b.pages.Delete(page.blockno)
	}
}

// intersectPage intersects one entry of b with o and returns true if the
// entry became empty.
func (b *Bitmap) intersectPage(page *pageEntry, o *Bitmap) bool {
	if page.ischunk {
		for bit := 0; bit < pagesPerChunk; bit++ {
			if !page.hasBit(bit) {
				continue
			}
			pg := page.blockno + BlockNumber(bit)
			if !o.pageIsLossy(pg) && o.findPageEntry(pg) == nil {
				page.words[bit/bitsPerWord] &^= 1 << uint(bit%bitsPerWord)
			}
		}
		return page.empty()
	}
	if o.pageIsLossy(page.blockno) {
		page.recheck = true
		return false
	}
	opage := o.findPageEntry(page.blockno)
	if opage == nil {
		return true
	}
	for i := range page.words {
		page.words[i] &= opage.words[i]
	}
	page.recheck = page.recheck || opage.recheck
	return page.empty()
}

// Copy returns a mutable deep copy of b.
func (b *Bitmap) Copy() *Bitmap {
	c := &Bitmap{
		status:       b.status,
		entry1:       b.entry1,
		nentries:     b.nentries,
		npages:       b.npages,
		nchunks:      b.nchunks,
		hwm:          b.hwm,
		maxEntries:   b.maxEntries,
		lossifyStart: b.lossifyStart,
	}
	if b.pages != nil {
		c.pages = swiss.New[BlockNumber, *pageEntry](b.pages.Len())
		b.pages.All(func(k BlockNumber, page *pageEntry) bool {
			cp := *page
			c.pages.Put(k, &cp)
			return true
		})
	}
	return c
}

// createPageTable switches to Hash storage, moving the inline entry.
func (b *Bitmap) createPageTable() {
	if b.status == Hash {
		panic(errors.AssertionFailedf("page table already exists"))
	}
	b.pages = swiss.New[BlockNumber, *pageEntry](128)
	if b.status == OnePage {
		page := b.entry1
		b.pages.Put(page.blockno, &page)
		b.entry1 = pageEntry{}
	}
	b.status = Hash
}

// findPageEntry returns the exact entry for block, or nil.
func (b *Bitmap) findPageEntry(block BlockNumber) *pageEntry {
	if b.nentries == 0 {
		return nil
	}
	if b.status == OnePage {
		if b.entry1.blockno != block {
			return nil
		}
		return &b.entry1
	}
	page, ok := b.pages.Get(block)
	if !ok || page.ischunk {
		return nil
	}
	return page
}

// getPageEntry returns the entry for block, creating an exact one if needed.
// The result may be a chunk header if block is on a chunk boundary.
func (b *Bitmap) getPageEntry(block BlockNumber) *pageEntry {
	switch b.status {
	case Empty:
		b.entry1 = pageEntry{blockno: block}
		b.status = OnePage
		b.nentries++
		b.npages++
		b.noteEntries()
		return &b.entry1
	case OnePage:
		if b.entry1.blockno == block {
			return &b.entry1
		}
		b.createPageTable()
	}
	if page, ok := b.pages.Get(block); ok {
		return page
	}
	page := &pageEntry{blockno: block}
	b.pages.Put(block, page)
	b.nentries++
	b.npages++
	b.noteEntries()
	return page
}

func chunkOf(block BlockNumber) (base BlockNumber, bit int) {
	bit = int(block % pagesPerChunk)
	return block - BlockNumber(bit), bit
}

// pageIsLossy returns true if block is covered by a chunk header.
func (b *Bitmap) pageIsLossy(block BlockNumber) bool {
	if b.nchunks == 0 {
		return false
	}
	base, bit := chunkOf(block)
	page, ok := b.pages.Get(base)
	return ok && page.ischunk && page.hasBit(bit)
}

// markPageLossy discards any exact entry for block and sets its bit in the
// covering chunk header.
func (b *Bitmap) markPageLossy(block BlockNumber) {
	if b.status != Hash {
		b.createPageTable()
	}
	base, bit := chunkOf(block)
	if bit != 0 {
		if _, ok := b.pages.Get(block); ok {
			b.pages.Delete(block)
			b.nentries--
			b.npages--
		}
	}
	page, ok := b.pages.Get(base)
	switch {
	case !ok:
		page = &pageEntry{blockno: base, ischunk: true}
		b.pages.Put(base, page)
		b.nentries++
		b.nchunks++
		b.noteEntries()
	case !page.ischunk:
		// The exact page at the chunk boundary becomes the header and is
		// itself lossy from now on.
		*page = pageEntry{blockno: base, ischunk: true}
		page.setBit(0)
		b.nchunks++
		b.npages--
	}
	page.setBit(bit)
}

// lossify converts exact pages to lossy ones until the table is at most half
// full. Pages on chunk boundaries are skipped since converting them saves
// nothing. If that is not enough, the cap is raised.
func (b *Bitmap) lossify() {
	if b.status != Hash {
		panic(errors.AssertionFailedf("lossify on %s bitmap", b.status))
	}
	target := b.maxEntries / 2
	var candidates []BlockNumber
	b.pages.All(func(k BlockNumber, page *pageEntry) bool {
		if !page.ischunk && k%pagesPerChunk != 0 {
			candidates = append(candidates, k)
		}
		return true
	})
	slices.Sort(candidates)
	start, _ := slices.BinarySearch(candidates, b.lossifyStart)
	for i := range candidates {
		block := candidates[(start+i)%len(candidates)]
		b.markPageLossy(block)
		if b.nentries <= target {
			b.lossifyStart = block + 1
			break
		}
	}

	if buildutil.CrdbTestBuild {
		b.checkCounts()
	}

	if b.nentries > target {
		n := b.nentries
		if n > (math.MaxInt32-1)/2 {
			n = (math.MaxInt32 - 1) / 2
		}
		old := b.maxEntries
		b.maxEntries = 2 * n
		if capRaisedEvery.ShouldLog() {
			log.Warningf(context.TODO(),
				"tid bitmap could not be reduced below %d entries; raising cap from %d to %d",
				target, old, b.maxEntries)
		}
	}
}

// checkCounts verifies the entry counters against the page table.
func (b *Bitmap) checkCounts() {
	var pages, chunks int
	b.pages.All(func(k BlockNumber, page *pageEntry) bool {
		if page.ischunk {
			if k%pagesPerChunk != 0 {
				panic(errors.AssertionFailedf("chunk header at block %d", redact.Safe(k)))
			}
			chunks++
		} else {
			pages++
		}
		return true
	})
	if pages != b.npages || chunks != b.nchunks || b.nentries != pages+chunks {
		panic(errors.AssertionFailedf("bitmap counts entries=%d pages=%d chunks=%d, table has %d pages %d chunks",
			redact.Safe(b.nentries), redact.Safe(b.npages), redact.Safe(b.nchunks), redact.Safe(pages), redact.Safe(chunks)))
	}
}
