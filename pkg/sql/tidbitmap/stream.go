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

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// StreamKind is the type of a stream node.
type StreamKind int8

const (
	// StreamIndex is a leaf that reads a Bitmap.
	StreamIndex StreamKind = iota
	// StreamAnd intersects its inputs.
	StreamAnd
	// StreamOr unions its inputs.
	StreamOr
)

func (k StreamKind) String() string {
	switch k {
	case StreamIndex:
		return "index"
	case StreamAnd:
		return "and"
	case StreamOr:
		return "or"
	default:
		return fmt.Sprintf("StreamKind(%d)", int(k))
	}
}

// SafeValue implements redact.SafeValue.
func (StreamKind) SafeValue() {}

// StreamNode is a node in a lazily evaluated tree of bitmaps.
type StreamNode interface {
	Kind() StreamKind
	String() string
	begin() streamIter
}

// streamIter produces the entries of a stream node. pull returns the first
// entry whose block is at least target. Calls must use non-decreasing
// targets; repeating a target returns the same entry.
type streamIter interface {
	pull(target BlockNumber, e *pageEntry) bool
}

// IndexStream is a stream leaf over a bitmap.
type IndexStream struct {
	b *Bitmap
}

// NewIndexStream wraps b. b is frozen when the stream starts iterating.
func NewIndexStream(b *Bitmap) *IndexStream {
	return &IndexStream{b: b}
}

// Kind is part of the StreamNode interface.
func (*IndexStream) Kind() StreamKind { return StreamIndex }

func (s *IndexStream) String() string { return "index" }

func (s *IndexStream) begin() streamIter {
	return &indexIter{it: s.b.BeginIterate()}
}

type indexIter struct {
	it *Iterator
	// cur is the entry last read from it, valid if have is set.
	cur  pageEntry
	have bool
	done bool
}

func (ii *indexIter) pull(target BlockNumber, e *pageEntry) bool {
	for {
		if ii.have && ii.cur.blockno >= target {
			*e = ii.cur
			return true
		}
		if ii.done {
			return false
		}
		page, ok := ii.it.nextEntry()
		if !ok {
			ii.done = true
			ii.have = false
			return false
		}
		ii.cur = *page
		ii.have = true
	}
}

// OpStream combines its inputs page by page.
type OpStream struct {
	kind   StreamKind
	inputs []StreamNode
}

// NewOpStream returns an AND or OR node over the given inputs.
func NewOpStream(kind StreamKind, inputs ...StreamNode) *OpStream {
	if kind != StreamAnd && kind != StreamOr {
		panic(errors.AssertionFailedf("invalid op stream kind %s", kind))
	}
	if len(inputs) == 0 {
		panic(errors.AssertionFailedf("op stream with no inputs"))
	}
	return &OpStream{kind: kind, inputs: inputs}
}

// Kind is part of the StreamNode interface.
func (s *OpStream) Kind() StreamKind { return s.kind }

func (s *OpStream) String() string {
	return fmt.Sprintf("%s%v", s.kind, s.inputs)
}

// NumInputs returns the number of direct inputs.
func (s *OpStream) NumInputs() int { return len(s.inputs) }

func (s *OpStream) begin() streamIter {
	oi := &opIter{kind: s.kind, inputs: make([]streamIter, len(s.inputs))}
	for i, in := range s.inputs {
		oi.inputs[i] = in.begin()
	}
	oi.pulled = make([]pageEntry, len(s.inputs))
	oi.ok = make([]bool, len(s.inputs))
	return oi
}

type opIter struct {
	kind   StreamKind
	inputs []streamIter
	// next is the lowest block that has not been produced yet.
	next BlockNumber
	// cur caches the last produced entry so that repeated pulls with the same
	// target return it again.
	cur    pageEntry
	have   bool
	done   bool
	pulled []pageEntry
	ok     []bool
}

func (oi *opIter) pull(target BlockNumber, e *pageEntry) bool {
	if oi.have && oi.cur.blockno >= target {
		*e = oi.cur
		return true
	}
	if oi.done {
		return false
	}
	if target < oi.next {
		target = oi.next
	}
	var ok bool
	if oi.kind == StreamAnd {
		ok = oi.pullAnd(target)
	} else {
		ok = oi.pullOr(target)
	}
	if !ok {
		oi.done = true
		oi.have = false
		return false
	}
	oi.have = true
	oi.next = oi.cur.blockno + 1
	*e = oi.cur
	return true
}

// pullOr produces the lowest block any input has at or after target. A lossy
// input makes the output page lossy.
func (oi *opIter) pullOr(target BlockNumber) bool {
	found := false
	var minBlock BlockNumber
	for i, in := range oi.inputs {
		oi.ok[i] = in.pull(target, &oi.pulled[i])
		if oi.ok[i] && (!found || oi.pulled[i].blockno < minBlock) {
			minBlock = oi.pulled[i].blockno
			found = true
		}
	}
	if !found {
		return false
	}
	out := pageEntry{blockno: minBlock}
	for i := range oi.inputs {
		p := &oi.pulled[i]
		if !oi.ok[i] || p.blockno != minBlock {
			continue
		}
		if p.ischunk {
			out = pageEntry{blockno: minBlock, ischunk: true, recheck: true}
			break
		}
		for w := range out.words {
			out.words[w] |= p.words[w]
		}
		out.recheck = out.recheck || p.recheck
	}
	oi.cur = out
	return true
}

// pullAnd produces the lowest block at or after target that every input has.
// When inputs disagree the target moves to the largest block seen, so each
// retry strictly increases it until a match or an exhausted input.
func (oi *opIter) pullAnd(target BlockNumber) bool {
	for {
		maxBlock := target
		for i, in := range oi.inputs {
			if !in.pull(target, &oi.pulled[i]) {
				return false
			}
			if b := oi.pulled[i].blockno; b > maxBlock {
				maxBlock = b
			}
		}
		if maxBlock != target {
			target = maxBlock
			continue
		}

		out := pageEntry{blockno: target, ischunk: true, recheck: true}
		exact := false
		for i := range oi.inputs {
			p := &oi.pulled[i]
			if p.ischunk {
				continue
			}
			if !exact {
				out.words = p.words
				out.recheck = p.recheck
				out.ischunk = false
				exact = true
				continue
			}
			for w := range out.words {
				out.words[w] &= p.words[w]
			}
			out.recheck = out.recheck || p.recheck
		}
		if exact {
			if oi.anyLossy() {
				out.recheck = true
			}
			if out.empty() {
				target++
				continue
			}
		}
		oi.cur = out
		return true
	}
}

func (oi *opIter) anyLossy() bool {
	for i := range oi.pulled {
		if oi.pulled[i].ischunk {
			return true
		}
	}
	return false
}

// StreamBitmap is the root of a stream tree and produces its pages in
// ascending block order.
type StreamBitmap struct {
	root StreamNode
	iter streamIter
	next BlockNumber
	done bool

	entry   pageEntry
	offsets []OffsetNumber
}

// Root returns the root node, or nil for an empty stream.
func (s *StreamBitmap) Root() StreamNode { return s.root }

// AddNode combines node into the tree. An AND or OR node with the same kind
// as the root gains node as another input; otherwise the root and node are
// wrapped in a new node of the given kind.
func (s *StreamBitmap) AddNode(node StreamNode, kind StreamKind) {
	if s.iter != nil {
		panic(errors.AssertionFailedf("stream modified after iteration began"))
	}
	if s.root == nil {
		if kind == StreamIndex {
			s.root = node
		} else {
			s.root = NewOpStream(kind, node)
		}
		return
	}
	if op, ok := s.root.(*OpStream); ok && op.kind == kind {
		op.inputs = append(op.inputs, node)
		return
	}
	if kind == StreamIndex {
		panic(errors.AssertionFailedf("cannot add %s node to non-empty stream", redact.Safe(kind)))
	}
	s.root = NewOpStream(kind, s.root, node)
}

// MoveFrom adds the tree of src to s and leaves src empty.
func (s *StreamBitmap) MoveFrom(src *StreamBitmap, kind StreamKind) {
	if src.root == nil {
		panic(errors.AssertionFailedf("moving empty stream"))
	}
	s.AddNode(src.root, kind)
	src.root = nil
}

// Next returns the next page of the stream. The first call starts the
// iteration, freezing every bitmap in the tree.
func (s *StreamBitmap) Next() (IterateResult, bool) {
	if s.done || s.root == nil {
		return IterateResult{}, false
	}
	if s.iter == nil {
		s.iter = s.root.begin()
		s.offsets = make([]OffsetNumber, MaxTuplesPerPage)
	}
	if !s.iter.pull(s.next, &s.entry) {
		s.done = true
		return IterateResult{}, false
	}
	s.next = s.entry.blockno + 1
	return expandPage(&s.entry, s.offsets), true
}
