// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package physical

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/physprops/pkg/sql/opt"
	"github.com/cockroachdb/physprops/pkg/util"
	"github.com/cockroachdb/redact"
	"github.com/google/btree"
	"golang.org/x/exp/slices"
)

// PartManipulator is the role an operator plays for a dynamic scan.
type PartManipulator uint8

const (
	// PartConsumer entries are dynamic scans that still need a partition
	// selector to tell them which partitions to read.
	PartConsumer PartManipulator = iota
	// PartPropagator entries are partition selectors whose consumer has not
	// been seen yet.
	PartPropagator
	// PartResolver entries are consumers that have met all of their
	// selectors.
	PartResolver
)

func (m PartManipulator) String() string {
	switch m {
	case PartConsumer:
		return "consumer"
	case PartPropagator:
		return "propagator"
	case PartResolver:
		return "resolver"
	}
	return "unknown"
}

// SafeValue implements the redact.SafeValue interface.
func (PartManipulator) SafeValue() {}

// UnknownPropagators is the expected propagator count of a consumer whose
// number of selectors is not known.
const UnknownPropagators = math.MaxUint32

// PartIndexEntry is one dynamic scan of a PartIndexMap.
type PartIndexEntry struct {
	ScanID              opt.ScanID
	Manipulator         PartManipulator
	ExpectedPropagators uint32
}

// Less implements the btree.Item interface.
func (e *PartIndexEntry) Less(than btree.Item) bool {
	return e.ScanID < than.(*PartIndexEntry).ScanID
}

const partIndexBTreeDegree = 8

// PartIndexMap maps dynamic scan ids to their partition propagation state.
// Entries are kept ordered by scan id. A map is built with Insert and is
// treated as immutable once handed to another operator; a nil map is empty.
type PartIndexMap struct {
	tree       *btree.BTree
	unresolved int
}

// NewPartIndexMap returns an empty map.
func NewPartIndexMap() *PartIndexMap {
	return &PartIndexMap{tree: btree.New(partIndexBTreeDegree)}
}

// Insert adds an entry. The map must not already contain the scan id.
func (m *PartIndexMap) Insert(e PartIndexEntry) {
	if m.tree.ReplaceOrInsert(&e) != nil {
		panic(errors.AssertionFailedf("duplicate partition index map entry for scan %d", redact.Safe(e.ScanID)))
	}
	if e.Manipulator == PartConsumer {
		m.unresolved++
	}
}

// Get returns the entry for the given scan id.
func (m *PartIndexMap) Get(id opt.ScanID) (PartIndexEntry, bool) {
	if m == nil {
		return PartIndexEntry{}, false
	}
	it := m.tree.Get(&PartIndexEntry{ScanID: id})
	if it == nil {
		return PartIndexEntry{}, false
	}
	return *it.(*PartIndexEntry), true
}

// Contains returns true if the map has an entry for the scan id.
func (m *PartIndexMap) Contains(id opt.ScanID) bool {
	_, ok := m.Get(id)
	return ok
}

// Len returns the number of entries.
func (m *PartIndexMap) Len() int {
	if m == nil {
		return 0
	}
	return m.tree.Len()
}

// ForEach calls fn on every entry in scan id order.
func (m *PartIndexMap) ForEach(fn func(e PartIndexEntry)) {
	if m == nil {
		return
	}
	m.tree.Ascend(func(it btree.Item) bool {
		fn(*it.(*PartIndexEntry))
		return true
	})
}

// ScanIDs returns the scan ids in increasing order.
func (m *PartIndexMap) ScanIDs() []opt.ScanID {
	var res []opt.ScanID
	m.ForEach(func(e PartIndexEntry) {
		res = append(res, e.ScanID)
	})
	return res
}

// ContainsUnresolved returns true if the map has at least one consumer
// entry.
func (m *PartIndexMap) ContainsUnresolved() bool {
	return m != nil && m.unresolved > 0
}

// Combine returns the map derived by an operator over two subtrees that
// derived m and other. A selector on one side and its consumer on the other
// resolve each other.
func (m *PartIndexMap) Combine(other *PartIndexMap) *PartIndexMap {
	res := NewPartIndexMap()
	addUnresolved(m, other, res)
	addUnresolved(other, m, res)
	return res
}

func addUnresolved(fst, snd, res *PartIndexMap) {
	fst.ForEach(func(e PartIndexEntry) {
		if res.Contains(e.ScanID) {
			return
		}
		if s, ok := snd.Get(e.ScanID); ok {
			e.Manipulator, e.ExpectedPropagators = resolvePropagator(e, s)
		}
		res.Insert(e)
	})
}

// resolvePropagator combines a propagator with a consumer of the same scan.
// Every propagator reduces the consumer's expected count by one, and the
// consumer is resolved once the count reaches zero. Any other pair keeps the
// first entry unchanged.
func resolvePropagator(fst, snd PartIndexEntry) (PartManipulator, uint32) {
	consumer := fst
	switch {
	case fst.Manipulator == PartPropagator && snd.Manipulator == PartConsumer:
		consumer = snd
	case fst.Manipulator == PartConsumer && snd.Manipulator == PartPropagator:
	default:
		return fst.Manipulator, fst.ExpectedPropagators
	}
	if consumer.ExpectedPropagators == 0 {
		return PartConsumer, UnknownPropagators
	}
	if consumer.ExpectedPropagators == 1 {
		return PartResolver, 0
	}
	return PartConsumer, consumer.ExpectedPropagators - 1
}

// WithPartitionSelector returns the map derived by a partition selector for
// the given scan over a child that derived m. expected is the number of
// selectors still expected for the scan above this one.
func (m *PartIndexMap) WithPartitionSelector(id opt.ScanID, expected uint32) *PartIndexMap {
	res := NewPartIndexMap()
	m.ForEach(func(e PartIndexEntry) {
		if e.ScanID == id {
			if expected == 0 {
				e.Manipulator, e.ExpectedPropagators = PartResolver, 0
			} else {
				e.Manipulator, e.ExpectedPropagators = PartConsumer, expected
			}
		}
		res.Insert(e)
	})
	if !res.Contains(id) {
		// The consumer is somewhere further up the tree.
		res.Insert(PartIndexEntry{ScanID: id, Manipulator: PartPropagator})
	}
	return res
}

// Subset returns true if every entry of m is in other with the same
// manipulator and expected propagator count.
func (m *PartIndexMap) Subset(other *PartIndexMap) bool {
	if m.Len() > other.Len() {
		return false
	}
	ok := true
	m.ForEach(func(e PartIndexEntry) {
		if o, found := other.Get(e.ScanID); !found || o != e {
			ok = false
		}
	})
	return ok
}

// Equals returns true if the two maps have the same entries.
func (m *PartIndexMap) Equals(other *PartIndexMap) bool {
	return m.Len() == other.Len() && m.Subset(other)
}

const maxPartIndexHashEntries = 5

// Hash hashes the first few scan ids.
func (m *PartIndexMap) Hash() uint32 {
	h := util.MakeHasher()
	n := 0
	m.ForEach(func(e PartIndexEntry) {
		if n < maxPartIndexHashEntries {
			h.AddUint32(uint32(e.ScanID))
		}
		n++
	})
	return h.Sum32()
}

// Satisfies returns true if a subtree that derived m meets the requirement.
// A required consumer is met by a derived resolver or propagator, or by a
// consumer that expects the same number of selectors.
func (m *PartIndexMap) Satisfies(required *PartIndexMap) bool {
	if !required.ContainsUnresolved() {
		return true
	}
	ok := true
	required.ForEach(func(req PartIndexEntry) {
		if d, found := m.Get(req.ScanID); found && !satisfiesEntry(req, d) {
			ok = false
		}
	})
	return ok
}

func satisfiesEntry(req, derived PartIndexEntry) bool {
	if derived.Manipulator == PartResolver || derived.Manipulator == PartPropagator {
		return true
	}
	n := derived.ExpectedPropagators
	return n == UnknownPropagators || (n != 0 && n == req.ExpectedPropagators)
}

// SafeFormat implements the redact.SafeFormatter interface.
func (m *PartIndexMap) SafeFormat(w redact.SafePrinter, _ rune) {
	w.SafeString("{")
	first := true
	m.ForEach(func(e PartIndexEntry) {
		if !first {
			w.SafeString(", ")
		}
		first = false
		w.Printf("%d:%s", e.ScanID, e.Manipulator)
		if e.Manipulator == PartConsumer {
			if e.ExpectedPropagators == UnknownPropagators {
				w.SafeString("(?)")
			} else {
				w.Printf("(%d)", e.ExpectedPropagators)
			}
		}
	})
	w.SafeString("}")
}

func (m *PartIndexMap) String() string { return redact.StringWithoutMarkers(m) }

// PartFilterMap maps scan ids to the predicate a partition selector applies
// to choose partitions.
type PartFilterMap struct {
	filters map[opt.ScanID]opt.ScalarExpr
}

// NewPartFilterMap returns an empty filter map.
func NewPartFilterMap() *PartFilterMap {
	return &PartFilterMap{filters: make(map[opt.ScanID]opt.ScalarExpr)}
}

// Add records the filter for the given scan.
func (f *PartFilterMap) Add(id opt.ScanID, filter opt.ScalarExpr) {
	if _, ok := f.filters[id]; ok {
		panic(errors.AssertionFailedf("duplicate partition filter for scan %d", redact.Safe(id)))
	}
	f.filters[id] = filter
}

// Get returns the filter for the given scan.
func (f *PartFilterMap) Get(id opt.ScanID) (opt.ScalarExpr, bool) {
	if f == nil {
		return nil, false
	}
	e, ok := f.filters[id]
	return e, ok
}

// Contains returns true if the map has a filter for the scan.
func (f *PartFilterMap) Contains(id opt.ScanID) bool {
	_, ok := f.Get(id)
	return ok
}

// Len returns the number of filters.
func (f *PartFilterMap) Len() int {
	if f == nil {
		return 0
	}
	return len(f.filters)
}

// Equals returns true if both maps hold equal filters for the same scans.
func (f *PartFilterMap) Equals(other *PartFilterMap) bool {
	if f.Len() != other.Len() {
		return false
	}
	if f == nil {
		return true
	}
	for id, e := range f.filters {
		o, ok := other.Get(id)
		if !ok || !opt.ScalarExprsEqual(e, o) {
			return false
		}
	}
	return true
}

// ScanIDs returns the scans with filters in increasing order.
func (f *PartFilterMap) ScanIDs() []opt.ScanID {
	if f.Len() == 0 {
		return nil
	}
	ids := make([]opt.ScanID, 0, len(f.filters))
	for id := range f.filters {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// SafeFormat implements the redact.SafeFormatter interface.
func (f *PartFilterMap) SafeFormat(w redact.SafePrinter, _ rune) {
	w.SafeRune('{')
	for i, id := range f.ScanIDs() {
		if i > 0 {
			w.SafeString(", ")
		}
		w.Printf("%d:%s", id, redact.SafeString(f.filters[id].String()))
	}
	w.SafeRune('}')
}

func (f *PartFilterMap) String() string { return redact.StringWithoutMarkers(f) }

// PartPropSpec is a partition propagation requirement: the dynamic scans
// that still need selectors, and the filters the selectors may use.
type PartPropSpec struct {
	Index   *PartIndexMap
	Filters *PartFilterMap
}

// EmptyPartProp requires nothing.
var EmptyPartProp = &PartPropSpec{}

func (p *PartPropSpec) index() *PartIndexMap {
	if p == nil {
		return nil
	}
	return p.Index
}

func (p *PartPropSpec) filters() *PartFilterMap {
	if p == nil {
		return nil
	}
	return p.Filters
}

// Equals returns true if the two specs are equal.
func (p *PartPropSpec) Equals(other *PartPropSpec) bool {
	return p.index().Equals(other.index()) && p.filters().Equals(other.filters())
}

// Hash returns a hash consistent with Equals.
func (p *PartPropSpec) Hash() uint32 {
	return util.CombineHashes(p.index().Hash(), uint32(p.filters().Len()))
}

// AppendEnforcers appends a partition selector for every required consumer
// that the subtree delivers without any selector expected elsewhere, and for
// every required consumer defined outside the subtree that has a filter to
// propagate from it.
func (p *PartPropSpec) AppendEnforcers(ctx *EnforceContext, enforcers []Enforcer) []Enforcer {
	var derived *PartIndexMap
	if ctx.Delivered != nil {
		derived = ctx.Delivered.PartIndex
	}
	p.index().ForEach(func(e PartIndexEntry) {
		if e.Manipulator != PartConsumer {
			return
		}
		filter, hasFilter := p.filters().Get(e.ScanID)
		d, ok := derived.Get(e.ScanID)
		if ok && (d.Manipulator != PartConsumer || d.ExpectedPropagators != 0) {
			return
		}
		if !ok && !hasFilter {
			return
		}
		enforcers = append(enforcers, Enforcer{
			Op: opt.PartitionSelectorOp, ScanID: e.ScanID, Filter: filter,
		})
	})
	return enforcers
}

// resolved returns true if derived resolves every required consumer.
func (p *PartPropSpec) resolved(derived *PartIndexMap) bool {
	ok := true
	p.index().ForEach(func(e PartIndexEntry) {
		if e.Manipulator != PartConsumer {
			return
		}
		if d, found := derived.Get(e.ScanID); !found || d.Manipulator != PartResolver {
			ok = false
		}
	})
	return ok
}

// inScope returns true if every required consumer is defined in derived.
func (p *PartPropSpec) inScope(derived *PartIndexMap) bool {
	ok := true
	p.index().ForEach(func(e PartIndexEntry) {
		if e.Manipulator == PartConsumer && !derived.Contains(e.ScanID) {
			ok = false
		}
	})
	return ok
}

// awaitsNoSelector returns true if derived has a required consumer that does
// not expect a selector anywhere else in the plan.
func (p *PartPropSpec) awaitsNoSelector(derived *PartIndexMap) bool {
	found := false
	p.index().ForEach(func(e PartIndexEntry) {
		if e.Manipulator != PartConsumer {
			return
		}
		if d, ok := derived.Get(e.ScanID); ok && d.Manipulator == PartConsumer && d.ExpectedPropagators == 0 {
			found = true
		}
	})
	return found
}

// Enforcement decides whether partition selectors are needed on top of a
// subtree that derived the given map.
func (p *PartPropSpec) Enforcement(derived *PartIndexMap) EnforceType {
	if !p.index().ContainsUnresolved() {
		return EnforceUnnecessary
	}
	if p.resolved(derived) {
		return EnforceUnnecessary
	}
	if !p.inScope(derived) || p.awaitsNoSelector(derived) {
		// Some consumers are defined elsewhere, or expect no other selector:
		// add selectors on top.
		return EnforceRequired
	}
	// Every consumer is in scope of the operator, which must resolve them
	// itself.
	return EnforceProhibited
}

// SafeFormat implements the redact.SafeFormatter interface.
func (p *PartPropSpec) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(p.index())
	if p.filters().Len() > 0 {
		w.Printf(" filters=%v", p.filters())
	}
}

func (p *PartPropSpec) String() string { return redact.StringWithoutMarkers(p) }
