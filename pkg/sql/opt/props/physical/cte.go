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
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/physprops/pkg/sql/opt"
	"github.com/cockroachdb/physprops/pkg/util"
	"github.com/cockroachdb/redact"
)

// CTEType is the role of an operator for a CTE id.
type CTEType uint8

const (
	// CTEProducer materializes the CTE.
	CTEProducer CTEType = iota + 1
	// CTEConsumer reads the materialized CTE.
	CTEConsumer
)

func (t CTEType) String() string {
	switch t {
	case CTEProducer:
		return "producer"
	case CTEConsumer:
		return "consumer"
	}
	return "unknown"
}

// SafeValue implements the redact.SafeValue interface.
func (CTEType) SafeValue() {}

// CTEReqEntry is one CTE requirement.
type CTEReqEntry struct {
	ID       opt.CTEID
	Type     CTEType
	Required bool
	// ProducerProps are the plan properties of the producer, set on
	// required consumer entries.
	ProducerProps *Provided
}

func (e *CTEReqEntry) equals(other *CTEReqEntry) bool {
	if e.ID != other.ID || e.Type != other.Type || e.Required != other.Required {
		return false
	}
	if e.ProducerProps == other.ProducerProps {
		return true
	}
	return e.ProducerProps != nil && other.ProducerProps != nil &&
		e.ProducerProps.Equals(other.ProducerProps)
}

// CTEReq is the set of CTE producers and consumers a subtree is required to
// contain. Entries keep their insertion order. A CTEReq is populated once and
// then only used to build new requirements; a nil CTEReq is empty.
type CTEReq struct {
	entries  []*CTEReqEntry
	byID     map[opt.CTEID]*CTEReqEntry
	required []opt.CTEID
}

// NewCTEReq returns an empty requirement.
func NewCTEReq() *CTEReq {
	return &CTEReq{byID: make(map[opt.CTEID]*CTEReqEntry)}
}

// Insert adds an entry. The id must not already be present. Required
// consumers must carry their producer's properties and producers must not.
func (r *CTEReq) Insert(id opt.CTEID, typ CTEType, required bool, producerProps *Provided) {
	if _, ok := r.byID[id]; ok {
		panic(errors.AssertionFailedf("duplicate CTE requirement for id %d", redact.Safe(id)))
	}
	if typ == CTEConsumer && required && producerProps == nil {
		panic(errors.AssertionFailedf("required CTE consumer %d has no producer properties", redact.Safe(id)))
	}
	if typ == CTEProducer && producerProps != nil {
		panic(errors.AssertionFailedf("CTE producer %d carries producer properties", redact.Safe(id)))
	}
	e := &CTEReqEntry{ID: id, Type: typ, Required: required, ProducerProps: producerProps}
	r.entries = append(r.entries, e)
	r.byID[id] = e
	if required {
		r.required = append(r.required, id)
	}
}

// InsertConsumer adds a required consumer of id. The producer's properties
// are taken from the first derived sibling, which must have produced id.
func (r *CTEReq) InsertConsumer(id opt.CTEID, siblings []*Provided) {
	if len(siblings) == 0 {
		panic(errors.AssertionFailedf("no derived sibling to take CTE %d producer from", redact.Safe(id)))
	}
	producerID, props, ok := siblings[0].CTEs.Producer()
	if !ok || producerID != id {
		panic(errors.AssertionFailedf(
			"unexpected CTE producer plan properties: expected producer %d, found %d",
			redact.Safe(id), redact.Safe(producerID),
		))
	}
	r.Insert(id, CTEConsumer, true, props)
}

// Len returns the number of entries.
func (r *CTEReq) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Get returns the entry for the given id.
func (r *CTEReq) Get(id opt.CTEID) (CTEReqEntry, bool) {
	if r == nil {
		return CTEReqEntry{}, false
	}
	e, ok := r.byID[id]
	if !ok {
		return CTEReqEntry{}, false
	}
	return *e, true
}

// RequiredIDs returns the ids of the required entries in insertion order.
func (r *CTEReq) RequiredIDs() []opt.CTEID {
	if r == nil {
		return nil
	}
	return r.required
}

// ContainsRequirement returns true if there is an entry for id of the given
// type, required or not.
func (r *CTEReq) ContainsRequirement(id opt.CTEID, typ CTEType) bool {
	e, ok := r.Get(id)
	return ok && e.Type == typ
}

// ForEach calls fn on every entry in insertion order.
func (r *CTEReq) ForEach(fn func(e CTEReqEntry)) {
	if r == nil {
		return
	}
	for _, e := range r.entries {
		fn(*e)
	}
}

// Unresolved returns the requirement left after a sibling derived m. An
// entry stays required only if it was required and m does not provide it.
func (r *CTEReq) Unresolved(m *CTEMap) *CTEReq {
	res := NewCTEReq()
	r.ForEach(func(e CTEReqEntry) {
		_, found := m.Get(e.ID)
		res.Insert(e.ID, e.Type, e.Required && !found, e.ProducerProps)
	})
	return res
}

// UnresolvedSequence returns the requirement of the last child of a
// sequence whose earlier children derived m. A producer built by an earlier
// child turns into a required consumer in the last child, since that child
// sees the materialized CTE.
func (r *CTEReq) UnresolvedSequence(m *CTEMap, siblings []*Provided) *CTEReq {
	res := NewCTEReq()
	r.ForEach(func(e CTEReqEntry) {
		derived, found := m.Get(e.ID)
		switch {
		case found && derived.Type == CTEProducer:
			res.InsertConsumer(e.ID, siblings)
		case found:
			res.Insert(e.ID, e.Type, false, e.ProducerProps)
		default:
			res.Insert(e.ID, e.Type, e.Required, e.ProducerProps)
		}
	})
	for _, id := range m.AdditionalProducers(r) {
		res.InsertConsumer(id, siblings)
	}
	return res
}

// AllOptional returns a copy of r with no required entries.
func (r *CTEReq) AllOptional() *CTEReq {
	res := NewCTEReq()
	r.ForEach(func(e CTEReqEntry) {
		res.Insert(e.ID, e.Type, false, e.ProducerProps)
	})
	return res
}

// Subset returns true if every entry of r has an equal entry in other.
func (r *CTEReq) Subset(other *CTEReq) bool {
	if r.Len() > other.Len() {
		return false
	}
	if r == nil {
		return true
	}
	for _, e := range r.entries {
		o, ok := other.byID[e.ID]
		if !ok || !e.equals(o) {
			return false
		}
	}
	return true
}

// Equals returns true if the two requirements have equal entries.
func (r *CTEReq) Equals(other *CTEReq) bool {
	return r.Len() == other.Len() && r.Subset(other)
}

// Hash combines the first few entries in insertion order. Equal
// requirements built in different orders may hash differently.
func (r *CTEReq) Hash() uint32 {
	h := util.MakeHasher()
	if r == nil {
		return h.Sum32()
	}
	for i, e := range r.entries {
		if i == opt.MaxCTEReqHashEntries {
			break
		}
		h.AddUint32(uint32(e.ID))
		h.AddUint32(uint32(e.Type))
		h.AddBool(e.Required)
	}
	return h.Sum32()
}

// SafeFormat implements the redact.SafeFormatter interface.
func (r *CTEReq) SafeFormat(w redact.SafePrinter, _ rune) {
	w.SafeString("{")
	for i, e := range r.entries {
		if i > 0 {
			w.SafeString(", ")
		}
		w.Printf("%d:%s", e.ID, e.Type)
		if e.Required {
			w.SafeString("(req)")
		} else {
			w.SafeString("(opt)")
		}
	}
	w.SafeString("}")
}

func (r *CTEReq) String() string {
	if r == nil {
		return "{}"
	}
	return redact.StringWithoutMarkers(r)
}

// CTEMapEntry is one CTE delivered by a subtree.
type CTEMapEntry struct {
	ID   opt.CTEID
	Type CTEType
	// ProducerProps are the plan properties of a producer entry.
	ProducerProps *Provided
}

// CTEMap is the set of CTE producers and consumers that a subtree contains
// and does not resolve itself. A nil map is empty.
type CTEMap struct {
	entries []CTEMapEntry
	byID    map[opt.CTEID]int
}

// NewCTEMap returns an empty map.
func NewCTEMap() *CTEMap {
	return &CTEMap{byID: make(map[opt.CTEID]int)}
}

// Insert adds an entry. The id must not already be present.
func (m *CTEMap) Insert(id opt.CTEID, typ CTEType, producerProps *Provided) {
	if _, ok := m.byID[id]; ok {
		panic(errors.AssertionFailedf("duplicate CTE map entry for id %d", redact.Safe(id)))
	}
	m.byID[id] = len(m.entries)
	m.entries = append(m.entries, CTEMapEntry{ID: id, Type: typ, ProducerProps: producerProps})
}

// Get returns the entry for the given id.
func (m *CTEMap) Get(id opt.CTEID) (CTEMapEntry, bool) {
	if m == nil {
		return CTEMapEntry{}, false
	}
	i, ok := m.byID[id]
	if !ok {
		return CTEMapEntry{}, false
	}
	return m.entries[i], true
}

// Len returns the number of entries.
func (m *CTEMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Combine returns the map derived by an operator over subtrees that derived
// m and other. A producer on one side and a consumer of the same id on the
// other resolve each other and are dropped.
func (m *CTEMap) Combine(other *CTEMap) *CTEMap {
	res := NewCTEMap()
	addUnresolvedCTEs(m, other, res)
	addUnresolvedCTEs(other, m, res)
	return res
}

func addUnresolvedCTEs(fst, snd, res *CTEMap) {
	if fst == nil {
		return
	}
	for _, e := range fst.entries {
		if s, ok := snd.Get(e.ID); ok && s.Type != e.Type {
			continue
		}
		if _, ok := res.Get(e.ID); !ok {
			res.Insert(e.ID, e.Type, e.ProducerProps)
		}
	}
}

// Producer returns the id and plan properties of the producer in m.
func (m *CTEMap) Producer() (opt.CTEID, *Provided, bool) {
	if m == nil {
		return 0, nil, false
	}
	for _, e := range m.entries {
		if e.Type == CTEProducer {
			return e.ID, e.ProducerProps, true
		}
	}
	return 0, nil, false
}

// AdditionalProducers returns the producers in m that req does not mention.
func (m *CTEMap) AdditionalProducers(req *CTEReq) []opt.CTEID {
	if m == nil {
		return nil
	}
	var res []opt.CTEID
	for _, e := range m.entries {
		if e.Type == CTEProducer && !req.ContainsRequirement(e.ID, CTEProducer) {
			res = append(res, e.ID)
		}
	}
	return res
}

// Satisfies returns true if every required entry of req is in m with the
// same type, and every consumer in m is mentioned by req.
func (m *CTEMap) Satisfies(req *CTEReq) bool {
	for _, id := range req.RequiredIDs() {
		r, _ := req.Get(id)
		e, ok := m.Get(id)
		if !ok || e.Type != r.Type {
			return false
		}
	}
	if m == nil {
		return true
	}
	for _, e := range m.entries {
		if e.Type == CTEConsumer && !req.ContainsRequirement(e.ID, CTEConsumer) {
			return false
		}
	}
	return true
}

// Equals returns true if the maps hold the same ids with the same types.
func (m *CTEMap) Equals(other *CTEMap) bool {
	if m.Len() != other.Len() {
		return false
	}
	if m == nil {
		return true
	}
	for _, e := range m.entries {
		o, ok := other.Get(e.ID)
		if !ok || o.Type != e.Type {
			return false
		}
	}
	return true
}

// SafeFormat implements the redact.SafeFormatter interface.
func (m *CTEMap) SafeFormat(w redact.SafePrinter, _ rune) {
	w.SafeString("{")
	for i, e := range m.entries {
		if i > 0 {
			w.SafeString(", ")
		}
		w.Printf("%d:%s", e.ID, e.Type)
	}
	w.SafeString("}")
}

func (m *CTEMap) String() string {
	if m == nil {
		return "{}"
	}
	return redact.StringWithoutMarkers(m)
}
