// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package memo

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/physprops/pkg/sql/opt"
	"github.com/cockroachdb/physprops/pkg/sql/opt/optconfig"
	"github.com/cockroachdb/physprops/pkg/sql/opt/props/physical"
	"github.com/cockroachdb/redact"
)

// Property identifies one of the physical properties an operator issues
// separate optimization requests for.
type Property uint8

const (
	OrderProperty Property = iota
	DistProperty
	RewindProperty
	PartPropProperty

	// NumProperties is the number of properties with request counts.
	NumProperties
)

var propertyNames = [...]string{
	OrderProperty:    "order",
	DistProperty:     "distribution",
	RewindProperty:   "rewindability",
	PartPropProperty: "partition-propagation",
}

func (p Property) String() string { return propertyNames[p] }

// SafeValue implements the redact.SafeValue interface.
func (Property) SafeValue() {}

// Request is one optimization request of an operator: the index of the
// sub-request to use for each property.
type Request struct {
	Order    int
	Dist     int
	Rewind   int
	PartProp int
}

// Index returns the flat request number of r, given the per-property request
// counts. It is the inverse of RequestSet.Lookup.
func (r Request) Index(counts [NumProperties]int) int {
	idx := r.Order
	idx = idx*counts[DistProperty] + r.Dist
	idx = idx*counts[RewindProperty] + r.Rewind
	return idx*counts[PartPropProperty] + r.PartProp
}

// RequestSet enumerates the cross product of the per-property request counts
// of an operator. Requests are numbered with the order sub-request varying
// slowest and the partition propagation sub-request varying fastest. The
// numbering is stable; search code relies on it to reproduce plans.
type RequestSet struct {
	counts [NumProperties]int
	table  []Request
}

// MakeRequestSet returns a set with a single request per property.
func MakeRequestSet() RequestSet {
	var s RequestSet
	for i := range s.counts {
		s.counts[i] = 1
	}
	s.rebuild()
	return s
}

// SetCount sets the number of requests for the given property and rebuilds
// the request table.
func (s *RequestSet) SetCount(p Property, n int) {
	if n < 1 {
		panic(errors.AssertionFailedf("invalid %v request count %d", p, redact.Safe(n)))
	}
	s.counts[p] = n
	s.rebuild()
}

func (s *RequestSet) rebuild() {
	total := 1
	for _, n := range s.counts {
		total *= n
	}
	s.table = make([]Request, 0, total)
	for o := 0; o < s.counts[OrderProperty]; o++ {
		for d := 0; d < s.counts[DistProperty]; d++ {
			for r := 0; r < s.counts[RewindProperty]; r++ {
				for p := 0; p < s.counts[PartPropProperty]; p++ {
					s.table = append(s.table, Request{Order: o, Dist: d, Rewind: r, PartProp: p})
				}
			}
		}
	}
}

// Count returns the total number of optimization requests.
func (s *RequestSet) Count() int {
	return len(s.table)
}

// PropCount returns the number of requests for a single property.
func (s *RequestSet) PropCount(p Property) int {
	return s.counts[p]
}

// Counts returns the per-property request counts.
func (s *RequestSet) Counts() [NumProperties]int {
	return s.counts
}

// Lookup returns the i-th optimization request.
func (s *RequestSet) Lookup(i int) Request {
	if i < 0 || i >= len(s.table) {
		panic(errors.AssertionFailedf("request %d out of range [0, %d)", redact.Safe(i), redact.Safe(len(s.table))))
	}
	return s.table[i]
}

// ChildRequest describes a request for the physical properties of one child
// of an expression.
type ChildRequest struct {
	// Parent is the expression whose child is being optimized.
	Parent   ExprHandle
	ChildIdx int

	// Siblings holds the properties delivered by the plans of the children
	// optimized before this one, in optimization order.
	Siblings []*physical.Provided

	// Request holds the sub-request number of every property.
	Request Request

	Flags optconfig.TraceFlags
}

// Op returns the kind of the parent operator.
func (r *ChildRequest) Op() opt.Operator {
	return r.Parent.Operator().Op()
}

// FirstSibling returns the properties delivered by the plan of the first
// optimized child.
func (r *ChildRequest) FirstSibling() *physical.Provided {
	if len(r.Siblings) == 0 {
		panic(errors.AssertionFailedf("%s child %d requested before its first sibling is optimized",
			r.Op(), redact.Safe(r.ChildIdx)))
	}
	return r.Siblings[0]
}
