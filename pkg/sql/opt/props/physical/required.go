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
	"github.com/cockroachdb/physprops/pkg/sql/opt/props"
	"github.com/cockroachdb/physprops/pkg/util"
	"github.com/cockroachdb/redact"
)

// DistMatching is the mode used to compare a delivered distribution with a
// required one.
type DistMatching uint8

const (
	// DistSatisfy accepts any delivered distribution that satisfies the
	// required one.
	DistSatisfy DistMatching = iota
	// DistExact accepts only a delivered distribution equal to the required
	// one.
	DistExact
	// DistSubset accepts a delivered hashed distribution over a subset of the
	// required expressions.
	DistSubset
)

var distMatchingNames = [...]string{
	DistSatisfy: "satisfy",
	DistExact:   "exact",
	DistSubset:  "subset",
}

func (m DistMatching) String() string { return distMatchingNames[m] }

// SafeValue implements the redact.SafeValue interface.
func (DistMatching) SafeValue() {}

// EnfdDistribution is a required distribution together with its matching
// mode.
type EnfdDistribution struct {
	Dist     Distribution
	Matching DistMatching
}

// Compatible returns true if delivered meets the requirement.
func (e EnfdDistribution) Compatible(delivered Distribution) bool {
	switch e.Matching {
	case DistExact:
		return delivered.Equals(e.Dist)
	case DistSubset:
		d, ok1 := delivered.(*HashedDist)
		r, ok2 := e.Dist.(*HashedDist)
		if ok1 && ok2 {
			return d.MatchesSubset(r)
		}
		return delivered.Satisfies(e.Dist)
	}
	return delivered.Satisfies(e.Dist)
}

// Required is the set of physical properties a parent requires of a child's
// plan.
type Required struct {
	// Cols are the columns the child must produce.
	Cols     opt.ColSet
	Dist     EnfdDistribution
	Order    EnfdOrder
	Rewind   EnfdRewind
	PartProp *PartPropSpec
	CTE      *CTEReq
}

// MinRequired requires nothing beyond the given columns.
func MinRequired(cols opt.ColSet) *Required {
	return &Required{
		Cols:     cols,
		Dist:     EnfdDistribution{Dist: &AnyDist{}},
		PartProp: EmptyPartProp,
		CTE:      NewCTEReq(),
	}
}

// Verify panics if the requirement is malformed.
func (r *Required) Verify() {
	if r.Dist.Dist == nil {
		panic(errors.AssertionFailedf("required distribution is not set"))
	}
	if r.Dist.Dist.Type() == UniversalDistribution {
		panic(errors.AssertionFailedf("universal distribution cannot be required"))
	}
	if r.PartProp == nil {
		panic(errors.AssertionFailedf("required partition propagation is not set"))
	}
	if r.Dist.Matching == DistSubset && r.Dist.Dist.Type() != HashedDistribution {
		panic(errors.AssertionFailedf("subset matching of non-hashed distribution %v", r.Dist.Dist))
	}
}

// Compatible returns true if the delivered distribution, order and
// rewindability meet the requirement.
func (r *Required) Compatible(delivered *Provided) bool {
	return r.Dist.Compatible(delivered.Dist) &&
		r.Order.Compatible(delivered.Order) &&
		r.Rewind.Compatible(delivered.Rewind)
}

// Satisfied returns true if a plan with the given logical and physical
// properties meets every requirement. Order is not checked for a plan that
// produces at most one row.
func (r *Required) Satisfied(rel *props.Relational, delivered *Provided) bool {
	if !r.Cols.SubsetOf(rel.OutputCols) {
		return false
	}
	if !rel.AtMostOneRow() && !r.Order.Compatible(delivered.Order) {
		return false
	}
	return r.Dist.Compatible(delivered.Dist) &&
		r.Rewind.Compatible(delivered.Rewind) &&
		delivered.PartIndex.Satisfies(r.PartProp.index()) &&
		delivered.CTEs.Satisfies(r.CTE)
}

// Equals returns true if the two requirements are equal.
func (r *Required) Equals(other *Required) bool {
	return r.Cols.Equals(other.Cols) &&
		r.Dist.Matching == other.Dist.Matching &&
		r.Dist.Dist.Equals(other.Dist.Dist) &&
		r.Order.Order.Equals(other.Order.Order) &&
		r.Rewind.Rewind.Equals(other.Rewind.Rewind) &&
		r.PartProp.Equals(other.PartProp) &&
		r.CTE.Equals(other.CTE)
}

// Hash returns a hash consistent with Equals.
func (r *Required) Hash() uint32 {
	h := r.Dist.Dist.Hash()
	h = util.CombineHashes(h, r.Order.Order.Hash())
	h = util.CombineHashes(h, r.Rewind.Rewind.Hash())
	h = util.CombineHashes(h, r.PartProp.Hash())
	return util.CombineHashes(h, r.CTE.Hash())
}

// SafeFormat implements the redact.SafeFormatter interface.
func (r *Required) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("cols=%s dist=%v (%s) order=%v rewind=%v",
		redact.SafeString(r.Cols.String()), r.Dist.Dist, r.Dist.Matching, r.Order.Order, r.Rewind.Rewind)
	if r.PartProp.index().Len() > 0 {
		w.Printf(" partprop=%v", r.PartProp)
	}
	if r.CTE.Len() > 0 {
		w.Printf(" cte=%v", r.CTE)
	}
}

func (r *Required) String() string { return redact.StringWithoutMarkers(r) }
