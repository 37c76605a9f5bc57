// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package distribution

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/physprops/pkg/sql/opt"
	"github.com/cockroachdb/physprops/pkg/sql/opt/memo"
	"github.com/cockroachdb/physprops/pkg/sql/opt/props/physical"
)

func partitionSelectorBuildChildReqDist(
	r *memo.ChildRequest, required physical.Distribution,
) physical.Distribution {
	if d := requireSingletonOrReplicated(r, required); d != nil {
		return d
	}
	scanID := r.Parent.Operator().PartitionSelectorPrivate().ScanID
	if r.Parent.Relational().Partitions.Contains(scanID) {
		// The consumer is below the selector. A motion between the two would
		// put them in different slices.
		return anyDist(r, required)
	}
	return passThrough(r, required)
}

func partitionSelectorEnforcement(
	h memo.ExprHandle, required physical.EnfdDistribution,
) physical.EnforceType {
	child := h.ChildProvided(0)
	if required.Compatible(child.Dist) {
		return physical.EnforceUnnecessary
	}
	scanID := h.Operator().PartitionSelectorPrivate().ScanID
	if !child.PartIndex.Contains(scanID) {
		// The consumer is above the selector; a motion on top of the selector
		// would split them into two slices.
		return physical.EnforceProhibited
	}
	return physical.EnforceRequired
}

func limitBuildChildReqDist(r *memo.ChildRequest, required physical.Distribution) physical.Distribution {
	p := r.Parent.Operator().LimitPrivate()
	hasOuterRefs := r.Parent.Relational().HasOuterRefs()
	if !p.Global {
		if hasOuterRefs {
			panic(errors.AssertionFailedf("local limit with outer references"))
		}
		return anyDist(r, required)
	}
	if hasOuterRefs {
		return passThrough(r, required)
	}
	if !p.HasCount && (p.Offset == nil || opt.IsZeroConst(p.Offset)) {
		// Neither count nor offset: the limit does not need all rows in one
		// place.
		if physical.IsSingleton(required) {
			return anyDist(r, required)
		}
		return passThrough(r, required)
	}
	return physical.MasterSingleton
}

// limitBuildProvided taints a replicated input, since each segment may keep
// different rows.
func limitBuildProvided(h memo.ExprHandle) physical.Distribution {
	d := h.ChildProvided(0).Dist
	if rep, ok := d.(*physical.ReplicatedDist); ok && rep.Kind == physical.StrictReplicated {
		return &physical.ReplicatedDist{Kind: physical.TaintedReplicated}
	}
	return d
}

func limitEnforcement(h memo.ExprHandle, required physical.EnfdDistribution) physical.EnforceType {
	if required.Compatible(delivered(h)) {
		if h.Operator().LimitPrivate().Global {
			return physical.EnforceUnnecessary
		}
		// A local limit that already delivers the required distribution would
		// be paired with a global limit with no motion in between.
		return physical.EnforceProhibited
	}
	return physical.EnforceRequired
}

func motionBuildProvided(h memo.ExprHandle) physical.Distribution {
	return h.Operator().MotionPrivate().Dist
}

// motionEnforcement never places a motion on top of another motion. A
// motion cannot be parameterized by outer references.
func motionEnforcement(h memo.ExprHandle, required physical.EnfdDistribution) physical.EnforceType {
	if h.Relational().HasOuterRefs() {
		return physical.EnforceProhibited
	}
	if required.Compatible(delivered(h)) {
		return physical.EnforceUnnecessary
	}
	return physical.EnforceProhibited
}
