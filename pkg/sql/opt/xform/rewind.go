// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package xform

import (
	"github.com/cockroachdb/physprops/pkg/sql/opt"
	"github.com/cockroachdb/physprops/pkg/sql/opt/memo"
	"github.com/cockroachdb/physprops/pkg/sql/opt/props/physical"
)

// rewindChildRequired returns the rewindability to require of the requested
// child in order to deliver the required rewindability.
func rewindChildRequired(r *memo.ChildRequest, required physical.RewindSpec) physical.RewindSpec {
	switch r.Op() {
	case opt.SortOp, opt.SpoolOp,
		opt.GatherMotionOp, opt.BroadcastMotionOp, opt.HashMotionOp, opt.RandomMotionOp:
		// These operators establish their own rewindability.
		return physical.NoRewind

	case opt.NestedLoopJoinOp:
		if r.ChildIdx == 0 {
			return rewindNLJoinOuter(r, required)
		}
		// The inner child is rescanned for every outer row.
		return physical.RewindSpec{Kind: physical.Rewindable, Hazard: innerHazard(r, required)}

	case opt.CorrelatedNestedLoopJoinOp:
		if r.ChildIdx == 0 {
			return rewindNLJoinOuter(r, required)
		}
		return rewindCorrelatedInner(r, required)

	case opt.IndexNestedLoopJoinOp, opt.LeftOuterIndexNestedLoopJoinOp:
		if r.ChildIdx == 0 {
			return rewindNLJoinOuter(r, required)
		}
		// The inner child is re-executed with new parameters for every outer
		// row rather than rescanned.
		return physical.RewindSpec{Kind: physical.NotRewindable, Hazard: required.Hazard}

	case opt.HashJoinOp, opt.LeftOuterHashJoinOp, opt.LeftSemiHashJoinOp,
		opt.LeftAntiSemiHashJoinOp, opt.LeftAntiSemiHashJoinNotInOp:
		if r.Parent.Relational().HasOuterRefs() {
			return physical.RewindSpec{Kind: physical.Rewindable, Hazard: required.Hazard}
		}
		if r.ChildIdx == 1 {
			// The hash table is built once.
			return physical.RewindSpec{Kind: physical.NotRewindable, Hazard: required.Hazard}
		}
		return rewindPassThrough(required)

	case opt.SequenceOp:
		if r.ChildIdx < memo.RelationalChildCount(r.Parent)-1 {
			return physical.NoRewind
		}
	}
	return rewindPassThrough(required)
}

func rewindPassThrough(required physical.RewindSpec) physical.RewindSpec {
	return required
}

// rewindNLJoinOuter returns the rewindability required of the outer child of
// a nested-loop join. A correlated join is itself rescanned, and so is its
// outer child.
func rewindNLJoinOuter(r *memo.ChildRequest, required physical.RewindSpec) physical.RewindSpec {
	if r.Parent.Relational().HasOuterRefs() {
		return physical.RewindSpec{Kind: physical.Rewindable, Hazard: required.Hazard}
	}
	return rewindPassThrough(required)
}

// rewindCorrelatedInner returns the rewindability required of the inner
// child of a correlated nested-loop join. An inner child that is not itself
// correlated with the outer child is rescanned unchanged for every outer row.
func rewindCorrelatedInner(r *memo.ChildRequest, required physical.RewindSpec) physical.RewindSpec {
	hazard := innerHazard(r, required)
	if r.Parent.Relational().HasOuterRefs() || !r.Parent.ChildRelational(1).HasOuterRefs() {
		return physical.RewindSpec{Kind: physical.Rewindable, Hazard: hazard}
	}
	return physical.RewindSpec{Kind: physical.NotRewindable, Hazard: hazard}
}

// innerHazard returns the motion hazard to require of the inner child of a
// nested-loop join: a streaming motion in the outer child must not be
// combined with one in the inner child.
func innerHazard(r *memo.ChildRequest, required physical.RewindSpec) physical.MotionHazard {
	if required.Hazard == physical.HasMotionHazard {
		return physical.HasMotionHazard
	}
	if len(r.Siblings) > 0 && r.FirstSibling().Rewind.Hazard == physical.HasMotionHazard {
		return physical.HasMotionHazard
	}
	return physical.NoMotionHazard
}

// deriveRewind returns the rewindability delivered by the plan of h.
func deriveRewind(h memo.ExprHandle) physical.RewindSpec {
	switch op := h.Operator().Op(); {
	case op == opt.ScanOp || op == opt.ConstTableOp || op == opt.CTEConsumerOp:
		return physical.RewindableSpec

	case op == opt.SortOp || op == opt.SpoolOp:
		// Both materialize their input.
		return physical.RewindSpec{Kind: physical.MarkRestore}

	case opt.IsMotionOp(op):
		return physical.MotionRewind

	case opt.IsJoinOp(op):
		return deriveJoinRewind(h)

	case op == opt.SequenceOp:
		return h.ChildProvided(memo.RelationalChildCount(h) - 1).Rewind
	}
	return rewindDeriveOuter(h)
}

func rewindDeriveOuter(h memo.ExprHandle) physical.RewindSpec {
	return h.ChildProvided(0).Rewind
}

// deriveJoinRewind returns the rewindability of a join: rewindable only if
// both children are, and never for a correlated join, whose inner child is
// re-executed for each outer row.
func deriveJoinRewind(h memo.ExprHandle) physical.RewindSpec {
	outer, inner := h.ChildProvided(0).Rewind, h.ChildProvided(1).Rewind
	hazard := physical.NoMotionHazard
	if outer.Hazard == physical.HasMotionHazard || inner.Hazard == physical.HasMotionHazard {
		hazard = physical.HasMotionHazard
	}
	if !outer.IsRescannable() || !inner.IsRescannable() ||
		h.Operator().Op() == opt.CorrelatedNestedLoopJoinOp {
		return physical.RewindSpec{Kind: physical.NotRewindable, Hazard: hazard}
	}
	return physical.RewindSpec{Kind: physical.Rewindable, Hazard: hazard}
}

// rewindEnforcement decides whether a spool is needed on top of h to deliver
// the required rewindability.
func rewindEnforcement(h memo.ExprHandle, required physical.EnfdRewind) physical.EnforceType {
	if required.Compatible(h.Provided().Rewind) {
		return physical.EnforceUnnecessary
	}
	switch h.Operator().Op() {
	case opt.PartitionSelectorOp:
		return physical.EnforceOptional
	case opt.SpoolOp:
		return physical.EnforceProhibited
	}
	return physical.EnforceRequired
}
