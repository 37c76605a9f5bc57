// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package ordering computes the sort order properties of each operator:
// the order it requires of its children, the order it delivers, and
// whether a required order must be enforced with a sort on top of it.
package ordering

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/physprops/pkg/sql/opt"
	"github.com/cockroachdb/physprops/pkg/sql/opt/memo"
	"github.com/cockroachdb/physprops/pkg/sql/opt/props/physical"
	"github.com/cockroachdb/physprops/pkg/util/buildutil"
	"github.com/cockroachdb/redact"
)

// BuildChildRequired returns the order that must be required of the
// requested child in order to satisfy a required order.
func BuildChildRequired(r *memo.ChildRequest, required physical.OrderSpec) physical.OrderSpec {
	result := funcMap[r.Op()].buildChildReqOrdering(r, required)
	if buildutil.CrdbTestBuild && !result.Empty() {
		checkRequired(r.Parent.ChildRelational(r.ChildIdx).OutputCols, result, r.Op())
	}
	return result
}

// BuildProvided returns the order the operator delivers. It assumes the
// provided properties of the children have already been set.
//
// The result only refers to output columns of the expression: a delivered
// order is cut at its first column that is not an output column.
func BuildProvided(h memo.ExprHandle) physical.OrderSpec {
	provided := funcMap[h.Operator().Op()].buildProvidedOrdering(h)
	return finalizeProvided(provided, h.Relational().OutputCols)
}

// Enforcement decides whether a sort is needed on top of the expression to
// deliver the required order. The expression's own delivered properties
// must be set.
func Enforcement(h memo.ExprHandle, required physical.EnfdOrder) physical.EnforceType {
	return funcMap[h.Operator().Op()].enforcement(h, required)
}

type funcs struct {
	buildChildReqOrdering func(r *memo.ChildRequest, required physical.OrderSpec) physical.OrderSpec
	buildProvidedOrdering func(h memo.ExprHandle) physical.OrderSpec
	enforcement           func(h memo.ExprHandle, required physical.EnfdOrder) physical.EnforceType
}

var funcMap [opt.NumOperators]funcs

func init() {
	for _, op := range opt.RelationalOperators {
		funcMap[op] = funcs{
			buildChildReqOrdering: noChildReqOrdering,
			buildProvidedOrdering: noProvidedOrdering,
			enforcement:           defaultEnforcement,
		}
	}
	funcMap[opt.ScanOp].buildProvidedOrdering = scanBuildProvided

	for _, op := range []opt.Operator{opt.FilterOp, opt.ProjectOp, opt.SpoolOp, opt.CTEProducerOp} {
		funcMap[op].buildChildReqOrdering = passThroughChildReqOrdering
		funcMap[op].buildProvidedOrdering = firstChildProvidedOrdering
	}
	funcMap[opt.PartitionSelectorOp] = funcs{
		buildChildReqOrdering: passThroughChildReqOrdering,
		buildProvidedOrdering: firstChildProvidedOrdering,
		enforcement:           optionalEnforcement,
	}
	funcMap[opt.SortOp] = funcs{
		buildChildReqOrdering: emptyChildReqOrdering,
		buildProvidedOrdering: sortBuildProvided,
		enforcement:           sortEnforcement,
	}
	funcMap[opt.LimitOp] = funcs{
		buildChildReqOrdering: limitBuildChildReqOrdering,
		buildProvidedOrdering: firstChildProvidedOrdering,
		enforcement:           defaultEnforcement,
	}
	for _, op := range []opt.Operator{
		opt.GatherMotionOp, opt.BroadcastMotionOp, opt.HashMotionOp, opt.RandomMotionOp,
	} {
		funcMap[op] = funcs{
			buildChildReqOrdering: motionBuildChildReqOrdering,
			buildProvidedOrdering: motionBuildProvided,
			enforcement:           defaultEnforcement,
		}
	}
	for _, op := range []opt.Operator{
		opt.NestedLoopJoinOp, opt.CorrelatedNestedLoopJoinOp,
		opt.IndexNestedLoopJoinOp, opt.LeftOuterIndexNestedLoopJoinOp,
	} {
		funcMap[op] = funcs{
			buildChildReqOrdering: nestedLoopJoinBuildChildReqOrdering,
			buildProvidedOrdering: firstChildProvidedOrdering,
			enforcement:           nestedLoopJoinEnforcement,
		}
	}
	for _, op := range []opt.Operator{
		opt.HashJoinOp, opt.LeftOuterHashJoinOp, opt.LeftSemiHashJoinOp,
		opt.LeftAntiSemiHashJoinOp, opt.LeftAntiSemiHashJoinNotInOp, opt.UnionAllOp,
	} {
		funcMap[op] = funcs{
			buildChildReqOrdering: emptyChildReqOrdering,
			buildProvidedOrdering: noProvidedOrdering,
			enforcement:           defaultEnforcement,
		}
	}
	funcMap[opt.SequenceOp] = funcs{
		buildChildReqOrdering: sequenceBuildChildReqOrdering,
		buildProvidedOrdering: lastChildProvidedOrdering,
		enforcement:           defaultEnforcement,
	}
}

func noChildReqOrdering(r *memo.ChildRequest, required physical.OrderSpec) physical.OrderSpec {
	panic(errors.AssertionFailedf("%s has no relational children", r.Op()))
}

func emptyChildReqOrdering(r *memo.ChildRequest, required physical.OrderSpec) physical.OrderSpec {
	return physical.OrderSpec{}
}

func passThroughChildReqOrdering(
	r *memo.ChildRequest, required physical.OrderSpec,
) physical.OrderSpec {
	if !required.ColSet().SubsetOf(r.Parent.ChildRelational(r.ChildIdx).OutputCols) {
		// The order is on columns computed by the operator; it has to be
		// enforced above it.
		return physical.OrderSpec{}
	}
	return required
}

func noProvidedOrdering(h memo.ExprHandle) physical.OrderSpec {
	return physical.OrderSpec{}
}

func firstChildProvidedOrdering(h memo.ExprHandle) physical.OrderSpec {
	return h.ChildProvided(0).Order
}

func lastChildProvidedOrdering(h memo.ExprHandle) physical.OrderSpec {
	return h.ChildProvided(memo.RelationalChildCount(h) - 1).Order
}

func scanBuildProvided(h memo.ExprHandle) physical.OrderSpec {
	return h.Operator().ScanPrivate().Order
}

func sortBuildProvided(h memo.ExprHandle) physical.OrderSpec {
	return h.Operator().SortPrivate().Order
}

func defaultEnforcement(h memo.ExprHandle, required physical.EnfdOrder) physical.EnforceType {
	if required.Compatible(delivered(h)) {
		return physical.EnforceUnnecessary
	}
	return physical.EnforceRequired
}

// optionalEnforcement lets the search try plans with and without a sort.
func optionalEnforcement(h memo.ExprHandle, required physical.EnfdOrder) physical.EnforceType {
	return physical.EnforceOptional
}

// sortEnforcement never places a sort directly on top of a sort.
func sortEnforcement(h memo.ExprHandle, required physical.EnfdOrder) physical.EnforceType {
	if required.Compatible(delivered(h)) {
		return physical.EnforceUnnecessary
	}
	return physical.EnforceProhibited
}

func limitBuildChildReqOrdering(
	r *memo.ChildRequest, required physical.OrderSpec,
) physical.OrderSpec {
	// The rows a limit keeps depend on its own order, not on the order
	// required of its output.
	return r.Parent.Operator().LimitPrivate().Order
}

// motionBuildChildReqOrdering requires the merge order of an
// order-preserving gather. Other motions do not keep any order.
func motionBuildChildReqOrdering(
	r *memo.ChildRequest, required physical.OrderSpec,
) physical.OrderSpec {
	if r.Op() == opt.GatherMotionOp {
		return r.Parent.Operator().MotionPrivate().Order
	}
	return physical.OrderSpec{}
}

func motionBuildProvided(h memo.ExprHandle) physical.OrderSpec {
	if h.Operator().Op() == opt.GatherMotionOp {
		return h.Operator().MotionPrivate().Order
	}
	return physical.OrderSpec{}
}

func sequenceBuildChildReqOrdering(
	r *memo.ChildRequest, required physical.OrderSpec,
) physical.OrderSpec {
	if r.ChildIdx < memo.RelationalChildCount(r.Parent)-1 {
		return physical.OrderSpec{}
	}
	return passThroughChildReqOrdering(r, required)
}

func delivered(h memo.ExprHandle) physical.OrderSpec {
	p := h.Provided()
	if p == nil {
		panic(errors.AssertionFailedf("properties of %s are not derived", h.Operator()))
	}
	return p.Order
}

func finalizeProvided(provided physical.OrderSpec, outCols opt.ColSet) physical.OrderSpec {
	for i, c := range provided.Columns {
		if !outCols.Contains(c.Col) {
			return physical.OrderSpec{Columns: provided.Columns[:i]}
		}
	}
	return provided
}

// checkRequired verifies that the order required of a child only refers to
// its output columns.
func checkRequired(outCols opt.ColSet, required physical.OrderSpec, op opt.Operator) {
	if !required.ColSet().SubsetOf(outCols) {
		panic(errors.AssertionFailedf("%s requires order %s on non-output columns %s",
			redact.Safe(op.String()), required, outCols))
	}
}
