// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package opt

// Operator describes the type of operation that a memo expression performs.
// Relational operators are physical: each one corresponds to a concrete
// execution strategy with its own property request and derivation rules.
type Operator uint16

const (
	// UnknownOp is an unset operator.
	UnknownOp Operator = iota

	// -- Relational leaves --

	// ScanOp reads a base table; a dynamic scan also reads a subset of its
	// partitions and consumes partition propagation.
	ScanOp
	// ConstTableOp produces a constant set of rows, identical on every host.
	ConstTableOp
	// CTEConsumerOp reads the rows materialized by the matching producer.
	CTEConsumerOp

	// -- Unary relational operators --

	FilterOp
	ProjectOp
	LimitOp
	SortOp
	SpoolOp
	PartitionSelectorOp
	CTEProducerOp

	// -- Motions --

	GatherMotionOp
	BroadcastMotionOp
	HashMotionOp
	RandomMotionOp

	// -- Joins --

	NestedLoopJoinOp
	CorrelatedNestedLoopJoinOp
	IndexNestedLoopJoinOp
	LeftOuterIndexNestedLoopJoinOp
	HashJoinOp
	LeftOuterHashJoinOp
	LeftSemiHashJoinOp
	LeftAntiSemiHashJoinOp
	LeftAntiSemiHashJoinNotInOp

	// -- N-ary relational operators --

	SequenceOp
	UnionAllOp

	// -- Scalar operators --

	VariableOp
	ConstOp
	NullTestOp
	FunctionOp
	FiltersOp
	ProjectionsOp

	// NumOperators tracks the total count of operators.
	NumOperators
)

var opNames = [...]string{
	UnknownOp:                      "unknown",
	ScanOp:                         "scan",
	ConstTableOp:                   "const-table",
	CTEConsumerOp:                  "cte-consumer",
	FilterOp:                       "filter",
	ProjectOp:                      "project",
	LimitOp:                        "limit",
	SortOp:                         "sort",
	SpoolOp:                        "spool",
	PartitionSelectorOp:            "partition-selector",
	CTEProducerOp:                  "cte-producer",
	GatherMotionOp:                 "gather-motion",
	BroadcastMotionOp:              "broadcast-motion",
	HashMotionOp:                   "hash-motion",
	RandomMotionOp:                 "random-motion",
	NestedLoopJoinOp:               "nested-loop-join",
	CorrelatedNestedLoopJoinOp:     "correlated-nested-loop-join",
	IndexNestedLoopJoinOp:          "index-nested-loop-join",
	LeftOuterIndexNestedLoopJoinOp: "left-outer-index-nested-loop-join",
	HashJoinOp:                     "hash-join",
	LeftOuterHashJoinOp:            "left-outer-hash-join",
	LeftSemiHashJoinOp:             "left-semi-hash-join",
	LeftAntiSemiHashJoinOp:         "left-anti-semi-hash-join",
	LeftAntiSemiHashJoinNotInOp:    "left-anti-semi-hash-join-not-in",
	SequenceOp:                     "sequence",
	UnionAllOp:                     "union-all",
	VariableOp:                     "variable",
	ConstOp:                        "const",
	NullTestOp:                     "null-test",
	FunctionOp:                     "function",
	FiltersOp:                      "filters",
	ProjectionsOp:                  "projections",
}

func (op Operator) String() string {
	if int(op) >= len(opNames) {
		return "unknown"
	}
	return opNames[op]
}

// RelationalOperators lists every physical relational operator.
var RelationalOperators = []Operator{
	ScanOp, ConstTableOp, CTEConsumerOp,
	FilterOp, ProjectOp, LimitOp, SortOp, SpoolOp, PartitionSelectorOp, CTEProducerOp,
	GatherMotionOp, BroadcastMotionOp, HashMotionOp, RandomMotionOp,
	NestedLoopJoinOp, CorrelatedNestedLoopJoinOp,
	IndexNestedLoopJoinOp, LeftOuterIndexNestedLoopJoinOp,
	HashJoinOp, LeftOuterHashJoinOp, LeftSemiHashJoinOp,
	LeftAntiSemiHashJoinOp, LeftAntiSemiHashJoinNotInOp,
	SequenceOp, UnionAllOp,
}

// IsMotionOp returns true if op moves rows between hosts.
func IsMotionOp(op Operator) bool {
	switch op {
	case GatherMotionOp, BroadcastMotionOp, HashMotionOp, RandomMotionOp:
		return true
	}
	return false
}

// IsHashJoinOp returns true if op is one of the hash join variants.
func IsHashJoinOp(op Operator) bool {
	switch op {
	case HashJoinOp, LeftOuterHashJoinOp, LeftSemiHashJoinOp,
		LeftAntiSemiHashJoinOp, LeftAntiSemiHashJoinNotInOp:
		return true
	}
	return false
}

// IsIndexJoinOp returns true if op is an index nested-loop join variant.
func IsIndexJoinOp(op Operator) bool {
	return op == IndexNestedLoopJoinOp || op == LeftOuterIndexNestedLoopJoinOp
}

// IsNestedLoopJoinOp returns true if op is a nested-loop join, including the
// correlated and index variants.
func IsNestedLoopJoinOp(op Operator) bool {
	switch op {
	case NestedLoopJoinOp, CorrelatedNestedLoopJoinOp,
		IndexNestedLoopJoinOp, LeftOuterIndexNestedLoopJoinOp:
		return true
	}
	return false
}

// IsJoinOp returns true if op is any join.
func IsJoinOp(op Operator) bool {
	return IsHashJoinOp(op) || IsNestedLoopJoinOp(op)
}

// IsLeftOuterJoinOp returns true if op is a left outer join.
func IsLeftOuterJoinOp(op Operator) bool {
	return op == LeftOuterHashJoinOp || op == LeftOuterIndexNestedLoopJoinOp
}
