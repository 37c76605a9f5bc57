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
	"github.com/cockroachdb/physprops/pkg/sql/opt"
	"github.com/cockroachdb/physprops/pkg/sql/opt/props"
	"github.com/cockroachdb/physprops/pkg/sql/opt/props/physical"
)

// ScanPrivate defines the value of the private field of the Scan operator.
type ScanPrivate struct {
	// Policy and DistCols describe how the table is spread over the
	// segments. DistCols is only set for the hash policy.
	Policy   props.DistributionPolicy
	DistCols []opt.ColumnID

	// ScanID is set for a dynamic scan, which reads the partitions selected
	// by a partition selector elsewhere in the plan.
	ScanID opt.ScanID

	// PartSelectors is the number of partition selectors placed by joins
	// above a dynamic scan. Zero means the scan is resolved by a selector
	// placed directly on top of it.
	PartSelectors uint32

	// Order is the order in which the scanned index returns rows.
	Order physical.OrderSpec
}

// Dynamic returns true if the scan reads a subset of the table partitions.
func (s *ScanPrivate) Dynamic() bool {
	return s.ScanID != 0
}

// LimitPrivate defines the value of the private field of the Limit operator.
type LimitPrivate struct {
	// Global is set for the limit that runs once over the whole input, as
	// opposed to a local limit that runs on each segment.
	Global bool

	// HasCount is set when the limit has a row count; a limit with only an
	// offset does not.
	HasCount bool
	Offset   opt.ScalarExpr

	// Order is the order the limit requires of its input.
	Order physical.OrderSpec
}

// SortPrivate defines the value of the private field of the Sort operator.
type SortPrivate struct {
	Order physical.OrderSpec
}

// SpoolPrivate defines the value of the private field of the Spool operator.
type SpoolPrivate struct {
	// Eager spools materialize their whole input before returning a row.
	Eager bool
}

// PartitionSelectorPrivate defines the value of the private field of the
// PartitionSelector operator.
type PartitionSelectorPrivate struct {
	ScanID opt.ScanID

	// ExpectedSelectors is the number of selectors that must be placed for
	// ScanID before its consumer is resolved.
	ExpectedSelectors uint32

	// Filter is the predicate on the partition keys, or nil.
	Filter opt.ScalarExpr
}

// MotionPrivate defines the value of the private field of the motion
// operators.
type MotionPrivate struct {
	// Dist is the distribution the motion establishes.
	Dist physical.Distribution

	// Order is the merge order of an order-preserving gather.
	Order physical.OrderSpec
}

// HashJoinPrivate defines the value of the private field of the hash join
// operators. OuterKeys[i] is joined with InnerKeys[i].
type HashJoinPrivate struct {
	OuterKeys []opt.ScalarExpr
	InnerKeys []opt.ScalarExpr
}

// IndexJoinPrivate defines the value of the private field of the index
// nested-loop join operators. The inner child probes an index on InnerKeys
// with values of OuterKeys.
type IndexJoinPrivate struct {
	OuterKeys []opt.ScalarExpr
	InnerKeys []opt.ScalarExpr
}

// UnionAllPrivate defines the value of the private field of the UnionAll
// operator. InputCols[i][j] is the column of child i that feeds OutputCols[j].
type UnionAllPrivate struct {
	OutputCols []opt.ColumnID
	InputCols  [][]opt.ColumnID
}

// InputColSet returns the input columns of the given child.
func (u *UnionAllPrivate) InputColSet(childIdx int) opt.ColSet {
	return opt.MakeColSet(u.InputCols[childIdx]...)
}

// CTEPrivate defines the value of the private field of the CTEProducer and
// CTEConsumer operators.
type CTEPrivate struct {
	ID opt.CTEID
}
