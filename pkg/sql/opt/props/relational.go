// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package props

import (
	"github.com/cockroachdb/physprops/pkg/sql/opt"
)

// Relational holds the derived logical properties of a relational subtree.
type Relational struct {
	// OutputCols is the set of columns produced by the subtree.
	OutputCols opt.ColSet

	// OuterCols is the set of columns referenced by the subtree that are not
	// produced by it. A subtree with outer columns is correlated with an
	// enclosing operator.
	OuterCols opt.ColSet

	// NotNullCols is the subset of output columns that never contain NULL.
	NotNullCols opt.ColSet

	// MasterOnly is set when the subtree calls functions that may only run
	// on the coordinator, so its execution must be pinned there.
	MasterOnly bool

	// MaxCard is an upper bound on the number of rows produced, or zero when
	// it is unknown.
	MaxCard uint64

	// HasCTEProducer is set when the subtree contains a CTE producer.
	HasCTEProducer bool

	// Partitions describes the dynamic scans defined in the subtree.
	Partitions PartInfo
}

// HasOuterRefs returns true if the subtree references outer columns.
func (r *Relational) HasOuterRefs() bool {
	return !r.OuterCols.Empty()
}

// AtMostOneRow returns true if the subtree is known to produce at most one
// row.
func (r *Relational) AtMostOneRow() bool {
	return r.MaxCard == 1
}

// Scalar holds the derived logical properties of a scalar child.
type Scalar struct {
	// UsedCols is the set of columns referenced by the scalar expression.
	UsedCols opt.ColSet

	// DefinedCols is the set of columns produced by the scalar expression,
	// such as the outputs of a projection list.
	DefinedCols opt.ColSet

	// Expr is the scalar expression itself, when the property code needs to
	// inspect it (for example to build a partition filter).
	Expr opt.ScalarExpr
}
