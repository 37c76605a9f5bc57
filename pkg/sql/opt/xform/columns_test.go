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
	"testing"

	"github.com/cockroachdb/physprops/pkg/sql/opt"
	"github.com/cockroachdb/physprops/pkg/sql/opt/memo"
	"github.com/cockroachdb/physprops/pkg/sql/opt/props"
	"github.com/cockroachdb/physprops/pkg/sql/opt/props/physical"
	"github.com/stretchr/testify/require"
)

func TestChildRequiredCols(t *testing.T) {
	union := func() *memo.Expr {
		outer, inner := scan(1, 2), scan(3, 4)
		o := memo.NewOperator(opt.UnionAllOp, &memo.UnionAllPrivate{
			OutputCols: []opt.ColumnID{5, 6},
			InputCols:  [][]opt.ColumnID{{1, 2}, {4, 3}},
		})
		return memo.NewRelExpr(o, &props.Relational{OutputCols: opt.MakeColSet(5, 6)}, outer, inner)
	}
	project := func() *memo.Expr {
		s := memo.NewScalarExpr(&props.Scalar{UsedCols: opt.MakeColSet(2, 7), DefinedCols: opt.MakeColSet(7)})
		e := unary(opt.ProjectOp, nil, scan(1, 2, 3), s)
		e.Relational().OutputCols = opt.MakeColSet(1, 7)
		return e
	}

	testCases := []struct {
		name     string
		e        *memo.Expr
		required opt.ColSet
		childIdx int
		expected string
	}{
		{name: "union all", e: union(), required: opt.MakeColSet(6), expected: "(2)"},
		{name: "union all second", e: union(), required: opt.MakeColSet(6), childIdx: 1, expected: "(3)"},
		{name: "union all both", e: union(), required: opt.MakeColSet(5, 6), childIdx: 1, expected: "(3,4)"},
		{
			name:     "sequence",
			e:        join(opt.SequenceOp, scan(1), scan(3, 4)),
			required: opt.MakeColSet(3),
			expected: "()",
		},
		{
			name:     "sequence last",
			e:        join(opt.SequenceOp, scan(1), scan(3, 4)),
			required: opt.MakeColSet(3),
			childIdx: 1,
			expected: "(3)",
		},
		{
			name: "partition selector",
			e: unary(opt.PartitionSelectorOp, &memo.PartitionSelectorPrivate{
				ScanID: 1, Filter: eq(v(2), v(9)),
			}, scan(1, 2, 3)),
			required: opt.MakeColSet(1),
			expected: "(1,2)",
		},
		{
			name: "hash motion",
			e: unary(opt.HashMotionOp, &memo.MotionPrivate{
				Dist: physical.NewHashedDist(opt.MakeVariables(3), true /* nullsColocated */),
			}, scan(1, 2, 3)),
			required: opt.MakeColSet(1),
			expected: "(1,3)",
		},
		{
			name: "gather merge",
			e: unary(opt.GatherMotionOp, &memo.MotionPrivate{
				Dist: physical.MasterSingleton, Order: physical.MakeOrderSpec(2),
			}, scan(1, 2, 3)),
			required: opt.MakeColSet(1),
			expected: "(1,2)",
		},
		{
			name:     "sort",
			e:        unary(opt.SortOp, &memo.SortPrivate{Order: physical.MakeOrderSpec(3)}, scan(1, 2, 3)),
			expected: "(3)",
		},
		{
			name:     "limit",
			e:        unary(opt.LimitOp, &memo.LimitPrivate{Order: physical.MakeOrderSpec(2)}, scan(1, 2, 3)),
			required: opt.MakeColSet(1),
			expected: "(1,2)",
		},
		{
			name:     "hash join",
			e:        hashJoin(scan(1, 2), scan(3, 4)),
			required: opt.MakeColSet(1),
			childIdx: 1,
			expected: "(3,4)",
		},
		{
			name:     "index join",
			e:        join(opt.IndexNestedLoopJoinOp, scan(1, 2), scan(3, 4)),
			required: opt.MakeColSet(4),
			childIdx: 1,
			expected: "(3,4)",
		},
		{
			name:     "nested loop join predicate",
			e:        nestedLoopJoin(scan(1, 2), scan(3, 4), scalar(eq(v(2), v(4)))),
			required: opt.MakeColSet(1),
			expected: "(1,2)",
		},
		{name: "project", e: project(), required: opt.MakeColSet(1, 7), expected: "(1,2)"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, ChildRequiredCols(tc.e, tc.required, tc.childIdx).String())
		})
	}
}
