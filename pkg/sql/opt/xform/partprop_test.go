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

func childPartProp(e *memo.Expr, childIdx int, required *physical.PartPropSpec) *physical.PartPropSpec {
	return partPropChildRequired(&memo.ChildRequest{Parent: e, ChildIdx: childIdx}, required)
}

func TestJoinChildPartProp(t *testing.T) {
	t.Run("hash join with outer consumer", func(t *testing.T) {
		// The scan is on the probe side: the build side gets a selector
		// filtered by the join keys.
		e := hashJoin(dynamicScan(5, 0, 1, 2), scan(3, 4))
		required := partProp(consumer(5, 0))

		outer := childPartProp(e, 0, required)
		require.Equal(t, "{5:consumer(1)}", outer.String())
		inner := childPartProp(e, 1, required)
		require.Equal(t, "{5:consumer(0)} filters={5:eq(@1, @3)}", inner.String())

		// Results are memoized by the operator.
		require.Same(t, inner, childPartProp(e, 1, required))
	})

	t.Run("hash join with inner consumer", func(t *testing.T) {
		e := hashJoin(scan(1, 2), dynamicScan(5, 0, 3, 4))
		required := partProp(consumer(5, 0))
		require.Equal(t, "{}", childPartProp(e, 0, required).String())
		require.Equal(t, "{5:consumer(0)}", childPartProp(e, 1, required).String())
	})

	t.Run("filter from above", func(t *testing.T) {
		e := hashJoin(dynamicScan(5, 0, 1, 2), scan(3, 4))
		required := partProp(consumer(5, 0))
		required.Filters.Add(5, &opt.Const{Value: "true"})
		require.Equal(t, "{}", childPartProp(e, 0, required).String())
		require.Equal(t, "{}", childPartProp(e, 1, required).String())
	})

	t.Run("nested loop join with inner consumer", func(t *testing.T) {
		lt := &opt.Function{Name: "lt", Args: []opt.ScalarExpr{v(4), &opt.Const{Value: "10"}}}
		e := nestedLoopJoin(scan(1, 2), dynamicScan(6, 0, 3, 4), scalar(and(eq(v(3), v(1)), lt)))
		required := partProp(consumer(6, 0))

		require.Equal(t, "{6:consumer(0)} filters={6:eq(@3, @1)}", childPartProp(e, 0, required).String())
		require.Equal(t, "{6:consumer(1)}", childPartProp(e, 1, required).String())
	})

	t.Run("nested loop join without predicate", func(t *testing.T) {
		e := nestedLoopJoin(scan(1, 2), dynamicScan(6, 0, 3, 4))
		required := partProp(consumer(6, 0))
		require.Equal(t, "{}", childPartProp(e, 0, required).String())
		require.Equal(t, "{6:consumer(0)}", childPartProp(e, 1, required).String())
	})

	t.Run("nested loop join with outer consumer", func(t *testing.T) {
		e := nestedLoopJoin(dynamicScan(6, 0, 1, 2), scan(3, 4), scalar(eq(v(1), v(3))))
		required := partProp(consumer(6, 0))
		require.Equal(t, "{6:consumer(0)}", childPartProp(e, 0, required).String())
		require.Equal(t, "{}", childPartProp(e, 1, required).String())
	})
}

func TestJoinPredOnPartKeys(t *testing.T) {
	e := hashJoin(scan(1, 2), scan(3, 4), scalar(and(eq(v(1), v(3)), eq(v(1), v(2)))))

	// The scalar equality on the keys is found once.
	pred := joinPredOnPartKeys(e, opt.MakeColSet(3), opt.MakeColSet(1, 2))
	require.Equal(t, "eq(@1, @3)", pred.String())

	pred = joinPredOnPartKeys(e, opt.MakeColSet(1), opt.MakeColSet(2, 3, 4))
	require.Equal(t, "and(eq(@1, @3), eq(@1, @2))", pred.String())

	require.Nil(t, joinPredOnPartKeys(e, opt.MakeColSet(1), opt.MakeColSet(7)))
	require.Nil(t, joinPredOnPartKeys(e, opt.ColSet{}, opt.MakeColSet(1, 2, 3, 4)))
}

func TestPushThroughPartProp(t *testing.T) {
	withFilter := func() *physical.PartPropSpec {
		p := partProp(consumer(5, 0))
		p.Filters.Add(5, eq(v(1), &opt.Const{Value: "3"}))
		return p
	}

	t.Run("filter", func(t *testing.T) {
		e := unary(opt.FilterOp, nil, dynamicScan(5, 0, 1, 2))
		require.Equal(t, "{5:consumer(0)} filters={5:eq(@1, 3)}", childPartProp(e, 0, withFilter()).String())

		// A scan defined elsewhere is not pushed.
		e = unary(opt.FilterOp, nil, scan(1, 2))
		require.Equal(t, "{}", childPartProp(e, 0, withFilter()).String())
	})

	t.Run("limit", func(t *testing.T) {
		e := unary(opt.LimitOp, &memo.LimitPrivate{Global: true}, dynamicScan(5, 0, 1, 2))
		require.Equal(t, "{5:consumer(0)}", childPartProp(e, 0, withFilter()).String())
	})

	t.Run("empty", func(t *testing.T) {
		e := unary(opt.FilterOp, nil, dynamicScan(5, 0, 1, 2))
		require.Same(t, physical.EmptyPartProp, childPartProp(e, 0, nil))
		require.Same(t, physical.EmptyPartProp, childPartProp(e, 0, partProp()))
	})

	t.Run("partition selector", func(t *testing.T) {
		input := dynamicScan(5, 0, 1, 2)
		input.Relational().Partitions = input.Relational().Partitions.Add(8, 2)
		e := partitionSelector(5, 0, input)
		required := partProp(consumer(5, 0), consumer(8, 0), consumer(9, 0))
		require.Equal(t, "{8:consumer(0)}", childPartProp(e, 0, required).String())

		// The selector's consumer is above it: requirements pass through.
		e = partitionSelector(5, 0, scan(1, 2))
		require.Equal(t, "{9:consumer(0)}", childPartProp(e, 0, partProp(consumer(5, 0), consumer(9, 0))).String())
	})
}

func TestNAryPartProp(t *testing.T) {
	unionAll := func(children ...*memo.Expr) *memo.Expr {
		o := memo.NewOperator(opt.UnionAllOp, &memo.UnionAllPrivate{
			OutputCols: []opt.ColumnID{1},
			InputCols:  [][]opt.ColumnID{{1}, {3}},
		})
		return memo.NewRelExpr(o, binaryRel(children[0], children[1]), children...)
	}
	required := partProp(consumer(5, 0))

	e := unionAll(dynamicScan(5, 0, 1, 2), scan(3, 4))
	require.Equal(t, "{5:consumer(0)}", childPartProp(e, 0, required).String())
	require.Equal(t, "{}", childPartProp(e, 1, required).String())

	// A scan defined under both children is pushed to neither.
	e = unionAll(dynamicScan(5, 0, 1, 2), dynamicScan(5, 0, 3, 4))
	require.Equal(t, "{}", childPartProp(e, 0, required).String())
	require.Equal(t, "{}", childPartProp(e, 1, required).String())

	// Under a sequence whose first child produces a CTE, the scan belongs to
	// the first child.
	producer := unary(opt.CTEProducerOp, &memo.CTEPrivate{ID: 1}, dynamicScan(5, 0, 1, 2))
	producer.Relational().HasCTEProducer = true
	last := dynamicScan(5, 0, 3, 4)
	seq := memo.NewRelExpr(memo.NewOperator(opt.SequenceOp, nil), binaryRel(producer, last), producer, last)
	require.Equal(t, "{5:consumer(0)}", childPartProp(seq, 0, required).String())
	require.Equal(t, "{}", childPartProp(seq, 1, required).String())
}

func TestDerivePartIndex(t *testing.T) {
	// A selector directly on top of its scan resolves it.
	ps := partitionSelector(5, 0, dynamicScan(5, 0, 1, 2))
	require.Equal(t, "{5:resolver}", derive(ps).PartIndex.String())

	// A selector on the build side of a join resolves the scan on the probe
	// side.
	e := hashJoin(dynamicScan(5, 1, 1, 2), partitionSelector(5, 0, scan(3, 4)))
	provided := derive(e)
	require.Equal(t, "{5:resolver}", provided.PartIndex.String())
	require.Equal(t, "{5:consumer(1)}", e.Child(0).Provided().PartIndex.String())
	require.Equal(t, "{5:propagator}", e.Child(1).Provided().PartIndex.String())

	// Constant tables define no scans.
	c := memo.NewRelExpr(memo.NewOperator(opt.ConstTableOp, nil), &props.Relational{
		OutputCols: opt.MakeColSet(1),
	})
	require.Equal(t, 0, derive(c).PartIndex.Len())
}

func TestPartPropEnforcementUnionAll(t *testing.T) {
	build := func(children ...*memo.Expr) *memo.Expr {
		o := memo.NewOperator(opt.UnionAllOp, &memo.UnionAllPrivate{
			OutputCols: []opt.ColumnID{1},
			InputCols:  [][]opt.ColumnID{{1}, {3}},
		})
		e := memo.NewRelExpr(o, binaryRel(children[0], children[1]), children...)
		index := physical.NewPartIndexMap()
		index.Insert(consumer(5, 1))
		e.SetProvided(&physical.Provided{PartIndex: index})
		return e
	}
	required := partProp(consumer(5, 0))

	e := build(dynamicScan(5, 1, 1, 2), scan(3, 4))
	require.Equal(t, physical.EnforceOptional, partPropEnforcement(e, required))

	e = build(dynamicScan(5, 1, 1, 2), dynamicScan(5, 1, 3, 4))
	require.Equal(t, physical.EnforceRequired, partPropEnforcement(e, required))

	// Other operators that have every consumer in scope must resolve it.
	f := unary(opt.FilterOp, nil, dynamicScan(5, 1, 1, 2))
	derive(f)
	require.Equal(t, physical.EnforceProhibited, partPropEnforcement(f, required))
}
