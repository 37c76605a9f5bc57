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
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/physprops/pkg/sql/opt"
	"github.com/cockroachdb/physprops/pkg/sql/opt/memo"
	"github.com/cockroachdb/physprops/pkg/sql/opt/optconfig"
	"github.com/cockroachdb/physprops/pkg/sql/opt/props/physical"
	"github.com/cockroachdb/physprops/pkg/util/log"
	"github.com/kr/pretty"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestChildRequiredHashJoin(t *testing.T) {
	e := hashJoin(scan(1, 2), scan(3, 4))
	parent := physical.MinRequired(opt.MakeColSet(1, 3))
	// Requests 0 and 1 redistribute on a single key, request 2 on both.
	const allKeys = 2

	inner := ChildRequired(e, parent, 1, nil, allKeys, optconfig.TraceFlags{})
	require.Equal(t, "(3,4)", inner.Cols.String())
	require.Equal(t, "HASHED: [@3, @4] nulls colocated", inner.Dist.Dist.String())
	require.Equal(t, physical.DistSatisfy, inner.Dist.Matching)
	require.True(t, inner.Order.Order.Empty())
	require.Equal(t, physical.NoRewind, inner.Rewind.Rewind)
	require.Equal(t, 0, inner.CTE.Len())

	siblings := []*physical.Provided{{
		Dist: physical.NewHashedDist(opt.MakeVariables(3, 4), true /* nullsColocated */),
	}}
	outer := ChildRequired(e, parent, 0, siblings, allKeys, optconfig.TraceFlags{})
	require.Equal(t, "(1,2)", outer.Cols.String())
	require.Equal(t, "HASHED: [@1, @2] nulls colocated", outer.Dist.Dist.String())
	require.Equal(t, physical.DistExact, outer.Dist.Matching, "%# v", pretty.Formatter(outer))

	// A replicated inner side is matched by any outer distribution that
	// satisfies the request.
	siblings = []*physical.Provided{{Dist: physical.StrictReplication}}
	outer = ChildRequired(e, parent, 0, siblings, allKeys+1, optconfig.TraceFlags{})
	require.Equal(t, physical.DistSatisfy, outer.Dist.Matching)
}

func TestChildRequiredE(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.DebugLevel)
	t.Cleanup(log.SetLogger(zap.New(core)))
	t.Cleanup(log.SetVerbosity(2))

	t.Run("scalar child", func(t *testing.T) {
		e := hashJoin(scan(1, 2), scan(3, 4), scalar(eq(v(2), v(4))))
		_, err := ChildRequiredE(ctx, e, physical.MinRequired(opt.ColSet{}), 2, nil, 0, optconfig.TraceFlags{})
		require.Error(t, err)
		require.True(t, errors.HasAssertionFailure(err), "%+v", err)
		require.Equal(t, 0, logs.FilterMessageSnippet("unsupported plan alternative").Len())
	})

	t.Run("unsupported alternative", func(t *testing.T) {
		o := memo.NewOperator(opt.LeftOuterIndexNestedLoopJoinOp, &memo.IndexJoinPrivate{
			OuterKeys: opt.MakeVariables(1),
			InnerKeys: opt.MakeVariables(3),
		})
		outer, inner := scan(1, 2), scan(3, 4)
		e := memo.NewRelExpr(o, binaryRel(outer, inner), outer, inner)
		siblings := []*physical.Provided{{Dist: physical.Random}}

		_, err := ChildRequiredE(ctx, e, physical.MinRequired(opt.ColSet{}), 0, siblings, 0, optconfig.TraceFlags{})
		require.True(t, opt.IsUnsupportedError(err), "%+v", err)
		require.Equal(t, 1, logs.FilterMessageSnippet("unsupported plan alternative").Len())
	})
}

func TestBuildEnforcers(t *testing.T) {
	filter := unary(opt.FilterOp, nil, dynamicScan(7, 0, 1, 2), scalar(&opt.NullTest{Input: v(2)}))
	provided := derive(filter)
	require.Equal(t, "HASHED: [@1] nulls colocated", provided.Dist.String())
	require.Equal(t, "{7:consumer(0)}", provided.PartIndex.String())

	required := &physical.Required{
		Cols:     opt.MakeColSet(1),
		Dist:     physical.EnfdDistribution{Dist: physical.MasterSingleton},
		Order:    physical.EnfdOrder{Order: physical.MakeOrderSpec(1)},
		PartProp: partProp(consumer(7, 0)),
		CTE:      physical.NewCTEReq(),
	}
	e := Enforcement(filter, required)
	require.Equal(t, "order=required dist=required rewind=unnecessary partprop=required", e.String())

	enforcers, ok := BuildEnforcers(filter, required, optconfig.TraceFlags{})
	require.True(t, ok)
	var res []string
	for _, enf := range enforcers {
		res = append(res, enf.String())
	}
	require.Equal(t, []string{
		"partition-selector scan=7",
		"sort <+1>",
		"gather-motion SINGLETON (master) merge <+1>",
	}, res)

	// A required gather that cannot be placed prunes the plan.
	_, ok = BuildEnforcers(filter, required, optconfig.TraceFlags{DisableGather: true})
	require.False(t, ok)

	// The plan meets a requirement on its own distribution as is.
	required = physical.MinRequired(opt.MakeColSet(1))
	required.Dist.Dist = provided.Dist
	enforcers, ok = BuildEnforcers(filter, required, optconfig.TraceFlags{})
	require.True(t, ok)
	require.Empty(t, enforcers)
	require.True(t, Enforcement(filter, required).Unnecessary())
}

func TestBuildEnforcersMotion(t *testing.T) {
	dist := physical.NewHashedDist(opt.MakeVariables(1), true /* nullsColocated */)
	motion := unary(opt.HashMotionOp, &memo.MotionPrivate{Dist: dist}, scan(1, 2))
	provided := derive(motion)
	require.Equal(t, physical.MotionRewind, provided.Rewind)

	required := physical.MinRequired(opt.MakeColSet(1))
	required.Dist.Dist = physical.MasterSingleton
	require.True(t, Enforcement(motion, required).Prohibited())
	enforcers, ok := BuildEnforcers(motion, required, optconfig.TraceFlags{})
	require.False(t, ok)
	require.Nil(t, enforcers)

	// A rewindable requirement on a motion is met by an eager spool.
	required = physical.MinRequired(opt.MakeColSet(1))
	required.Rewind.Rewind = physical.RewindableSpec
	enforcers, ok = BuildEnforcers(motion, required, optconfig.TraceFlags{})
	require.True(t, ok)
	require.Len(t, enforcers, 1)
	require.Equal(t, "spool eager", enforcers[0].String())
}

func TestEnforcementAtMostOneRow(t *testing.T) {
	s := scan(1, 2)
	s.Relational().MaxCard = 1
	derive(s)

	required := physical.MinRequired(opt.MakeColSet(1))
	required.Order.Order = physical.MakeOrderSpec(2)
	require.Equal(t, physical.EnforceUnnecessary, Enforcement(s, required).Order)
}

func TestDeriveE(t *testing.T) {
	f := unary(opt.FilterOp, nil, scan(1))
	_, err := DeriveE(context.Background(), f)
	require.True(t, errors.HasAssertionFailure(err), "%+v", err)

	_, _, err = BuildEnforcersE(context.Background(), f, physical.MinRequired(opt.ColSet{}), optconfig.TraceFlags{})
	require.True(t, errors.HasAssertionFailure(err), "%+v", err)
}
