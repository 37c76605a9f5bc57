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
	"fmt"
	"testing"

	"github.com/cockroachdb/physprops/pkg/sql/opt"
	"github.com/cockroachdb/physprops/pkg/sql/opt/optconfig"
	"github.com/cockroachdb/physprops/pkg/sql/opt/props"
	"github.com/stretchr/testify/require"
)

func allDistributions() []Distribution {
	h12 := NewHashedDist(opt.MakeVariables(1, 2), false)
	return []Distribution{
		&AnyDist{},
		&AnyDist{AllowOuterRefs: true},
		MasterSingleton,
		SegmentSingleton,
		Random,
		NewHashedDist(opt.MakeVariables(1), false),
		NewHashedDist(opt.MakeVariables(1), true),
		h12,
		NewHashedDist(opt.MakeVariables(3), false).WithEquiv(h12),
		StrictReplication,
		&ReplicatedDist{Kind: TaintedReplicated},
		NonSingleton,
		&NonSingletonDist{AllowReplicated: false},
		Universal,
	}
}

func TestDistributionSatisfiesReflexive(t *testing.T) {
	for _, d := range allDistributions() {
		t.Run(d.String(), func(t *testing.T) {
			require.True(t, d.Satisfies(d))
			require.True(t, d.Equals(d))
			if d.Type() != AnyDistribution {
				require.True(t, d.Satisfies(&AnyDist{}), "every spec satisfies ANY")
			}
		})
	}
}

func TestDistributionEqualsImpliesHash(t *testing.T) {
	all := allDistributions()
	for i, a := range all {
		for j, b := range all {
			if i != j && a.Equals(b) {
				require.Equal(t, a.Hash(), b.Hash(), "%s vs %s", a, b)
			}
		}
	}
	// Structural equality.
	a := NewHashedDist(opt.MakeVariables(4, 5), true)
	b := NewHashedDist(opt.MakeVariables(4, 5), true)
	require.True(t, a.Equals(b))
	require.Equal(t, a.Hash(), b.Hash())
}

func TestDistributionSatisfies(t *testing.T) {
	h1 := NewHashedDist(opt.MakeVariables(1), false)
	h12 := NewHashedDist(opt.MakeVariables(1, 2), false)
	h12Nulls := NewHashedDist(opt.MakeVariables(1, 2), true)
	h3 := NewHashedDist(opt.MakeVariables(3), false)
	tainted := &ReplicatedDist{Kind: TaintedReplicated}
	noRepl := &NonSingletonDist{AllowReplicated: false}

	testCases := []struct {
		delivered Distribution
		required  Distribution
		expected  bool
	}{
		{StrictReplication, NonSingleton, true},
		{StrictReplication, noRepl, false},
		{StrictReplication, tainted, true},
		{StrictReplication, SegmentSingleton, true},
		{StrictReplication, MasterSingleton, false},
		{tainted, StrictReplication, false},
		{tainted, tainted, true},
		{tainted, NonSingleton, true},
		{tainted, SegmentSingleton, false},
		{MasterSingleton, SegmentSingleton, false},
		{SegmentSingleton, MasterSingleton, false},
		{MasterSingleton, StrictReplication, false},
		{MasterSingleton, NonSingleton, false},
		{Random, NonSingleton, true},
		{Random, noRepl, true},
		{Random, h1, false},
		{h1, NonSingleton, true},
		{h1, h12, true},
		{h12, h1, false},
		{h1, h12Nulls, false},
		{h12Nulls, h12, true},
		{h3, h12, false},
		{h3.WithEquiv(h12), h12, true},
		{noRepl, NonSingleton, true},
		{NonSingleton, noRepl, false},
		{Universal, MasterSingleton, true},
		{Universal, StrictReplication, true},
		{Universal, h1, true},
		{Universal, NonSingleton, false},
		{&AnyDist{}, Random, false},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%s/%s", tc.delivered, tc.required), func(t *testing.T) {
			require.Equal(t, tc.expected, tc.delivered.Satisfies(tc.required))
		})
	}
}

func TestDistributionDerivable(t *testing.T) {
	for _, d := range allDistributions() {
		switch d.Type() {
		case AnyDistribution, NonSingletonDistribution:
			require.False(t, d.Derivable(), "%s", d)
		default:
			require.True(t, d.Derivable(), "%s", d)
		}
	}
}

func TestDistributionEnforcers(t *testing.T) {
	h1 := NewHashedDist(opt.MakeVariables(1), false)
	outer := &props.Relational{OuterCols: opt.MakeColSet(9)}

	testCases := []struct {
		name     string
		required Distribution
		flags    optconfig.TraceFlags
		rel      *props.Relational
		expected opt.Operator
	}{
		{name: "gather", required: MasterSingleton, expected: opt.GatherMotionOp},
		{name: "segment singleton", required: SegmentSingleton, expected: opt.UnknownOp},
		{name: "no gather", required: MasterSingleton, flags: optconfig.TraceFlags{DisableGather: true}},
		{name: "redistribute", required: h1, expected: opt.HashMotionOp},
		{name: "redistribute outer refs", required: h1, rel: outer},
		{name: "no motions", required: h1, flags: optconfig.TraceFlags{DisableMotions: true}},
		{name: "broadcast", required: StrictReplication, expected: opt.BroadcastMotionOp},
		{name: "no broadcast", required: StrictReplication, flags: optconfig.TraceFlags{DisableBroadcast: true}},
		{name: "random", required: Random, expected: opt.RandomMotionOp},
		{name: "random outer refs", required: Random, rel: outer},
		{name: "non-singleton", required: NonSingleton, expected: opt.RandomMotionOp},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rel := tc.rel
			if rel == nil {
				rel = &props.Relational{}
			}
			ctx := &EnforceContext{Flags: tc.flags, Relational: rel}
			res := tc.required.AppendEnforcers(ctx, nil)
			if tc.expected == opt.UnknownOp {
				require.Empty(t, res)
				return
			}
			require.Len(t, res, 1)
			require.Equal(t, tc.expected, res[0].Op)
		})
	}
}

func TestGatherKeepsDeliveredOrder(t *testing.T) {
	req := MinRequired(opt.MakeColSet(1, 2))
	req.Order.Order = MakeOrderSpec(1)
	ctx := &EnforceContext{
		Required:   req,
		Relational: &props.Relational{},
		Delivered:  &Provided{Dist: Random, Order: MakeOrderSpec(1, 2)},
	}
	res := MasterSingleton.AppendEnforcers(ctx, nil)
	require.Len(t, res, 1)
	require.True(t, res[0].Order.Equals(MakeOrderSpec(1, 2)))

	ctx.Delivered.Order = MakeOrderSpec(2)
	res = MasterSingleton.AppendEnforcers(ctx, nil)
	require.True(t, res[0].Order.Empty())
}

func TestNonDerivableEnforcersPanic(t *testing.T) {
	ctx := &EnforceContext{Relational: &props.Relational{}}
	require.Panics(t, func() { (&AnyDist{}).AppendEnforcers(ctx, nil) })
	require.Panics(t, func() { Universal.AppendEnforcers(ctx, nil) })
	require.Panics(t, func() { NewHashedDist(nil, false) })
}
