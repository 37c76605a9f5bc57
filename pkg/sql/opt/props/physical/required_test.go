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
	"testing"

	"github.com/cockroachdb/physprops/pkg/sql/opt"
	"github.com/cockroachdb/physprops/pkg/sql/opt/props"
	"github.com/kr/pretty"
	"github.com/stretchr/testify/require"
)

func TestRequiredSatisfied(t *testing.T) {
	req := MinRequired(opt.MakeColSet(1, 2))
	req.Dist = EnfdDistribution{Dist: NewHashedDist(opt.MakeVariables(1), false)}
	req.Order = EnfdOrder{Order: MakeOrderSpec(2)}
	req.Rewind = EnfdRewind{Rewind: RewindableSpec}

	delivered := &Provided{
		Dist:   NewHashedDist(opt.MakeVariables(1), false),
		Order:  MakeOrderSpec(2, 1),
		Rewind: RewindableSpec,
	}
	rel := &props.Relational{OutputCols: opt.MakeColSet(1, 2, 3)}
	require.True(t, req.Satisfied(rel, delivered))
	require.True(t, req.Compatible(delivered))

	unordered := *delivered
	unordered.Order = OrderSpec{}
	require.False(t, req.Satisfied(rel, &unordered))

	// A single row is always ordered.
	oneRow := *rel
	oneRow.MaxCard = 1
	require.True(t, req.Satisfied(&oneRow, &unordered))

	require.False(t, req.Satisfied(&props.Relational{OutputCols: opt.MakeColSet(1)}, delivered))

	notRewindable := *delivered
	notRewindable.Rewind = NoRewind
	require.False(t, req.Satisfied(rel, &notRewindable))

	req.Dist.Matching = DistExact
	wider := *delivered
	wider.Dist = NewHashedDist(opt.MakeVariables(1), true)
	require.False(t, req.Satisfied(rel, &wider))
	req.Dist.Matching = DistSatisfy
	require.True(t, req.Satisfied(rel, &wider))
}

func TestRequiredSubsetMatching(t *testing.T) {
	e := EnfdDistribution{Dist: NewHashedDist(opt.MakeVariables(1, 2), false), Matching: DistSubset}
	require.True(t, e.Compatible(NewHashedDist(opt.MakeVariables(2), false)))
	require.False(t, e.Compatible(NewHashedDist(opt.MakeVariables(3), false)))
	require.False(t, e.Compatible(Random))
}

func TestRequiredEquals(t *testing.T) {
	build := func() *Required {
		r := MinRequired(opt.MakeColSet(1))
		r.Dist = EnfdDistribution{Dist: MasterSingleton, Matching: DistExact}
		r.Order = EnfdOrder{Order: MakeOrderSpec(1)}
		r.PartProp = &PartPropSpec{Index: makePartIndexMap(consumer(4, 1))}
		return r
	}
	a, b := build(), build()
	if !a.Equals(b) {
		t.Fatalf("expected equal requirements:\n%s", pretty.Diff(a, b))
	}
	require.Equal(t, a.Hash(), b.Hash())

	b.Rewind = EnfdRewind{Rewind: RewindableSpec}
	require.False(t, a.Equals(b))
	require.Equal(t,
		"cols=(1) dist=SINGLETON (master) (exact) order=<+1> rewind=NOT-REWINDABLE partprop={4:consumer(1)}",
		a.String())
}

func TestRequiredVerify(t *testing.T) {
	r := MinRequired(opt.ColSet{})
	r.Verify()
	r.Dist.Dist = Universal
	require.Panics(t, r.Verify)
	r.Dist = EnfdDistribution{Dist: Random, Matching: DistSubset}
	require.Panics(t, r.Verify)
}

func TestProvidedCTEProducerProps(t *testing.T) {
	producer := &Provided{
		Dist:   NewHashedDist(opt.MakeVariables(1), false),
		Order:  MakeOrderSpec(1),
		Rewind: RewindableSpec,
	}
	consumerProps := &Provided{Dist: Random, PartIndex: makePartIndexMap(consumer(2, 1))}
	res := consumerProps.CopyCTEProducerProps(producer.ProducerProps(), 3)
	require.True(t, res.Dist.Equals(producer.Dist))
	require.True(t, res.Order.Equals(producer.Order))
	require.Equal(t, RewindableSpec, res.Rewind)
	require.Equal(t, 1, res.PartIndex.Len())
	e, ok := res.CTEs.Get(3)
	require.True(t, ok)
	require.Equal(t, CTEConsumer, e.Type)
}

func TestOrderAndRewindSatisfies(t *testing.T) {
	require.True(t, MakeOrderSpec(1, 2).Satisfies(MakeOrderSpec(1)))
	require.False(t, MakeOrderSpec(1).Satisfies(MakeOrderSpec(1, 2)))
	require.True(t, MakeOrderSpec(1).Satisfies(OrderSpec{}))
	desc := OrderSpec{Columns: []OrderColumn{{Col: 1, Descending: true}}}
	require.False(t, desc.Satisfies(MakeOrderSpec(1)))

	require.True(t, NoRewind.Satisfies(NoRewind))
	require.True(t, MotionRewind.Satisfies(NoRewind))
	require.False(t, NoRewind.Satisfies(RewindableSpec))
	require.True(t, RewindSpec{Kind: MarkRestore}.Satisfies(RewindableSpec))
	require.False(t, RewindableSpec.Satisfies(RewindSpec{Kind: MarkRestore}))
	hazard := RewindSpec{Kind: Rewindable, Hazard: HasMotionHazard}
	require.True(t, RewindableSpec.Satisfies(hazard))
	require.False(t, hazard.Satisfies(hazard))
	require.True(t, hazard.Satisfies(RewindableSpec))

	enf := hazard.AppendEnforcers(&EnforceContext{}, nil)
	require.Len(t, enf, 1)
	require.True(t, enf[0].Eager)
	enf = RewindableSpec.AppendEnforcers(&EnforceContext{}, nil)
	require.False(t, enf[0].Eager)
	enf = RewindableSpec.AppendEnforcers(&EnforceContext{Delivered: &Provided{Rewind: MotionRewind}}, nil)
	require.True(t, enf[0].Eager)
	require.Empty(t, NoRewind.AppendEnforcers(&EnforceContext{}, nil))
	require.Equal(t, "sort <+1,-2>",
		OrderSpec{Columns: []OrderColumn{{Col: 1}, {Col: 2, Descending: true}}}.
			AppendEnforcers(&EnforceContext{}, nil)[0].String())
}
