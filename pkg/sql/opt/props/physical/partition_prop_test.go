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
	"github.com/stretchr/testify/require"
)

func makePartIndexMap(entries ...PartIndexEntry) *PartIndexMap {
	m := NewPartIndexMap()
	for _, e := range entries {
		m.Insert(e)
	}
	return m
}

func consumer(id opt.ScanID, expected uint32) PartIndexEntry {
	return PartIndexEntry{ScanID: id, Manipulator: PartConsumer, ExpectedPropagators: expected}
}

func propagator(id opt.ScanID) PartIndexEntry {
	return PartIndexEntry{ScanID: id, Manipulator: PartPropagator}
}

func resolver(id opt.ScanID) PartIndexEntry {
	return PartIndexEntry{ScanID: id, Manipulator: PartResolver}
}

func TestPartIndexMapCombine(t *testing.T) {
	testCases := []struct {
		name     string
		left     PartIndexEntry
		right    PartIndexEntry
		expected PartIndexEntry
	}{
		{"last selector resolves", consumer(1, 1), propagator(1), resolver(1)},
		{"selector on the left", propagator(1), consumer(1, 1), resolver(1)},
		{"one selector of two", consumer(1, 2), propagator(1), consumer(1, 1)},
		{"unknown count", consumer(1, 0), propagator(1), consumer(1, UnknownPropagators)},
		{"two consumers", consumer(1, 3), consumer(1, 2), consumer(1, 3)},
		{"two propagators", propagator(1), propagator(1), propagator(1)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := makePartIndexMap(tc.left).Combine(makePartIndexMap(tc.right))
			require.Equal(t, 1, res.Len())
			e, ok := res.Get(1)
			require.True(t, ok)
			require.Equal(t, tc.expected, e)
		})
	}

	res := makePartIndexMap(consumer(2, 1)).Combine(makePartIndexMap(propagator(5), consumer(1, 0)))
	require.Equal(t, []opt.ScanID{1, 2, 5}, res.ScanIDs())
	require.True(t, res.ContainsUnresolved())
	require.Equal(t, "{1:consumer(0), 2:consumer(1), 5:propagator}", res.String())
}

func TestPartIndexMapContainsUnresolved(t *testing.T) {
	var empty *PartIndexMap
	require.False(t, empty.ContainsUnresolved())
	require.False(t, makePartIndexMap(propagator(1), resolver(2)).ContainsUnresolved())
	require.True(t, makePartIndexMap(propagator(1), consumer(2, 1)).ContainsUnresolved())
	require.Panics(t, func() { makePartIndexMap(propagator(1), consumer(1, 1)) })
}

func TestPartIndexMapWithPartitionSelector(t *testing.T) {
	m := makePartIndexMap(consumer(3, 1), consumer(4, 2))

	res := m.WithPartitionSelector(3, 0)
	e, _ := res.Get(3)
	require.Equal(t, resolver(3), e)
	e, _ = res.Get(4)
	require.Equal(t, consumer(4, 2), e)

	res = m.WithPartitionSelector(3, 2)
	e, _ = res.Get(3)
	require.Equal(t, consumer(3, 2), e)

	res = m.WithPartitionSelector(9, 0)
	e, ok := res.Get(9)
	require.True(t, ok)
	require.Equal(t, propagator(9), e)
	// The source map is not modified.
	require.False(t, m.Contains(9))
}

func TestPartIndexMapSatisfies(t *testing.T) {
	required := makePartIndexMap(consumer(1, 1))
	testCases := []struct {
		name     string
		derived  *PartIndexMap
		expected bool
	}{
		{"resolver", makePartIndexMap(resolver(1)), true},
		{"propagator", makePartIndexMap(propagator(1)), true},
		{"same count", makePartIndexMap(consumer(1, 1)), true},
		{"different count", makePartIndexMap(consumer(1, 2)), false},
		{"unknown count", makePartIndexMap(consumer(1, UnknownPropagators)), true},
		{"zero count", makePartIndexMap(consumer(1, 0)), false},
		{"absent", makePartIndexMap(consumer(2, 5)), true},
		{"nil", nil, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, tc.derived.Satisfies(required))
		})
	}
	require.True(t, makePartIndexMap(consumer(1, 2)).Satisfies(makePartIndexMap(propagator(1))))
	require.True(t, makePartIndexMap(consumer(1, 2)).Satisfies(nil))
}

func TestPartIndexMapEquals(t *testing.T) {
	a := makePartIndexMap(consumer(1, 1), propagator(2))
	b := makePartIndexMap(propagator(2), consumer(1, 1))
	require.True(t, a.Equals(b))
	require.Equal(t, a.Hash(), b.Hash())
	require.True(t, a.Subset(b))

	c := makePartIndexMap(consumer(1, 2), propagator(2))
	require.False(t, a.Equals(c))
	require.True(t, makePartIndexMap(propagator(2)).Subset(a))
	require.False(t, a.Subset(makePartIndexMap(propagator(2))))
	require.True(t, (*PartIndexMap)(nil).Equals(NewPartIndexMap()))
}

func TestPartPropEnforcement(t *testing.T) {
	spec := &PartPropSpec{Index: makePartIndexMap(consumer(1, 1), consumer(2, 1))}

	require.Equal(t, EnforceUnnecessary, EmptyPartProp.Enforcement(nil))
	require.Equal(t, EnforceUnnecessary,
		(&PartPropSpec{Index: makePartIndexMap(propagator(1))}).Enforcement(nil))
	require.Equal(t, EnforceUnnecessary, spec.Enforcement(makePartIndexMap(resolver(1), resolver(2))))
	require.Equal(t, EnforceRequired, spec.Enforcement(nil))
	require.Equal(t, EnforceRequired, spec.Enforcement(makePartIndexMap(consumer(1, 1))))
	require.Equal(t, EnforceProhibited, spec.Enforcement(makePartIndexMap(consumer(1, 1), resolver(2))))
	require.Equal(t, EnforceRequired, spec.Enforcement(makePartIndexMap(consumer(1, 0), resolver(2))))
}

func TestPartPropAppendEnforcers(t *testing.T) {
	filters := NewPartFilterMap()
	filters.Add(1, &opt.Const{Value: "true"})
	filters.Add(5, &opt.Variable{Col: 2})
	spec := &PartPropSpec{
		Index: makePartIndexMap(
			consumer(1, 1), consumer(2, 1), consumer(3, 1), consumer(4, 0), consumer(5, 0),
		),
		Filters: filters,
	}
	ctx := &EnforceContext{
		Delivered: &Provided{PartIndex: makePartIndexMap(consumer(1, 0), resolver(2), consumer(4, 1))},
	}
	res := spec.AppendEnforcers(ctx, nil)
	require.Len(t, res, 2)
	require.Equal(t, opt.PartitionSelectorOp, res[0].Op)
	require.Equal(t, opt.ScanID(1), res[0].ScanID)
	require.NotNil(t, res[0].Filter)
	// The consumer of scan 5 is elsewhere; its filter is propagated from here.
	require.Equal(t, opt.ScanID(5), res[1].ScanID)
	require.Equal(t, "@2", res[1].Filter.String())
	require.Panics(t, func() { filters.Add(1, nil) })
}
