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

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestColSet(t *testing.T) {
	a := MakeColSet(1, 2, 3)
	b := MakeColSet(3, 4)

	require.Equal(t, "(1,2,3,4)", a.Union(b).String())
	require.Equal(t, "(3)", a.Intersection(b).String())
	require.Equal(t, "(1,2)", a.Difference(b).String())
	require.True(t, a.Intersects(b))
	require.False(t, a.SubsetOf(b))
	require.True(t, MakeColSet(3).SubsetOf(b))
	require.True(t, ColSet{}.SubsetOf(b))
	require.True(t, ColSet{}.Equals(MakeColSet()))
	require.Equal(t, []ColumnID{1, 2, 3}, a.Ordered())

	// Set operations never mutate their inputs.
	require.Equal(t, "(1,2,3)", a.String())
	require.Equal(t, "(3,4)", b.String())
}

func TestColSetRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 200; iter++ {
		ref := make(map[ColumnID]bool)
		var cols []ColumnID
		for i := rng.Intn(20); i > 0; i-- {
			c := ColumnID(rng.Intn(64))
			ref[c] = true
			cols = append(cols, c)
		}
		s := MakeColSet(cols...)
		require.Equal(t, len(ref), s.Len())
		for c := ColumnID(0); c < 64; c++ {
			require.Equal(t, ref[c], s.Contains(c))
		}
		require.True(t, s.SubsetOf(s.Union(MakeColSet(ColumnID(rng.Intn(64))))))
		require.True(t, s.Difference(s).Empty())
	}
}
