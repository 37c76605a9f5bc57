// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package tidbitmap

import (
	"math"
	"math/rand"
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/physprops/pkg/sql/opt/optconfig"
	"github.com/cockroachdb/physprops/pkg/util/log"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewMaxEntries(t *testing.T) {
	require.Equal(t, minMaxEntries, New(0).MaxEntries())
	require.Equal(t, 1000, New(1000*bytesPerEntry).MaxEntries())
	require.Equal(t, math.MaxInt32-1, New(math.MaxInt64).MaxEntries())
	require.Equal(t, 2, NewWithMaxEntries(2).MaxEntries())

	c := optconfig.DefaultConfig()
	require.Equal(t, int(c.BitmapMaxBytes()/bytesPerEntry), NewFromConfig(&c).MaxEntries())

	b := New(0)
	require.True(t, b.IsEmpty())
	require.Equal(t, Empty, b.Status())
	require.Equal(t, int64(0), b.MemUsed())
}

func TestStatusTransitions(t *testing.T) {
	b := NewWithMaxEntries(100)
	b.AddTuples([]TID{{Block: 1, Offset: 1}}, false)
	require.Equal(t, OnePage, b.Status())
	b.AddTuples([]TID{{Block: 1, Offset: 2}}, false)
	require.Equal(t, OnePage, b.Status())
	b.AddTuples([]TID{{Block: 2, Offset: 1}}, false)
	require.Equal(t, Hash, b.Status())
	require.Equal(t, 2*bytesPerEntry, b.MemUsed())

	// Shrinking does not return to inline storage.
	b.Intersect(NewWithMaxEntries(100))
	require.True(t, b.IsEmpty())
	require.Equal(t, Hash, b.Status())
	require.Equal(t, 2*bytesPerEntry, b.MemUsed())
}

func TestBitmapAssertions(t *testing.T) {
	isAssertion := func(t *testing.T, f func()) {
		t.Helper()
		defer func() {
			r := recover()
			require.NotNil(t, r)
			err, ok := r.(error)
			require.True(t, ok)
			require.True(t, errors.HasAssertionFailure(err), "%v", err)
		}()
		f()
	}

	t.Run("offset", func(t *testing.T) {
		b := NewWithMaxEntries(10)
		isAssertion(t, func() { b.AddTuples([]TID{{Block: 1, Offset: 0}}, false) })
		isAssertion(t, func() { b.AddTuples([]TID{{Block: 1, Offset: MaxTuplesPerPage + 1}}, false) })
	})
	t.Run("block", func(t *testing.T) {
		b := NewWithMaxEntries(10)
		isAssertion(t, func() { b.AddPage(InvalidBlockNumber) })
	})
	t.Run("frozen", func(t *testing.T) {
		b := NewWithMaxEntries(10)
		b.AddTuples([]TID{{Block: 1, Offset: 1}}, false)
		b.BeginIterate()
		isAssertion(t, func() { b.AddTuples([]TID{{Block: 2, Offset: 1}}, false) })
		isAssertion(t, func() { b.AddPage(3) })
		isAssertion(t, func() { b.Union(NewWithMaxEntries(10)) })
		isAssertion(t, func() { b.Intersect(NewWithMaxEntries(10)) })

		// Copies of a frozen bitmap are mutable.
		c := b.Copy()
		c.AddPage(3)
		require.Equal(t, 2, c.NumEntries())
	})
}

func TestMaxOffset(t *testing.T) {
	b := NewWithMaxEntries(10)
	b.AddTuples([]TID{{Block: 4, Offset: MaxTuplesPerPage}, {Block: 4, Offset: 1}}, true)
	res, ok := b.BeginIterate().Next()
	require.True(t, ok)
	require.Equal(t, []OffsetNumber{1, MaxTuplesPerPage}, res.Offsets)
	require.Equal(t, 2, res.NTuples)
	require.True(t, res.Recheck)
}

func TestCapRaiseLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	defer log.SetLogger(zap.New(core))()
	defer log.SetVerbosity(2)()

	b := NewWithMaxEntries(2)
	b.AddTuples([]TID{{Block: 0, Offset: 1}, {Block: 256, Offset: 1}, {Block: 512, Offset: 1}}, false)
	require.Equal(t, 6, b.MaxEntries())
	require.Equal(t, 1, logs.FilterMessageSnippet("raising cap from 2 to 6").Len())
}

// tidKey packs a TID for the roaring oracle. Blocks stay below 1<<20.
func tidKey(tid TID) uint32 {
	return tid.Block<<9 | uint32(tid.Offset)
}

func randomTIDs(rng *rand.Rand, n, blocks int) []TID {
	tids := make([]TID, n)
	for i := range tids {
		tids[i] = TID{
			Block:  BlockNumber(rng.Intn(blocks)),
			Offset: OffsetNumber(1 + rng.Intn(MaxTuplesPerPage)),
		}
	}
	return tids
}

// collect iterates b, checking that blocks ascend, and returns the blocks seen
// along with the exact TIDs.
func collect(t *testing.T, it Iter) (blocks, exact *roaring.Bitmap, lossy int) {
	t.Helper()
	blocks, exact = roaring.New(), roaring.New()
	first := true
	var last BlockNumber
	for {
		res, ok := it.Next()
		if !ok {
			return blocks, exact, lossy
		}
		if !first {
			require.Greater(t, res.Block, last)
		}
		first, last = false, res.Block
		blocks.Add(res.Block)
		if res.Lossy() {
			require.True(t, res.Recheck)
			lossy++
			continue
		}
		require.Len(t, res.Offsets, res.NTuples)
		require.NotZero(t, res.NTuples)
		for _, off := range res.Offsets {
			exact.Add(tidKey(TID{Block: res.Block, Offset: off}))
		}
	}
}

func TestAddTuplesAgainstOracle(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for _, maxEntries := range []int{2, 16, 100, 100000} {
		for trial := 0; trial < 5; trial++ {
			b := NewWithMaxEntries(maxEntries)
			wantBlocks, wantTIDs := roaring.New(), roaring.New()
			for batch := 0; batch < 10; batch++ {
				tids := randomTIDs(rng, 1+rng.Intn(50), 2000)
				b.AddTuples(tids, false)
				for _, tid := range tids {
					wantBlocks.Add(tid.Block)
					wantTIDs.Add(tidKey(tid))
				}
				require.Equal(t, b.NumEntries(), b.NumPages()+b.NumChunks())
			}
			require.LessOrEqual(t, b.NumEntries(), b.MaxEntries())

			blocks, exact, lossy := collect(t, b.BeginIterate())
			// Every block is reported, exactly or lossily, and nothing else.
			require.True(t, wantBlocks.Equals(blocks), "maxEntries=%d", maxEntries)
			// Exact pages report exactly the tuples added to them.
			require.True(t, roaring.AndNot(exact, wantTIDs).IsEmpty())
			if lossy == 0 {
				require.True(t, wantTIDs.Equals(exact))
			}
			if maxEntries == 100000 {
				require.Zero(t, lossy)
			}
		}
	}
}

func TestUnionIntersectAgainstOracle(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	build := func(tids []TID) (*Bitmap, *roaring.Bitmap) {
		b := NewWithMaxEntries(100000)
		b.AddTuples(tids, false)
		o := roaring.New()
		for _, tid := range tids {
			o.Add(tidKey(tid))
		}
		return b, o
	}
	for trial := 0; trial < 20; trial++ {
		a, ao := build(randomTIDs(rng, rng.Intn(400), 300))
		b, bo := build(randomTIDs(rng, rng.Intn(400), 300))

		u := a.Copy()
		u.Union(b)
		_, exact, lossy := collect(t, u.BeginIterate())
		require.Zero(t, lossy)
		require.True(t, roaring.Or(ao, bo).Equals(exact))

		i := a.Copy()
		i.Intersect(b)
		_, exact, lossy = collect(t, i.BeginIterate())
		require.Zero(t, lossy)
		require.True(t, roaring.And(ao, bo).Equals(exact))

		// Intersection is idempotent.
		i2 := a.Copy()
		i2.Intersect(b)
		i2.Intersect(b)
		_, exact2, _ := collect(t, i2.BeginIterate())
		require.True(t, exact.Equals(exact2))

		// Self union through a copy changes nothing.
		s := a.Copy()
		s.Union(a.Copy())
		_, exact, _ = collect(t, s.BeginIterate())
		require.True(t, ao.Equals(exact))
	}
}

func TestLossyUnionIntersect(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	for trial := 0; trial < 20; trial++ {
		a := NewWithMaxEntries(8)
		a.AddTuples(randomTIDs(rng, 100, 1000), false)
		b := NewWithMaxEntries(8)
		b.AddTuples(randomTIDs(rng, 100, 1000), false)

		aBlocks, _, _ := collect(t, a.Copy().BeginIterate())
		bBlocks, _, _ := collect(t, b.Copy().BeginIterate())

		u := a.Copy()
		u.Union(b)
		uBlocks, _, _ := collect(t, u.BeginIterate())
		require.True(t, roaring.Or(aBlocks, bBlocks).Equals(uBlocks))

		i := a.Copy()
		i.Intersect(b)
		iBlocks, _, _ := collect(t, i.BeginIterate())
		require.True(t, roaring.AndNot(iBlocks, roaring.And(aBlocks, bBlocks)).IsEmpty())
	}
}
