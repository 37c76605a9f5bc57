// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package distribution

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/physprops/pkg/sql/opt"
	"github.com/cockroachdb/physprops/pkg/sql/opt/memo"
	"github.com/cockroachdb/physprops/pkg/sql/opt/props/physical"
)

// joinMasterOrOuter returns the requirement of a join child when the join
// must run on the master or has outer references, or nil.
func joinMasterOrOuter(r *memo.ChildRequest, required physical.Distribution) physical.Distribution {
	rel := r.Parent.Relational()
	if rel.MasterOnly {
		return enforceMaster(required)
	}
	if rel.HasOuterRefs() {
		switch required.Type() {
		case physical.SingletonDistribution, physical.ReplicatedDistribution:
			return passThrough(r, required)
		}
		return physical.StrictReplication
	}
	return nil
}

// joinBuildChildReqDist requires nothing of the outer child and requires
// the inner child to be co-located with every row of the outer child.
func joinBuildChildReqDist(r *memo.ChildRequest, required physical.Distribution) physical.Distribution {
	if d := joinMasterOrOuter(r, required); d != nil {
		return d
	}
	if r.ChildIdx == 1 {
		outer := r.FirstSibling().Dist
		switch outer.Type() {
		case physical.UniversalDistribution:
			// Joining a universal outer with a distributed inner on every
			// segment would produce duplicates.
			return physical.MasterSingleton
		case physical.SingletonDistribution:
			return singletonMatching(outer)
		}
		return physical.StrictReplication
	}
	return anyDist(r, required)
}

// correlatedJoinBuildChildReqDist passes a singleton requirement to both
// children on the first request, which correlated execution needs.
func correlatedJoinBuildChildReqDist(
	r *memo.ChildRequest, required physical.Distribution,
) physical.Distribution {
	if r.Request.Dist == 0 && physical.IsSingleton(required) {
		return passThrough(r, required)
	}
	if r.ChildIdx == 1 && r.FirstSibling().Dist.Type() == physical.UniversalDistribution {
		return physical.MasterSingleton
	}
	return joinBuildChildReqDist(r, required)
}

// joinChildMatching matches the first optimized child loosely. The second
// child must deliver exactly what it is asked for, unless the first child
// is replicated or universal.
func joinChildMatching(r *memo.ChildRequest) physical.DistMatching {
	if r.Parent.Operator().IsFirstChildToOptimize(r.ChildIdx) {
		return physical.DistSatisfy
	}
	if physical.IsReplicatedOrUniversal(r.FirstSibling().Dist) {
		return physical.DistSatisfy
	}
	return physical.DistExact
}

// joinBuildProvided delivers the outer distribution, unless the outer child
// has a copy of its rows everywhere.
func joinBuildProvided(h memo.ExprHandle) physical.Distribution {
	outer := h.ChildProvided(0).Dist
	if physical.IsReplicatedOrUniversal(outer) {
		return h.ChildProvided(1).Dist
	}
	return outer
}

// innerHashJoinBuildProvided delivers the outer hashed distribution with
// the inner one as its equivalent, since the join output is hashed on both
// sets of keys.
func innerHashJoinBuildProvided(h memo.ExprHandle) physical.Distribution {
	outer, ok1 := h.ChildProvided(0).Dist.(*physical.HashedDist)
	inner, ok2 := h.ChildProvided(1).Dist.(*physical.HashedDist)
	if ok1 && ok2 && outer.Equiv == nil {
		return outer.WithEquiv(inner)
	}
	return joinBuildProvided(h)
}

// indexJoinBuildChildReqDist lets the inner child, which probes an index
// with outer values, reference the outer child. The outer child is then
// required to match where the inner rows live.
func indexJoinBuildChildReqDist(
	r *memo.ChildRequest, required physical.Distribution,
) physical.Distribution {
	if r.ChildIdx == 1 {
		return &physical.AnyDist{Requester: r.Op(), AllowOuterRefs: true}
	}
	inner := r.FirstSibling().Dist
	switch t := inner.(type) {
	case *physical.SingletonDist:
		return singletonMatching(t)
	case *physical.UniversalDist:
		return physical.MasterSingleton
	case *physical.HashedDist:
		if t.Equiv != nil {
			return physical.NewHashedDist(t.Equiv.Exprs, t.Equiv.NullsColocated)
		}
	}
	if r.Op() == opt.LeftOuterIndexNestedLoopJoinOp {
		panic(opt.NewUnsupportedError("left outer index nested-loop join broadcasting its outer side"))
	}
	return physical.StrictReplication
}

// hashJoinBuildChildReqDist enumerates the alternatives of a hash join. The
// inner child is optimized first. With N redistribution requests:
//
//	0 .. N-1: (hashed, hashed) on a single key or all keys
//	N:        (broadcast, hashed pass-through or non-singleton)
//	N+1:      (broadcast, non-singleton)
//	N+2:      (singleton, singleton)
func hashJoinBuildChildReqDist(
	r *memo.ChildRequest, required physical.Distribution,
) physical.Distribution {
	if d := joinMasterOrOuter(r, required); d != nil {
		return d
	}
	n := len(r.Parent.Operator().RedistributeRequests())
	switch {
	case r.Request.Dist < n:
		return hashJoinRedistribute(r)
	case r.Request.Dist <= n+1:
		return hashJoinReplicate(r, required, n)
	}
	return hashJoinSingleton(r)
}

func hashJoinRedistribute(r *memo.ChildRequest) physical.Distribution {
	o := r.Parent.Operator()
	if o.IsFirstChildToOptimize(r.ChildIdx) {
		return o.RedistributeRequests()[r.Request.Dist]
	}
	return hashJoinMatch(o, r.FirstSibling().Dist, 1 /* sourceChild */)
}

func hashJoinReplicate(
	r *memo.ChildRequest, required physical.Distribution, n int,
) physical.Distribution {
	if r.ChildIdx == 1 {
		return physical.StrictReplication
	}
	inner := r.FirstSibling().Dist
	if inner.Type() == physical.UniversalDistribution {
		return physical.MasterSingleton
	}
	if h, ok := required.(*physical.HashedDist); ok && r.Request.Dist == n {
		if res := hashJoinPassThroughHashed(r, h); res != nil {
			return res
		}
	}
	return physical.NonSingleton
}

// hashJoinPassThroughHashed pushes a hashed requirement of the join down to
// the outer child while the inner child is broadcast. It returns nil when
// the requirement does not use any outer column.
func hashJoinPassThroughHashed(r *memo.ChildRequest, required *physical.HashedDist) physical.Distribution {
	if !r.Flags.EnableRedistributeBroadcastHashJoin {
		return nil
	}
	outerCols := r.Parent.ChildRelational(0).OutputCols
	var used opt.ColSet
	for _, e := range required.Exprs {
		used = used.Union(e.Cols())
	}
	if used.SubsetOf(outerCols) {
		return required
	}
	if !used.Intersects(outerCols) {
		return nil
	}
	var exprs []opt.ScalarExpr
	for _, e := range required.Exprs {
		if e.Cols().SubsetOf(outerCols) {
			exprs = append(exprs, e)
		}
	}
	return physical.NewHashedDist(exprs, required.NullsColocated)
}

func hashJoinSingleton(r *memo.ChildRequest) physical.Distribution {
	if r.Parent.Operator().IsFirstChildToOptimize(r.ChildIdx) {
		return physical.MasterSingleton
	}
	first := r.FirstSibling().Dist
	if first.Type() == physical.UniversalDistribution {
		return physical.MasterSingleton
	}
	return singletonMatching(first)
}

// hashJoinMatch returns the distribution to require of one hash join child
// so that it is co-located with d, the distribution delivered by
// sourceChild.
func hashJoinMatch(o *memo.Operator, d physical.Distribution, sourceChild int) physical.Distribution {
	switch t := d.(type) {
	case *physical.UniversalDist:
		return physical.MasterSingleton
	case *physical.SingletonDist:
		return singletonMatching(t)
	case *physical.HashedDist:
		return hashJoinHashedMatching(o, t, sourceChild)
	case *physical.ReplicatedDist:
		if o.RightToLeft() {
			return physical.NonSingleton
		}
		return physical.StrictReplication
	}
	panic(errors.AssertionFailedf("unexpected distribution %v delivered by hash join child", d))
}

// hashJoinHashedMatching maps the keys of a hashed distribution delivered by
// sourceChild to the corresponding join keys of the other child. If some
// key is not a join key, the equivalent distribution is tried.
func hashJoinHashedMatching(
	o *memo.Operator, d *physical.HashedDist, sourceChild int,
) physical.Distribution {
	p := o.HashJoinPrivate()
	source, target := p.OuterKeys, p.InnerKeys
	if sourceChild == 1 {
		source, target = target, source
	}
	exprs := make([]opt.ScalarExpr, 0, len(d.Exprs))
	for _, e := range d.Exprs {
		if i := opt.ScalarListIndex(source, e); i >= 0 {
			exprs = append(exprs, target[i])
		}
	}
	if len(exprs) != len(d.Exprs) {
		if d.Equiv != nil {
			return hashJoinHashedMatching(o, d.Equiv, sourceChild)
		}
		panic(errors.AssertionFailedf("failed to match hashed distribution %v with join keys", d))
	}
	return physical.NewHashedDist(exprs, true /* nullsColocated */)
}

// notInHashJoinBuildChildReqDist broadcasts the inner child of a NOT IN
// anti-join when either side has nullable keys: every segment must see a
// NULL or an empty inner to evaluate NOT IN correctly.
func notInHashJoinBuildChildReqDist(
	r *memo.ChildRequest, required physical.Distribution,
) physical.Distribution {
	if r.Request.Dist == 0 && r.ChildIdx == 1 {
		p := r.Parent.Operator().HashJoinPrivate()
		if nullableKeys(p.OuterKeys, r.Parent.ChildRelational(0).NotNullCols) ||
			nullableKeys(p.InnerKeys, r.Parent.ChildRelational(1).NotNullCols) {
			return physical.StrictReplication
		}
	}
	return hashJoinBuildChildReqDist(r, required)
}

func nullableKeys(keys []opt.ScalarExpr, notNull opt.ColSet) bool {
	for _, k := range keys {
		if nullableKey(k, notNull) {
			return true
		}
	}
	return false
}

// nullableKey is conservative for expressions other than columns and
// constants.
func nullableKey(k opt.ScalarExpr, notNull opt.ColSet) bool {
	switch t := k.(type) {
	case *opt.Variable:
		return !notNull.Contains(t.Col)
	case *opt.Const:
		return t.Null
	}
	return true
}
