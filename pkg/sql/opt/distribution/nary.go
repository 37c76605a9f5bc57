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
	"github.com/cockroachdb/physprops/pkg/util/buildutil"
	"github.com/cockroachdb/redact"
	"golang.org/x/exp/slices"
)

// sequenceBuildChildReqDist runs every child of a sequence in the same
// place. The first request derives that place from the requirement, the
// second from the first child.
func sequenceBuildChildReqDist(
	r *memo.ChildRequest, required physical.Distribution,
) physical.Distribution {
	if r.Request.Dist == 0 {
		if physical.IsSingleton(required) {
			return required
		}
		return physical.NonSingleton
	}
	if r.ChildIdx == 0 {
		return anyDist(r, required)
	}
	first := r.FirstSibling().Dist
	switch first.Type() {
	case physical.SingletonDistribution:
		return singletonMatching(first)
	case physical.UniversalDistribution:
		return anyDist(r, required)
	}
	return physical.NonSingleton
}

// unionAllBuildChildReqDist enumerates the alternatives of a union:
//
//	0: pass a hashed requirement through to every child
//	1: let the first child choose and match the others to it
//	2: run every child on the same singleton
func unionAllBuildChildReqDist(
	r *memo.ChildRequest, required physical.Distribution,
) physical.Distribution {
	if d := joinMasterOrOuter(r, required); d != nil {
		return d
	}
	switch r.Request.Dist {
	case 0:
		if h, ok := required.(*physical.HashedDist); ok {
			if d := unionAllPassThroughHashed(r.Parent.Operator().UnionAllPrivate(), h, r.ChildIdx); d != nil {
				return d
			}
		}
	case 2:
		if r.ChildIdx == 0 {
			return physical.MasterSingleton
		}
		if first := r.FirstSibling().Dist; physical.IsSingleton(first) {
			return singletonMatching(first)
		}
		return physical.MasterSingleton
	}
	if r.ChildIdx == 0 {
		return anyDist(r, required)
	}
	first := r.FirstSibling().Dist
	switch first.Type() {
	case physical.SingletonDistribution:
		return singletonMatching(first)
	case physical.UniversalDistribution:
		return physical.MasterSingleton
	case physical.ReplicatedDistribution:
		return physical.StrictReplication
	}
	return &physical.NonSingletonDist{AllowReplicated: false}
}

// unionAllPassThroughHashed maps a hashed requirement on the union output
// columns to the input columns of the given child. It returns nil if some
// key is not a hashable output column.
func unionAllPassThroughHashed(
	p *memo.UnionAllPrivate, required *physical.HashedDist, childIdx int,
) physical.Distribution {
	for d := required; d != nil; d = d.Equiv {
		positions, ok := unionAllKeyPositions(p.OutputCols, d.Exprs)
		if !ok {
			continue
		}
		cols := make([]opt.ColumnID, len(positions))
		for i, pos := range positions {
			cols[i] = p.InputCols[childIdx][pos]
		}
		return physical.NewHashedDist(opt.MakeVariables(cols...), true /* nullsColocated */)
	}
	return nil
}

// unionAllKeyPositions returns the position within cols of every key, which
// must all be hashable column references.
func unionAllKeyPositions(cols []opt.ColumnID, keys []opt.ScalarExpr) ([]int, bool) {
	if len(keys) == 0 {
		return nil, false
	}
	positions := make([]int, 0, len(keys))
	for _, k := range keys {
		v, ok := k.(*opt.Variable)
		if !ok || v.NotHashable {
			return nil, false
		}
		pos := slices.Index(cols, v.Col)
		if pos < 0 {
			return nil, false
		}
		positions = append(positions, pos)
	}
	return positions, true
}

// unionAllBuildProvided derives a hashed distribution on the output columns
// when every child is hashed on the columns at the same positions.
// Otherwise the first singleton or replicated child decides, and the union
// falls back to random.
func unionAllBuildProvided(h memo.ExprHandle) physical.Distribution {
	p := h.Operator().UnionAllPrivate()
	n := memo.RelationalChildCount(h)
	if positions, ok := unionAllHashedPositions(h, p, n); ok {
		cols := make([]opt.ColumnID, len(positions))
		for i, pos := range positions {
			cols[i] = p.OutputCols[pos]
		}
		return physical.NewHashedDist(opt.MakeVariables(cols...), true /* nullsColocated */)
	}
	for i := 0; i < n; i++ {
		d := h.ChildProvided(i).Dist
		if physical.IsSingleton(d) || d.Type() == physical.ReplicatedDistribution {
			if buildutil.CrdbTestBuild {
				checkUnionAllChildren(h, n, d.Type())
			}
			return d
		}
	}
	if d := h.ChildProvided(0).Dist; d.Type() == physical.UniversalDistribution {
		return d
	}
	return physical.Random
}

// checkUnionAllChildren panics unless every child of the union has the type
// of the deciding child or is universal.
func checkUnionAllChildren(h memo.ExprHandle, n int, typ physical.DistributionType) {
	for i := 0; i < n; i++ {
		d := h.ChildProvided(i).Dist
		if d.Type() != typ && d.Type() != physical.UniversalDistribution {
			panic(errors.AssertionFailedf(
				"union all child %d provides %s, expected %s or universal",
				redact.Safe(i), redact.Safe(d.String()), redact.Safe(typ),
			))
		}
	}
}

// unionAllHashedPositions maps the hashed distribution of every child to
// positions within the union columns. Each child must satisfy its own
// hashed request, and all children must map to the same positions.
func unionAllHashedPositions(h memo.ExprHandle, p *memo.UnionAllPrivate, n int) ([]int, bool) {
	var positions []int
	for i := 0; i < n; i++ {
		d, ok := h.ChildProvided(i).Dist.(*physical.HashedDist)
		if !ok || !d.Satisfies(unionAllChildHashedRequest(p, i)) {
			return nil, false
		}
		childPositions, ok := unionAllKeyPositions(p.InputCols[i], d.Exprs)
		if !ok {
			return nil, false
		}
		if i > 0 && !slices.Equal(positions, childPositions) {
			return nil, false
		}
		positions = childPositions
	}
	return positions, n > 0
}

// unionAllChildHashedRequest is the hashed distribution on every input
// column of the given child, with NULLs colocated.
func unionAllChildHashedRequest(p *memo.UnionAllPrivate, childIdx int) *physical.HashedDist {
	return physical.NewHashedDist(opt.MakeVariables(p.InputCols[childIdx]...), true /* nullsColocated */)
}
