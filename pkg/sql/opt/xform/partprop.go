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
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/physprops/pkg/sql/opt"
	"github.com/cockroachdb/physprops/pkg/sql/opt/memo"
	"github.com/cockroachdb/physprops/pkg/sql/opt/props/physical"
	"github.com/cockroachdb/redact"
)

// partPropChildRequired returns the partition propagation to require of the
// requested child. A requirement is pushed to the child that defines the
// dynamic scan, together with the partition filter found for it so far.
// Joins may instead turn a requirement into a request for a partition
// selector on the side opposite the scan, filtered by the join predicate.
func partPropChildRequired(
	r *memo.ChildRequest, required *physical.PartPropSpec,
) *physical.PartPropSpec {
	if required == nil || required.Index.Len() == 0 {
		return physical.EmptyPartProp
	}
	switch op := r.Op(); {
	case op == opt.PartitionSelectorOp:
		return partitionSelectorChildPartProp(r, required)

	case op == opt.LimitOp:
		// A filter above a limit does not select the same partitions below
		// it.
		return partPropPushThroughUnary(r, required, false /* copyFilters */)

	case opt.IsJoinOp(op):
		return r.Parent.Operator().ChildPartProp(required, r.ChildIdx, func() *physical.PartPropSpec {
			return joinChildPartProp(r.Parent, required, r.ChildIdx)
		})

	case op == opt.SequenceOp || op == opt.UnionAllOp:
		return partPropPushThroughNAry(r, required)
	}
	return partPropPushThroughUnary(r, required, true /* copyFilters */)
}

func newPartPropSpec() *physical.PartPropSpec {
	return &physical.PartPropSpec{
		Index:   physical.NewPartIndexMap(),
		Filters: physical.NewPartFilterMap(),
	}
}

// pushEntry adds the required entry for the given scan to res, along with
// its filter if there is one and copyFilter is set.
func pushEntry(res, required *physical.PartPropSpec, e physical.PartIndexEntry, copyFilter bool) {
	res.Index.Insert(e)
	if !copyFilter {
		return
	}
	if f, ok := required.Filters.Get(e.ScanID); ok {
		res.Filters.Add(e.ScanID, f)
	}
}

// partPropPushThroughUnary pushes every requirement on a scan defined in the
// only child.
func partPropPushThroughUnary(
	r *memo.ChildRequest, required *physical.PartPropSpec, copyFilters bool,
) *physical.PartPropSpec {
	parts := r.Parent.ChildRelational(r.ChildIdx).Partitions
	res := newPartPropSpec()
	required.Index.ForEach(func(e physical.PartIndexEntry) {
		if parts.Contains(e.ScanID) {
			pushEntry(res, required, e, copyFilters)
		}
	})
	return res
}

// partPropPushThroughNAry pushes a requirement to the requested child if it
// is the only child that defines the scan. A scan defined under every child
// of a sequence whose first child produces a CTE is attributed to the first
// child: the others read it through CTE consumers.
func partPropPushThroughNAry(
	r *memo.ChildRequest, required *physical.PartPropSpec,
) *physical.PartPropSpec {
	n := memo.RelationalChildCount(r.Parent)
	res := newPartPropSpec()
	required.Index.ForEach(func(e physical.PartIndexEntry) {
		var owners []int
		for i := 0; i < n; i++ {
			if r.Parent.ChildRelational(i).Partitions.Contains(e.ScanID) {
				owners = append(owners, i)
			}
		}
		if len(owners) == n && n == 2 && r.Op() == opt.SequenceOp &&
			r.Parent.ChildRelational(0).HasCTEProducer {
			owners = owners[:1]
		}
		if len(owners) == 1 && owners[0] == r.ChildIdx {
			pushEntry(res, required, e, true /* copyFilter */)
		}
	})
	return res
}

// partitionSelectorChildPartProp removes the requirement the selector
// resolves, as well as requirements on scans defined elsewhere when the
// selector's own scan is defined below it.
func partitionSelectorChildPartProp(
	r *memo.ChildRequest, required *physical.PartPropSpec,
) *physical.PartPropSpec {
	id := r.Parent.Operator().PartitionSelectorPrivate().ScanID
	parts := r.Parent.ChildRelational(0).Partitions
	res := newPartPropSpec()
	required.Index.ForEach(func(e physical.PartIndexEntry) {
		if e.ScanID == id {
			return
		}
		if !parts.Contains(e.ScanID) && parts.Contains(id) {
			return
		}
		pushEntry(res, required, e, true /* copyFilter */)
	})
	return res
}

// joinChildPartProp computes the partition propagation a join requires of
// one of its children. A requirement on a scan is passed to the side that
// defines it. When the join predicate restricts the scan's partition keys
// with columns of the other side, a partition selector filtered by that
// predicate is requested of the other side, and the scan's side expects one
// more selector. Nested-loop joins look for the predicate when the scan is on
// the inner side, hash joins when it is on the outer side, so that the
// selector is always on the side that executes first.
func joinChildPartProp(
	h memo.ExprHandle, required *physical.PartPropSpec, childIdx int,
) *physical.PartPropSpec {
	nlj := opt.IsNestedLoopJoinOp(h.Operator().Op())
	outer, inner := h.ChildRelational(0), h.ChildRelational(1)
	res := newPartPropSpec()
	required.Index.ForEach(func(e physical.PartIndexEntry) {
		if required.Filters.Contains(e.ScanID) {
			// The join changes the cardinality, so a filter from above may
			// select more partitions below it.
			return
		}
		outerConsumer := outer.Partitions.Contains(e.ScanID)
		allowed := outer.OutputCols
		if outerConsumer {
			allowed = inner.OutputCols
		}
		switch {
		case nlj && childIdx == 0 && outerConsumer:
			res.Index.Insert(e)
		case !nlj && childIdx == 1 && !outerConsumer:
			res.Index.Insert(e)
		default:
			addFilterOnPartKey(h, nlj, e, childIdx, outerConsumer, allowed, res)
		}
	})
	return res
}

// addFilterOnPartKey handles a requirement on a scan for the child of a join
// that either needs a partition selector or defines the scan.
func addFilterOnPartKey(
	h memo.ExprHandle,
	nlj bool,
	e physical.PartIndexEntry,
	childIdx int,
	outerConsumer bool,
	allowed opt.ColSet,
	res *physical.PartPropSpec,
) {
	first, second, consumerFirst := 0, 1, outerConsumer
	if nlj {
		first, second, consumerFirst = 1, 0, !outerConsumer
	}

	partKeys := h.ChildRelational(0).Partitions.PartKeys(e.ScanID).Union(
		h.ChildRelational(1).Partitions.PartKeys(e.ScanID))
	pred := joinPredOnPartKeys(h, partKeys, allowed)

	switch {
	case pred != nil && consumerFirst:
		if childIdx == first {
			// The selector is requested of the other child.
			if e.ExpectedPropagators != physical.UnknownPropagators {
				e.ExpectedPropagators++
			}
			res.Index.Insert(e)
		} else {
			e.ExpectedPropagators = 0
			res.Index.Insert(e)
			res.Filters.Add(e.ScanID, pred)
		}

	case pred != nil:
		if childIdx != first {
			panic(errors.AssertionFailedf("%s: unexpected partition propagation request for child %d",
				h.Operator(), redact.Safe(childIdx)))
		}

	case (consumerFirst && childIdx == first) || (!consumerFirst && childIdx == second):
		// No useful predicate: pass the requirement to the child with the
		// scan.
		res.Index.Insert(e)
	}
}

// joinPredOnPartKeys returns the conjuncts of the join condition that
// restrict the partition keys using only the allowed columns besides the
// keys, or nil if there are none. The join condition is made of the scalar
// child of the join and the equalities on its keys.
func joinPredOnPartKeys(h memo.ExprHandle, partKeys, allowed opt.ColSet) opt.ScalarExpr {
	if partKeys.Empty() {
		return nil
	}
	var conjuncts []opt.ScalarExpr
	if i := memo.ScalarChildIdx(h); i != memo.NoScalarChild {
		if s := h.ChildScalar(i).Expr; s != nil {
			conjuncts = splitConjuncts(s, conjuncts)
		}
	}
	conjuncts = append(conjuncts, keyEqualities(h.Operator())...)

	var found []opt.ScalarExpr
	for _, c := range conjuncts {
		cols := c.Cols()
		if cols.Intersects(partKeys) && cols.Difference(partKeys).SubsetOf(allowed) &&
			!opt.ScalarListContains(found, c) {
			found = append(found, c)
		}
	}
	switch len(found) {
	case 0:
		return nil
	case 1:
		return found[0]
	}
	return &opt.Function{Name: opt.AndFunction, Args: found}
}

// splitConjuncts appends the conjuncts of e to list.
func splitConjuncts(e opt.ScalarExpr, list []opt.ScalarExpr) []opt.ScalarExpr {
	if f, ok := e.(*opt.Function); ok && f.Name == opt.AndFunction {
		for _, arg := range f.Args {
			list = splitConjuncts(arg, list)
		}
		return list
	}
	return append(list, e)
}

// keyEqualities returns the equalities between the outer and inner keys of a
// hash or index join.
func keyEqualities(o *memo.Operator) []opt.ScalarExpr {
	var outerKeys, innerKeys []opt.ScalarExpr
	switch {
	case opt.IsHashJoinOp(o.Op()):
		outerKeys, innerKeys = o.HashJoinPrivate().OuterKeys, o.HashJoinPrivate().InnerKeys
	case opt.IsIndexJoinOp(o.Op()):
		outerKeys, innerKeys = o.IndexJoinPrivate().OuterKeys, o.IndexJoinPrivate().InnerKeys
	default:
		return nil
	}
	res := make([]opt.ScalarExpr, len(outerKeys))
	for i := range outerKeys {
		res[i] = &opt.Function{Name: opt.EqFunction, Args: []opt.ScalarExpr{outerKeys[i], innerKeys[i]}}
	}
	return res
}

// derivePartIndex returns the partition index map delivered by the plan of
// h.
func derivePartIndex(h memo.ExprHandle) *physical.PartIndexMap {
	o := h.Operator()
	switch o.Op() {
	case opt.ScanOp:
		res := physical.NewPartIndexMap()
		if p := o.ScanPrivate(); p.Dynamic() {
			res.Insert(physical.PartIndexEntry{
				ScanID:              p.ScanID,
				Manipulator:         physical.PartConsumer,
				ExpectedPropagators: p.PartSelectors,
			})
		}
		return res

	case opt.ConstTableOp, opt.CTEConsumerOp:
		return physical.NewPartIndexMap()

	case opt.PartitionSelectorOp:
		p := o.PartitionSelectorPrivate()
		return h.ChildProvided(0).PartIndex.WithPartitionSelector(p.ScanID, p.ExpectedSelectors)
	}

	res := physical.NewPartIndexMap()
	for i, n := 0, memo.RelationalChildCount(h); i < n; i++ {
		res = res.Combine(h.ChildProvided(i).PartIndex)
	}
	return res
}

// partPropEnforcement decides whether partition selectors are needed on top
// of h.
func partPropEnforcement(h memo.ExprHandle, required *physical.PartPropSpec) physical.EnforceType {
	res := required.Enforcement(h.Provided().PartIndex)
	if res != physical.EnforceProhibited || h.Operator().Op() != opt.UnionAllOp {
		return res
	}
	// A union-all cannot resolve a scan defined under several of its
	// children, but may leave one defined under a single child to it.
	n := memo.RelationalChildCount(h)
	res = physical.EnforceOptional
	required.Index.ForEach(func(e physical.PartIndexEntry) {
		owners := 0
		for i := 0; i < n; i++ {
			if h.ChildRelational(i).Partitions.Contains(e.ScanID) {
				owners++
			}
		}
		if owners > 1 {
			res = physical.EnforceRequired
		}
	})
	return res
}
