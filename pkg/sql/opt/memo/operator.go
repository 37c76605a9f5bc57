// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package memo

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/physprops/pkg/sql/opt"
	"github.com/cockroachdb/physprops/pkg/sql/opt/props/physical"
	"github.com/cockroachdb/physprops/pkg/util/syncutil"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/swiss"
)

// NoScalarChild is passed as the scalar child index to ChildRequiredCols
// when there is no scalar sibling whose columns affect the result.
const NoScalarChild = -1

// colsKey identifies a required columns computation.
type colsKey struct {
	cols     string
	childIdx int
	scalar   int
}

// partPropKey identifies a join partition propagation computation.
type partPropKey struct {
	spec     string
	childIdx int
}

// Operator is a physical operator shared by every memo expression of the
// same kind and definition. It records how many alternative requests the
// operator issues for each physical property and memoizes the child
// requirements that are expensive to compute. Operators are safe for
// concurrent use by several search goroutines.
type Operator struct {
	op      opt.Operator
	private interface{}

	requests RequestSet

	// redistribute holds the hashed requests a hash join issues to its first
	// optimized child.
	redistribute []*physical.HashedDist

	mu struct {
		syncutil.Mutex
		cols      *swiss.Map[colsKey, opt.ColSet]
		partProps *swiss.Map[partPropKey, *physical.PartPropSpec]
	}
}

// NewOperator returns an operator of the given kind. The type of private
// depends on the kind (see privates.go) and may be nil for kinds without a
// definition.
func NewOperator(op opt.Operator, private interface{}) *Operator {
	o := &Operator{op: op, private: private, requests: MakeRequestSet()}
	o.mu.cols = swiss.New[colsKey, opt.ColSet](8)
	o.mu.partProps = swiss.New[partPropKey, *physical.PartPropSpec](4)

	switch op {
	case opt.FilterOp, opt.ProjectOp, opt.PartitionSelectorOp, opt.CTEProducerOp,
		opt.CorrelatedNestedLoopJoinOp, opt.SequenceOp:
		o.requests.SetCount(DistProperty, 2)

	case opt.UnionAllOp:
		o.requests.SetCount(DistProperty, 3)

	case opt.HashJoinOp, opt.LeftOuterHashJoinOp, opt.LeftSemiHashJoinOp,
		opt.LeftAntiSemiHashJoinOp, opt.LeftAntiSemiHashJoinNotInOp:
		o.redistribute = makeRedistributeRequests(o.HashJoinPrivate().InnerKeys)
		o.requests.SetCount(DistProperty, len(o.redistribute)+opt.NonHashDistRequests)
	}
	return o
}

// makeRedistributeRequests returns a request on each of the first
// opt.MaxHashDistRequests keys when there is more than one key, followed by
// a request on all keys.
func makeRedistributeRequests(keys []opt.ScalarExpr) []*physical.HashedDist {
	if len(keys) == 0 {
		panic(errors.AssertionFailedf("hash join without keys"))
	}
	var res []*physical.HashedDist
	if n := min(len(keys), opt.MaxHashDistRequests); n > 1 {
		for i := 0; i < n; i++ {
			res = append(res, physical.NewHashedDist(keys[i:i+1], true /* nullsColocated */))
		}
	}
	return append(res, physical.NewHashedDist(keys, true /* nullsColocated */))
}

// Op returns the kind of the operator.
func (o *Operator) Op() opt.Operator {
	return o.op
}

// Private returns the operator definition.
func (o *Operator) Private() interface{} {
	return o.private
}

// Requests returns the request enumeration of the operator.
func (o *Operator) Requests() *RequestSet {
	return &o.requests
}

// RedistributeRequests returns the hashed distributions a hash join requests
// of its first optimized child, one per redistribution request.
func (o *Operator) RedistributeRequests() []*physical.HashedDist {
	return o.redistribute
}

// RightToLeft returns true if the operator optimizes its last relational
// child first. Hash joins and index joins do, so that the inner child's
// delivered distribution drives the request of the outer child.
func (o *Operator) RightToLeft() bool {
	return opt.IsHashJoinOp(o.op) || opt.IsIndexJoinOp(o.op)
}

// IsFirstChildToOptimize returns true if the given child of a binary
// operator is optimized before its sibling.
func (o *Operator) IsFirstChildToOptimize(childIdx int) bool {
	if o.RightToLeft() {
		return childIdx == 1
	}
	return childIdx == 0
}

// ScanPrivate returns the definition of a Scan operator.
func (o *Operator) ScanPrivate() *ScanPrivate { return o.private.(*ScanPrivate) }

// LimitPrivate returns the definition of a Limit operator.
func (o *Operator) LimitPrivate() *LimitPrivate { return o.private.(*LimitPrivate) }

// SortPrivate returns the definition of a Sort operator.
func (o *Operator) SortPrivate() *SortPrivate { return o.private.(*SortPrivate) }

// SpoolPrivate returns the definition of a Spool operator.
func (o *Operator) SpoolPrivate() *SpoolPrivate { return o.private.(*SpoolPrivate) }

// PartitionSelectorPrivate returns the definition of a PartitionSelector.
func (o *Operator) PartitionSelectorPrivate() *PartitionSelectorPrivate {
	return o.private.(*PartitionSelectorPrivate)
}

// MotionPrivate returns the definition of a motion operator.
func (o *Operator) MotionPrivate() *MotionPrivate { return o.private.(*MotionPrivate) }

// HashJoinPrivate returns the definition of a hash join operator.
func (o *Operator) HashJoinPrivate() *HashJoinPrivate { return o.private.(*HashJoinPrivate) }

// IndexJoinPrivate returns the definition of an index nested-loop join.
func (o *Operator) IndexJoinPrivate() *IndexJoinPrivate { return o.private.(*IndexJoinPrivate) }

// UnionAllPrivate returns the definition of a UnionAll operator.
func (o *Operator) UnionAllPrivate() *UnionAllPrivate { return o.private.(*UnionAllPrivate) }

// CTEPrivate returns the definition of a CTE producer or consumer.
func (o *Operator) CTEPrivate() *CTEPrivate { return o.private.(*CTEPrivate) }

// ChildRequiredCols returns the columns to require of the given child so
// that the operator can produce the required columns: the required columns,
// plus those used by the scalar child at scalarIdx minus those it defines,
// restricted to the child's output. Pass NoScalarChild to skip the scalar
// child. Results are memoized.
func (o *Operator) ChildRequiredCols(
	h ExprHandle, required opt.ColSet, childIdx int, scalarIdx int,
) opt.ColSet {
	key := colsKey{cols: required.String(), childIdx: childIdx, scalar: scalarIdx}
	o.mu.Lock()
	cols, ok := o.mu.cols.Get(key)
	o.mu.Unlock()
	if ok {
		return cols
	}

	// Compute outside the lock. Another goroutine may race to compute the
	// same value; the first one to insert wins.
	cols = required
	if scalarIdx != NoScalarChild {
		s := h.ChildScalar(scalarIdx)
		cols = cols.Union(s.UsedCols).Difference(s.DefinedCols)
	}
	cols = cols.Intersection(h.ChildRelational(childIdx).OutputCols)

	o.mu.Lock()
	defer o.mu.Unlock()
	if existing, ok := o.mu.cols.Get(key); ok {
		return existing
	}
	o.mu.cols.Put(key, cols)
	return cols
}

// ChildPartProp returns the memoized partition propagation requirement of
// the given child for the given parent requirement, calling compute on a
// miss. Joins use it since their computation inspects the join predicate.
func (o *Operator) ChildPartProp(
	required *physical.PartPropSpec, childIdx int, compute func() *physical.PartPropSpec,
) *physical.PartPropSpec {
	key := partPropKey{spec: required.String(), childIdx: childIdx}
	o.mu.Lock()
	res, ok := o.mu.partProps.Get(key)
	o.mu.Unlock()
	if ok {
		return res
	}

	res = compute()

	o.mu.Lock()
	defer o.mu.Unlock()
	if existing, ok := o.mu.partProps.Get(key); ok {
		return existing
	}
	o.mu.partProps.Put(key, res)
	return res
}

// memoSizes returns the number of memoized column and partition propagation
// requirements.
func (o *Operator) memoSizes() (cols, partProps int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mu.cols.Len(), o.mu.partProps.Len()
}

// SafeFormat implements the redact.SafeFormatter interface.
func (o *Operator) SafeFormat(w redact.SafePrinter, _ rune) {
	w.SafeString(redact.SafeString(o.op.String()))
	if n := o.requests.Count(); n > 1 {
		w.Printf(" (%d requests)", redact.Safe(n))
	}
}

func (o *Operator) String() string { return redact.StringWithoutMarkers(o) }
