// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package distribution computes how the rows of each operator are spread
// over the segments: what an operator requires of its children, what it
// delivers, and whether a required distribution must be enforced on top of
// it.
package distribution

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/physprops/pkg/sql/opt"
	"github.com/cockroachdb/physprops/pkg/sql/opt/memo"
	"github.com/cockroachdb/physprops/pkg/sql/opt/props"
	"github.com/cockroachdb/physprops/pkg/sql/opt/props/physical"
	"github.com/cockroachdb/physprops/pkg/util/buildutil"
	"github.com/cockroachdb/redact"
)

// BuildChildRequired returns the distribution that must be required of the
// requested child in order to deliver the required distribution. The
// distribution sub-request in r selects between the alternatives the
// operator tries.
func BuildChildRequired(r *memo.ChildRequest, required physical.Distribution) physical.Distribution {
	if buildutil.CrdbTestBuild {
		checkRequest(r)
	}
	result := funcMap[r.Op()].buildChildReqDist(r, required)
	if result.Type() == physical.UniversalDistribution {
		panic(errors.AssertionFailedf("%s requires a universal distribution of child %d",
			r.Op(), redact.Safe(r.ChildIdx)))
	}
	return result
}

// ChildMatching returns how the distribution delivered by the requested
// child is matched against the one BuildChildRequired requires.
func ChildMatching(r *memo.ChildRequest) physical.DistMatching {
	return funcMap[r.Op()].childMatching(r)
}

// BuildProvided returns the distribution the expression delivers, given the
// distributions delivered by its children.
func BuildProvided(h memo.ExprHandle) physical.Distribution {
	result := funcMap[h.Operator().Op()].buildProvidedDist(h)
	if buildutil.CrdbTestBuild && !result.Derivable() {
		panic(errors.AssertionFailedf("%s derived a request-only distribution %v", h.Operator(), result))
	}
	return result
}

// Enforcement decides whether a motion is needed on top of the expression
// to deliver the required distribution. The expression's own delivered
// properties must be set.
func Enforcement(h memo.ExprHandle, required physical.EnfdDistribution) physical.EnforceType {
	return funcMap[h.Operator().Op()].enforcement(h, required)
}

// FromPolicy returns the distribution of a base table with the given policy.
func FromPolicy(policy props.DistributionPolicy, distCols []opt.ColumnID) physical.Distribution {
	switch policy {
	case props.MasterOnlyPolicy:
		return physical.MasterSingleton
	case props.RandomPolicy:
		return physical.Random
	case props.HashPolicy:
		return physical.NewHashedDist(opt.MakeVariables(distCols...), true /* nullsColocated */)
	case props.ReplicatedPolicy:
		return physical.StrictReplication
	}
	panic(errors.AssertionFailedf("unknown distribution policy %d", redact.Safe(policy)))
}

type funcs struct {
	buildChildReqDist func(r *memo.ChildRequest, required physical.Distribution) physical.Distribution
	childMatching     func(r *memo.ChildRequest) physical.DistMatching
	buildProvidedDist func(h memo.ExprHandle) physical.Distribution
	enforcement       func(h memo.ExprHandle, required physical.EnfdDistribution) physical.EnforceType
}

var funcMap [opt.NumOperators]funcs

func init() {
	for _, op := range opt.RelationalOperators {
		funcMap[op] = funcs{
			buildChildReqDist: noChildReqDist,
			childMatching:     satisfyMatching,
			buildProvidedDist: firstChildProvidedDist,
			enforcement:       defaultEnforcement,
		}
	}
	funcMap[opt.ScanOp].buildProvidedDist = scanBuildProvided
	funcMap[opt.ConstTableOp].buildProvidedDist = universalProvided
	funcMap[opt.CTEConsumerOp].buildProvidedDist = randomProvided

	for _, op := range []opt.Operator{opt.FilterOp, opt.ProjectOp, opt.CTEProducerOp} {
		funcMap[op].buildChildReqDist = passThroughUnlessMasterOrOuter
	}
	funcMap[opt.SortOp].buildChildReqDist = unaryDist
	funcMap[opt.SpoolOp].buildChildReqDist = unaryDist

	funcMap[opt.PartitionSelectorOp].buildChildReqDist = partitionSelectorBuildChildReqDist
	funcMap[opt.PartitionSelectorOp].enforcement = partitionSelectorEnforcement

	funcMap[opt.LimitOp].buildChildReqDist = limitBuildChildReqDist
	funcMap[opt.LimitOp].buildProvidedDist = limitBuildProvided
	funcMap[opt.LimitOp].enforcement = limitEnforcement

	for _, op := range []opt.Operator{
		opt.GatherMotionOp, opt.BroadcastMotionOp, opt.HashMotionOp, opt.RandomMotionOp,
	} {
		funcMap[op] = funcs{
			buildChildReqDist: anyDist,
			childMatching:     satisfyMatching,
			buildProvidedDist: motionBuildProvided,
			enforcement:       motionEnforcement,
		}
	}

	funcMap[opt.NestedLoopJoinOp] = funcs{
		buildChildReqDist: joinBuildChildReqDist,
		childMatching:     joinChildMatching,
		buildProvidedDist: joinBuildProvided,
		enforcement:       defaultEnforcement,
	}
	funcMap[opt.CorrelatedNestedLoopJoinOp] = funcs{
		buildChildReqDist: correlatedJoinBuildChildReqDist,
		childMatching:     joinChildMatching,
		buildProvidedDist: joinBuildProvided,
		enforcement:       defaultEnforcement,
	}
	for _, op := range []opt.Operator{opt.IndexNestedLoopJoinOp, opt.LeftOuterIndexNestedLoopJoinOp} {
		funcMap[op] = funcs{
			buildChildReqDist: indexJoinBuildChildReqDist,
			childMatching:     joinChildMatching,
			buildProvidedDist: joinBuildProvided,
			enforcement:       defaultEnforcement,
		}
	}
	for _, op := range []opt.Operator{
		opt.HashJoinOp, opt.LeftOuterHashJoinOp, opt.LeftSemiHashJoinOp, opt.LeftAntiSemiHashJoinOp,
	} {
		funcMap[op] = funcs{
			buildChildReqDist: hashJoinBuildChildReqDist,
			childMatching:     joinChildMatching,
			buildProvidedDist: joinBuildProvided,
			enforcement:       defaultEnforcement,
		}
	}
	funcMap[opt.HashJoinOp].buildProvidedDist = innerHashJoinBuildProvided
	funcMap[opt.LeftAntiSemiHashJoinNotInOp] = funcs{
		buildChildReqDist: notInHashJoinBuildChildReqDist,
		childMatching:     joinChildMatching,
		buildProvidedDist: joinBuildProvided,
		enforcement:       defaultEnforcement,
	}

	funcMap[opt.SequenceOp] = funcs{
		buildChildReqDist: sequenceBuildChildReqDist,
		childMatching:     satisfyMatching,
		buildProvidedDist: lastChildProvidedDist,
		enforcement:       defaultEnforcement,
	}
	funcMap[opt.UnionAllOp] = funcs{
		buildChildReqDist: unionAllBuildChildReqDist,
		childMatching:     satisfyMatching,
		buildProvidedDist: unionAllBuildProvided,
		enforcement:       defaultEnforcement,
	}
}

func checkRequest(r *memo.ChildRequest) {
	if n := memo.RelationalChildCount(r.Parent); r.ChildIdx < 0 || r.ChildIdx >= n {
		panic(errors.AssertionFailedf("%s has no relational child %d", r.Op(), redact.Safe(r.ChildIdx)))
	}
	if n := r.Parent.Operator().Requests().PropCount(memo.DistProperty); r.Request.Dist >= n {
		panic(errors.AssertionFailedf("%s has %d distribution requests, got request %d",
			r.Op(), redact.Safe(n), redact.Safe(r.Request.Dist)))
	}
}

func noChildReqDist(r *memo.ChildRequest, required physical.Distribution) physical.Distribution {
	panic(errors.AssertionFailedf("%s has no relational children", r.Op()))
}

// anyDist imposes no requirement on the child.
func anyDist(r *memo.ChildRequest, required physical.Distribution) physical.Distribution {
	return &physical.AnyDist{Requester: r.Op()}
}

// passThrough requires of the child what is required of the parent.
func passThrough(r *memo.ChildRequest, required physical.Distribution) physical.Distribution {
	return required
}

// enforceMaster requires execution on the master, keeping a master
// singleton requirement unchanged.
func enforceMaster(required physical.Distribution) physical.Distribution {
	if s, ok := required.(*physical.SingletonDist); ok && s.Segment == physical.MasterSegment {
		return required
	}
	return physical.MasterSingleton
}

// requireSingletonOrReplicated returns the distribution to require of the
// child of an expression that must run on the master or that references
// outer columns, or nil if neither is the case. With outer references the
// first request broadcasts the child and the second gathers it.
func requireSingletonOrReplicated(
	r *memo.ChildRequest, required physical.Distribution,
) physical.Distribution {
	rel := r.Parent.Relational()
	if rel.MasterOnly {
		return enforceMaster(required)
	}
	if rel.HasOuterRefs() {
		if r.Request.Dist == 0 {
			return physical.StrictReplication
		}
		return physical.MasterSingleton
	}
	return nil
}

// passThroughUnlessMasterOrOuter passes the requirement through unless the
// expression must run on the master or references outer columns.
func passThroughUnlessMasterOrOuter(
	r *memo.ChildRequest, required physical.Distribution,
) physical.Distribution {
	if d := requireSingletonOrReplicated(r, required); d != nil {
		return d
	}
	return passThrough(r, required)
}

// unaryDist is used by unary operators that have no requirement of their
// own; the required distribution is enforced on their output.
func unaryDist(r *memo.ChildRequest, required physical.Distribution) physical.Distribution {
	if d := requireSingletonOrReplicated(r, required); d != nil {
		return d
	}
	return anyDist(r, required)
}

// singletonMatching returns a singleton on the same kind of host as d,
// which must be a singleton.
func singletonMatching(d physical.Distribution) physical.Distribution {
	s, ok := d.(*physical.SingletonDist)
	if !ok {
		panic(errors.AssertionFailedf("expected a singleton distribution, got %v", d))
	}
	if s.Segment == physical.MasterSegment {
		return physical.MasterSingleton
	}
	return physical.SegmentSingleton
}

func satisfyMatching(r *memo.ChildRequest) physical.DistMatching {
	return physical.DistSatisfy
}

func firstChildProvidedDist(h memo.ExprHandle) physical.Distribution {
	return h.ChildProvided(0).Dist
}

func lastChildProvidedDist(h memo.ExprHandle) physical.Distribution {
	return h.ChildProvided(memo.RelationalChildCount(h) - 1).Dist
}

func scanBuildProvided(h memo.ExprHandle) physical.Distribution {
	p := h.Operator().ScanPrivate()
	return FromPolicy(p.Policy, p.DistCols)
}

func universalProvided(h memo.ExprHandle) physical.Distribution {
	return physical.Universal
}

// randomProvided is used by CTE consumers, whose distribution is replaced
// by the producer's once the producer plan is known.
func randomProvided(h memo.ExprHandle) physical.Distribution {
	return physical.Random
}

func defaultEnforcement(h memo.ExprHandle, required physical.EnfdDistribution) physical.EnforceType {
	if required.Compatible(delivered(h)) {
		return physical.EnforceUnnecessary
	}
	return physical.EnforceRequired
}

func delivered(h memo.ExprHandle) physical.Distribution {
	p := h.Provided()
	if p == nil {
		panic(errors.AssertionFailedf("properties of %s are not derived", h.Operator()))
	}
	return p.Dist
}
