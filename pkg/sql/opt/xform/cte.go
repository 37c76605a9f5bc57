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

// cteChildRequired returns the CTE requirement of the requested child.
func cteChildRequired(r *memo.ChildRequest, required *physical.CTEReq) *physical.CTEReq {
	if required == nil {
		required = physical.NewCTEReq()
	}
	switch op := r.Op(); {
	case op == opt.CTEProducerOp:
		id := r.Parent.Operator().CTEPrivate().ID
		if required.ContainsRequirement(id, physical.CTEConsumer) {
			panic(errors.AssertionFailedf("producer of CTE %d is required to consume it", redact.Safe(id)))
		}
		return required

	case op == opt.SequenceOp:
		if r.ChildIdx < memo.RelationalChildCount(r.Parent)-1 {
			return required.AllOptional()
		}
		return required.UnresolvedSequence(combineCTEMaps(r.Siblings), r.Siblings)

	case op == opt.UnionAllOp || opt.IsJoinOp(op):
		return cteNAry(r, required)
	}
	return required
}

// cteNAry returns the CTE requirement of a child of an operator with several
// relational children. Only the last child to be optimized must satisfy the
// requirement, minus what the plans of its siblings already provide.
func cteNAry(r *memo.ChildRequest, required *physical.CTEReq) *physical.CTEReq {
	o := r.Parent.Operator()
	if o.RightToLeft() {
		if r.ChildIdx > 0 {
			return required.AllOptional()
		}
	} else if r.ChildIdx < memo.RelationalChildCount(r.Parent)-1 {
		return required.AllOptional()
	}
	return required.Unresolved(combineCTEMaps(r.Siblings))
}

// combineCTEMaps combines the CTE maps delivered by the given plans.
func combineCTEMaps(provided []*physical.Provided) *physical.CTEMap {
	res := physical.NewCTEMap()
	for _, p := range provided {
		res = res.Combine(p.CTEs)
	}
	return res
}

// deriveCTEs returns the CTE map delivered by the plan of h.
func deriveCTEs(h memo.ExprHandle) *physical.CTEMap {
	o := h.Operator()
	switch o.Op() {
	case opt.CTEProducerOp:
		child := h.ChildProvided(0)
		res := physical.NewCTEMap()
		res.Insert(o.CTEPrivate().ID, physical.CTEProducer, child.ProducerProps())
		return res.Combine(child.CTEs)

	case opt.CTEConsumerOp:
		res := physical.NewCTEMap()
		res.Insert(o.CTEPrivate().ID, physical.CTEConsumer, nil)
		return res

	case opt.ScanOp, opt.ConstTableOp:
		return physical.NewCTEMap()
	}
	res := physical.NewCTEMap()
	for i, n := 0, memo.RelationalChildCount(h); i < n; i++ {
		res = res.Combine(h.ChildProvided(i).CTEs)
	}
	return res
}

// WithCTEProducerProps returns the properties delivered by a CTE consumer,
// given the properties derived for it and the CTE requirement it is
// optimized for. A consumer delivers the distribution, order and
// rewindability of its producer's plan, which the requirement carries once
// the producer has been optimized. Other operators are returned unchanged.
func WithCTEProducerProps(
	h memo.ExprHandle, provided *physical.Provided, required *physical.CTEReq,
) *physical.Provided {
	o := h.Operator()
	if o.Op() != opt.CTEConsumerOp {
		return provided
	}
	id := o.CTEPrivate().ID
	e, ok := required.Get(id)
	if !ok || e.Type != physical.CTEConsumer || e.ProducerProps == nil {
		return provided
	}
	return provided.CopyCTEProducerProps(e.ProducerProps, id)
}
