// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package xform drives the physical property protocol. For every child of an
// expression being optimized it computes the full set of physical properties
// to require under one of the operator's optimization requests, derives the
// properties a chosen plan delivers, and decides which enforcers are needed
// to make a plan meet a requirement.
package xform

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/physprops/pkg/sql/opt"
	"github.com/cockroachdb/physprops/pkg/sql/opt/distribution"
	"github.com/cockroachdb/physprops/pkg/sql/opt/memo"
	"github.com/cockroachdb/physprops/pkg/sql/opt/optconfig"
	"github.com/cockroachdb/physprops/pkg/sql/opt/ordering"
	"github.com/cockroachdb/physprops/pkg/sql/opt/props/physical"
	"github.com/cockroachdb/physprops/pkg/util/buildutil"
	"github.com/cockroachdb/physprops/pkg/util/log"
	"github.com/cockroachdb/redact"
)

// ChildRequired returns the physical properties required of the given
// relational child of h under the reqIdx-th optimization request of its
// operator. The parent requirement is the one h is being optimized for, and
// siblings holds the properties delivered by the plans chosen for the
// children optimized before this one, in optimization order.
//
// Columns and CTEs do not depend on the request number, so they are computed
// before the request is looked up. The remaining properties are computed from
// their own sub-request.
func ChildRequired(
	h memo.ExprHandle,
	parent *physical.Required,
	childIdx int,
	siblings []*physical.Provided,
	reqIdx int,
	flags optconfig.TraceFlags,
) *physical.Required {
	if h.IsScalarChild(childIdx) {
		panic(errors.AssertionFailedf("cannot require physical properties of scalar child %d of %s",
			redact.Safe(childIdx), h.Operator()))
	}
	r := &memo.ChildRequest{Parent: h, ChildIdx: childIdx, Siblings: siblings, Flags: flags}

	res := &physical.Required{}
	res.Cols = ChildRequiredCols(h, parent.Cols, childIdx)
	res.CTE = cteChildRequired(r, parent.CTE)

	r.Request = h.Operator().Requests().Lookup(reqIdx)
	res.Order = physical.EnfdOrder{Order: ordering.BuildChildRequired(r, parent.Order.Order)}
	res.Dist = physical.EnfdDistribution{
		Dist:     distribution.BuildChildRequired(r, parent.Dist.Dist),
		Matching: distribution.ChildMatching(r),
	}
	res.Rewind = physical.EnfdRewind{Rewind: rewindChildRequired(r, parent.Rewind.Rewind)}
	res.PartProp = partPropChildRequired(r, parent.PartProp)

	if buildutil.CrdbTestBuild {
		res.Verify()
	}
	return res
}

// ChildRequiredE is like ChildRequired, but returns assertion failures and
// unsupported plan alternatives as errors.
func ChildRequiredE(
	ctx context.Context,
	h memo.ExprHandle,
	parent *physical.Required,
	childIdx int,
	siblings []*physical.Provided,
	reqIdx int,
	flags optconfig.TraceFlags,
) (res *physical.Required, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = catch(ctx, h, r)
		}
	}()
	return ChildRequired(h, parent, childIdx, siblings, reqIdx, flags), nil
}

// Derive returns the physical properties delivered by the plan chosen for
// h. The properties delivered by the plans of its children must be set.
func Derive(h memo.ExprHandle) *physical.Provided {
	for i, n := 0, memo.RelationalChildCount(h); i < n; i++ {
		if h.ChildProvided(i) == nil {
			panic(errors.AssertionFailedf("%s child %d has no provided properties",
				h.Operator(), redact.Safe(i)))
		}
	}
	return &physical.Provided{
		Dist:      distribution.BuildProvided(h),
		Order:     ordering.BuildProvided(h),
		Rewind:    deriveRewind(h),
		PartIndex: derivePartIndex(h),
		CTEs:      deriveCTEs(h),
	}
}

// DeriveE is like Derive, but returns assertion failures as errors.
func DeriveE(ctx context.Context, h memo.ExprHandle) (res *physical.Provided, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = catch(ctx, h, r)
		}
	}()
	return Derive(h), nil
}

// Enforcements holds the enforcement decision of each physical property.
type Enforcements struct {
	Order    physical.EnforceType
	Dist     physical.EnforceType
	Rewind   physical.EnforceType
	PartProp physical.EnforceType
}

// Prohibited returns true if the plan must be discarded.
func (e Enforcements) Prohibited() bool {
	return e.Order == physical.EnforceProhibited ||
		e.Dist == physical.EnforceProhibited ||
		e.Rewind == physical.EnforceProhibited ||
		e.PartProp == physical.EnforceProhibited
}

// Unnecessary returns true if the plan meets the requirement as is.
func (e Enforcements) Unnecessary() bool {
	return e.Order == physical.EnforceUnnecessary &&
		e.Dist == physical.EnforceUnnecessary &&
		e.Rewind == physical.EnforceUnnecessary &&
		e.PartProp == physical.EnforceUnnecessary
}

// SafeFormat implements the redact.SafeFormatter interface.
func (e Enforcements) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("order=%s dist=%s rewind=%s partprop=%s", e.Order, e.Dist, e.Rewind, e.PartProp)
}

func (e Enforcements) String() string { return redact.StringWithoutMarkers(e) }

// Enforcement decides, for each property, whether an enforcer is needed on
// top of the plan chosen for h to meet the requirement. The provided
// properties of h must be set.
func Enforcement(h memo.ExprHandle, required *physical.Required) Enforcements {
	delivered := h.Provided()
	if delivered == nil {
		panic(errors.AssertionFailedf("%s has no provided properties", h.Operator()))
	}
	var res Enforcements
	if h.Relational().AtMostOneRow() {
		// Any order is provided by at most one row.
		res.Order = physical.EnforceUnnecessary
	} else {
		res.Order = ordering.Enforcement(h, required.Order)
	}
	res.Dist = distribution.Enforcement(h, required.Dist)
	res.Rewind = rewindEnforcement(h, required.Rewind)
	res.PartProp = partPropEnforcement(h, required.PartProp)
	return res
}

// BuildEnforcers returns the enforcers to place on top of the plan chosen for
// h so that it meets the requirement, listed from the bottom up: partition
// selectors, then a sort, then a motion, then a spool. It returns false if
// the plan must be pruned, either because a property prohibits it or because
// a required enforcer is disabled by the trace flags.
func BuildEnforcers(
	h memo.ExprHandle, required *physical.Required, flags optconfig.TraceFlags,
) ([]physical.Enforcer, bool) {
	e := Enforcement(h, required)
	if e.Prohibited() {
		return nil, false
	}

	delivered := *h.Provided()
	ctx := &physical.EnforceContext{
		Flags:      flags,
		Required:   required,
		Relational: h.Relational(),
		Delivered:  &delivered,
	}
	var res []physical.Enforcer
	var ok bool
	if res, ok = appendEnforcers(e.PartProp, required.PartProp, ctx, res); !ok {
		return nil, false
	}
	if res, ok = appendEnforcers(e.Order, required.Order.Order, ctx, res); !ok {
		return nil, false
	}
	if e.Order.Adds() {
		// A motion above the sort can preserve the order it establishes.
		delivered.Order = required.Order.Order
	}
	if res, ok = appendEnforcers(e.Dist, required.Dist.Dist, ctx, res); !ok {
		return nil, false
	}
	if e.Dist.Adds() {
		// A motion destroys rewindability and adds a motion hazard.
		delivered.Rewind = physical.MotionRewind
	}
	if res, ok = appendEnforcers(e.Rewind, required.Rewind.Rewind, ctx, res); !ok {
		return nil, false
	}
	return res, true
}

// BuildEnforcersE is like BuildEnforcers, but returns assertion failures as
// errors.
func BuildEnforcersE(
	ctx context.Context, h memo.ExprHandle, required *physical.Required, flags optconfig.TraceFlags,
) (res []physical.Enforcer, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = catch(ctx, h, r)
		}
	}()
	res, ok = BuildEnforcers(h, required, flags)
	return res, ok, nil
}

type enforceable interface {
	AppendEnforcers(ctx *physical.EnforceContext, enforcers []physical.Enforcer) []physical.Enforcer
}

// appendEnforcers appends the enforcers of a single property. It returns
// false if the property must be enforced but no enforcer could be added.
func appendEnforcers(
	t physical.EnforceType, spec enforceable, ctx *physical.EnforceContext, res []physical.Enforcer,
) ([]physical.Enforcer, bool) {
	if !t.Adds() {
		return res, true
	}
	n := len(res)
	res = spec.AppendEnforcers(ctx, res)
	if len(res) == n && t == physical.EnforceRequired {
		return res, false
	}
	return res, true
}

// catch converts a value recovered from a panic into an error. Unsupported
// plan alternatives are expected during search and only logged verbosely.
func catch(ctx context.Context, h memo.ExprHandle, r interface{}) error {
	err := opt.CatchOptimizerError(r)
	if opt.IsUnsupportedError(err) {
		log.VEventf(ctx, 2, "%s: unsupported plan alternative: %v", h.Operator(), err)
	}
	return err
}
