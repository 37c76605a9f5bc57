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
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/physprops/pkg/sql/opt"
	"github.com/cockroachdb/physprops/pkg/sql/opt/optconfig"
	"github.com/cockroachdb/physprops/pkg/sql/opt/props"
	"github.com/cockroachdb/redact"
)

// EnforceType is the outcome of comparing a delivered property with a
// required one.
type EnforceType uint8

const (
	// EnforceUnnecessary means the delivered property meets the requirement.
	EnforceUnnecessary EnforceType = iota
	// EnforceRequired means an enforcer must be added.
	EnforceRequired
	// EnforceOptional means an enforcer may be added, producing a second plan
	// alternative.
	EnforceOptional
	// EnforceProhibited means the plan alternative is invalid and must be
	// discarded.
	EnforceProhibited
)

var enforceTypeNames = [...]string{
	EnforceUnnecessary: "unnecessary",
	EnforceRequired:    "required",
	EnforceOptional:    "optional",
	EnforceProhibited:  "prohibited",
}

func (t EnforceType) String() string { return enforceTypeNames[t] }

// SafeValue implements the redact.SafeValue interface.
func (EnforceType) SafeValue() {}

// Adds returns true if an enforcer should be added for t.
func (t EnforceType) Adds() bool {
	return t == EnforceRequired || t == EnforceOptional
}

// Enforcer is an operator to be placed on top of a subtree to make it
// deliver a required property.
type Enforcer struct {
	Op opt.Operator
	// Dist is the target distribution of a motion.
	Dist Distribution
	// Order is the sort order of a sort, or the merge order of an order
	// preserving gather motion.
	Order OrderSpec
	// Eager is set on spools that must materialize their input before
	// returning the first row.
	Eager bool
	// ScanID and Filter describe a partition selector.
	ScanID opt.ScanID
	Filter opt.ScalarExpr
}

// SafeFormat implements the redact.SafeFormatter interface.
func (e Enforcer) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(e.Op.String()))
	switch {
	case opt.IsMotionOp(e.Op):
		if e.Dist != nil {
			w.Printf(" %v", e.Dist)
		}
		if !e.Order.Empty() {
			w.Printf(" merge %v", e.Order)
		}
	case e.Op == opt.SortOp:
		w.Printf(" %v", e.Order)
	case e.Op == opt.SpoolOp:
		if e.Eager {
			w.SafeString(" eager")
		}
	case e.Op == opt.PartitionSelectorOp:
		w.Printf(" scan=%d", e.ScanID)
		if e.Filter != nil {
			w.Printf(" filter=%s", redact.SafeString(e.Filter.String()))
		}
	}
}

func (e Enforcer) String() string { return redact.StringWithoutMarkers(e) }

// EnforceContext is passed to AppendEnforcers.
type EnforceContext struct {
	Flags optconfig.TraceFlags
	// Required is the full requirement being enforced.
	Required *Required
	// Relational are the logical properties of the subtree.
	Relational *props.Relational
	// Delivered are the properties the subtree's plan delivers.
	Delivered *Provided
}

func (ctx *EnforceContext) hasOuterRefs() bool {
	return ctx.Relational != nil && ctx.Relational.HasOuterRefs()
}

// AppendEnforcers is part of the Distribution interface. Any is never
// enforced.
func (a *AnyDist) AppendEnforcers(ctx *EnforceContext, enforcers []Enforcer) []Enforcer {
	panic(errors.AssertionFailedf("cannot enforce %v", a))
}

// AppendEnforcers is part of the Distribution interface. Universal is never
// required.
func (u *UniversalDist) AppendEnforcers(ctx *EnforceContext, enforcers []Enforcer) []Enforcer {
	panic(errors.AssertionFailedf("cannot enforce %v", u))
}

// AppendEnforcers is part of the Distribution interface. A singleton on the
// master is enforced by a gather motion, which keeps the delivered order
// when it also meets the required order. A singleton on a segment cannot be
// enforced.
func (s *SingletonDist) AppendEnforcers(ctx *EnforceContext, enforcers []Enforcer) []Enforcer {
	if ctx.Flags.DisableMotions || ctx.Flags.DisableGather {
		return enforcers
	}
	if s.Segment == AnySegment {
		return enforcers
	}
	e := Enforcer{Op: opt.GatherMotionOp, Dist: s}
	if ctx.Delivered != nil && ctx.Required != nil {
		delivered := ctx.Delivered.Order
		if !delivered.Empty() && delivered.Satisfies(ctx.Required.Order.Order) {
			e.Order = delivered
		}
	}
	return append(enforcers, e)
}

// AppendEnforcers is part of the Distribution interface.
func (*RandomDist) AppendEnforcers(ctx *EnforceContext, enforcers []Enforcer) []Enforcer {
	return appendRandomMotion(ctx, enforcers)
}

// AppendEnforcers is part of the Distribution interface. Non-singleton rows
// are produced by a random redistribution.
func (*NonSingletonDist) AppendEnforcers(ctx *EnforceContext, enforcers []Enforcer) []Enforcer {
	return appendRandomMotion(ctx, enforcers)
}

func appendRandomMotion(ctx *EnforceContext, enforcers []Enforcer) []Enforcer {
	if ctx.Flags.DisableMotions || ctx.Flags.DisableRandomMotion || ctx.hasOuterRefs() {
		return enforcers
	}
	return append(enforcers, Enforcer{Op: opt.RandomMotionOp, Dist: Random})
}

// AppendEnforcers is part of the Distribution interface.
func (h *HashedDist) AppendEnforcers(ctx *EnforceContext, enforcers []Enforcer) []Enforcer {
	if ctx.Flags.DisableMotions || ctx.Flags.DisableRedistribute || ctx.hasOuterRefs() {
		return enforcers
	}
	return append(enforcers, Enforcer{Op: opt.HashMotionOp, Dist: h})
}

// AppendEnforcers is part of the Distribution interface. Rows are broadcast
// to every segment, which delivers strict replicas.
func (rep *ReplicatedDist) AppendEnforcers(ctx *EnforceContext, enforcers []Enforcer) []Enforcer {
	if ctx.Flags.DisableMotions || ctx.Flags.DisableBroadcast {
		return enforcers
	}
	return append(enforcers, Enforcer{Op: opt.BroadcastMotionOp, Dist: StrictReplication})
}
