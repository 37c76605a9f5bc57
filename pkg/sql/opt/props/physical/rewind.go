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
	"github.com/cockroachdb/physprops/pkg/sql/opt"
	"github.com/cockroachdb/redact"
)

// RewindKind describes whether a subtree can be re-executed cheaply.
type RewindKind uint8

const (
	// NotRewindable subtrees must be recomputed to be scanned again.
	NotRewindable RewindKind = iota
	// Rewindable subtrees can be rescanned from the start.
	Rewindable
	// MarkRestore subtrees can be rescanned from a marked position.
	MarkRestore
)

// MotionHazard records whether a streaming motion sits below a subtree. A
// rescan of such a subtree above another motion can deadlock unless the
// rows are materialized eagerly.
type MotionHazard uint8

const (
	// NoMotionHazard means no streaming motion sits below the subtree.
	NoMotionHazard MotionHazard = iota
	// HasMotionHazard means a streaming motion sits below the subtree.
	HasMotionHazard
)

// RewindSpec is the rewindability of a subtree.
type RewindSpec struct {
	Kind   RewindKind
	Hazard MotionHazard
}

// Common rewind specs.
var (
	NoRewind       = RewindSpec{Kind: NotRewindable}
	RewindableSpec = RewindSpec{Kind: Rewindable}
	MotionRewind   = RewindSpec{Kind: NotRewindable, Hazard: HasMotionHazard}
)

// IsRescannable returns true if the subtree can be scanned again without
// being recomputed.
func (r RewindSpec) IsRescannable() bool {
	return r.Kind != NotRewindable
}

// Satisfies returns true if a subtree delivering r meets required. A
// requirement of NotRewindable is always met. Otherwise the delivered kind
// must be at least as strong as the required one, and a required motion
// hazard cannot be met by a subtree that carries one.
func (r RewindSpec) Satisfies(required RewindSpec) bool {
	if required.Kind == NotRewindable {
		return true
	}
	if r.Kind < required.Kind {
		return false
	}
	return required.Hazard == NoMotionHazard || r.Hazard == NoMotionHazard
}

// Equals returns true if the two specs are equal.
func (r RewindSpec) Equals(other RewindSpec) bool {
	return r == other
}

// Hash returns a hash consistent with Equals.
func (r RewindSpec) Hash() uint32 {
	return uint32(r.Kind)<<1 | uint32(r.Hazard)
}

// AppendEnforcers appends a spool, eager when a motion hazard must be
// broken: either the requirement carries one or the subtree delivers one.
func (r RewindSpec) AppendEnforcers(ctx *EnforceContext, enforcers []Enforcer) []Enforcer {
	if r.Kind == NotRewindable {
		return enforcers
	}
	eager := r.Hazard == HasMotionHazard
	if ctx.Delivered != nil && ctx.Delivered.Rewind.Hazard == HasMotionHazard {
		eager = true
	}
	return append(enforcers, Enforcer{Op: opt.SpoolOp, Eager: eager})
}

// SafeFormat implements the redact.SafeFormatter interface.
func (r RewindSpec) SafeFormat(w redact.SafePrinter, _ rune) {
	switch r.Kind {
	case NotRewindable:
		w.SafeString("NOT-REWINDABLE")
	case Rewindable:
		w.SafeString("REWINDABLE")
	case MarkRestore:
		w.SafeString("MARK-RESTORE")
	}
	if r.Hazard == HasMotionHazard {
		w.SafeString(" (motion hazard)")
	}
}

func (r RewindSpec) String() string { return redact.StringWithoutMarkers(r) }

// EnfdRewind is a required rewindability together with its matching mode.
// Rewindability is always matched by Satisfies.
type EnfdRewind struct {
	Rewind RewindSpec
}

// Compatible returns true if delivered meets the requirement.
func (e EnfdRewind) Compatible(delivered RewindSpec) bool {
	return delivered.Satisfies(e.Rewind)
}
