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
	"github.com/cockroachdb/physprops/pkg/util"
	"github.com/cockroachdb/redact"
)

// DistributionType identifies the kind of a distribution spec.
type DistributionType uint8

const (
	// AnyDistribution imposes no requirement. It is only ever required.
	AnyDistribution DistributionType = iota
	// SingletonDistribution pins rows to one host.
	SingletonDistribution
	// RandomDistribution spreads rows across segments with no key.
	RandomDistribution
	// HashedDistribution spreads rows across segments by hashing a key.
	HashedDistribution
	// ReplicatedDistribution keeps a full copy of the rows on every segment.
	ReplicatedDistribution
	// NonSingletonDistribution requires rows spread over more than one
	// segment. It is only ever required.
	NonSingletonDistribution
	// UniversalDistribution is delivered identically everywhere.
	UniversalDistribution
)

var distributionTypeNames = [...]string{
	AnyDistribution:          "ANY",
	SingletonDistribution:    "SINGLETON",
	RandomDistribution:       "RANDOM",
	HashedDistribution:       "HASHED",
	ReplicatedDistribution:   "REPLICATED",
	NonSingletonDistribution: "NON-SINGLETON",
	UniversalDistribution:    "UNIVERSAL",
}

func (t DistributionType) String() string {
	return distributionTypeNames[t]
}

// SafeValue implements the redact.SafeValue interface.
func (t DistributionType) SafeValue() {}

// Distribution describes how the rows of a relation are spread across
// parallel execution segments.
type Distribution interface {
	// Type returns the kind of the spec.
	Type() DistributionType

	// Satisfies returns true if rows delivered with this distribution meet
	// the required distribution. It is reflexive but not symmetric.
	Satisfies(required Distribution) bool

	// Derivable returns true if an operator can deliver this distribution,
	// as opposed to only requesting it.
	Derivable() bool

	// Equals returns true if the two specs are structurally equal.
	Equals(other Distribution) bool

	// Hash returns a hash consistent with Equals.
	Hash() uint32

	// AppendEnforcers appends the motion that converts the delivered
	// distribution into this one. It appends nothing when the motion is
	// disabled or impossible, in which case the requirement cannot be
	// enforced for the plan being considered.
	AppendEnforcers(ctx *EnforceContext, enforcers []Enforcer) []Enforcer

	redact.SafeFormatter
	String() string
}

// SegmentType selects the host a singleton distribution is pinned to.
type SegmentType uint8

const (
	// MasterSegment is the coordinator.
	MasterSegment SegmentType = iota
	// AnySegment is some single segment.
	AnySegment
)

// ReplicatedKind distinguishes full replicas from replicas whose contents
// may have diverged (for example after a limit without an ordering).
type ReplicatedKind uint8

const (
	// StrictReplicated copies are identical on every segment.
	StrictReplicated ReplicatedKind = iota
	// TaintedReplicated copies exist on every segment but may differ.
	TaintedReplicated
)

// AnyDist imposes no distribution requirement.
type AnyDist struct {
	// AllowOuterRefs is set when the requirement is made of a subtree that
	// references columns of an enclosing operator.
	AllowOuterRefs bool
	// Requester is the operator making the request, for diagnostics.
	Requester opt.Operator
}

// SingletonDist pins rows to a single host.
type SingletonDist struct {
	Segment SegmentType
}

// RandomDist spreads rows across segments with no key.
type RandomDist struct{}

// HashedDist spreads rows across segments by hashing Exprs.
type HashedDist struct {
	Exprs []opt.ScalarExpr
	// NullsColocated is set when rows whose key is NULL are guaranteed to be
	// on the same segment.
	NullsColocated bool
	// Equiv is an equivalent hashed spec over different expressions (for
	// example the other side of an equi-join), or nil.
	Equiv *HashedDist
}

// ReplicatedDist keeps a full copy of the rows on every segment.
type ReplicatedDist struct {
	Kind ReplicatedKind
	// AllowOuterRefs is set when the requirement is made of a subtree that
	// references columns of an enclosing operator.
	AllowOuterRefs bool
}

// NonSingletonDist requires rows spread over more than one segment.
type NonSingletonDist struct {
	AllowReplicated bool
}

// UniversalDist is delivered identically everywhere.
type UniversalDist struct{}

var (
	_ Distribution = &AnyDist{}
	_ Distribution = &SingletonDist{}
	_ Distribution = &RandomDist{}
	_ Distribution = &HashedDist{}
	_ Distribution = &ReplicatedDist{}
	_ Distribution = &NonSingletonDist{}
	_ Distribution = &UniversalDist{}
)

// Commonly used specs. They are immutable and may be shared.
var (
	MasterSingleton   = &SingletonDist{Segment: MasterSegment}
	SegmentSingleton  = &SingletonDist{Segment: AnySegment}
	Random            = &RandomDist{}
	Universal         = &UniversalDist{}
	StrictReplication = &ReplicatedDist{Kind: StrictReplicated}
	NonSingleton      = &NonSingletonDist{AllowReplicated: true}
)

// NewHashedDist returns a hashed spec over exprs.
func NewHashedDist(exprs []opt.ScalarExpr, nullsColocated bool) *HashedDist {
	if len(exprs) == 0 {
		panic(errors.AssertionFailedf("hashed distribution requires at least one expression"))
	}
	return &HashedDist{Exprs: exprs, NullsColocated: nullsColocated}
}

// WithEquiv returns a copy of h with equiv attached as its equivalent spec.
func (h *HashedDist) WithEquiv(equiv *HashedDist) *HashedDist {
	res := *h
	res.Equiv = equiv
	return &res
}

// Type is part of the Distribution interface.
func (*AnyDist) Type() DistributionType { return AnyDistribution }

// Type is part of the Distribution interface.
func (*SingletonDist) Type() DistributionType { return SingletonDistribution }

// Type is part of the Distribution interface.
func (*RandomDist) Type() DistributionType { return RandomDistribution }

// Type is part of the Distribution interface.
func (*HashedDist) Type() DistributionType { return HashedDistribution }

// Type is part of the Distribution interface.
func (*ReplicatedDist) Type() DistributionType { return ReplicatedDistribution }

// Type is part of the Distribution interface.
func (*NonSingletonDist) Type() DistributionType { return NonSingletonDistribution }

// Type is part of the Distribution interface.
func (*UniversalDist) Type() DistributionType { return UniversalDistribution }

// Derivable is part of the Distribution interface.
func (*AnyDist) Derivable() bool { return false }

// Derivable is part of the Distribution interface.
func (*SingletonDist) Derivable() bool { return true }

// Derivable is part of the Distribution interface.
func (*RandomDist) Derivable() bool { return true }

// Derivable is part of the Distribution interface.
func (*HashedDist) Derivable() bool { return true }

// Derivable is part of the Distribution interface.
func (*ReplicatedDist) Derivable() bool { return true }

// Derivable is part of the Distribution interface.
func (*NonSingletonDist) Derivable() bool { return false }

// Derivable is part of the Distribution interface.
func (*UniversalDist) Derivable() bool { return true }

// Satisfies is part of the Distribution interface.
func (a *AnyDist) Satisfies(required Distribution) bool {
	return required.Type() == AnyDistribution
}

// Satisfies is part of the Distribution interface.
func (s *SingletonDist) Satisfies(required Distribution) bool {
	switch r := required.(type) {
	case *AnyDist:
		return true
	case *SingletonDist:
		return s.Segment == r.Segment
	}
	return false
}

// Satisfies is part of the Distribution interface.
func (*RandomDist) Satisfies(required Distribution) bool {
	switch required.Type() {
	case AnyDistribution, RandomDistribution, NonSingletonDistribution:
		return true
	}
	return false
}

// Satisfies is part of the Distribution interface.
func (h *HashedDist) Satisfies(required Distribution) bool {
	switch r := required.(type) {
	case *AnyDist, *NonSingletonDist:
		return true
	case *HashedDist:
		if h.Equals(r) {
			return true
		}
		if h.Equiv != nil && h.Equiv.Satisfies(r) {
			return true
		}
		return h.MatchesSubset(r)
	}
	return false
}

// MatchesSubset returns true if every expression of h appears in required,
// and h colocates NULLs whenever required does. Rows that agree on the
// required key then agree on h's key too, so they are on the same segment.
func (h *HashedDist) MatchesSubset(required *HashedDist) bool {
	if required.NullsColocated && !h.NullsColocated {
		return false
	}
	for _, e := range h.Exprs {
		if !opt.ScalarListContains(required.Exprs, e) {
			return false
		}
	}
	return true
}

// Satisfies is part of the Distribution interface.
func (rep *ReplicatedDist) Satisfies(required Distribution) bool {
	switch r := required.(type) {
	case *AnyDist:
		return true
	case *ReplicatedDist:
		return rep.Kind == StrictReplicated || r.Kind == TaintedReplicated
	case *NonSingletonDist:
		return r.AllowReplicated
	case *SingletonDist:
		// Any one strict replica is a complete copy, but it never lives on
		// the coordinator.
		return rep.Kind == StrictReplicated && r.Segment == AnySegment
	}
	return false
}

// Satisfies is part of the Distribution interface.
func (n *NonSingletonDist) Satisfies(required Distribution) bool {
	switch r := required.(type) {
	case *AnyDist:
		return true
	case *NonSingletonDist:
		return !n.AllowReplicated || r.AllowReplicated
	}
	return false
}

// Satisfies is part of the Distribution interface.
func (*UniversalDist) Satisfies(required Distribution) bool {
	return required.Type() != NonSingletonDistribution
}

// Equals is part of the Distribution interface.
func (a *AnyDist) Equals(other Distribution) bool {
	o, ok := other.(*AnyDist)
	return ok && a.AllowOuterRefs == o.AllowOuterRefs
}

// Equals is part of the Distribution interface.
func (s *SingletonDist) Equals(other Distribution) bool {
	o, ok := other.(*SingletonDist)
	return ok && s.Segment == o.Segment
}

// Equals is part of the Distribution interface.
func (*RandomDist) Equals(other Distribution) bool {
	return other.Type() == RandomDistribution
}

// Equals is part of the Distribution interface.
func (h *HashedDist) Equals(other Distribution) bool {
	o, ok := other.(*HashedDist)
	if !ok || h.NullsColocated != o.NullsColocated || !opt.ScalarListsEqual(h.Exprs, o.Exprs) {
		return false
	}
	if h.Equiv == nil || o.Equiv == nil {
		return h.Equiv == nil && o.Equiv == nil
	}
	return h.Equiv.Equals(o.Equiv)
}

// Equals is part of the Distribution interface.
func (rep *ReplicatedDist) Equals(other Distribution) bool {
	o, ok := other.(*ReplicatedDist)
	return ok && rep.Kind == o.Kind && rep.AllowOuterRefs == o.AllowOuterRefs
}

// Equals is part of the Distribution interface.
func (n *NonSingletonDist) Equals(other Distribution) bool {
	o, ok := other.(*NonSingletonDist)
	return ok && n.AllowReplicated == o.AllowReplicated
}

// Equals is part of the Distribution interface.
func (*UniversalDist) Equals(other Distribution) bool {
	return other.Type() == UniversalDistribution
}

func hashDist(t DistributionType, extra ...uint32) uint32 {
	h := util.MakeHasher()
	h.AddUint32(uint32(t))
	for _, e := range extra {
		h.AddUint32(e)
	}
	return h.Sum32()
}

func boolToUint32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// Hash is part of the Distribution interface.
func (a *AnyDist) Hash() uint32 {
	return hashDist(AnyDistribution, boolToUint32(a.AllowOuterRefs))
}

// Hash is part of the Distribution interface.
func (s *SingletonDist) Hash() uint32 { return hashDist(SingletonDistribution, uint32(s.Segment)) }

// Hash is part of the Distribution interface.
func (*RandomDist) Hash() uint32 { return hashDist(RandomDistribution) }

// Hash is part of the Distribution interface.
func (h *HashedDist) Hash() uint32 {
	hs := util.MakeHasher()
	hs.AddUint32(uint32(HashedDistribution))
	hs.AddBool(h.NullsColocated)
	for _, e := range h.Exprs {
		opt.HashScalar(&hs, e)
	}
	return hs.Sum32()
}

// Hash is part of the Distribution interface.
func (rep *ReplicatedDist) Hash() uint32 {
	return hashDist(ReplicatedDistribution, uint32(rep.Kind), boolToUint32(rep.AllowOuterRefs))
}

// Hash is part of the Distribution interface.
func (n *NonSingletonDist) Hash() uint32 {
	return hashDist(NonSingletonDistribution, boolToUint32(n.AllowReplicated))
}

// Hash is part of the Distribution interface.
func (*UniversalDist) Hash() uint32 { return hashDist(UniversalDistribution) }

// SafeFormat implements the redact.SafeFormatter interface.
func (a *AnyDist) SafeFormat(w redact.SafePrinter, _ rune) {
	w.SafeString("ANY")
	if a.AllowOuterRefs {
		w.SafeString(" (outer refs)")
	}
	if a.Requester != opt.UnknownOp {
		w.Printf(" requested by %s", redact.SafeString(a.Requester.String()))
	}
}

// SafeFormat implements the redact.SafeFormatter interface.
func (s *SingletonDist) SafeFormat(w redact.SafePrinter, _ rune) {
	if s.Segment == MasterSegment {
		w.SafeString("SINGLETON (master)")
	} else {
		w.SafeString("SINGLETON (segment)")
	}
}

// SafeFormat implements the redact.SafeFormatter interface.
func (*RandomDist) SafeFormat(w redact.SafePrinter, _ rune) { w.SafeString("RANDOM") }

// SafeFormat implements the redact.SafeFormatter interface.
func (h *HashedDist) SafeFormat(w redact.SafePrinter, _ rune) {
	w.SafeString("HASHED: [")
	for i, e := range h.Exprs {
		if i > 0 {
			w.SafeString(", ")
		}
		w.Print(redact.SafeString(e.String()))
	}
	w.SafeString("]")
	if h.NullsColocated {
		w.SafeString(" nulls colocated")
	}
	if h.Equiv != nil {
		w.Printf(" equiv %v", h.Equiv)
	}
}

// SafeFormat implements the redact.SafeFormatter interface.
func (rep *ReplicatedDist) SafeFormat(w redact.SafePrinter, _ rune) {
	if rep.Kind == StrictReplicated {
		w.SafeString("REPLICATED (strict)")
	} else {
		w.SafeString("REPLICATED (tainted)")
	}
}

// SafeFormat implements the redact.SafeFormatter interface.
func (n *NonSingletonDist) SafeFormat(w redact.SafePrinter, _ rune) {
	w.SafeString("NON-SINGLETON")
	if !n.AllowReplicated {
		w.SafeString(" (no replicated)")
	}
}

// SafeFormat implements the redact.SafeFormatter interface.
func (*UniversalDist) SafeFormat(w redact.SafePrinter, _ rune) { w.SafeString("UNIVERSAL") }

func (a *AnyDist) String() string          { return redact.StringWithoutMarkers(a) }
func (s *SingletonDist) String() string    { return redact.StringWithoutMarkers(s) }
func (r *RandomDist) String() string       { return redact.StringWithoutMarkers(r) }
func (h *HashedDist) String() string       { return redact.StringWithoutMarkers(h) }
func (rep *ReplicatedDist) String() string { return redact.StringWithoutMarkers(rep) }
func (n *NonSingletonDist) String() string { return redact.StringWithoutMarkers(n) }
func (u *UniversalDist) String() string    { return redact.StringWithoutMarkers(u) }

// IsSingleton returns true if d is a singleton spec.
func IsSingleton(d Distribution) bool {
	return d.Type() == SingletonDistribution
}

// IsReplicatedOrUniversal returns true if d has a complete copy of the rows
// on every segment.
func IsReplicatedOrUniversal(d Distribution) bool {
	t := d.Type()
	return t == ReplicatedDistribution || t == UniversalDistribution
}
