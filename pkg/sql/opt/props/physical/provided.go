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

// Provided are the physical properties delivered by a plan.
type Provided struct {
	Dist      Distribution
	Order     OrderSpec
	Rewind    RewindSpec
	PartIndex *PartIndexMap
	CTEs      *CTEMap
}

// ProducerProps returns the properties a CTE producer hands to its
// consumers: a copy of p without the CTE map.
func (p *Provided) ProducerProps() *Provided {
	res := *p
	res.CTEs = nil
	return &res
}

// CopyCTEProducerProps returns the properties of a consumer of CTE id whose
// producer delivered producer. The consumer takes the producer's
// distribution, order and rewindability.
func (p *Provided) CopyCTEProducerProps(producer *Provided, id opt.CTEID) *Provided {
	cm := NewCTEMap()
	cm.Insert(id, CTEConsumer, nil)
	return &Provided{
		Dist:      producer.Dist,
		Order:     producer.Order,
		Rewind:    producer.Rewind,
		PartIndex: p.PartIndex,
		CTEs:      cm,
	}
}

// Equals returns true if p and other deliver the same distribution, order,
// rewindability and partition index map.
func (p *Provided) Equals(other *Provided) bool {
	return p.Dist.Equals(other.Dist) &&
		p.Order.Equals(other.Order) &&
		p.Rewind.Equals(other.Rewind) &&
		p.PartIndex.Equals(other.PartIndex)
}

// SafeFormat implements the redact.SafeFormatter interface.
func (p *Provided) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("dist=%v order=%v rewind=%v", p.Dist, p.Order, p.Rewind)
	if p.PartIndex.Len() > 0 {
		w.Printf(" partindex=%v", p.PartIndex)
	}
	if p.CTEs.Len() > 0 {
		w.Printf(" ctes=%v", p.CTEs)
	}
}

func (p *Provided) String() string { return redact.StringWithoutMarkers(p) }
