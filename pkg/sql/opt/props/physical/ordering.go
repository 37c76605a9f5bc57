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
	"github.com/cockroachdb/physprops/pkg/util"
	"github.com/cockroachdb/redact"
)

// OrderColumn is one column of a sort order.
type OrderColumn struct {
	Col        opt.ColumnID
	Descending bool
	NullsFirst bool
}

// OrderSpec is a sort order over a list of columns. The empty spec imposes
// no order.
type OrderSpec struct {
	Columns []OrderColumn
}

// MakeOrderSpec returns an ascending order over the given columns.
func MakeOrderSpec(cols ...opt.ColumnID) OrderSpec {
	res := OrderSpec{Columns: make([]OrderColumn, len(cols))}
	for i, c := range cols {
		res.Columns[i] = OrderColumn{Col: c}
	}
	return res
}

// Empty returns true if the spec imposes no order.
func (o OrderSpec) Empty() bool {
	return len(o.Columns) == 0
}

// Satisfies returns true if rows sorted by o are also sorted by required,
// that is if required is a prefix of o.
func (o OrderSpec) Satisfies(required OrderSpec) bool {
	if len(required.Columns) > len(o.Columns) {
		return false
	}
	for i := range required.Columns {
		if o.Columns[i] != required.Columns[i] {
			return false
		}
	}
	return true
}

// Equals returns true if the two specs order by the same columns in the same
// directions.
func (o OrderSpec) Equals(other OrderSpec) bool {
	return len(o.Columns) == len(other.Columns) && o.Satisfies(other)
}

// ColSet returns the set of sort columns.
func (o OrderSpec) ColSet() opt.ColSet {
	cols := make([]opt.ColumnID, len(o.Columns))
	for i := range o.Columns {
		cols[i] = o.Columns[i].Col
	}
	return opt.MakeColSet(cols...)
}

// Hash returns a hash consistent with Equals.
func (o OrderSpec) Hash() uint32 {
	h := util.MakeHasher()
	for _, c := range o.Columns {
		h.AddUint32(uint32(c.Col))
		h.AddBool(c.Descending)
		h.AddBool(c.NullsFirst)
	}
	return h.Sum32()
}

// AppendEnforcers appends a sort on o.
func (o OrderSpec) AppendEnforcers(ctx *EnforceContext, enforcers []Enforcer) []Enforcer {
	if o.Empty() {
		return enforcers
	}
	return append(enforcers, Enforcer{Op: opt.SortOp, Order: o})
}

// SafeFormat implements the redact.SafeFormatter interface.
func (o OrderSpec) SafeFormat(w redact.SafePrinter, _ rune) {
	if o.Empty() {
		w.SafeString("<>")
		return
	}
	w.SafeString("<")
	for i, c := range o.Columns {
		if i > 0 {
			w.SafeString(",")
		}
		if c.Descending {
			w.SafeRune('-')
		} else {
			w.SafeRune('+')
		}
		w.Print(redact.Safe(c.Col))
		if c.NullsFirst {
			w.SafeString(" nulls first")
		}
	}
	w.SafeString(">")
}

func (o OrderSpec) String() string { return redact.StringWithoutMarkers(o) }

// OrderMatching is the mode used to compare a delivered order with a
// required one.
type OrderMatching uint8

const (
	// OrderSatisfy accepts any order that has the required order as a prefix.
	OrderSatisfy OrderMatching = iota
)

// EnfdOrder is a required order together with its matching mode.
type EnfdOrder struct {
	Order    OrderSpec
	Matching OrderMatching
}

// Compatible returns true if delivered meets the requirement.
func (e EnfdOrder) Compatible(delivered OrderSpec) bool {
	return delivered.Satisfies(e.Order)
}
