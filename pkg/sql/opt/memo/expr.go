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
	"github.com/cockroachdb/physprops/pkg/sql/opt/props"
	"github.com/cockroachdb/physprops/pkg/sql/opt/props/physical"
	"github.com/cockroachdb/redact"
)

// ExprHandle gives the property code access to an expression being
// optimized: its operator, its logical properties and those of its
// children, and the physical properties its children's chosen plans
// deliver. The search engine implements it over its own data structures;
// Expr is a standalone implementation.
type ExprHandle interface {
	// Operator returns the physical operator of the expression.
	Operator() *Operator

	// ChildCount returns the number of children, relational and scalar.
	ChildCount() int

	// IsScalarChild returns true if the i-th child is a scalar expression.
	IsScalarChild(i int) bool

	// Relational returns the logical properties of the expression.
	Relational() *props.Relational

	// ChildRelational returns the logical properties of a relational child.
	ChildRelational(i int) *props.Relational

	// ChildScalar returns the logical properties of a scalar child.
	ChildScalar(i int) *props.Scalar

	// Provided returns the physical properties delivered by the plan chosen
	// for the expression, or nil if they are not derived yet.
	Provided() *physical.Provided

	// ChildProvided returns the physical properties delivered by the plan
	// chosen for a relational child.
	ChildProvided(i int) *physical.Provided
}

// RelationalChildCount returns the number of relational children of h.
// Relational children always precede scalar children.
func RelationalChildCount(h ExprHandle) int {
	n := 0
	for i, cnt := 0, h.ChildCount(); i < cnt && !h.IsScalarChild(i); i++ {
		n++
	}
	return n
}

// ScalarChildIdx returns the index of the first scalar child of h, or
// NoScalarChild.
func ScalarChildIdx(h ExprHandle) int {
	for i, cnt := 0, h.ChildCount(); i < cnt; i++ {
		if h.IsScalarChild(i) {
			return i
		}
	}
	return NoScalarChild
}

// Expr is a node of an expression tree that carries its own properties.
type Expr struct {
	op       *Operator
	rel      *props.Relational
	scalar   *props.Scalar
	provided *physical.Provided
	children []*Expr
}

var _ ExprHandle = &Expr{}

// NewRelExpr returns a relational expression.
func NewRelExpr(op *Operator, rel *props.Relational, children ...*Expr) *Expr {
	seenScalar := false
	for i, c := range children {
		if c.IsScalar() {
			seenScalar = true
		} else if seenScalar {
			panic(errors.AssertionFailedf("relational child %d follows a scalar child", redact.Safe(i)))
		}
	}
	return &Expr{op: op, rel: rel, children: children}
}

// NewScalarExpr returns a scalar expression with the given properties.
func NewScalarExpr(scalar *props.Scalar) *Expr {
	return &Expr{scalar: scalar}
}

// IsScalar returns true if e is a scalar expression.
func (e *Expr) IsScalar() bool {
	return e.op == nil
}

// SetProvided records the physical properties delivered by the plan chosen
// for e.
func (e *Expr) SetProvided(p *physical.Provided) {
	e.provided = p
}

// Child returns the i-th child of e.
func (e *Expr) Child(i int) *Expr {
	return e.children[i]
}

// Operator is part of the ExprHandle interface.
func (e *Expr) Operator() *Operator {
	return e.op
}

// ChildCount is part of the ExprHandle interface.
func (e *Expr) ChildCount() int {
	return len(e.children)
}

// IsScalarChild is part of the ExprHandle interface.
func (e *Expr) IsScalarChild(i int) bool {
	return e.children[i].IsScalar()
}

// Relational is part of the ExprHandle interface.
func (e *Expr) Relational() *props.Relational {
	return e.rel
}

// ChildRelational is part of the ExprHandle interface.
func (e *Expr) ChildRelational(i int) *props.Relational {
	c := e.children[i]
	if c.IsScalar() {
		panic(errors.AssertionFailedf("child %d of %s is not relational", redact.Safe(i), e.op))
	}
	return c.rel
}

// ChildScalar is part of the ExprHandle interface.
func (e *Expr) ChildScalar(i int) *props.Scalar {
	c := e.children[i]
	if !c.IsScalar() {
		panic(errors.AssertionFailedf("child %d of %s is not scalar", redact.Safe(i), e.op))
	}
	return c.scalar
}

// Provided is part of the ExprHandle interface.
func (e *Expr) Provided() *physical.Provided {
	return e.provided
}

// ChildProvided is part of the ExprHandle interface.
func (e *Expr) ChildProvided(i int) *physical.Provided {
	p := e.children[i].provided
	if p == nil {
		panic(errors.AssertionFailedf("properties of child %d of %s are not derived", redact.Safe(i), e.op))
	}
	return p
}
