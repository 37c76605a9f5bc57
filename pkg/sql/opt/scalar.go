// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package opt

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/physprops/pkg/util"
)

// ScalarExpr is a scalar expression that appears inside a property spec,
// such as a hash distribution key or a partition filter. Scalar expressions
// are immutable and compared by shape, never by identity.
type ScalarExpr interface {
	// Op returns the scalar operator.
	Op() Operator

	// Cols returns the columns referenced by the expression.
	Cols() ColSet

	String() string
}

// Variable is a reference to a column.
type Variable struct {
	Col ColumnID

	// NotHashable is set when the column's type cannot be used as a hash
	// distribution key.
	NotHashable bool
}

// Const is a constant value. Values are kept in their textual form; the
// property code only needs to know whether a constant is NULL or zero.
type Const struct {
	Value string
	Null  bool
}

// NullTest is an "IS NULL" test of its input.
type NullTest struct {
	Input ScalarExpr
}

// Function is a function call or any other scalar operator over its
// arguments.
type Function struct {
	Name string
	Args []ScalarExpr
}

// Names of the functions the property code builds or looks into.
const (
	AndFunction = "and"
	EqFunction  = "eq"
)

var _ ScalarExpr = &Variable{}
var _ ScalarExpr = &Const{}
var _ ScalarExpr = &NullTest{}
var _ ScalarExpr = &Function{}

// Op is part of the ScalarExpr interface.
func (v *Variable) Op() Operator { return VariableOp }

// Op is part of the ScalarExpr interface.
func (c *Const) Op() Operator { return ConstOp }

// Op is part of the ScalarExpr interface.
func (n *NullTest) Op() Operator { return NullTestOp }

// Op is part of the ScalarExpr interface.
func (f *Function) Op() Operator { return FunctionOp }

// Cols is part of the ScalarExpr interface.
func (v *Variable) Cols() ColSet { return MakeColSet(v.Col) }

// Cols is part of the ScalarExpr interface.
func (c *Const) Cols() ColSet { return ColSet{} }

// Cols is part of the ScalarExpr interface.
func (n *NullTest) Cols() ColSet { return n.Input.Cols() }

// Cols is part of the ScalarExpr interface.
func (f *Function) Cols() ColSet {
	var cols ColSet
	for _, a := range f.Args {
		cols = cols.Union(a.Cols())
	}
	return cols
}

func (v *Variable) String() string { return "@" + strconv.Itoa(int(v.Col)) }

func (c *Const) String() string {
	if c.Null {
		return "NULL"
	}
	return c.Value
}

func (n *NullTest) String() string { return n.Input.String() + " IS NULL" }

func (f *Function) String() string {
	var buf strings.Builder
	buf.WriteString(f.Name)
	buf.WriteByte('(')
	for i, a := range f.Args {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(a.String())
	}
	buf.WriteByte(')')
	return buf.String()
}

// MakeVariables returns a Variable for each of the given columns.
func MakeVariables(cols ...ColumnID) []ScalarExpr {
	res := make([]ScalarExpr, len(cols))
	for i, c := range cols {
		res[i] = &Variable{Col: c}
	}
	return res
}

// IsZeroConst returns true if e is the non-NULL constant 0.
func IsZeroConst(e ScalarExpr) bool {
	c, ok := e.(*Const)
	return ok && !c.Null && c.Value == "0"
}

// ScalarExprsEqual returns true if the two expressions have the same shape.
func ScalarExprsEqual(a, b ScalarExpr) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch t := a.(type) {
	case *Variable:
		u, ok := b.(*Variable)
		return ok && t.Col == u.Col
	case *Const:
		u, ok := b.(*Const)
		return ok && t.Null == u.Null && (t.Null || t.Value == u.Value)
	case *NullTest:
		u, ok := b.(*NullTest)
		return ok && ScalarExprsEqual(t.Input, u.Input)
	case *Function:
		u, ok := b.(*Function)
		return ok && t.Name == u.Name && ScalarListsEqual(t.Args, u.Args)
	}
	return false
}

// ScalarListsEqual returns true if the two lists have the same length and
// their elements are pairwise equal.
func ScalarListsEqual(a, b []ScalarExpr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !ScalarExprsEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// ScalarListContains returns true if list contains an expression equal to e.
func ScalarListContains(list []ScalarExpr, e ScalarExpr) bool {
	return ScalarListIndex(list, e) >= 0
}

// ScalarListIndex returns the position of the first expression in list that
// is equal to e, or -1.
func ScalarListIndex(list []ScalarExpr, e ScalarExpr) int {
	for i := range list {
		if ScalarExprsEqual(list[i], e) {
			return i
		}
	}
	return -1
}

// HashScalar mixes the shape of e into h. Expressions that are equal
// according to ScalarExprsEqual produce the same hash.
func HashScalar(h *util.Hasher, e ScalarExpr) {
	h.AddUint32(uint32(e.Op()))
	switch t := e.(type) {
	case *Variable:
		h.AddUint32(uint32(t.Col))
	case *Const:
		h.AddBool(t.Null)
		if !t.Null {
			h.AddString(t.Value)
		}
	case *NullTest:
		HashScalar(h, t.Input)
	case *Function:
		h.AddString(t.Name)
		h.AddUint32(uint32(len(t.Args)))
		for _, a := range t.Args {
			HashScalar(h, a)
		}
	}
}
