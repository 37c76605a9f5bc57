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

	"github.com/RoaringBitmap/roaring"
)

// ColSet is an immutable set of column ids. The zero value is the empty set.
// Operations that combine sets always return a new set and never mutate
// their receiver, so a ColSet may be shared freely between goroutines and
// used as part of a cached value.
type ColSet struct {
	bm *roaring.Bitmap
}

// MakeColSet returns a set containing the given columns.
func MakeColSet(cols ...ColumnID) ColSet {
	if len(cols) == 0 {
		return ColSet{}
	}
	bm := roaring.New()
	for _, c := range cols {
		bm.Add(uint32(c))
	}
	return ColSet{bm: bm}
}

// Contains returns true if the set contains the column.
func (s ColSet) Contains(col ColumnID) bool {
	return s.bm != nil && s.bm.Contains(uint32(col))
}

// Len returns the number of columns in the set.
func (s ColSet) Len() int {
	if s.bm == nil {
		return 0
	}
	return int(s.bm.GetCardinality())
}

// Empty returns true if the set is empty.
func (s ColSet) Empty() bool {
	return s.bm == nil || s.bm.IsEmpty()
}

// Union returns the union of s and rhs.
func (s ColSet) Union(rhs ColSet) ColSet {
	switch {
	case s.Empty():
		return rhs
	case rhs.Empty():
		return s
	}
	return ColSet{bm: roaring.Or(s.bm, rhs.bm)}
}

// Intersection returns the columns in both s and rhs.
func (s ColSet) Intersection(rhs ColSet) ColSet {
	if s.Empty() || rhs.Empty() {
		return ColSet{}
	}
	return ColSet{bm: roaring.And(s.bm, rhs.bm)}
}

// Difference returns the columns in s that are not in rhs.
func (s ColSet) Difference(rhs ColSet) ColSet {
	if s.Empty() || rhs.Empty() {
		return s
	}
	return ColSet{bm: roaring.AndNot(s.bm, rhs.bm)}
}

// Intersects returns true if s and rhs have at least one column in common.
func (s ColSet) Intersects(rhs ColSet) bool {
	if s.Empty() || rhs.Empty() {
		return false
	}
	return s.bm.Intersects(rhs.bm)
}

// SubsetOf returns true if every column in s is also in rhs.
func (s ColSet) SubsetOf(rhs ColSet) bool {
	if s.Empty() {
		return true
	}
	if rhs.Empty() {
		return false
	}
	return s.bm.AndCardinality(rhs.bm) == s.bm.GetCardinality()
}

// Equals returns true if the two sets contain the same columns.
func (s ColSet) Equals(rhs ColSet) bool {
	if s.Empty() || rhs.Empty() {
		return s.Empty() == rhs.Empty()
	}
	return s.bm.Equals(rhs.bm)
}

// ForEach calls fn for each column in the set, in increasing order.
func (s ColSet) ForEach(fn func(col ColumnID)) {
	if s.bm == nil {
		return
	}
	it := s.bm.Iterator()
	for it.HasNext() {
		fn(ColumnID(it.Next()))
	}
}

// Ordered returns the columns of the set in increasing order.
func (s ColSet) Ordered() []ColumnID {
	if s.Empty() {
		return nil
	}
	res := make([]ColumnID, 0, s.Len())
	s.ForEach(func(col ColumnID) {
		res = append(res, col)
	})
	return res
}

// String returns a list representation of elements, e.g. "(1,3,5)".
func (s ColSet) String() string {
	var buf strings.Builder
	buf.WriteByte('(')
	first := true
	s.ForEach(func(col ColumnID) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.WriteString(strconv.Itoa(int(col)))
	})
	buf.WriteByte(')')
	return buf.String()
}
