// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package props

import (
	"sort"

	"github.com/cockroachdb/physprops/pkg/sql/opt"
	mapset "github.com/deckarep/golang-set/v2"
)

// PartInfo records the dynamic partition scans defined in a subtree, along
// with the partitioning key columns of each scanned table. The zero value
// describes a subtree with no dynamic scans.
type PartInfo struct {
	ids  mapset.Set[opt.ScanID]
	keys map[opt.ScanID][]opt.ColumnID
}

// MakePartInfo returns an empty PartInfo.
func MakePartInfo() PartInfo {
	return PartInfo{
		ids:  mapset.NewThreadUnsafeSet[opt.ScanID](),
		keys: make(map[opt.ScanID][]opt.ColumnID),
	}
}

// Add returns a copy of p that also records the given dynamic scan.
func (p PartInfo) Add(id opt.ScanID, partKeys ...opt.ColumnID) PartInfo {
	res := p.copy()
	res.ids.Add(id)
	res.keys[id] = partKeys
	return res
}

// Combine returns the union of the two part infos, as derived by an operator
// with several relational children.
func (p PartInfo) Combine(other PartInfo) PartInfo {
	if other.Len() == 0 {
		return p
	}
	res := p.copy()
	other.ids.Each(func(id opt.ScanID) bool {
		res.ids.Add(id)
		res.keys[id] = other.keys[id]
		return false
	})
	return res
}

// Contains returns true if the subtree defines the given dynamic scan.
func (p PartInfo) Contains(id opt.ScanID) bool {
	return p.ids != nil && p.ids.Contains(id)
}

// PartKeys returns the partitioning key columns of the given scan.
func (p PartInfo) PartKeys(id opt.ScanID) opt.ColSet {
	return opt.MakeColSet(p.keys[id]...)
}

// Len returns the number of dynamic scans in the subtree.
func (p PartInfo) Len() int {
	if p.ids == nil {
		return 0
	}
	return p.ids.Cardinality()
}

// ScanIDs returns the scan ids in increasing order.
func (p PartInfo) ScanIDs() []opt.ScanID {
	if p.ids == nil {
		return nil
	}
	res := p.ids.ToSlice()
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

func (p PartInfo) copy() PartInfo {
	res := MakePartInfo()
	if p.ids != nil {
		res.ids = p.ids.Clone()
		for id, k := range p.keys {
			res.keys[id] = k
		}
	}
	return res
}
