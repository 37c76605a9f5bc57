// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package ordering

import (
	"github.com/cockroachdb/physprops/pkg/sql/opt/memo"
	"github.com/cockroachdb/physprops/pkg/sql/opt/props/physical"
)

// nestedLoopJoinBuildChildReqOrdering pushes the required order down to the
// outer child when it sorts on outer columns only. A nested-loop join
// returns rows in the order of its outer child.
func nestedLoopJoinBuildChildReqOrdering(
	r *memo.ChildRequest, required physical.OrderSpec,
) physical.OrderSpec {
	if r.ChildIdx != 0 {
		return physical.OrderSpec{}
	}
	if !required.ColSet().SubsetOf(r.Parent.ChildRelational(0).OutputCols) {
		return physical.OrderSpec{}
	}
	return required
}

// nestedLoopJoinEnforcement makes the sort optional when the outer child
// could have delivered the order, so that plans sorting below the join
// compete with plans sorting above it.
func nestedLoopJoinEnforcement(h memo.ExprHandle, required physical.EnfdOrder) physical.EnforceType {
	if required.Compatible(delivered(h)) {
		return physical.EnforceUnnecessary
	}
	if required.Order.ColSet().SubsetOf(h.ChildRelational(0).OutputCols) {
		return physical.EnforceOptional
	}
	return physical.EnforceRequired
}
