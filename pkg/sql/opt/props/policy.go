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

// DistributionPolicy is a base table's distribution policy, as recorded in
// the catalog.
type DistributionPolicy uint8

const (
	// MasterOnlyPolicy tables are stored only on the coordinator.
	MasterOnlyPolicy DistributionPolicy = iota
	// RandomPolicy tables are spread over the segments without a key.
	RandomPolicy
	// HashPolicy tables are spread over the segments by hashing an ordered
	// list of distribution key columns.
	HashPolicy
	// ReplicatedPolicy tables have a full copy on every segment.
	ReplicatedPolicy
)

func (p DistributionPolicy) String() string {
	switch p {
	case MasterOnlyPolicy:
		return "master-only"
	case RandomPolicy:
		return "random"
	case HashPolicy:
		return "hash"
	case ReplicatedPolicy:
		return "replicated"
	}
	return "unknown"
}
