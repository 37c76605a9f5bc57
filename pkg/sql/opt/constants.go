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

// MaxHashDistRequests is the maximum number of single-key redistribution
// requests a hash join issues to its first optimized child, in addition to
// the request on all of its keys.
const MaxHashDistRequests = 6

// NonHashDistRequests is the number of distribution requests a hash join
// issues on top of its redistribution requests: (hashed, broadcast),
// (non-singleton, broadcast) and (singleton, singleton).
const NonHashDistRequests = 3

// MaxCTEReqHashEntries is the number of requirement entries that contribute
// to the hash of a CTE requirement.
const MaxCTEReqHashEntries = 5
