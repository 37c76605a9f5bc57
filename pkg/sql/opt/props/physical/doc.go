// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

/*
Package physical defines the physical properties that an operator can require
of its children and derive for its parent: distribution, ordering,
rewindability, partition propagation and CTE requirements.

Every spec is an immutable value. Specs are compared structurally and hashed
consistently with that comparison, so the same spec may be shared by many
requests and memo entries without copying.

Each property has three parts:

  - the spec itself, with a Satisfies partial order between a delivered and a
    required spec;
  - an enforced wrapper (EnfdDistribution, EnfdOrder, EnfdRewind) that pairs a
    required spec with the matching mode used to compare it against what a
    plan delivers;
  - AppendEnforcers, which lists the operators (motions, sorts, spools,
    partition selectors) that convert a delivered spec into the required one.

Required collects the requirements on a plan and Provided collects what a
plan delivers.
*/
package physical
