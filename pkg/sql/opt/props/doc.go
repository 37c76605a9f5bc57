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
Package props holds the logical properties of memo expressions that the
physical property framework consumes. They are derived by the surrounding
planner (statistics, normalization and catalog code are not part of this
module) and are read-only here.

Relational properties describe a relational subtree: the columns it outputs,
the outer columns it references, the columns known to be non-NULL, whether
it must run on the coordinator, and the dynamic partition scans defined
inside of it. Scalar properties describe a scalar child such as a join
predicate or a projection list: the columns it uses and the columns it
defines.
*/
package props
