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

// ColumnID uniquely identifies a column within a query.
type ColumnID uint32

// ScanID identifies a dynamic (partitioned) table scan. Partition propagation
// specs are keyed by scan id.
type ScanID uint32

// CTEID identifies a common table expression. Producers and consumers of the
// same CTE share the id.
type CTEID uint32
