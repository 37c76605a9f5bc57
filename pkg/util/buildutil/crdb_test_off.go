// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

//go:build !crdb_test && !invariants && !race
// +build !crdb_test,!invariants,!race

package buildutil

// CrdbTestBuild is set to true when built with the crdb_test, invariants or
// race build tags.
const CrdbTestBuild = false
