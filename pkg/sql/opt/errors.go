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

import "github.com/cockroachdb/errors"

// unsupportedIssue is attached to every unsupported-plan error so that it is
// reported as a known limitation rather than an internal error.
var unsupportedIssue = errors.IssueLink{Detail: "physical plan alternative is not supported"}

// NewUnsupportedError returns an error indicating that the optimizer cannot
// build the requested plan alternative. The search is expected to drop the
// alternative and move on, rather than fail the query.
func NewUnsupportedError(format string, args ...interface{}) error {
	return errors.UnimplementedErrorf(unsupportedIssue, format, args...)
}

// IsUnsupportedError returns true if err was built with NewUnsupportedError.
func IsUnsupportedError(err error) bool {
	return errors.HasUnimplementedError(err)
}
