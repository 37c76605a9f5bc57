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
	"runtime"

	"github.com/cockroachdb/errors"
)

// CatchOptimizerError converts a value recovered from a panic in optimizer
// property code into an error. This allows the property framework to
// propagate assertion failures internally as panics without adding error
// checks everywhere. This is only possible because the property code does not
// update shared state and does not hold locks while it computes. Callers use
// it from a deferred function:
//
//	defer func() {
//	  if r := recover(); r != nil {
//	    err = opt.CatchOptimizerError(r)
//	  }
//	}()
func CatchOptimizerError(r interface{}) error {
	err, ok := r.(error)
	if !ok {
		// Not an error object. For serious internal errors e.g. in the scheduler,
		// bad goroutine state, allocator problem etc, the go runtime throws a
		// string which does not implement error. So in this case we suspect we are
		// not able to recover, and must crash.
		panic(r)
	}
	if errors.HasInterface(err, (*runtime.Error)(nil)) {
		// Convert runtime errors to assertion failures, which include stacks.
		return errors.HandleAsAssertionFailure(err)
	}
	return err
}
