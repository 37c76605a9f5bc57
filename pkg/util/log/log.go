// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package log is a thin structured logging layer over zap. Context tags
// attached with logtags are rendered as zap fields on every entry.
package log

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	logger    atomic.Pointer[zap.Logger]
	verbosity atomic.Int32
)

func init() {
	logger.Store(zap.NewNop())
}

// SetLogger installs l as the process logger and returns a function that
// restores the previous one. It is mainly intended for tests.
func SetLogger(l *zap.Logger) (restore func()) {
	prev := logger.Swap(l)
	return func() { logger.Store(prev) }
}

// SetVerbosity sets the level below which VEventf messages and V checks
// are enabled.
func SetVerbosity(level int32) (restore func()) {
	prev := verbosity.Swap(level)
	return func() { verbosity.Store(prev) }
}

// V returns true if the logging verbosity is set to the specified level or
// higher.
func V(level int32) bool {
	return verbosity.Load() >= level
}

// Infof logs to the INFO severity.
func Infof(ctx context.Context, format string, args ...interface{}) {
	logger.Load().Info(fmt.Sprintf(format, args...), tagFields(ctx)...)
}

// Warningf logs to the WARNING severity.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	logger.Load().Warn(fmt.Sprintf(format, args...), tagFields(ctx)...)
}

// Errorf logs to the ERROR severity.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	logger.Load().Error(fmt.Sprintf(format, args...), tagFields(ctx)...)
}

// VEventf logs at the DEBUG severity if the verbosity is at least the given
// level.
func VEventf(ctx context.Context, level int32, format string, args ...interface{}) {
	if !V(level) {
		return
	}
	logger.Load().Debug(fmt.Sprintf(format, args...), tagFields(ctx)...)
}
