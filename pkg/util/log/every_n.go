// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package log

import (
	"time"

	"github.com/cockroachdb/physprops/pkg/util/syncutil"
)

// EveryN allows a log message at most once per interval, unless verbose
// logging is on.
type EveryN struct {
	interval time.Duration

	mu struct {
		syncutil.Mutex
		last time.Time
	}
}

// Every returns an EveryN that allows one message every n.
func Every(n time.Duration) *EveryN {
	return &EveryN{interval: n}
}

// ShouldLog returns whether the previous message is at least one interval
// old.
func (e *EveryN) ShouldLog() bool {
	return e.shouldLog(time.Now())
}

func (e *EveryN) shouldLog(now time.Time) bool {
	if V(2) {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.mu.last.IsZero() && now.Sub(e.mu.last) < e.interval {
		return false
	}
	e.mu.last = now
	return true
}
