// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package humanizeutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBytes(t *testing.T) {
	testCases := []struct {
		in       string
		expected int64
		err      bool
	}{
		{in: "4MiB", expected: 4 << 20},
		{in: "64 KiB", expected: 64 << 10},
		{in: "1000", expected: 1000},
		{in: "-2KiB", expected: -2048},
		{in: "", err: true},
		{in: "lots", err: true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			v, err := ParseBytes(tc.in)
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, v)
		})
	}
}

func TestIBytes(t *testing.T) {
	require.Equal(t, "4.0 MiB", IBytes(4<<20))
	require.Equal(t, "-1.0 KiB", IBytes(-1024))
}
