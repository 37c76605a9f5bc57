// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package optconfig holds the configuration consumed by the physical property
// framework and the bitmap engine. The configuration is parsed from YAML and
// then passed explicitly to the code that needs it; nothing here is global.
package optconfig

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/physprops/pkg/util/humanizeutil"
	"gopkg.in/yaml.v2"
)

// DefaultBitmapWorkMem is the default memory budget of a TID bitmap.
const DefaultBitmapWorkMem = "4MiB"

// MinBitmapWorkMem is the smallest accepted bitmap memory budget.
const MinBitmapWorkMem = 64 << 10

// MaxVerbosity is the highest accepted log verbosity.
const MaxVerbosity = 5

// TraceFlags gate individual enforcer kinds and plan alternatives. A
// disabled enforcer turns into a no-op, and the plan alternative that needed
// it is pruned.
type TraceFlags struct {
	// DisableMotions disables every kind of motion.
	DisableMotions bool `yaml:"disable-motions,omitempty"`
	// DisableBroadcast disables broadcast motions.
	DisableBroadcast bool `yaml:"disable-broadcast,omitempty"`
	// DisableGather disables gather motions.
	DisableGather bool `yaml:"disable-gather,omitempty"`
	// DisableRedistribute disables hash redistribution motions.
	DisableRedistribute bool `yaml:"disable-redistribute,omitempty"`
	// DisableRandomMotion disables random redistribution motions.
	DisableRandomMotion bool `yaml:"disable-random-motion,omitempty"`
	// EnableRedistributeBroadcastHashJoin lets a hash join pass a hashed
	// requirement from its parent down to its outer child when the inner
	// child is broadcast.
	EnableRedistributeBroadcastHashJoin bool `yaml:"enable-redistribute-broadcast-hash-join,omitempty"`
}

// BitmapConfig configures TID bitmaps.
type BitmapConfig struct {
	// WorkMem is the memory budget of a single bitmap, as a humanized byte
	// size (e.g. "4MiB").
	WorkMem string `yaml:"work-mem,omitempty"`

	maxBytes int64
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity int32 `yaml:"verbosity,omitempty"`
}

// Config is the top-level configuration.
type Config struct {
	Trace  TraceFlags   `yaml:"trace-flags,omitempty"`
	Bitmap BitmapConfig `yaml:"bitmap,omitempty"`
	Log    LogConfig    `yaml:"log,omitempty"`
}

// DefaultConfig returns a validated configuration with default values.
func DefaultConfig() Config {
	c := Config{}
	if err := c.Validate(); err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "default config is invalid"))
	}
	return c
}

// Parse parses and validates a YAML configuration. Unknown fields are
// rejected.
func Parse(data []byte) (Config, error) {
	var c Config
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return Config{}, errors.Wrap(err, "parsing optimizer config")
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.Bitmap.WorkMem == "" {
		c.Bitmap.WorkMem = DefaultBitmapWorkMem
	}
	n, err := humanizeutil.ParseBytes(c.Bitmap.WorkMem)
	if err != nil {
		return errors.Wrap(err, "invalid bitmap work-mem")
	}
	if n < MinBitmapWorkMem {
		return errors.Newf("bitmap work-mem %s is below the minimum of %s",
			humanizeutil.IBytes(n), humanizeutil.IBytes(MinBitmapWorkMem))
	}
	c.Bitmap.maxBytes = n
	if c.Log.Verbosity < 0 || c.Log.Verbosity > MaxVerbosity {
		return errors.Newf("log verbosity %d out of range [0, %d]", c.Log.Verbosity, MaxVerbosity)
	}
	if c.Trace.DisableMotions && c.Trace.EnableRedistributeBroadcastHashJoin {
		return errors.New("enable-redistribute-broadcast-hash-join requires motions")
	}
	return nil
}

// BitmapMaxBytes returns the bitmap memory budget in bytes. Only valid after
// Validate.
func (c *Config) BitmapMaxBytes() int64 {
	return c.Bitmap.maxBytes
}

// String prints the effective configuration, one setting per line.
func (c *Config) String() string {
	var buf strings.Builder
	t := c.Trace
	fmt.Fprintf(&buf, "disable-motions: %t\n", t.DisableMotions)
	fmt.Fprintf(&buf, "disable-broadcast: %t\n", t.DisableBroadcast)
	fmt.Fprintf(&buf, "disable-gather: %t\n", t.DisableGather)
	fmt.Fprintf(&buf, "disable-redistribute: %t\n", t.DisableRedistribute)
	fmt.Fprintf(&buf, "disable-random-motion: %t\n", t.DisableRandomMotion)
	fmt.Fprintf(&buf, "enable-redistribute-broadcast-hash-join: %t\n", t.EnableRedistributeBroadcastHashJoin)
	fmt.Fprintf(&buf, "bitmap-max-bytes: %d\n", c.Bitmap.maxBytes)
	fmt.Fprintf(&buf, "log-verbosity: %d\n", c.Log.Verbosity)
	return buf.String()
}
