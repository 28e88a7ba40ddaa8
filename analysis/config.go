// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package analysis implements the shared worker framework (argument
// parsing, sampling-period arithmetic, trigger detection, signature
// computation) and the concrete analysis strategies built on top of
// it: exhaustive attribution, severity-histogram profiling, and three
// sampled profiling disciplines.
package analysis

import (
	"fmt"
	"strconv"
	"strings"
)

// ConfigError reports a problem with a worker's "key:value" argument
// list, discovered at construction time. It's always fatal.
type ConfigError struct {
	Worker string
	Key    string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("analysis: %s: argument %q: %v", e.Worker, e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ParseArgs splits a list of "key:value" strings into a lookup map.
// Unknown keys are left in the map; it's up to each worker's
// constructor to decide whether an unrecognized key is ignored or
// rejected.
func ParseArgs(args []string) (map[string]string, error) {
	m := make(map[string]string, len(args))
	for _, a := range args {
		kv := strings.SplitN(a, ":", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("malformed argument %q, want key:value", a)
		}
		m[kv[0]] = kv[1]
	}
	return m, nil
}

func uintArg(m map[string]string, key string, def uint64) (uint64, error) {
	v, ok := m[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: %v", v, err)
	}
	return n, nil
}

// SamplingConfig holds the arguments every sampled worker recognizes.
type SamplingConfig struct {
	FlushAfter        uint64
	SamplingPeriod    uint64
	RandomStartOffset uint64
	RandomOffset      uint64
	L2MissLatency     uint16
	L3MissLatency     uint16
}

// DefaultSamplingConfig returns the reference bridge's defaults.
func DefaultSamplingConfig() SamplingConfig {
	return SamplingConfig{
		FlushAfter:    200_000_000,
		L2MissLatency: 32,
		L3MissLatency: 84,
	}
}

// NewSamplingConfig parses the common sampling keys out of args,
// wrapping any failure in a *ConfigError tagged with worker.
func NewSamplingConfig(worker string, args map[string]string) (SamplingConfig, error) {
	cfg := DefaultSamplingConfig()
	fields := []struct {
		key string
		dst *uint64
	}{
		{"flushAfter", &cfg.FlushAfter},
		{"samplingPeriod", &cfg.SamplingPeriod},
		{"randomStartOffset", &cfg.RandomStartOffset},
		{"randomOffset", &cfg.RandomOffset},
	}
	for _, f := range fields {
		v, err := uintArg(args, f.key, *f.dst)
		if err != nil {
			return SamplingConfig{}, &ConfigError{Worker: worker, Key: f.key, Err: err}
		}
		*f.dst = v
	}
	l2, err := uintArg(args, "l2MissLatency", uint64(cfg.L2MissLatency))
	if err != nil {
		return SamplingConfig{}, &ConfigError{Worker: worker, Key: "l2MissLatency", Err: err}
	}
	cfg.L2MissLatency = uint16(l2)
	l3, err := uintArg(args, "l3MissLatency", uint64(cfg.L3MissLatency))
	if err != nil {
		return SamplingConfig{}, &ConfigError{Worker: worker, Key: "l3MissLatency", Err: err}
	}
	cfg.L3MissLatency = uint16(l3)

	if cfg.SamplingPeriod > 0 && cfg.RandomOffset >= cfg.SamplingPeriod {
		cfg.RandomOffset = cfg.SamplingPeriod - 1
	}
	return cfg, nil
}
