// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analysis

import (
	"fmt"

	"github.com/tracedoctor/host"
)

// Registry is the name -> constructor table every worker is built
// from, the same shape as the reference CLI's simulation-type map,
// generalized from ready-made instances to factory functions so each
// session gets independently-seeded worker state.
var Registry = map[string]Factory{
	"dummy":        newDummy,
	"filer":        newFiler,
	"oracle":       newOracle,
	"latency_hist": newLatencyHist,
	"tea_gold":     newTeaGold,
	"tea_sampler":  newTeaSampler,
	"ibs_sampler":  newIBSSampler,
	"pebs_sampler": newPEBSSampler,
}

// Names reports the registered worker names.
func Names() []string {
	names := make([]string, 0, len(Registry))
	for n := range Registry {
		names = append(names, n)
	}
	return names
}

// Build looks up name in the Registry and constructs a worker from
// args and out. It returns a *ConfigError if name isn't registered.
func Build(name string, args []string, out OutputSet) (tracedoctor.Worker, error) {
	f, ok := Registry[name]
	if !ok {
		return nil, &ConfigError{Worker: name, Key: "-type", Err: fmt.Errorf("unknown worker type")}
	}
	return f(args, out)
}
