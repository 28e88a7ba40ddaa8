// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analysis

import (
	"io"

	"github.com/tracedoctor/host"
)

// OutputSet gives a worker access to its named output files, without
// the worker needing to know how file names are derived or where
// they live. A worker that needs more than one file (tea_gold needs
// two) calls Create once per suffix; a worker with no output (dummy)
// never calls it.
type OutputSet interface {
	Create(suffix string) (io.WriteCloser, error)
}

// Factory builds a Worker from its "key:value" argument list and its
// OutputSet. It's the shape every entry in the Registry has.
type Factory func(args []string, out OutputSet) (tracedoctor.Worker, error)
