// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analysis

import "github.com/tracedoctor/host"

// dummyWorker does no accounting at all. It exists for pipeline
// smoke-testing and for measuring ingest throughput without any
// analysis overhead in the way.
type dummyWorker struct {
	base *Base
}

func newDummy(args []string, _ OutputSet) (tracedoctor.Worker, error) {
	margs, err := ParseArgs(args)
	if err != nil {
		return nil, &ConfigError{Worker: "dummy", Key: "args", Err: err}
	}
	cfg, err := NewSamplingConfig("dummy", margs)
	if err != nil {
		return nil, err
	}
	return &dummyWorker{base: NewBase(cfg)}, nil
}

func (w *dummyWorker) Name() string { return "dummy" }

func (w *dummyWorker) Tick(t tracedoctor.Token) error {
	w.base.TriggerDetection(t)
	return nil
}

func (w *dummyWorker) Flush() error { return nil }

func (w *dummyWorker) Close() error { return nil }
