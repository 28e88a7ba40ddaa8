// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analysis

import (
	"bufio"
	"fmt"
	"io"

	"github.com/tracedoctor/host"
)

// filerWorker dumps every valid slot of every token it sees as a
// text CSV capture, one row per slot, for offline inspection. The
// output is not in the binary token format bridge/replay reads, so
// it cannot be replayed through it.
type filerWorker struct {
	base *Base
	w    *bufio.Writer
	c    io.Closer
}

func newFiler(args []string, out OutputSet) (tracedoctor.Worker, error) {
	margs, err := ParseArgs(args)
	if err != nil {
		return nil, &ConfigError{Worker: "filer", Key: "args", Err: err}
	}
	cfg, err := NewSamplingConfig("filer", margs)
	if err != nil {
		return nil, err
	}
	f, err := out.Create("")
	if err != nil {
		return nil, fmt.Errorf("analysis: filer: %w", err)
	}
	w := &filerWorker{base: NewBase(cfg), w: bufio.NewWriter(f), c: f}
	fmt.Fprintln(w.w, "cycle;rob;rob_head;rob_tail;slot;flags;address;memlat;isslat")
	return w, nil
}

func (w *filerWorker) Name() string { return "filer" }

func (w *filerWorker) Tick(t tracedoctor.Token) error {
	_, flushDue := w.base.TriggerDetection(t)
	for i, s := range t.Slots {
		if s.Flags&tracedoctor.InstrValid == 0 {
			continue
		}
		fmt.Fprintf(w.w, "%d;0x%x;%d;%d;%d;0x%x;0x%x;%d;%d\n",
			t.Cycle, t.ROB, t.ROBHead, t.ROBTail, i, s.Flags, s.Address, s.MemLat, s.IssLat)
	}
	if flushDue {
		return w.Flush()
	}
	return nil
}

func (w *filerWorker) Flush() error { return w.w.Flush() }

func (w *filerWorker) Close() error {
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.c.Close()
}
