// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analysis

import (
	"testing"

	"github.com/tracedoctor/host"
)

func TestDummyTicksWithoutError(t *testing.T) {
	w, err := newDummy(nil, newMemOutputSet())
	if err != nil {
		t.Fatalf("newDummy: %v", err)
	}
	for cycle := uint64(0); cycle < 5; cycle++ {
		if err := w.Tick(tracedoctor.Token{Cycle: cycle, ROB: tracedoctor.ROBCommitting}); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
