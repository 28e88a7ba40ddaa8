// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analysis

import (
	"strings"
	"testing"

	"github.com/tracedoctor/host"
)

func newTestIBSSampler(t *testing.T, args ...string) (*ibsSamplerWorker, *memOutputSet) {
	t.Helper()
	out := newMemOutputSet()
	w, err := newIBSSampler(args, out)
	if err != nil {
		t.Fatalf("newIBSSampler: %v", err)
	}
	return w.(*ibsSamplerWorker), out
}

// S5: a tagged instruction (rob_tail=12 at dispatch) is evicted once
// the ROB tail has advanced past it without the tag ever falling in
// the committing slot range, so the period produces no sample row.
func TestIBSSamplerEvictionNoSample(t *testing.T) {
	w, out := newTestIBSSampler(t, "samplingPeriod:100", "coreWidth:4")

	if err := w.Tick(tracedoctor.Token{Cycle: 0}); err != nil {
		t.Fatalf("Tick (trigger): %v", err)
	}
	if err := w.Tick(tracedoctor.Token{Cycle: 100}); err != nil {
		t.Fatalf("Tick (sampling tick): %v", err)
	}
	if w.state != ibsTagging {
		t.Fatalf("state = %v after reaching the sampling period, want ibsTagging", w.state)
	}

	dispatch := tracedoctor.Token{Cycle: 105, ROB: tracedoctor.ROBDispatching, ROBTail: 12}
	if err := w.Tick(dispatch); err != nil {
		t.Fatalf("Tick (dispatch): %v", err)
	}
	if w.state != ibsArmed || w.tag != 12 {
		t.Fatalf("after dispatch: state=%v tag=%d, want ibsArmed tag=12", w.state, w.tag)
	}

	rewound := tracedoctor.Token{Cycle: 150, ROBTail: 8, ROBHead: 20}
	if err := w.Tick(rewound); err != nil {
		t.Fatalf("Tick (rewound): %v", err)
	}

	if w.evicted != 1 {
		t.Fatalf("evicted = %d, want 1", w.evicted)
	}
	if w.state != ibsIdle {
		t.Fatalf("state = %v after eviction, want ibsIdle", w.state)
	}

	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	got := out.content("")
	if strings.Count(got, "\n") != 1 {
		t.Fatalf("output = %q, want only the header line (no sample row)", got)
	}
}

func TestIBSSamplerRequiresSamplingPeriod(t *testing.T) {
	out := newMemOutputSet()
	if _, err := newIBSSampler(nil, out); err == nil {
		t.Fatal("newIBSSampler with no samplingPeriod: want an error, got nil")
	}
}
