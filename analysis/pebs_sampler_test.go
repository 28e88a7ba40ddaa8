// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analysis

import (
	"strings"
	"testing"

	"github.com/tracedoctor/host"
)

func newTestPEBSSampler(t *testing.T, args ...string) (*pebsSamplerWorker, *memOutputSet) {
	t.Helper()
	out := newMemOutputSet()
	w, err := newPEBSSampler(args, out)
	if err != nil {
		t.Fatalf("newPEBSSampler: %v", err)
	}
	return w.(*pebsSamplerWorker), out
}

// S4: samplingPeriod=1000 with no random offset arms on every
// thousandth cycle and samples the very next commit; a POPULATED
// token ahead of the first commit produces no row of its own.
func TestPEBSSamplerTwoSamples(t *testing.T) {
	w, out := newTestPEBSSampler(t, "samplingPeriod:1000")

	if err := w.Tick(tracedoctor.Token{Cycle: 0}); err != nil {
		t.Fatalf("Tick (trigger): %v", err)
	}
	if err := w.Tick(tracedoctor.Token{Cycle: 500, ROB: tracedoctor.ROBPopulated}); err != nil {
		t.Fatalf("Tick (populated): %v", err)
	}

	commitD := tracedoctor.Token{
		Cycle: 1000,
		ROB:   tracedoctor.ROBCommitting,
		Slots: [4]tracedoctor.Slot{{Flags: tracedoctor.InstrCommits | tracedoctor.InstrValid, Address: 0xD}},
	}
	if err := w.Tick(commitD); err != nil {
		t.Fatalf("Tick (commit 0xD): %v", err)
	}

	commitE := tracedoctor.Token{
		Cycle: 2000,
		ROB:   tracedoctor.ROBCommitting,
		Slots: [4]tracedoctor.Slot{{Flags: tracedoctor.InstrCommits | tracedoctor.InstrValid, Address: 0xE}},
	}
	if err := w.Tick(commitE); err != nil {
		t.Fatalf("Tick (commit 0xE): %v", err)
	}

	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got := out.content("")
	rows := strings.Count(got, "\n")
	if rows != 3 { // header + two sample rows
		t.Fatalf("output has %d lines, want 3 (header + two samples): %q", rows, got)
	}
	if !strings.Contains(got, "1000;999;1;0xd;0;0;0;0x0;0;0;0;0x0;0;0;0;0x0;0;0;0") {
		t.Fatalf("output = %q, want a sample row at cycle 1000 for address 0xd", got)
	}
	if !strings.Contains(got, "2000;999;1;0xe;0;0;0;0x0;0;0;0;0x0;0;0;0;0x0;0;0;0") {
		t.Fatalf("output = %q, want a sample row at cycle 2000 for address 0xe", got)
	}
}

func TestPEBSSamplerRequiresSamplingPeriod(t *testing.T) {
	out := newMemOutputSet()
	if _, err := newPEBSSampler(nil, out); err == nil {
		t.Fatal("newPEBSSampler with no samplingPeriod: want an error, got nil")
	}
}
