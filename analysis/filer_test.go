// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analysis

import (
	"strings"
	"testing"

	"github.com/tracedoctor/host"
)

func TestFilerEmitsOneRowPerValidSlot(t *testing.T) {
	out := newMemOutputSet()
	w, err := newFiler(nil, out)
	if err != nil {
		t.Fatalf("newFiler: %v", err)
	}

	tok := tracedoctor.Token{
		Cycle:   7,
		ROB:     tracedoctor.ROBCommitting | tracedoctor.ROBPopulated,
		ROBHead: 2,
		ROBTail: 5,
		Slots: [4]tracedoctor.Slot{
			{Flags: tracedoctor.InstrCommits | tracedoctor.InstrValid, Address: 0x99, MemLat: 12, IssLat: 3},
		},
	}
	if err := w.Tick(tok); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got := out.content("")
	if !strings.Contains(got, "7;0x3;2;5;0;0x3;0x99;12;3") {
		t.Fatalf("output = %q, want a row for the one valid slot", got)
	}
	// only slot 0 was marked Valid, so no other rows should appear.
	if strings.Count(got, "\n") != 2 { // header + one row
		t.Fatalf("output = %q, want exactly one data row besides the header", got)
	}
}
