// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package synthetic

import (
	"io"
	"testing"

	"github.com/tracedoctor/host"
)

func TestBridgePullDecodesScriptedTokens(t *testing.T) {
	toks := []tracedoctor.Token{
		{Cycle: 1, ROB: tracedoctor.ROBCommitting},
		{Cycle: 2, ROB: tracedoctor.ROBPopulated},
		{Cycle: 3, ROB: tracedoctor.ROBCommitting},
	}
	b := New(toks)

	buf := make([]byte, 2*tracedoctor.TokenSize)
	n, err := b.Pull(buf, 2)
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if n != 2 {
		t.Fatalf("Pull returned n=%d, want 2", n)
	}
	for i := 0; i < n; i++ {
		got, err := tracedoctor.DecodeToken(buf[i*tracedoctor.TokenSize : (i+1)*tracedoctor.TokenSize])
		if err != nil {
			t.Fatalf("DecodeToken: %v", err)
		}
		if got.Cycle != toks[i].Cycle || got.ROB != toks[i].ROB {
			t.Fatalf("token %d = %+v, want cycle=%d rob=%d", i, got, toks[i].Cycle, toks[i].ROB)
		}
	}

	n, err = b.Pull(buf, 2)
	if err != nil {
		t.Fatalf("Pull (second batch): %v", err)
	}
	if n != 1 {
		t.Fatalf("Pull (second batch) returned n=%d, want 1 (only one token left)", n)
	}

	if _, err := b.Pull(buf, 2); err != io.EOF {
		t.Fatalf("Pull (exhausted) err = %v, want io.EOF", err)
	}
}

func TestBridgeEnabledAndTrigger(t *testing.T) {
	b := New(nil)
	enabled, err := b.TraceEnable()
	if err != nil || !enabled {
		t.Fatalf("TraceEnable() = %v, %v, want true, nil", enabled, err)
	}
	b.SetEnabled(false)
	if enabled, _ := b.TraceEnable(); enabled {
		t.Fatal("TraceEnable() = true after SetEnabled(false)")
	}

	b.SetTriggerSelector(42)
	if trig, err := b.TriggerSelector(); err != nil || trig != 42 {
		t.Fatalf("TriggerSelector() = %v, %v, want 42, nil", trig, err)
	}
}
