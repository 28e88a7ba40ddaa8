// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracedoctor

import "testing"

func TestWorkQueueFIFO(t *testing.T) {
	q := &workQueue{}
	if !q.empty() {
		t.Fatal("new queue should be empty")
	}
	a, b := &Buffer{}, &Buffer{}
	q.push(a)
	q.push(b)
	if q.empty() {
		t.Fatal("queue with two pushed buffers should not be empty")
	}

	got, ok := q.pop()
	if !ok || got != a {
		t.Fatalf("pop() = %v, %v; want %v, true", got, ok, a)
	}
	got, ok = q.pop()
	if !ok || got != b {
		t.Fatalf("pop() = %v, %v; want %v, true", got, ok, b)
	}
	if !q.empty() {
		t.Fatal("queue should be empty after draining both pushes")
	}
	if _, ok := q.pop(); ok {
		t.Fatal("pop() on an empty queue should report false")
	}
}
