// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracedoctor

import (
	"context"
	"sync"
	"testing"
)

func TestWorkerGroupsDefaultIsOnePerWorker(t *testing.T) {
	for _, traceThreads := range []int{0, -1, 4, 5} {
		groups := workerGroups(4, traceThreads)
		if len(groups) != 4 {
			t.Fatalf("traceThreads=%d: workerGroups(4, %d) returned %d groups, want 4", traceThreads, traceThreads, len(groups))
		}
		for i, g := range groups {
			if len(g) != 1 || g[0] != i {
				t.Fatalf("traceThreads=%d: group %d = %v, want [%d]", traceThreads, i, g, i)
			}
		}
	}
}

func TestWorkerGroupsRoundRobin(t *testing.T) {
	groups := workerGroups(5, 2)
	if len(groups) != 2 {
		t.Fatalf("workerGroups(5, 2) returned %d groups, want 2", len(groups))
	}
	want := [][]int{{0, 2, 4}, {1, 3}}
	for i, g := range groups {
		if len(g) != len(want[i]) {
			t.Fatalf("group %d = %v, want %v", i, g, want[i])
		}
		for j, idx := range g {
			if idx != want[i][j] {
				t.Fatalf("group %d = %v, want %v", i, g, want[i])
			}
		}
	}
}

func TestDequeueGroupRoundRobinsAcrossSharedIndices(t *testing.T) {
	e := &Engine{
		queues: []*workQueue{{}, {}, {}},
	}
	e.cond = sync.NewCond(&e.mu)

	bufA, bufB := &Buffer{}, &Buffer{}
	e.queues[0].push(bufA)
	e.queues[2].push(bufB)

	indices := []int{0, 1, 2}
	pos := 0

	got, idx, shutdown := e.dequeueGroup(context.Background(), indices, &pos)
	if shutdown || got != bufA || idx != 0 {
		t.Fatalf("first dequeueGroup = (%v, %d, %v), want (bufA, 0, false)", got, idx, shutdown)
	}
	got, idx, shutdown = e.dequeueGroup(context.Background(), indices, &pos)
	if shutdown || got != bufB || idx != 2 {
		t.Fatalf("second dequeueGroup = (%v, %d, %v), want (bufB, 2, false)", got, idx, shutdown)
	}
}

func TestDequeueGroupShutdownWhenAllEmpty(t *testing.T) {
	e := &Engine{
		queues: []*workQueue{{}, {}},
		exit:   true,
	}
	e.cond = sync.NewCond(&e.mu)

	pos := 0
	buf, _, shutdown := e.dequeueGroup(context.Background(), []int{0, 1}, &pos)
	if buf != nil || !shutdown {
		t.Fatalf("dequeueGroup on exit with empty queues = (%v, shutdown=%v), want (nil, true)", buf, shutdown)
	}
}
