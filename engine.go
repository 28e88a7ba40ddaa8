// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracedoctor

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Config controls the shape of the buffer pool and the ingest
// cadence. The zero value is not usable; use DefaultConfig as a
// starting point.
type Config struct {
	// BufferDepth is the number of buffers in the rotation pool.
	BufferDepth int
	// BufferTokenCapacity is the number of tokens each buffer holds.
	BufferTokenCapacity int
	// BufferTokenThreshold publishes a buffer once it holds at
	// least this many tokens, ahead of hitting capacity.
	BufferTokenThreshold int
	// PullBatch is the maximum number of tokens requested per
	// Bridge.Pull call.
	PullBatch int
	// TraceThreads caps the number of goroutines dedicated to ticking
	// workers. Zero (the default) gives every worker its own
	// goroutine; a positive value below len(workers) groups workers
	// round-robin onto that many shared goroutines instead.
	TraceThreads int
	// Logger receives diagnostic messages; if nil, log.Default() is used.
	Logger *log.Logger
}

// DefaultConfig mirrors the reference bridge's defaults: a grouping
// of one, a depth of 64 buffers, each sized to hold one pull's worth
// of tokens several times over.
func DefaultConfig() Config {
	return Config{
		BufferDepth:          64,
		BufferTokenCapacity:  4096,
		BufferTokenThreshold: 3072,
		PullBatch:            256,
	}
}

func (c Config) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

// Engine is the ingestion and dispatch core: it pulls token batches
// from a Bridge and fans each published buffer out to every
// registered Worker's own FIFO, in cycle order, enforcing
// backpressure through the bounded buffer pool rather than an
// unbounded queue.
type Engine struct {
	cfg     Config
	bridge  Bridge
	pool    *bufferPool
	workers []Worker
	queues  []*workQueue

	mu   sync.Mutex
	cond *sync.Cond
	exit bool

	pullBuf []byte

	progressMu sync.Mutex
	tokensSeen uint64
}

// NewEngine builds an Engine around the given bridge and the set of
// workers that should observe every token. Once Run is called, each
// worker is ticked by its own goroutine, or by a goroutine shared
// round-robin with other workers when cfg.TraceThreads groups them.
func NewEngine(cfg Config, bridge Bridge, workers []Worker) *Engine {
	e := &Engine{
		cfg:     cfg,
		bridge:  bridge,
		pool:    newBufferPool(cfg.BufferDepth, cfg.BufferTokenCapacity),
		workers: workers,
		queues:  make([]*workQueue, len(workers)),
		pullBuf: make([]byte, cfg.PullBatch*TokenSize),
	}
	for i := range e.queues {
		e.queues[i] = &workQueue{}
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// TokensProcessed reports a running count of tokens pulled from the
// bridge so far. Safe to call concurrently with Run.
func (e *Engine) TokensProcessed() uint64 {
	e.progressMu.Lock()
	defer e.progressMu.Unlock()
	return e.tokensSeen
}

// Run starts the ingest loop and the worker goroutines (one per
// worker, or one per TraceThreads group), and
// blocks until the bridge is drained, ctx is canceled, or any worker
// or the ingest loop returns a fatal error. The first such error
// wins; every other goroutine is signaled to unwind via workerExit.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	// sync.Cond has no context awareness of its own; wake every
	// waiter once ctx is canceled so dequeueGroup and publishAndRotate
	// notice the cancellation promptly instead of only on the next
	// buffer release.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			e.mu.Lock()
			e.cond.Broadcast()
			e.mu.Unlock()
		case <-stop:
		}
	}()

	for _, group := range workerGroups(len(e.workers), e.cfg.TraceThreads) {
		group := group
		g.Go(func() error { return e.runWorkers(ctx, group) })
	}
	g.Go(func() error { return e.ingest(ctx) })
	return g.Wait()
}

// workerGroups partitions n worker indices into goroutine groups. A
// traceThreads of zero or at least n gives each worker its own group
// (one goroutine per worker, the default); otherwise workers are
// spread round-robin across traceThreads groups, so multiple workers
// share a goroutine and are ticked round-robin within it.
func workerGroups(n, traceThreads int) [][]int {
	if traceThreads <= 0 || traceThreads >= n {
		groups := make([][]int, n)
		for i := range groups {
			groups[i] = []int{i}
		}
		return groups
	}
	groups := make([][]int, traceThreads)
	for i := 0; i < n; i++ {
		g := i % traceThreads
		groups[g] = append(groups[g], i)
	}
	return groups
}

func (e *Engine) ingest(ctx context.Context) (err error) {
	defer func() {
		e.mu.Lock()
		e.exit = true
		e.cond.Broadcast()
		e.mu.Unlock()
	}()

	if err := e.bridge.Init(); err != nil {
		return fmt.Errorf("tracedoctor: bridge init: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			e.publishRemainder()
			return nil
		default:
		}

		enabled, err := e.bridge.TraceEnable()
		if err != nil {
			return fmt.Errorf("tracedoctor: trace enable: %w", err)
		}
		if !enabled {
			continue
		}

		buf := e.pool.current()
		room := buf.capacity() - buf.Len()
		if room == 0 {
			if err := e.publishAndRotate(ctx, buf); err != nil {
				return err
			}
			continue
		}
		want := room
		if want > e.cfg.PullBatch {
			want = e.cfg.PullBatch
		}
		n, err := e.bridge.Pull(buf.fillable(), want)
		if err == io.EOF {
			e.publishRemainder()
			return nil
		}
		if err != nil {
			return fmt.Errorf("tracedoctor: pull: %w", err)
		}
		buf.grow(n)

		e.progressMu.Lock()
		e.tokensSeen += uint64(n)
		e.progressMu.Unlock()

		if buf.Len() >= e.cfg.BufferTokenThreshold {
			if err := e.publishAndRotate(ctx, buf); err != nil {
				return err
			}
		}
	}
}

// publishAndRotate publishes the filled buffer and retries the
// rotation to the next buffer until backpressure clears.
func (e *Engine) publishAndRotate(ctx context.Context, buf *Buffer) error {
	if buf.Len() > 0 {
		e.publish(buf)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for {
		_, err := e.pool.rotate()
		if err == nil {
			return nil
		}
		if err != ErrBackpressureStall {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		// Workers haven't caught up yet; wait and retry. The condvar
		// is broadcast whenever a buffer's last reference is released,
		// and the check above runs under the same lock, so no wakeup
		// is missed and the loop never busy-spins.
		e.cond.Wait()
	}
}

func (e *Engine) publishRemainder() {
	buf := e.pool.current()
	if buf.Len() > 0 {
		e.publish(buf)
	}
}

// publish hands the buffer to every worker's queue under a single
// lock, so all workers observe buffers in the same order.
func (e *Engine) publish(buf *Buffer) {
	e.mu.Lock()
	buf.acquire(int32(len(e.workers)))
	for _, q := range e.queues {
		q.push(buf)
	}
	e.cond.Broadcast()
	e.mu.Unlock()
}

// runWorkers services the workers named by indices from a single
// goroutine, round-robin: when traceThreads reduces the goroutine
// count below len(workers), several workers share this loop instead
// of each getting its own. For a single-element group this reduces
// to the default one-goroutine-per-worker behavior.
func (e *Engine) runWorkers(ctx context.Context, indices []int) error {
	pos := 0
	for {
		buf, idx, _ := e.dequeueGroup(ctx, indices, &pos)
		if buf == nil {
			// Every queue in this group is drained and the engine is
			// either shutting down or canceled: flush and close the
			// group's workers and stop.
			for _, i := range indices {
				w := e.workers[i]
				if err := w.Flush(); err != nil {
					e.cfg.logger().Printf("tracedoctor: worker %s: flush on shutdown: %v", w.Name(), err)
				}
				if err := w.Close(); err != nil {
					return err
				}
			}
			return nil
		}
		w := e.workers[idx]
		err := e.tick(w, buf)
		if buf.release() {
			e.mu.Lock()
			e.cond.Broadcast()
			e.mu.Unlock()
		}
		if err != nil {
			return fmt.Errorf("tracedoctor: worker %s: %w", w.Name(), err)
		}
	}
}

func (e *Engine) tick(w Worker, buf *Buffer) error {
	for i := 0; i < buf.Len(); i++ {
		tok, err := buf.Token(i)
		if err != nil {
			return err
		}
		if err := w.Tick(tok); err != nil {
			return err
		}
	}
	return nil
}

// dequeueGroup blocks until one of the worker queues named by indices
// has a buffer, the engine is shutting down with all of them empty,
// or ctx is canceled. It checks queues round-robin starting just past
// *pos, so no worker in the group is starved when several have data
// at once, and advances *pos past whichever index it served.
func (e *Engine) dequeueGroup(ctx context.Context, indices []int, pos *int) (buf *Buffer, idx int, shutdown bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(indices)
	for {
		for i := 0; i < n; i++ {
			j := indices[(*pos+i)%n]
			if b, ok := e.queues[j].pop(); ok {
				*pos = (*pos + i + 1) % n
				return b, j, false
			}
		}
		allEmpty := true
		for _, j := range indices {
			if !e.queues[j].empty() {
				allEmpty = false
				break
			}
		}
		if e.exit && allEmpty {
			return nil, 0, true
		}
		if ctx.Err() != nil {
			return nil, 0, false
		}
		e.cond.Wait()
	}
}
