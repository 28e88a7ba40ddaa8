// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracedoctor

import (
	"errors"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ErrBackpressureStall is returned by the pool's rotation when the
// next buffer in the ring is still held by at least one worker. The
// ingest loop waits for a release and retries; it's not a fatal error
// and Run never returns it.
var ErrBackpressureStall = errors.New("tracedoctor: buffer pool exhausted, workers still draining")

// Buffer is a fixed-capacity block of raw token bytes, shared
// read-only among the worker pool once published. While it's being
// filled it's owned exclusively by the ingest loop; there is never a
// writer and a reader active on the same buffer at once.
type Buffer struct {
	data  []byte
	count int
	refs  int32
}

func newBuffer(tokenCapacity int) *Buffer {
	return &Buffer{data: make([]byte, tokenCapacity*TokenSize)}
}

// Len reports the number of valid tokens currently stored.
func (b *Buffer) Len() int { return b.count }

// Token decodes the i'th token in the buffer.
func (b *Buffer) Token(i int) (Token, error) {
	off := i * TokenSize
	return DecodeToken(b.data[off : off+TokenSize])
}

// Bytes returns the backing storage for the first Len tokens,
// undecoded.
func (b *Buffer) Bytes() []byte { return b.data[:b.count*TokenSize] }

func (b *Buffer) capacity() int { return len(b.data) / TokenSize }

func (b *Buffer) fillable() []byte { return b.data[b.count*TokenSize:] }

func (b *Buffer) grow(n int) { b.count += n }

func (b *Buffer) refCount() int32 { return atomic.LoadInt32(&b.refs) }

func (b *Buffer) acquire(n int32) { atomic.StoreInt32(&b.refs, n) }

// release drops one reference and reports whether the buffer is now
// free for reuse.
func (b *Buffer) release() bool { return atomic.AddInt32(&b.refs, -1) == 0 }

// bufferPool is a fixed-size ring of buffers rotated by the ingest
// loop. A buffer can only be rotated into once every worker has
// released its previous hold on it.
type bufferPool struct {
	bufs []*Buffer
	next int
}

// newBufferPool allocates the pool's buffers concurrently, one
// goroutine per buffer, rather than in a sequential loop: for a deep
// pool with a large per-buffer token capacity, touching every backing
// slice up front is the only part of startup big enough to be worth
// spreading across GOMAXPROCS.
func newBufferPool(depth, tokenCapacity int) *bufferPool {
	bufs := make([]*Buffer, depth)
	var g errgroup.Group
	for i := range bufs {
		i := i
		g.Go(func() error {
			bufs[i] = newBuffer(tokenCapacity)
			return nil
		})
	}
	g.Wait()
	return &bufferPool{bufs: bufs}
}

func (p *bufferPool) current() *Buffer { return p.bufs[p.next] }

// rotate advances to the next buffer in the ring, resetting it for
// reuse. It fails with ErrBackpressureStall if that buffer is still
// referenced by a worker.
func (p *bufferPool) rotate() (*Buffer, error) {
	n := (p.next + 1) % len(p.bufs)
	candidate := p.bufs[n]
	if candidate.refCount() != 0 {
		return nil, ErrBackpressureStall
	}
	candidate.count = 0
	p.next = n
	return candidate, nil
}
