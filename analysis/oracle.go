// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analysis

import (
	"bufio"
	"fmt"
	"io"
	"sort"

	"github.com/tracedoctor/host"
)

// ilpMagic holds the fractional 24/n commit weight for n = 1..4
// instructions committing in the same cycle. 24 is the LCM of
// {1,2,3,4}, so storing 24/n keeps the running total in integer
// arithmetic up to the final divide by 24 at flush time.
var ilpMagic = [4]uint64{24, 12, 8, 6}

// oracleSample is the exhaustive per-address cycle attribution
// tracked by the oracle worker: every simulated cycle is charged to
// exactly one address and one category.
type oracleSample struct {
	tCommit, tStall, tDeferred uint64
	tBrMiss, tFlush, tExcpt    uint64
	tIssueLatency              uint64
	tMemoryLatency             uint64
	cCommit, cStall, cDeferred uint64
	cBrMiss, cFlush, cExcpt    uint64
}

// oracleWorker implements exhaustive cycle attribution: it assumes
// every cycle between two tokens belongs to exactly one address and
// category (commit, stall, deferred, br-miss, flush, except).
type oracleWorker struct {
	base      *Base
	result    map[uint64]*oracleSample
	lastToken tracedoctor.Token
	w         *bufio.Writer
	c         io.Closer
}

func newOracle(args []string, out OutputSet) (tracedoctor.Worker, error) {
	margs, err := ParseArgs(args)
	if err != nil {
		return nil, &ConfigError{Worker: "oracle", Key: "args", Err: err}
	}
	cfg, err := NewSamplingConfig("oracle", margs)
	if err != nil {
		return nil, err
	}
	f, err := out.Create("")
	if err != nil {
		return nil, fmt.Errorf("analysis: oracle: %w", err)
	}
	w := &oracleWorker{base: NewBase(cfg), result: make(map[uint64]*oracleSample), w: bufio.NewWriter(f), c: f}
	fmt.Fprintln(w.w, "pc;tCycles;tCommit;tStall;tDeferred;tBrMiss;tFlush;tExcpt;tIssueLatency;tMemoryLatency;cCommit;cStall;cDeferred;cBrMiss;cFlush;cExcpt")
	return w, nil
}

func (w *oracleWorker) Name() string { return "oracle" }

// lastCommittingOrFirst returns the last slot marked as committing,
// in slot order, or slot 0 if none committed. It mirrors the
// reference bridge's getLastCommitting, which always resolves to an
// address even when the previous token didn't commit anything.
func lastCommittingOrFirst(t tracedoctor.Token) tracedoctor.Slot {
	result := t.Slots[0]
	for _, s := range t.Slots {
		if s.Flags&tracedoctor.InstrCommits != 0 {
			result = s
		}
	}
	return result
}

func (w *oracleWorker) sample(addr uint64) *oracleSample {
	s, ok := w.result[addr]
	if !ok {
		s = &oracleSample{}
		w.result[addr] = s
	}
	return s
}

func (w *oracleWorker) Tick(t tracedoctor.Token) error {
	first, flushDue := w.base.TriggerDetection(t)
	if first {
		w.lastToken = t
		return nil
	}
	if flushDue {
		if err := w.Flush(); err != nil {
			return err
		}
	}

	// Oracle only needs to parse between committing, populated and
	// exception tokens.
	if t.ROB&(tracedoctor.ROBPopulated|tracedoctor.ROBCommitting|tracedoctor.ROBException) != 0 {
		remaining := t.Cycle - w.lastToken.Cycle

		if t.Populated() {
			deferred := remaining - 1
			switch {
			case w.lastToken.Exception():
				addr, _ := w.lastToken.FirstValid()
				w.sample(addr.Address).tExcpt += deferred
			default:
				last := lastCommittingOrFirst(w.lastToken)
				if last.Flags&(tracedoctor.InstrBRMiss|tracedoctor.InstrFlushS) != 0 {
					target := w.sample(last.Address)
					if last.Flags&tracedoctor.InstrBRMiss != 0 {
						target.tBrMiss += deferred
						target.cBrMiss++
					}
					if last.Flags&tracedoctor.InstrFlushS != 0 {
						target.tFlush += deferred
						target.cFlush++
					}
				} else {
					addr, _ := t.FirstValid()
					w.sample(addr.Address).tDeferred += deferred
				}
			}
			remaining = 1
		}

		thisAttributeToken := t.Committing() || t.Exception()
		if !thisAttributeToken || remaining > 1 {
			var attributed uint64
			if thisAttributeToken {
				attributed = 1
			}
			addr, _ := t.FirstValid()
			w.sample(addr.Address).tStall += remaining - attributed
		}

		if thisAttributeToken {
			if t.Committing() {
				thisPopulated := t.Populated()
				lastOnlyPopulated := w.lastToken.Populated() && !(w.lastToken.Committing() || w.lastToken.Exception())
				stalled := !thisPopulated && lastOnlyPopulated
				deferred := thisPopulated || lastOnlyPopulated

				n := t.CommitCount()
				ilp := ilpMagic[n-1]
				first := true
				for _, s := range t.Slots {
					if s.Flags&tracedoctor.InstrCommits == 0 {
						continue
					}
					target := w.sample(s.Address)
					target.tCommit += ilp
					target.tIssueLatency += uint64(s.IssLat)
					target.tMemoryLatency += uint64(s.MemLat)
					target.cCommit++
					if first {
						if stalled {
							target.cStall++
						}
						if deferred {
							target.cDeferred++
						}
						first = false
					}
				}
			} else {
				addr, _ := t.FirstValid()
				target := w.sample(addr.Address)
				target.tExcpt++
				target.cExcpt++
			}
		}
		w.lastToken = t
	}

	return nil
}

func (w *oracleWorker) Flush() error {
	addrs := make([]uint64, 0, len(w.result))
	for a := range w.result {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	for _, a := range addrs {
		r := w.result[a]
		tCommit := float64(r.tCommit) / float64(ilpMagic[0])
		tCycles := tCommit + float64(r.tStall) + float64(r.tDeferred) + float64(r.tBrMiss) + float64(r.tFlush) + float64(r.tExcpt)
		fmt.Fprintf(w.w, "0x%x;%.6f;%.6f;%d;%d;%d;%d;%d;%d;%d;%d;%d;%d;%d;%d;%d\n",
			a, tCycles, tCommit, r.tStall, r.tDeferred, r.tBrMiss, r.tFlush, r.tExcpt,
			r.tIssueLatency, r.tMemoryLatency,
			r.cCommit, r.cStall, r.cDeferred, r.cBrMiss, r.cFlush, r.cExcpt)
		delete(w.result, a)
	}
	return w.w.Flush()
}

func (w *oracleWorker) Close() error {
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.c.Close()
}
