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
	"github.com/tracedoctor/host/histogram"
)

// teaGoldRegister is the single-instruction lookahead tea_gold
// carries across ticks, so that an OIR instruction's attribution can
// be deferred until its full severity is known (the cost of a
// mispredict or flush only becomes visible on the refill that
// follows it).
type teaGoldRegister struct {
	address    uint64
	flags      uint16
	signature  uint32
	severity   uint64
	ilpLatency uint64
	oir        bool
}

// teaGoldWorker accumulates two histograms per committed
// instruction: a severity distribution keyed by signature and
// address, and a signature-mix histogram keyed by address.
type teaGoldWorker struct {
	base *Base

	register          teaGoldRegister
	lastProgressCycle uint64

	severityHists map[uint32]map[uint64]*histogram.Uint64
	mixHist       map[uint64]*histogram.Uint64

	severity *bufio.Writer
	mix      *bufio.Writer
	cs       io.Closer
	cm       io.Closer
}

func newTeaGold(args []string, out OutputSet) (tracedoctor.Worker, error) {
	margs, err := ParseArgs(args)
	if err != nil {
		return nil, &ConfigError{Worker: "tea_gold", Key: "args", Err: err}
	}
	cfg, err := NewSamplingConfig("tea_gold", margs)
	if err != nil {
		return nil, err
	}
	fs, err := out.Create("")
	if err != nil {
		return nil, fmt.Errorf("analysis: tea_gold: %w", err)
	}
	fm, err := out.Create("_signatures")
	if err != nil {
		fs.Close()
		return nil, fmt.Errorf("analysis: tea_gold: %w", err)
	}
	w := &teaGoldWorker{
		base:          NewBase(cfg),
		severityHists: make(map[uint32]map[uint64]*histogram.Uint64),
		mixHist:       make(map[uint64]*histogram.Uint64),
		severity:      bufio.NewWriter(fs),
		mix:           bufio.NewWriter(fm),
		cs:            fs,
		cm:            fm,
	}
	fmt.Fprintln(w.severity, "signature;address;latencies")
	fmt.Fprintln(w.mix, "address;signatures")
	return w, nil
}

func (w *teaGoldWorker) Name() string { return "tea_gold" }

// attributeOIR finalizes any pending OIR attribution, folding in
// additionalSeverity accrued since the OIR instruction retired (e.g.
// a ROB-empty gap before the next refill).
func (w *teaGoldWorker) attributeOIR(additionalSeverity uint64) {
	if !w.register.oir {
		return
	}
	severity := w.register.severity + additionalSeverity
	w.severityHist(w.register.signature, w.register.address).Add(severity)
	w.resultHist(w.register.address).AddN(uint64(w.register.signature), w.register.ilpLatency+severity*uint64(ilpMagic[0]))
	w.register.oir = false
}

func (w *teaGoldWorker) attribute(address uint64, flags, memlat uint16, severity, ilpLatency uint64) {
	signature := w.base.Signature(w.register.flags, flags, memlat)
	if flags&tracedoctor.InstrOIR == 0 {
		w.severityHist(signature, address).Add(severity)
		w.resultHist(address).AddN(uint64(signature), ilpLatency+severity*uint64(ilpMagic[0]))
	} else {
		w.register.address = address
		w.register.signature = signature
		w.register.severity = severity
		w.register.ilpLatency = ilpLatency
		w.register.oir = true
	}
	w.register.flags = flags
}

func (w *teaGoldWorker) severityHist(signature uint32, address uint64) *histogram.Uint64 {
	m, ok := w.severityHists[signature]
	if !ok {
		m = make(map[uint64]*histogram.Uint64)
		w.severityHists[signature] = m
	}
	h, ok := m[address]
	if !ok {
		h = &histogram.Uint64{}
		m[address] = h
	}
	return h
}

func (w *teaGoldWorker) resultHist(address uint64) *histogram.Uint64 {
	h, ok := w.mixHist[address]
	if !ok {
		h = &histogram.Uint64{}
		w.mixHist[address] = h
	}
	return h
}

func (w *teaGoldWorker) Tick(t tracedoctor.Token) error {
	first, flushDue := w.base.TriggerDetection(t)
	if first {
		w.register = teaGoldRegister{}
		w.lastProgressCycle = t.Cycle
		return nil
	}
	if flushDue {
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if t.Populated() && w.register.oir {
		w.attributeOIR(t.Cycle - w.lastProgressCycle - 1)
		w.lastProgressCycle = t.Cycle - 1
	}

	if t.Committing() || t.Exception() {
		severity := t.Cycle - w.lastProgressCycle - 1
		w.attributeOIR(0)

		if t.Committing() {
			n := t.CommitCount()
			ilp := ilpMagic[n-1]
			for _, s := range t.Slots {
				if s.Flags&tracedoctor.InstrCommits == 0 {
					continue
				}
				w.attribute(s.Address, s.Flags, s.MemLat, severity, ilp)
				severity = 0
			}
		} else {
			addr, _ := t.FirstValid()
			w.attribute(addr.Address, tracedoctor.InstrExcpt, 0, severity, ilpMagic[0])
		}
		w.lastProgressCycle = t.Cycle
	}

	return nil
}

func (w *teaGoldWorker) dump() error {
	sigs := make([]uint32, 0, len(w.severityHists))
	for sig := range w.severityHists {
		sigs = append(sigs, sig)
	}
	sort.Slice(sigs, func(i, j int) bool { return sigs[i] < sigs[j] })
	for _, sig := range sigs {
		addrs := make([]uint64, 0, len(w.severityHists[sig]))
		for a := range w.severityHists[sig] {
			addrs = append(addrs, a)
		}
		sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
		for _, a := range addrs {
			fmt.Fprintf(w.severity, "%d;0x%x;", sig, a)
			if err := w.severityHists[sig][a].WriteRow(w.severity); err != nil {
				return err
			}
			fmt.Fprintln(w.severity)
		}
		delete(w.severityHists, sig)
	}

	addrs := make([]uint64, 0, len(w.mixHist))
	for a := range w.mixHist {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	for _, a := range addrs {
		fmt.Fprintf(w.mix, "0x%x;", a)
		// Bins are keyed by signature and count 24ths of a cycle, so
		// the counter (not the signature) is divided by 24. Zero bins
		// are skipped except the last one, as in WriteRow.
		var sigs, counts []uint64
		w.mixHist[a].ForEach(func(sig, c uint64) {
			sigs = append(sigs, sig)
			counts = append(counts, c)
		})
		sep := ""
		for i, c := range counts {
			if c == 0 && i != len(counts)-1 {
				continue
			}
			fmt.Fprintf(w.mix, "%s%d:%.6f", sep, sigs[i], float64(c)/float64(ilpMagic[0]))
			sep = "/"
		}
		fmt.Fprintln(w.mix)
		delete(w.mixHist, a)
	}

	if err := w.severity.Flush(); err != nil {
		return err
	}
	return w.mix.Flush()
}

func (w *teaGoldWorker) Flush() error { return w.dump() }

func (w *teaGoldWorker) Close() error {
	// Finalize any instruction still awaiting its full OIR severity;
	// the session is ending so no further refill will arrive.
	w.attributeOIR(0)
	if err := w.dump(); err != nil {
		return err
	}
	if err := w.cs.Close(); err != nil {
		return err
	}
	return w.cm.Close()
}
