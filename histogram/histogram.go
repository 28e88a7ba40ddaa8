// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package histogram implements the dynamically-growing value
// histograms used by the tea_gold and latency_hist workers' CSV
// output, along with their run-length serialization.
package histogram

import (
	"fmt"
	"io"
)

// Uint64 is a histogram over small non-negative integer values,
// backed by a slice that grows on demand, the same way the
// reference CLI's per-process histograms do.
type Uint64 struct {
	bins []uint64
}

// AddN records n observations of value v.
func (h *Uint64) AddN(v uint64, n uint64) {
	if v >= uint64(len(h.bins)) {
		h.bins = append(h.bins, make([]uint64, v-uint64(len(h.bins))+1)...)
	}
	h.bins[v] += n
}

// Add records one observation of value v.
func (h *Uint64) Add(v uint64) { h.AddN(v, 1) }

// Empty reports whether the histogram has no bins at all.
func (h *Uint64) Empty() bool { return len(h.bins) == 0 }

// Reset clears every bin without releasing the backing storage.
func (h *Uint64) Reset() {
	for i := range h.bins {
		h.bins[i] = 0
	}
}

// ForEach calls f once per bin, in increasing value order, including
// zero-count bins.
func (h *Uint64) ForEach(f func(value, count uint64)) {
	for v, c := range h.bins {
		f(uint64(v), c)
	}
}

// WriteRow writes the histogram as "v0:c0/v1:c1/.../vmax:cmax" to w,
// skipping any bin whose count is zero except the final, max-value
// bin, which is always printed even when empty. This mirrors the
// reference bridge's hist2file convention: a reader can always find
// the observed maximum by taking the last entry.
func (h *Uint64) WriteRow(w io.Writer) error {
	if len(h.bins) == 0 {
		_, err := io.WriteString(w, "0:0")
		return err
	}
	first := true
	for v, c := range h.bins {
		last := v == len(h.bins)-1
		if c == 0 && !last {
			continue
		}
		if !first {
			if _, err := io.WriteString(w, "/"); err != nil {
				return err
			}
		}
		first = false
		if _, err := fmt.Fprintf(w, "%d:%d", v, c); err != nil {
			return err
		}
	}
	return nil
}

// WriteNormalizedRow is WriteRow for histograms whose bin values are
// fixed-point integers scaled by norm (as tCommit's 24ths-of-a-cycle
// accounting is): each printed value is divided by norm and rendered
// with six decimal places, matching the reference bridge's
// norm-templated hist2file overload.
func (h *Uint64) WriteNormalizedRow(w io.Writer, norm float64) error {
	if len(h.bins) == 0 {
		_, err := io.WriteString(w, "0.000000:0")
		return err
	}
	first := true
	for v, c := range h.bins {
		last := v == len(h.bins)-1
		if c == 0 && !last {
			continue
		}
		if !first {
			if _, err := io.WriteString(w, "/"); err != nil {
				return err
			}
		}
		first = false
		if _, err := fmt.Fprintf(w, "%.6f:%d", float64(v)/norm, c); err != nil {
			return err
		}
	}
	return nil
}
