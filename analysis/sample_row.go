// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analysis

import (
	"bufio"
	"fmt"
)

// TEA sample-flag bits, shared by the CSV row emitted by the
// tea_sampler, ibs_sampler and pebs_sampler workers: which of the
// four slots carry a valid sample, plus why the sample was taken.
const (
	teaFlagValid0  uint16 = 1 << 0
	teaFlagValid1  uint16 = 1 << 1
	teaFlagValid2  uint16 = 1 << 2
	teaFlagValid3  uint16 = 1 << 3
	teaFlagStalled uint16 = 1 << 4
	teaFlagDeferred uint16 = 1 << 5
	teaFlagOIR     uint16 = 1 << 6
)

func sampleHeader() string {
	return "cycle;stallLatency;teaflags;address0;isslat0;memlat0;signature0;address1;isslat1;memlat1;signature1;address2;isslat2;memlat2;signature2;address3;isslat3;memlat3;signature3"
}

// writeSampleRow writes one sampled-profiler CSV row: the sampling
// cycle, stall latency, TEA flag byte, and up to four (address,
// isslat, memlat, signature) tuples. Slots beyond the sample's
// occupancy are left at their zero value, which formats as the
// empty-slot convention "0x0;0;0;0".
func writeSampleRow(w *bufio.Writer, cycle, stallLatency uint64, teaflags uint16, addrs [4]uint64, isslats, memlats [4]uint16, sigs [4]uint32) error {
	_, err := fmt.Fprintf(w, "%d;%d;%d;0x%x;%d;%d;%d;0x%x;%d;%d;%d;0x%x;%d;%d;%d;0x%x;%d;%d;%d\n",
		cycle, stallLatency, teaflags,
		addrs[0], isslats[0], memlats[0], sigs[0],
		addrs[1], isslats[1], memlats[1], sigs[1],
		addrs[2], isslats[2], memlats[2], sigs[2],
		addrs[3], isslats[3], memlats[3], sigs[3])
	return err
}
