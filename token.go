// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tracedoctor implements the host side of a hardware trace
// bridge: it decodes fixed-width reorder-buffer analysis tokens,
// manages the buffer pool they're pulled into, and dispatches them
// to a pool of analysis workers in cycle order.
package tracedoctor

import (
	"encoding/binary"
	"fmt"
)

// TokenSize is the wire size, in bytes, of a single token.
const TokenSize = 64

// ROB status bits, packed into bits 44-47 of the first token word,
// just above the 44-bit cycle counter.
const (
	ROBCommitting  uint8 = 1 << 0
	ROBPopulated   uint8 = 1 << 1
	ROBDispatching uint8 = 1 << 2
	ROBException   uint8 = 1 << 3
)

// Instruction flag bits, one set per slot.
const (
	InstrCommits    uint16 = 1 << 0
	InstrValid      uint16 = 1 << 1
	InstrICacheMiss uint16 = 1 << 2
	InstrITLBSMiss  uint16 = 1 << 3
	InstrITLBPMiss  uint16 = 1 << 4
	InstrDCacheMiss uint16 = 1 << 5
	InstrDTLBSMiss  uint16 = 1 << 6
	InstrDTLBPMiss  uint16 = 1 << 7
	InstrLSUFull    uint16 = 1 << 8
	InstrRefetched  uint16 = 1 << 9
	InstrBRMiss     uint16 = 1 << 10
	InstrFlushS     uint16 = 1 << 11
	InstrExcpt      uint16 = 1 << 12
)

// InstrOIR is the set of flags that mark an instruction as
// "offending in retirement": its cost is only realized on the next
// populated cycle, not its own.
const InstrOIR = InstrBRMiss | InstrFlushS | InstrExcpt

// InstrMiss is every flag that represents a missed or discarded
// instruction, including OIR causes.
const InstrMiss = InstrICacheMiss | InstrITLBSMiss | InstrITLBPMiss |
	InstrDCacheMiss | InstrDTLBSMiss | InstrDTLBPMiss | InstrLSUFull |
	InstrRefetched | InstrOIR

// NumSignatures is the size of the signature space produced by Signature.
const NumSignatures = 1 << 13

// Slot is one of the four retirement-width instruction slots carried
// by a token.
type Slot struct {
	Flags   uint16
	Address uint64
	MemLat  uint16
	IssLat  uint16
}

func (s Slot) has(flag uint16) bool { return s.Flags&flag != 0 }

// Token is a single decoded reorder-buffer analysis record.
type Token struct {
	Cycle   uint64 // 44-bit monotonic cycle counter
	ROB     uint8  // 4-bit status bitset
	ROBHead uint8
	ROBTail uint8
	Slots   [4]Slot
}

// DecodeToken interprets a TokenSize-byte wire record.
func DecodeToken(b []byte) (Token, error) {
	if len(b) < TokenSize {
		return Token{}, fmt.Errorf("tracedoctor: short token: got %d bytes, want %d", len(b), TokenSize)
	}
	word := binary.LittleEndian.Uint64(b[0:8])
	t := Token{
		Cycle:   word & (1<<44 - 1),
		ROB:     uint8((word >> 44) & 0xf),
		ROBHead: uint8((word >> 48) & 0xff),
		ROBTail: uint8((word >> 56) & 0xff),
	}
	off := 8
	for i := range t.Slots {
		t.Slots[i] = Slot{
			Flags:   binary.LittleEndian.Uint16(b[off:]),
			Address: binary.LittleEndian.Uint64(b[off+2:]),
			MemLat:  binary.LittleEndian.Uint16(b[off+10:]),
			IssLat:  binary.LittleEndian.Uint16(b[off+12:]),
		}
		off += 14
	}
	return t, nil
}

// EncodeToken is the inverse of DecodeToken. It's used by the
// synthetic bridge and by tests to build wire-format captures.
func EncodeToken(t Token) [TokenSize]byte {
	var b [TokenSize]byte
	word := t.Cycle&(1<<44-1) | uint64(t.ROB&0xf)<<44 | uint64(t.ROBHead)<<48 | uint64(t.ROBTail)<<56
	binary.LittleEndian.PutUint64(b[0:8], word)
	off := 8
	for _, s := range t.Slots {
		binary.LittleEndian.PutUint16(b[off:], s.Flags)
		binary.LittleEndian.PutUint64(b[off+2:], s.Address)
		binary.LittleEndian.PutUint16(b[off+10:], s.MemLat)
		binary.LittleEndian.PutUint16(b[off+12:], s.IssLat)
		off += 14
	}
	return b
}

func (t Token) Committing() bool  { return t.ROB&ROBCommitting != 0 }
func (t Token) Populated() bool   { return t.ROB&ROBPopulated != 0 }
func (t Token) Dispatching() bool { return t.ROB&ROBDispatching != 0 }
func (t Token) Exception() bool   { return t.ROB&ROBException != 0 }

// CommitCount returns the number of slots marked as committing.
func (t Token) CommitCount() int {
	n := 0
	for _, s := range t.Slots {
		if s.has(InstrCommits) {
			n++
		}
	}
	return n
}

// FirstValid returns the first slot carrying InstrValid.
func (t Token) FirstValid() (Slot, bool) {
	for _, s := range t.Slots {
		if s.has(InstrValid) {
			return s, true
		}
	}
	return Slot{}, false
}

// FirstCommitting returns the first slot carrying InstrCommits.
func (t Token) FirstCommitting() (Slot, bool) {
	for _, s := range t.Slots {
		if s.has(InstrCommits) {
			return s, true
		}
	}
	return Slot{}, false
}

// LastCommitting returns the last slot carrying InstrCommits.
func (t Token) LastCommitting() (Slot, bool) {
	found := false
	var last Slot
	for _, s := range t.Slots {
		if s.has(InstrCommits) {
			last, found = s, true
		}
	}
	return last, found
}

// Signature summarizes an instruction's miss profile, for use as a
// histogram key by the sampled and exhaustive analysis workers. It's a
// pure function of its arguments. The predecessor's OIR bits
// (lastFlags&InstrOIR) are shifted left by 3, which puts them on bits
// 13-15; the 13-bit mask clears them, so the predecessor's OIR context
// does not appear in the result.
func Signature(lastFlags, flags uint16, memlat, l2MissLatency, l3MissLatency uint16) uint32 {
	sig := uint32(flags & InstrMiss)
	if flags&InstrDCacheMiss != 0 {
		if memlat >= l2MissLatency {
			sig |= 1
		}
		if memlat >= l3MissLatency {
			sig |= 2
		}
	}
	sig |= uint32(lastFlags&InstrOIR) << 3
	return sig & (NumSignatures - 1)
}
