// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package util

import (
	"encoding/binary"
	"hash"

	"github.com/spaolacci/murmur3"
)

// Hasher accumulates a 32-bit murmur3 hash over a sequence of scalar values.
// It is used to hash immutable property specs, which are compared
// structurally and need hashes consistent with that comparison.
type Hasher struct {
	h   hash.Hash32
	buf [8]byte
}

// MakeHasher returns a Hasher ready for use.
func MakeHasher() Hasher {
	return Hasher{h: murmur3.New32()}
}

// AddUint32 mixes v into the hash.
func (h *Hasher) AddUint32(v uint32) {
	binary.LittleEndian.PutUint32(h.buf[:4], v)
	_, _ = h.h.Write(h.buf[:4])
}

// AddUint64 mixes v into the hash.
func (h *Hasher) AddUint64(v uint64) {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	_, _ = h.h.Write(h.buf[:])
}

// AddBool mixes b into the hash.
func (h *Hasher) AddBool(b bool) {
	if b {
		h.buf[0] = 1
	} else {
		h.buf[0] = 0
	}
	_, _ = h.h.Write(h.buf[:1])
}

// AddString mixes s into the hash.
func (h *Hasher) AddString(s string) {
	h.AddUint32(uint32(len(s)))
	_, _ = h.h.Write([]byte(s))
}

// Sum32 returns the accumulated hash.
func (h *Hasher) Sum32() uint32 {
	return h.h.Sum32()
}

// CombineHashes mixes two 32-bit hashes, the way hash-consed property specs
// fold their children's hashes into their own.
func CombineHashes(a, b uint32) uint32 {
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[:4], a)
	binary.LittleEndian.PutUint32(buf[4:], b)
	return murmur3.Sum32(buf[:])
}
