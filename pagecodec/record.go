// Copyright 2023 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package pagecodec implements the leaf serialization format (spec §4.1
// "Serialization") and the compression codec wrapping it (spec §6
// "zstd_compression_level"). The wire record is a stable, self-describing
// encoding of (lo, hi, prefix_length, data); the pagestore package never
// touches these bytes directly, only Record values.
package pagecodec

import (
	"encoding/binary"
	"fmt"
)

// Entry is one key/value pair of a leaf's data map, in the order they
// should be re-inserted (ascending key order).
type Entry struct {
	Key   []byte
	Value []byte
}

// Record is the decoded form of a leaf's durable representation.
type Record struct {
	Lo           []byte
	Hi           []byte // nil means unbounded (+infinity)
	PrefixLength uint32 // reserved; always 0 in this specification
	Entries      []Entry
}

const recordMagic = 0x50414745 // "PAGE"
const recordVersion = 1

// EncodeRecord produces the uncompressed, self-describing byte record for
// r. The format is a fixed header followed by length-prefixed fields:
//
//	magic(4) version(1) hasHi(1) prefixLength(varint)
//	loLen(varint) lo
//	[hiLen(varint) hi]
//	entryCount(varint)
//	{ keyLen(varint) key valLen(varint) val } * entryCount
func EncodeRecord(r *Record) []byte {
	size := 4 + 1 + 1 + binary.MaxVarintLen32 + binary.MaxVarintLen64 + len(r.Lo)
	if r.Hi != nil {
		size += binary.MaxVarintLen64 + len(r.Hi)
	}
	size += binary.MaxVarintLen64
	for _, e := range r.Entries {
		size += binary.MaxVarintLen64*2 + len(e.Key) + len(e.Value)
	}
	buf := make([]byte, 0, size)

	var scratch [binary.MaxVarintLen64]byte
	putUvarint := func(v uint64) {
		n := binary.PutUvarint(scratch[:], v)
		buf = append(buf, scratch[:n]...)
	}

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], recordMagic)
	buf = append(buf, hdr[:]...)
	buf = append(buf, recordVersion)
	if r.Hi != nil {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	putUvarint(uint64(r.PrefixLength))
	putUvarint(uint64(len(r.Lo)))
	buf = append(buf, r.Lo...)
	if r.Hi != nil {
		putUvarint(uint64(len(r.Hi)))
		buf = append(buf, r.Hi...)
	}
	putUvarint(uint64(len(r.Entries)))
	for _, e := range r.Entries {
		putUvarint(uint64(len(e.Key)))
		buf = append(buf, e.Key...)
		putUvarint(uint64(len(e.Value)))
		buf = append(buf, e.Value...)
	}
	return buf
}

// DecodeRecord parses bytes produced by EncodeRecord. All returned slices
// are freshly allocated copies, safe for the caller to retain and mutate
// (and, via common.IVecFromShared, to adopt without a further copy).
func DecodeRecord(b []byte) (*Record, error) {
	r := &Record{}
	if len(b) < 6 {
		return nil, fmt.Errorf("pagecodec: record too short (%d bytes)", len(b))
	}
	if binary.BigEndian.Uint32(b[:4]) != recordMagic {
		return nil, fmt.Errorf("pagecodec: bad magic")
	}
	pos := 4
	version := b[pos]
	pos++
	if version != recordVersion {
		return nil, fmt.Errorf("pagecodec: unsupported record version %d", version)
	}
	hasHi := b[pos] != 0
	pos++

	readUvarint := func() (uint64, error) {
		v, n := binary.Uvarint(b[pos:])
		if n <= 0 {
			return 0, fmt.Errorf("pagecodec: truncated varint at offset %d", pos)
		}
		pos += n
		return v, nil
	}
	readBytes := func(n uint64) ([]byte, error) {
		if uint64(len(b)-pos) < n {
			return nil, fmt.Errorf("pagecodec: truncated field at offset %d (want %d bytes)", pos, n)
		}
		out := append([]byte(nil), b[pos:pos+int(n)]...)
		pos += int(n)
		return out, nil
	}

	prefixLen, err := readUvarint()
	if err != nil {
		return nil, err
	}
	r.PrefixLength = uint32(prefixLen)

	loLen, err := readUvarint()
	if err != nil {
		return nil, err
	}
	if r.Lo, err = readBytes(loLen); err != nil {
		return nil, err
	}

	if hasHi {
		hiLen, err := readUvarint()
		if err != nil {
			return nil, err
		}
		if r.Hi, err = readBytes(hiLen); err != nil {
			return nil, err
		}
	}

	count, err := readUvarint()
	if err != nil {
		return nil, err
	}
	r.Entries = make([]Entry, 0, count)
	for i := uint64(0); i < count; i++ {
		klen, err := readUvarint()
		if err != nil {
			return nil, err
		}
		key, err := readBytes(klen)
		if err != nil {
			return nil, err
		}
		vlen, err := readUvarint()
		if err != nil {
			return nil, err
		}
		val, err := readBytes(vlen)
		if err != nil {
			return nil, err
		}
		r.Entries = append(r.Entries, Entry{Key: key, Value: val})
	}
	return r, nil
}
