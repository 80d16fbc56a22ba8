// Copyright 2022 The go-ethereum Authors
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

package common

import "bytes"

// ivecInline is the inline capacity of an IVec before it spills to a shared
// heap allocation. Most keys and values in a paged index are short (routing
// separators, counters, small records); keeping them inline avoids a heap
// allocation and a pointer chase on the hot get/insert path.
const ivecInline = 23

// IVec is an immutable byte string with small-buffer optimization: strings
// of at most ivecInline bytes are stored inline in the value, longer strings
// are held by a shared (copy-on-write) backing slice. Zero value is the
// empty string.
type IVec struct {
	n      uint8
	inline [ivecInline]byte
	heap   []byte
}

// NewIVec copies b into a new IVec. The caller's slice is never aliased.
func NewIVec(b []byte) IVec {
	var v IVec
	if len(b) <= ivecInline {
		v.n = uint8(len(b))
		copy(v.inline[:], b)
		return v
	}
	v.heap = append([]byte(nil), b...)
	return v
}

// IVecFromShared wraps an already-owned, never-to-be-mutated slice without
// copying. Callers must guarantee b is not mutated afterwards; used when
// decoding a serialized record into fresh buffers.
func IVecFromShared(b []byte) IVec {
	if len(b) <= ivecInline {
		return NewIVec(b)
	}
	var v IVec
	v.heap = b
	return v
}

// Len returns the length of the byte string.
func (v IVec) Len() int {
	if v.heap != nil {
		return len(v.heap)
	}
	return int(v.n)
}

// Bytes returns the byte string. The returned slice must not be mutated by
// the caller; it may alias shared storage.
func (v IVec) Bytes() []byte {
	if v.heap != nil {
		return v.heap
	}
	return v.inline[:v.n]
}

// Compare returns -1, 0 or +1 as v is lexicographically less than, equal to,
// or greater than other.
func (v IVec) Compare(other IVec) int {
	return bytes.Compare(v.Bytes(), other.Bytes())
}

// Less reports whether v sorts strictly before other.
func (v IVec) Less(other IVec) bool {
	return v.Compare(other) < 0
}

// Equal reports whether v and other hold the same byte string.
func (v IVec) Equal(other IVec) bool {
	return v.Compare(other) == 0
}

// IsEmpty reports whether v is the zero-length byte string (used as the
// sentinel low key of the left-most leaf).
func (v IVec) IsEmpty() bool {
	return v.Len() == 0
}

// String implements fmt.Stringer for logging; non-printable content is
// rendered as a quoted Go string.
func (v IVec) String() string {
	return quote(v.Bytes())
}

func quote(b []byte) string {
	const hex = "0123456789abcdef"
	out := make([]byte, 0, len(b)*2+2)
	out = append(out, '"')
	for _, c := range b {
		switch {
		case c == '"' || c == '\\':
			out = append(out, '\\', c)
		case c >= 0x20 && c < 0x7f:
			out = append(out, c)
		default:
			out = append(out, '\\', 'x', hex[c>>4], hex[c&0xf])
		}
	}
	out = append(out, '"')
	return string(out)
}

// CommonPrefixLen returns the length of the longest common prefix of a and b.
func CommonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}
