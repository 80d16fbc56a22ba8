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

package pagecodec

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Codec wraps a leaf's encoded record bytes in zstd framing at a configured
// level (spec §6 "zstd_compression_level"). Encoders/decoders are pooled
// since leaf serialization happens on hot paths (cooperative flush, page
// eviction) that must not pay zstd's setup cost per call.
type Codec struct {
	level    zstd.EncoderLevel
	encoders sync.Pool
	decoders sync.Pool
}

// NewCodec builds a Codec for the given zstd level (the raw integer level
// from configuration, e.g. 1-22; mapped onto klauspost's EncoderLevel enum).
func NewCodec(level int) *Codec {
	c := &Codec{level: zstd.EncoderLevelFromZstd(level)}
	c.encoders.New = func() any {
		w, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(c.level))
		if err != nil {
			panic(fmt.Sprintf("pagecodec: construct zstd encoder: %v", err))
		}
		return w
	}
	c.decoders.New = func() any {
		r, err := zstd.NewReader(nil)
		if err != nil {
			panic(fmt.Sprintf("pagecodec: construct zstd decoder: %v", err))
		}
		return r
	}
	return c
}

// Compress returns the zstd-framed form of b.
func (c *Codec) Compress(b []byte) []byte {
	enc := c.encoders.Get().(*zstd.Encoder)
	defer c.encoders.Put(enc)
	return enc.EncodeAll(b, make([]byte, 0, len(b)))
}

// Decompress reverses Compress.
func (c *Codec) Decompress(b []byte) ([]byte, error) {
	dec := c.decoders.Get().(*zstd.Decoder)
	defer c.decoders.Put(dec)
	out, err := dec.DecodeAll(b, nil)
	if err != nil {
		return nil, fmt.Errorf("pagecodec: zstd decode: %w", err)
	}
	return out, nil
}

// EncodeLeaf is the full serialize(level) operation of spec §4.1: encode the
// record, then compress it.
func (c *Codec) EncodeLeaf(r *Record) []byte {
	return c.Compress(EncodeRecord(r))
}

// DecodeLeaf is the full deserialize(bytes) operation: decompress, then
// parse the record. The caller (pagestore) recomputes in_memory_size as the
// decompressed length, per spec §4.1.
func (c *Codec) DecodeLeaf(b []byte) (*Record, int, error) {
	raw, err := c.Decompress(b)
	if err != nil {
		return nil, 0, err
	}
	rec, err := DecodeRecord(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("pagecodec: decode record: %w", err)
	}
	return rec, len(raw), nil
}
