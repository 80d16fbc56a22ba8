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

import "github.com/cespare/xxhash/v2"

// ChecksumWriter folds a sequence of byte records into a single
// order-dependent digest, used by the tree facade's checksum() operation
// (which feeds it length-prefixed keys and values).
type ChecksumWriter struct {
	d *xxhash.Digest
}

// NewChecksumWriter returns a fresh ChecksumWriter.
func NewChecksumWriter() *ChecksumWriter {
	return &ChecksumWriter{d: xxhash.New()}
}

// Write folds b into the running digest. Records must be written in a
// consistent order (Tree.Checksum uses ascending key order) for the
// resulting checksum to be comparable between two runs over the same
// logical content.
func (c *ChecksumWriter) Write(b []byte) {
	_, _ = c.d.Write(b)
}

// Sum64 returns the current digest value.
func (c *ChecksumWriter) Sum64() uint64 {
	return c.d.Sum64()
}
