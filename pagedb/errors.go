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

// Package pagedb implements the Tree Facade of spec §4.6-§4.11: the public
// ordered key-value store built on top of package pagestore's Index/Leaf/
// Node/epoch machinery.
package pagedb

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrorKind classifies a fatal error (spec §7), not a Go error type -- every
// kind is surfaced as an *Error carrying one of these.
type ErrorKind int

const (
	// ErrKindIO covers read/write_batch/maintenance failures from the
	// object store.
	ErrKindIO ErrorKind = iota
	// ErrKindCorruption covers a leaf that failed to deserialize.
	ErrKindCorruption
	// ErrKindShutdown is installed by the last handle's Close to make
	// straggling calls fail fast.
	ErrKindShutdown
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindIO:
		return "io"
	case ErrKindCorruption:
		return "corruption"
	case ErrKindShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Error is a sticky fatal error (spec §4.10/§7): once one is installed,
// every subsequent call to a Tree operation returns it unchanged.
type Error struct {
	Kind   ErrorKind
	Reason string
}

func (e *Error) Error() string { return fmt.Sprintf("pagedb: fatal %s error: %s", e.Kind, e.Reason) }

// ErrCASMismatch names a compare-and-swap usage mismatch. CompareAndSwap
// itself does not return it: a mismatch is reported as a CASResult with
// Success=false and a nil error. It is never installed as a sticky fatal
// error.
var ErrCASMismatch = errors.New("pagedb: compare-and-swap mismatch")

// errorSlot is the process-wide atomic CAS slot of spec §4.10. Embedded in
// Tree rather than literally global, so multiple Trees in one process don't
// share fatality.
type errorSlot struct {
	v atomic.Pointer[Error]
}

// setError installs err as the sticky fatal error if none is set yet.
// Subsequent calls are no-ops: "the first wins" (spec §7).
func (s *errorSlot) setError(kind ErrorKind, reason string) *Error {
	e := &Error{Kind: kind, Reason: reason}
	s.v.CompareAndSwap(nil, e)
	return s.v.Load()
}

// checkError returns the sticky fatal error, if any.
func (s *errorSlot) checkError() *Error {
	return s.v.Load()
}
