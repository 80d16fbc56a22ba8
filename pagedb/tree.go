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

package pagedb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Ezkerrox/pagedb/cacheadvisor/lru"
	"github.com/Ezkerrox/pagedb/dbconfig"
	"github.com/Ezkerrox/pagedb/log"
	"github.com/Ezkerrox/pagedb/objectstore"
	"github.com/Ezkerrox/pagedb/objectstore/pebblestore"
	"github.com/Ezkerrox/pagedb/pagecodec"
	"github.com/Ezkerrox/pagedb/pagestore"
)

// Tree is the Tree Facade of spec §2.9: the public, crash-safe ordered
// key-value store. A *Tree doubles as a "handle" in the sense of spec
// §4.11 -- Clone shares the same underlying store and bumps a reference
// count; Close drops it, stopping the flusher and performing a final
// flush once every handle (including the flusher's own) has gone away.
type Tree struct {
	ps     *pagestore.PageStore
	store  objectstore.Store
	codec  *pagecodec.Codec
	cfg    dbconfig.Config
	errs   errorSlot
	sf     singleflight.Group
	logger *log.Logger

	wasRecovered bool

	refcount    atomic.Int64
	flusherStop chan chan struct{}
	flusherDone chan struct{}
	closeOnce   sync.Once
	closeErr    error
}

// Open opens (or creates) a store rooted at cfg.Path, recovering any
// previously flushed leaves and optionally starting the periodic flusher
// task (spec §6 "flush_every_ms", §2.10).
func Open(cfg dbconfig.Config) (*Tree, error) {
	store, err := pebblestore.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("pagedb: open object store: %w", err)
	}

	var recovered []objectstore.LiveObject
	if rec, ok := objectstore.Store(store).(objectstore.Recoverable); ok {
		recovered, err = rec.Recover(context.Background())
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("pagedb: recover: %w", err)
		}
	}

	advisor, err := lru.New(cfg.CacheCapacityBytes, cfg.EntryCachePercent)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("pagedb: construct cache advisor: %w", err)
	}
	codec := pagecodec.NewCodec(cfg.ZstdCompressionLevel)

	ps, err := pagestore.Open(store, advisor, codec, int(cfg.CleanCacheBytes), recovered)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("pagedb: construct page store: %w", err)
	}

	t := &Tree{
		ps:           ps,
		store:        store,
		codec:        codec,
		cfg:          cfg,
		wasRecovered: len(recovered) > 0,
		logger:       log.Root().With("component", "pagedb"),
	}
	t.refcount.Store(1)

	if cfg.FlushEveryMS > 0 {
		t.refcount.Add(1) // the flusher task holds its own handle
		t.flusherStop = make(chan chan struct{})
		t.flusherDone = make(chan struct{})
		go t.runFlusher(time.Duration(cfg.FlushEveryMS) * time.Millisecond)
	}
	return t, nil
}

// Clone returns a new handle sharing this Tree's store. Each Clone must be
// balanced by exactly one Close.
func (t *Tree) Clone() *Tree {
	t.refcount.Add(1)
	return t
}

// WasRecovered reports whether Open found a non-empty prior store to
// recover from.
func (t *Tree) WasRecovered() bool { return t.wasRecovered }

// checkError returns the sticky fatal error, if any has been installed
// (spec §4.10): every public operation must call this first.
func (t *Tree) checkError() error {
	if e := t.errs.checkError(); e != nil {
		return e
	}
	return nil
}

// Close drops this handle. When the last non-flusher handle closes, the
// flusher is asked to stop; when the very last handle (the flusher's own,
// or this one if no flusher runs) closes, a final synchronous flush is
// attempted and the underlying object store is released (spec §4.11).
func (t *Tree) Close() error {
	return t.releaseHandle()
}

func (t *Tree) releaseHandle() error {
	n := t.refcount.Add(-1)
	switch {
	case n == 1 && t.flusherStop != nil:
		t.stopFlusher()
		return nil
	case n <= 0:
		t.closeOnce.Do(func() {
			t.closeErr = t.finalize()
		})
		return t.closeErr
	default:
		return nil
	}
}

func (t *Tree) stopFlusher() {
	ack := make(chan struct{})
	select {
	case t.flusherStop <- ack:
		<-ack
	case <-t.flusherDone:
	}
}

func (t *Tree) finalize() error {
	if _, err := t.Flush(context.Background()); err != nil {
		t.logger.Error("final flush failed", "err", err)
	}
	t.errs.setError(ErrKindShutdown, "tree closed")
	return t.ps.Close()
}

// runFlusher is the optional periodic task of spec §2.10: it calls Flush on
// a fixed interval and parks (stops flushing but keeps answering shutdown
// requests) the moment Flush reports a fatal error.
func (t *Tree) runFlusher(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(t.flusherDone)

	for {
		select {
		case <-ticker.C:
			if _, err := t.Flush(context.Background()); err != nil {
				t.errs.setError(ErrKindIO, err.Error())
				t.logger.Error("flusher parked after fatal error", "err", err)
				ack := <-t.flusherStop
				t.releaseHandle()
				close(ack)
				return
			}
		case ack := <-t.flusherStop:
			// Drop the flusher's handle (running the final flush and closing
			// the store) before acking, so the caller's Close returns only
			// once shutdown is complete.
			t.releaseHandle()
			close(ack)
			return
		}
	}
}
