// Copyright 2014 The go-ethereum Authors
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

// Package metrics is a thin registration layer over rcrowley/go-metrics,
// mirroring go-ethereum's metrics package conventions so that pagestore's
// page-in, eviction and flush hot paths can register named meters exactly
// the way triedb/pathdb does (dirtyHitMeter, commitBytesMeter, ...).
package metrics

import gometrics "github.com/rcrowley/go-metrics"

// Enabled gates registration; flipped off in tight benchmark loops the same
// way go-ethereum's metrics.Enabled does.
var Enabled = true

// DefaultRegistry is the process-wide registry new meters attach to.
var DefaultRegistry = gometrics.NewRegistry()

type nilMeter struct{}

func (nilMeter) Count() int64                          { return 0 }
func (nilMeter) Mark(int64)                             {}
func (nilMeter) Rate1() float64                          { return 0 }
func (nilMeter) Rate5() float64                          { return 0 }
func (nilMeter) Rate15() float64                         { return 0 }
func (nilMeter) RateMean() float64                       { return 0 }
func (nilMeter) Snapshot() gometrics.Meter               { return nilMeter{} }
func (nilMeter) Stop()                                   {}

// NewRegisteredMeter creates and registers a new Meter, or returns a no-op
// stub when metrics are disabled.
func NewRegisteredMeter(name string, r gometrics.Registry) gometrics.Meter {
	if !Enabled {
		return nilMeter{}
	}
	if r == nil {
		r = DefaultRegistry
	}
	m := gometrics.NewMeter()
	_ = r.Register(name, m)
	return m
}

// NewRegisteredCounter creates and registers a new Counter, or a no-op stub.
func NewRegisteredCounter(name string, r gometrics.Registry) gometrics.Counter {
	if !Enabled {
		return gometrics.NilCounter{}
	}
	if r == nil {
		r = DefaultRegistry
	}
	c := gometrics.NewCounter()
	_ = r.Register(name, c)
	return c
}

// NewRegisteredGauge creates and registers a new Gauge, or a no-op stub.
func NewRegisteredGauge(name string, r gometrics.Registry) gometrics.Gauge {
	if !Enabled {
		return gometrics.NilGauge{}
	}
	if r == nil {
		r = DefaultRegistry
	}
	g := gometrics.NewGauge()
	_ = r.Register(name, g)
	return g
}

// NewRegisteredTimer creates and registers a new Timer, or a no-op stub.
func NewRegisteredTimer(name string, r gometrics.Registry) gometrics.Timer {
	if !Enabled {
		return gometrics.NilTimer{}
	}
	if r == nil {
		r = DefaultRegistry
	}
	t := gometrics.NewTimer()
	_ = r.Register(name, t)
	return t
}
