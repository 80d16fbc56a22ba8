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

// Package dbconfig loads pagedb's recognized configuration options (spec
// §6 "Configuration"), following the geth cmd/utils convention of a plain
// TOML file decoded with naoina/toml.
package dbconfig

import (
	"fmt"
	"os"
	"reflect"

	"github.com/naoina/toml"
)

// Config is the full set of options spec §6 recognizes.
type Config struct {
	// Path is the storage root directory.
	Path string

	// CacheCapacityBytes is the total in-memory budget handed to the cache
	// advisor's two segments.
	CacheCapacityBytes int64

	// EntryCachePercent is the percentage of CacheCapacityBytes reserved
	// for the advisor's hot segment; the remainder goes to warm.
	EntryCachePercent int

	// ZstdCompressionLevel is passed straight to the leaf compression codec.
	ZstdCompressionLevel int

	// FlushEveryMS, when non-zero, spawns the periodic flusher task at that
	// interval; zero disables it (spec §6 "None disables it").
	FlushEveryMS int64

	// CleanCacheBytes sizes the fastcache holding serialized leaf bytes
	// between eviction and the next page-in, independent of the advisor's
	// resident-leaf budget.
	CleanCacheBytes int64
}

// Default returns the baseline configuration used when no file is supplied.
func Default() Config {
	return Config{
		CacheCapacityBytes:   256 << 20,
		EntryCachePercent:    50,
		ZstdCompressionLevel: 3,
		FlushEveryMS:         1000,
		CleanCacheBytes:      64 << 20,
	}
}

var tomlSettings = toml.Config{
	NormFieldName: func(_ reflect.Type, key string) string { return key },
	FieldToKey:    func(_ reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("dbconfig: field %q is not defined in %s", field, rt.String())
	},
}

// Load reads and decodes a TOML configuration file, applying it on top of
// Default() so a partial file only overrides what it mentions.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("dbconfig: open %s: %w", path, err)
	}
	defer f.Close()
	if err := tomlSettings.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("dbconfig: decode %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg out as TOML, for `pagedb config dump`-style tooling.
func Save(path string, cfg Config) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("dbconfig: create %s: %w", path, err)
	}
	defer f.Close()
	return tomlSettings.NewEncoder(f).Encode(&cfg)
}
