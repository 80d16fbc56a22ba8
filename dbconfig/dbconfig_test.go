package dbconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pagedb.toml")
	body := "Path = \"/var/lib/pagedb\"\nZstdCompressionLevel = 9\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/pagedb", cfg.Path)
	require.Equal(t, 9, cfg.ZstdCompressionLevel)
	require.Equal(t, Default().CacheCapacityBytes, cfg.CacheCapacityBytes)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pagedb.toml")
	cfg := Default()
	cfg.Path = dir
	cfg.FlushEveryMS = 500
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, dir, got.Path)
	require.Equal(t, int64(500), got.FlushEveryMS)
}
