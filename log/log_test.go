package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerFormatsContext(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.Info("page evicted", "id", 42, "size", 128)
	out := buf.String()
	require.Contains(t, out, "page evicted")
	require.Contains(t, out, "id=42")
	require.Contains(t, out, "size=128")
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.SetLevel(LevelWarn)
	l.Debug("should not appear")
	l.Warn("should appear")
	require.False(t, strings.Contains(buf.String(), "should not appear"))
	require.True(t, strings.Contains(buf.String(), "should appear"))
}

func TestLoggerWithContext(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf).With("component", "pagestore")
	l.Info("split", "key", "abc")
	require.Contains(t, buf.String(), "component=pagestore")
	require.Contains(t, buf.String(), "key=abc")
}
