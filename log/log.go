// Copyright 2016 The go-ethereum Authors
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

// Package log implements pagedb's structured, leveled logger. It follows
// go-ethereum's log idiom: messages carry a short static string plus an
// alternating key/value context, e.g.
//
//	log.Info("page evicted", "id", id, "size", size)
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Level is the severity of a log record.
type Level int32

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	case LevelTrace:
		return "TRACE"
	default:
		return "????"
	}
}

var levelColor = map[Level]*color.Color{
	LevelError: color.New(color.FgRed, color.Bold),
	LevelWarn:  color.New(color.FgYellow),
	LevelInfo:  color.New(color.FgGreen),
	LevelDebug: color.New(color.FgCyan),
	LevelTrace: color.New(color.FgMagenta),
}

// Logger is a leveled, context-carrying logger. The zero value is not
// usable; construct one with New or use the package-level root.
type Logger struct {
	out   io.Writer
	color bool
	level atomic.Int32
	mu    sync.Mutex
	ctx   []any
}

// New constructs a Logger writing to w. Color output is auto-detected from
// w when w is an *os.File and the stream is a terminal.
func New(w io.Writer, ctx ...any) *Logger {
	l := &Logger{out: w, ctx: append([]any(nil), ctx...)}
	l.level.Store(int32(LevelInfo))
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		l.color = true
		l.out = colorable.NewColorable(f)
	}
	return l
}

var root = New(os.Stderr)

// SetLevel adjusts the minimum level the root logger emits.
func SetLevel(lvl Level) { root.SetLevel(lvl) }

// SetLevel adjusts the minimum level l emits.
func (l *Logger) SetLevel(lvl Level) { l.level.Store(int32(lvl)) }

// With returns a derived Logger that prepends ctx to every record.
func (l *Logger) With(ctx ...any) *Logger {
	nl := &Logger{out: l.out, color: l.color, ctx: append(append([]any(nil), l.ctx...), ctx...)}
	nl.level.Store(l.level.Load())
	return nl
}

func (l *Logger) log(lvl Level, msg string, ctx []any) {
	if Level(l.level.Load()) < lvl {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := time.Now().Format("2006-01-02T15:04:05.000")
	tag := lvl.String()
	if l.color {
		if c, ok := levelColor[lvl]; ok {
			tag = c.Sprint(tag)
		}
	}
	fmt.Fprintf(l.out, "%s [%s] %s", ts, tag, msg)
	all := append(append([]any(nil), l.ctx...), ctx...)
	for i := 0; i+1 < len(all); i += 2 {
		fmt.Fprintf(l.out, " %v=%v", all[i], formatValue(all[i+1]))
	}
	if len(all)%2 == 1 {
		fmt.Fprintf(l.out, " %v=MISSING", all[len(all)-1])
	}
	fmt.Fprintln(l.out)
}

type terminalStringer interface{ TerminalString() string }

func formatValue(v any) any {
	if ts, ok := v.(terminalStringer); ok {
		return ts.TerminalString()
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return v
}

func (l *Logger) Error(msg string, ctx ...any) { l.log(LevelError, msg, ctx) }
func (l *Logger) Warn(msg string, ctx ...any)  { l.log(LevelWarn, msg, ctx) }
func (l *Logger) Info(msg string, ctx ...any)  { l.log(LevelInfo, msg, ctx) }
func (l *Logger) Debug(msg string, ctx ...any) { l.log(LevelDebug, msg, ctx) }
func (l *Logger) Trace(msg string, ctx ...any) { l.log(LevelTrace, msg, ctx) }

// Crit logs at error level and then terminates the process, matching
// go-ethereum's log.Crit -- used by cmd/pagedb to report a failed command
// and exit non-zero.
func (l *Logger) Crit(msg string, ctx ...any) {
	l.log(LevelError, msg, ctx)
	os.Exit(1)
}

func Error(msg string, ctx ...any) { root.Error(msg, ctx...) }
func Warn(msg string, ctx ...any)  { root.Warn(msg, ctx...) }
func Info(msg string, ctx ...any)  { root.Info(msg, ctx...) }
func Debug(msg string, ctx ...any) { root.Debug(msg, ctx...) }
func Trace(msg string, ctx ...any) { root.Trace(msg, ctx...) }
func Crit(msg string, ctx ...any)  { root.Crit(msg, ctx...) }

// Root returns the package-level default logger, for components that want
// to derive a sub-logger via With.
func Root() *Logger { return root }
