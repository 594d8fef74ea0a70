// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package logging

import (
	"fmt"
	"io"
	"os"
	"time"
)

var (
	// DefaultLogger is the default logger used by membuf.
	DefaultLogger Logger = &logger{level: LevelInfo, out: os.Stderr}

	// TimeFormat is the timestamp layout used by the default logger.
	TimeFormat = "2006/01/02 15:04:05.000"
)

const (
	// LevelAll enables all logs.
	LevelAll = iota
	// LevelDebug logs are usually disabled in production.
	LevelDebug
	// LevelInfo is the default logging priority.
	LevelInfo
	// LevelWarn .
	LevelWarn
	// LevelError .
	LevelError
	// LevelNone disables all logs.
	LevelNone
)

// Logger defines log interface.
type Logger interface {
	SetLevel(lvl int)
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
}

// SetLogger sets default logger.
func SetLogger(l Logger) {
	DefaultLogger = l
}

// SetLevel sets default logger's priority.
func SetLevel(lvl int) {
	switch lvl {
	case LevelAll, LevelDebug, LevelInfo, LevelWarn, LevelError, LevelNone:
		DefaultLogger.SetLevel(lvl)
	default:
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", lvl)
	}
}

// SetOutput redirects the built-in logger's output.
func SetOutput(w io.Writer) {
	if l, ok := DefaultLogger.(*logger); ok {
		l.out = w
	}
}

// logger implements Logger and is used by membuf by default.
type logger struct {
	level int
	out   io.Writer
}

// SetLevel sets logs priority.
func (l *logger) SetLevel(lvl int) {
	switch lvl {
	case LevelAll, LevelDebug, LevelInfo, LevelWarn, LevelError, LevelNone:
		l.level = lvl
	default:
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", lvl)
	}
}

func (l *logger) write(tag, format string, v ...any) {
	fmt.Fprintf(l.out, time.Now().Format(TimeFormat)+" "+tag+" "+format+"\n", v...)
}

// Debug logs a message at LevelDebug.
func (l *logger) Debug(format string, v ...any) {
	if LevelDebug >= l.level {
		l.write("[DBG]", format, v...)
	}
}

// Info logs a message at LevelInfo.
func (l *logger) Info(format string, v ...any) {
	if LevelInfo >= l.level {
		l.write("[INF]", format, v...)
	}
}

// Warn logs a message at LevelWarn.
func (l *logger) Warn(format string, v ...any) {
	if LevelWarn >= l.level {
		l.write("[WRN]", format, v...)
	}
}

// Error logs a message at LevelError.
func (l *logger) Error(format string, v ...any) {
	if LevelError >= l.level {
		l.write("[ERR]", format, v...)
	}
}

// Debug uses DefaultLogger to log a message at LevelDebug.
func Debug(format string, v ...any) {
	if DefaultLogger != nil {
		DefaultLogger.Debug(format, v...)
	}
}

// Info uses DefaultLogger to log a message at LevelInfo.
func Info(format string, v ...any) {
	if DefaultLogger != nil {
		DefaultLogger.Info(format, v...)
	}
}

// Warn uses DefaultLogger to log a message at LevelWarn.
func Warn(format string, v ...any) {
	if DefaultLogger != nil {
		DefaultLogger.Warn(format, v...)
	}
}

// Error uses DefaultLogger to log a message at LevelError.
func Error(format string, v ...any) {
	if DefaultLogger != nil {
		DefaultLogger.Error(format, v...)
	}
}
