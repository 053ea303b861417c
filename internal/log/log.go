// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

// Package log implements the leveled logger used across the bridge.
// It keeps the logger surface of the gossamer host (child loggers carrying
// a package context, levels from trace to critical) on top of zerolog.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Level is the logging level.
type Level uint8

const (
	// Critical is the cirtical (crit) level.
	Critical Level = iota
	// Error is the error (eror) level.
	Error
	// Warn is the warn level.
	Warn
	// Info is the info level.
	Info
	// Debug is the debug (dbug) level.
	Debug
	// Trace is the trace (trce) level.
	Trace
)

// ParseLevel parses a level string such as "info" or "trce".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "crit", "critical":
		return Critical, nil
	case "eror", "error":
		return Error, nil
	case "warn":
		return Warn, nil
	case "info":
		return Info, nil
	case "dbug", "debug":
		return Debug, nil
	case "trce", "trace":
		return Trace, nil
	}
	return 0, fmt.Errorf("level is not recognised: %s", s)
}

func (l Level) toZerolog() zerolog.Level {
	switch l {
	case Critical:
		return zerolog.FatalLevel
	case Error:
		return zerolog.ErrorLevel
	case Warn:
		return zerolog.WarnLevel
	case Info:
		return zerolog.InfoLevel
	case Debug:
		return zerolog.DebugLevel
	case Trace:
		return zerolog.TraceLevel
	}
	return zerolog.InfoLevel
}

// Logger is a leveled logger with a static context.
// The zero value is unusable; use NewFromGlobal.
type Logger struct {
	zl zerolog.Logger
}

type settings struct {
	level   *Level
	writer  io.Writer
	context [][2]string
}

// Option is a logger creation option.
type Option func(s *settings)

// SetLevel sets the level for the logger.
func SetLevel(level Level) Option {
	return func(s *settings) { s.level = &level }
}

// SetWriter sets the writer for the logger.
func SetWriter(writer io.Writer) Option {
	return func(s *settings) { s.writer = writer }
}

// AddContext adds a key-value context pair to every log line of the logger.
func AddContext(key, value string) Option {
	return func(s *settings) { s.context = append(s.context, [2]string{key, value}) }
}

var globalWriter io.Writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05.000"}
var globalLevel = Info

// PatchGlobal changes the writer and level used as defaults by
// NewFromGlobal. It only affects loggers created after the call.
func PatchGlobal(options ...Option) {
	s := settings{}
	for _, option := range options {
		option(&s)
	}
	if s.writer != nil {
		globalWriter = s.writer
	}
	if s.level != nil {
		globalLevel = *s.level
	}
}

// NewFromGlobal creates a new logger from the global writer and level,
// with the options given applied on top.
func NewFromGlobal(options ...Option) Logger {
	s := settings{}
	for _, option := range options {
		option(&s)
	}

	level := globalLevel
	if s.level != nil {
		level = *s.level
	}
	writer := globalWriter
	if s.writer != nil {
		writer = s.writer
	}

	ctx := zerolog.New(writer).Level(level.toZerolog()).With().Timestamp()
	for _, pair := range s.context {
		ctx = ctx.Str(pair[0], pair[1])
	}

	return Logger{zl: ctx.Logger()}
}

// New creates a child logger inheriting the context of the parent,
// with the options given applied on top.
func (l Logger) New(options ...Option) Logger {
	s := settings{}
	for _, option := range options {
		option(&s)
	}

	ctx := l.zl.With()
	for _, pair := range s.context {
		ctx = ctx.Str(pair[0], pair[1])
	}
	child := ctx.Logger()
	if s.level != nil {
		child = child.Level(s.level.toZerolog())
	}

	return Logger{zl: child}
}

func (l Logger) Trace(s string) { l.zl.Trace().Msg(s) }
func (l Logger) Debug(s string) { l.zl.Debug().Msg(s) }
func (l Logger) Info(s string)  { l.zl.Info().Msg(s) }
func (l Logger) Warn(s string)  { l.zl.Warn().Msg(s) }
func (l Logger) Error(s string) { l.zl.Error().Msg(s) }

// Critical logs at the critical level. It does not exit the process.
func (l Logger) Critical(s string) { l.zl.WithLevel(zerolog.FatalLevel).Msg(s) }

func (l Logger) Tracef(format string, args ...interface{}) { l.zl.Trace().Msgf(format, args...) }
func (l Logger) Debugf(format string, args ...interface{}) { l.zl.Debug().Msgf(format, args...) }
func (l Logger) Infof(format string, args ...interface{})  { l.zl.Info().Msgf(format, args...) }
func (l Logger) Warnf(format string, args ...interface{})  { l.zl.Warn().Msgf(format, args...) }
func (l Logger) Errorf(format string, args ...interface{}) { l.zl.Error().Msgf(format, args...) }
func (l Logger) Criticalf(format string, args ...interface{}) {
	l.zl.WithLevel(zerolog.FatalLevel).Msgf(format, args...)
}
