// Package clog provides the leveled, structured logging used across the
// analyzer and scheduler. It mirrors the small call surface the core
// packages expect (Info/Important/Result/Error) while delegating the
// actual formatting and level filtering to zerolog.
package clog

import (
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()

var (
	numberErr     int64
	numberResults int64
)

// Init sets the global log level and, if quiet is set, raises the
// threshold so that only warnings and above are emitted.
func Init(level string, quiet bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if quiet {
		lvl = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// Info logs an informational message.
func Info(msg string, fields ...map[string]any) {
	ev := logger.Info()
	applyFields(ev, fields)
	ev.Msg(msg)
}

// Important logs a message that should survive log-level filtering
// down to warn (used for user-facing milestones).
func Important(msg string, fields ...map[string]any) {
	ev := logger.Warn()
	applyFields(ev, fields)
	ev.Msg(msg)
}

// Result logs a mining/prediction/search result. count controls
// whether it contributes to the running result counter returned by
// Counts.
func Result(count bool, msg string, fields ...map[string]any) {
	ev := logger.Info().Bool("result", true)
	applyFields(ev, fields)
	ev.Msg(msg)
	if count {
		atomic.AddInt64(&numberResults, 1)
	}
}

// Error logs a recoverable error. Per the error taxonomy, this path
// never aborts the process.
func Error(msg string, err error, fields ...map[string]any) {
	ev := logger.Error().Err(err)
	applyFields(ev, fields)
	ev.Msg(msg)
	atomic.AddInt64(&numberErr, 1)
}

// Counts returns the number of errors and results logged so far.
func Counts() (errs, results int64) {
	return atomic.LoadInt64(&numberErr), atomic.LoadInt64(&numberResults)
}

func applyFields(ev *zerolog.Event, fields []map[string]any) {
	for _, f := range fields {
		for k, v := range f {
			ev.Interface(k, v)
		}
	}
}
