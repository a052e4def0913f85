package main

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/moffa90/go-arimu/batch"
)

// zeroLogger adapts zerolog to the Logger interface of the library packages.
type zeroLogger struct {
	log zerolog.Logger
}

var _ batch.Logger = (*zeroLogger)(nil)

func newLogger(w io.Writer, level string, json bool) (*zeroLogger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	// reader goroutines log alongside the batch goroutine
	w = zerolog.SyncWriter(w)
	if !json {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	return &zeroLogger{log: zerolog.New(w).Level(lvl).With().Timestamp().Logger()}, nil
}

func (l *zeroLogger) Debug(msg string, kv ...interface{}) { fields(l.log.Debug(), kv).Msg(msg) }
func (l *zeroLogger) Info(msg string, kv ...interface{})  { fields(l.log.Info(), kv).Msg(msg) }
func (l *zeroLogger) Error(msg string, kv ...interface{}) { fields(l.log.Error(), kv).Msg(msg) }

// fields adds alternating key/value pairs to e. A dangling key is logged
// under "extra".
func fields(e *zerolog.Event, kv []interface{}) *zerolog.Event {
	if e == nil {
		return nil
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		switch v := kv[i+1].(type) {
		case string:
			e = e.Str(key, v)
		case error:
			e = e.AnErr(key, v)
		case int:
			e = e.Int(key, v)
		case int64:
			e = e.Int64(key, v)
		case bool:
			e = e.Bool(key, v)
		case time.Duration:
			e = e.Dur(key, v)
		case time.Time:
			e = e.Time(key, v)
		case fmt.Stringer:
			e = e.Stringer(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	if len(kv)%2 == 1 {
		e = e.Interface("extra", kv[len(kv)-1])
	}
	return e
}
