package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Zerolog forwards structured fields to a zerolog.Logger.
type Zerolog struct {
	zl zerolog.Logger
}

var _ Logger = (*Zerolog)(nil)

// NewZerolog adapts an existing zerolog logger.
func NewZerolog(zl zerolog.Logger) *Zerolog {
	return &Zerolog{zl: zl}
}

// NewZerologWriter builds a JSON zerolog logger writing to file, or stderr
// when file is empty. The returned closer releases the file handle.
func NewZerologWriter(level, file string) (*Zerolog, func(), error) {
	closer := func() {}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, closer, err
	}

	var writer io.Writer = os.Stderr
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return nil, closer, fmt.Errorf("create logs dir: %w", err)
		}
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, closer, err
		}
		closer = func() { _ = f.Close() }
		writer = f
	}

	zl := zerolog.New(writer).
		With().
		Timestamp().
		Logger().
		Level(lvl)
	return NewZerolog(zl), closer, nil
}

func (z *Zerolog) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return z
	}
	ctx := z.zl.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.Key, fieldValue(f.Value))
	}
	return &Zerolog{zl: ctx.Logger()}
}

func (z *Zerolog) Debug(msg string, fields ...Field) { emit(z.zl.Debug(), msg, fields) }
func (z *Zerolog) Info(msg string, fields ...Field)  { emit(z.zl.Info(), msg, fields) }
func (z *Zerolog) Warn(msg string, fields ...Field)  { emit(z.zl.Warn(), msg, fields) }
func (z *Zerolog) Error(msg string, fields ...Field) { emit(z.zl.Error(), msg, fields) }

func emit(evt *zerolog.Event, msg string, fields []Field) {
	if evt == nil {
		return
	}
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			evt = evt.AnErr(f.Key, err)
			continue
		}
		evt = evt.Interface(f.Key, f.Value)
	}
	evt.Msg(msg)
}

// errors do not marshal to JSON on their own.
func fieldValue(v any) any {
	if err, ok := v.(error); ok && err != nil {
		return err.Error()
	}
	return v
}
