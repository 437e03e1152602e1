package logger

import (
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	colorReset = "\x1b[0m"
	colorBold  = "\x1b[1m"
)

// Muted console palette (warm, easy on eyes)
const (
	colorFg     = "\x1b[38;5;223m" // soft cream
	colorTime   = "\x1b[38;5;108m" // muted cyan-green
	colorField  = "\x1b[38;5;109m" // soft blue
	colorWarn   = "\x1b[38;5;214m" // soft yellow
	colorError  = "\x1b[38;5;167m" // warm red
	colorDebug  = "\x1b[38;5;245m" // grey
	colorAccent = "\x1b[38;5;142m" // muted green
)

var bufferPool = buffer.NewPool()

// minimalEncoder renders "HH:MM:SS message key=value key=value" lines with a
// small amount of color, instead of zap's default console layout.
type minimalEncoder struct {
	zapcore.Encoder
	pool buffer.Pool
}

func newMinimalEncoder() zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		MessageKey: "msg",
		LevelKey:   "level",
		TimeKey:    "time",
		EncodeTime: zapcore.ISO8601TimeEncoder,
	}
	return &minimalEncoder{
		Encoder: zapcore.NewJSONEncoder(cfg),
		pool:    bufferPool,
	}
}

func (e *minimalEncoder) Clone() zapcore.Encoder {
	return &minimalEncoder{Encoder: e.Encoder.Clone(), pool: e.pool}
}

func (e *minimalEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	line := e.pool.Get()

	line.AppendString(colorTime)
	line.AppendString(entry.Time.Format("15:04:05"))
	line.AppendString(colorReset)
	line.AppendString(" ")

	switch entry.Level {
	case zapcore.WarnLevel:
		line.AppendString(colorWarn)
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		line.AppendString(colorBold)
		line.AppendString(colorError)
	case zapcore.DebugLevel:
		line.AppendString(colorDebug)
	default:
		line.AppendString(colorFg)
	}
	line.AppendString(entry.Message)
	line.AppendString(colorReset)

	for _, f := range fields {
		line.AppendString(" ")
		line.AppendString(colorField)
		line.AppendString(f.Key)
		line.AppendString(colorReset)
		line.AppendString("=")
		line.AppendString(colorAccent)
		line.AppendString(fieldValue(f))
		line.AppendString(colorReset)
	}

	line.AppendString("\n")
	return line, nil
}

// fieldValue renders a zap field without the JSON machinery. Strings with
// spaces are quoted so lines remain grep-able.
func fieldValue(f zapcore.Field) string {
	var v string
	switch f.Type {
	case zapcore.StringType:
		v = f.String
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type:
		v = fmt.Sprintf("%d", f.Integer)
	case zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
		v = fmt.Sprintf("%d", uint64(f.Integer))
	case zapcore.BoolType:
		v = fmt.Sprintf("%t", f.Integer == 1)
	case zapcore.Float64Type:
		v = fmt.Sprintf("%g", math.Float64frombits(uint64(f.Integer)))
	case zapcore.Float32Type:
		v = fmt.Sprintf("%g", math.Float32frombits(uint32(f.Integer)))
	case zapcore.DurationType:
		v = time.Duration(f.Integer).String()
	case zapcore.TimeType:
		v = time.Unix(0, f.Integer).UTC().Format(time.RFC3339)
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok {
			v = err.Error()
		} else {
			v = fmt.Sprintf("%v", f.Interface)
		}
	default:
		v = fmt.Sprintf("%v", f.Interface)
	}
	if strings.ContainsAny(v, " \t") {
		return fmt.Sprintf("%q", v)
	}
	return v
}
