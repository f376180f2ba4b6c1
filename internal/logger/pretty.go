// internal/logger/pretty.go
package logger

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// Terminal colors for the console encoder.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// consoleEncoder builds the human-readable encoder used for terminal output:
// colored levels, wall-clock times, no caller noise. File sinks use plain
// JSON instead.
func consoleEncoder() zapcore.Encoder {
	config := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "time",
		NameKey:        "logger",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    colorLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("15:04:05"),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
	return zapcore.NewConsoleEncoder(config)
}

func colorLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch level {
	case zapcore.DebugLevel:
		enc.AppendString(colorCyan + "[DEBUG]" + colorReset)
	case zapcore.InfoLevel:
		enc.AppendString(colorGreen + "[INFO]" + colorReset)
	case zapcore.WarnLevel:
		enc.AppendString(colorYellow + "[WARN]" + colorReset)
	case zapcore.ErrorLevel:
		enc.AppendString(colorRed + "[ERROR]" + colorReset)
	case zapcore.FatalLevel:
		enc.AppendString(colorRed + colorBold + "[FATAL]" + colorReset)
	default:
		enc.AppendString(fmt.Sprintf("[%s]", level.CapitalString()))
	}
}

// ShortAddress abbreviates a base58 key for log lines.
func ShortAddress(addr string) string {
	if len(addr) > 8 {
		return addr[:4] + "..." + addr[len(addr)-4:]
	}
	return addr
}
