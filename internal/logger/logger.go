// internal/logger/logger.go
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Init builds the process logger: human-readable console output teed with a
// JSON file sink. Components derive their own loggers via Named().
func Init(debug bool, logFile string) (*zap.Logger, error) {
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	console := zapcore.NewCore(consoleEncoder(), zapcore.AddSync(zapcore.Lock(os.Stdout)), level)

	if logFile == "" {
		return zap.New(console), nil
	}

	logFileHandle, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(logFileHandle),
		level,
	)

	return zap.New(zapcore.NewTee(console, fileCore)), nil
}
