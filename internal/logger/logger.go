// Package logger is the process-wide zap setup: a styled console line per entry,
// JSON lines in main.log and optional per-account files.
package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Log *zap.Logger
	// raw reports callers without the package helper frame.
	raw *zap.Logger
)

func init() {
	// Nop until Init so packages can log from tests without setup.
	Log = zap.NewNop()
	raw = Log
}

// Init builds the process logger: styled lines on stderr plus JSON lines in
// <dir>/main.log. An empty dir skips the file.
func Init(env, dir string) error {
	level := zapcore.DebugLevel
	colored := true
	if env == "production" {
		level = zapcore.InfoLevel
		colored = false
	}

	cores := []zapcore.Core{
		zapcore.NewCore(NewStyleEncoder(colored), zapcore.Lock(os.Stderr), level),
	}

	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(dir, "main.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open main log: %w", err)
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zapcore.InfoLevel))
	}

	raw = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	Log = raw.WithOptions(zap.AddCallerSkip(1))
	zap.ReplaceGlobals(Log)
	return nil
}

// Sync flushes any buffered log entries
func Sync() {
	_ = Log.Sync()
	closeAccountFiles()
}

func Info(msg string, fields ...zap.Field) {
	Log.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	Log.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	Log.Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	Log.Fatal(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	Log.Debug(msg, fields...)
}
