package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"studytracker/internal/config"
)

// New builds the process logger. JSON lines go to stdout and, when a log
// file is configured, to a size-rotated file as well. The returned closer
// releases the file handle.
func New(cfg config.LogConfig) (*zap.Logger, func() error, error) {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encCfg)

	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stdout)}
	closer := func() error { return nil }

	if cfg.File != "" {
		maxSize := int64(cfg.MaxSizeMB) * 1024 * 1024
		if maxSize <= 0 {
			maxSize = 10 * 1024 * 1024
		}
		fw, err := NewRotatingFileWriter(cfg.File, maxSize, cfg.MaxBackups)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, fw)
		closer = fw.Close
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), level)
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, closer, nil
}

func parseLevel(raw string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(raw)))); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}
