package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileSink is a rotated JSON log file written next to the main output.
type FileSink struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Options tune NewLogger.
type Options struct {
	// Level overrides the environment default: debug, info, warn, error.
	Level string
	// File, when its Path is set, tees every entry into a rotated file.
	File FileSink
}

// NewLogger creates a zap logger for the given environment.
// prod uses JSON output, local/dev use colored console output.
func NewLogger(env string, opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	switch env {
	case "prod":
		cfg = zap.NewProductionConfig()
	case "local", "dev", "docker", "test":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown environment %q for logger", env)
	}

	if opts.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}

	buildOpts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if opts.File.Path != "" {
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   opts.File.Path,
				MaxSize:    opts.File.MaxSizeMB,
				MaxBackups: opts.File.MaxBackups,
				MaxAge:     opts.File.MaxAgeDays,
				Compress:   true,
			}),
			cfg.Level,
		)
		buildOpts = append(buildOpts, zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
	}

	l, err := cfg.Build(buildOpts...)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}
