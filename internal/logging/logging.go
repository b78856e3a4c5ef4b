package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. The returned level can be changed at runtime.
func New(level string, development bool) (*zap.Logger, zap.AtomicLevel, error) {
	atom := zap.NewAtomicLevel()
	if err := SetLevel(atom, level); err != nil {
		return nil, atom, err
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = atom
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, atom, fmt.Errorf("build logger: %w", err)
	}
	return logger, atom, nil
}

// SetLevel parses level ("debug", "info", ...) into atom. Empty means info.
func SetLevel(atom zap.AtomicLevel, level string) error {
	if level == "" {
		level = "info"
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	atom.SetLevel(l)
	return nil
}
