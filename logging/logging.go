// Package logging builds the slog logger shared by every command
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

var ErrUnknownFormat = errors.New("unknown log format")

const (
	FormatJSON = "json"
	FormatText = "text"
)

type Config struct {
	Level  string `yaml:"level" envconfig:"LEVEL" validate:"omitempty,oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format string `yaml:"format" envconfig:"FORMAT" validate:"omitempty,oneof=json text"`
}

func NewDefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: FormatText,
	}
}

func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return lvl, fmt.Errorf("unable to parse log level %q, %w", s, err)
	}
	return lvl, nil
}

// New returns a logger writing to w. An empty format writes text.
func New(w io.Writer, cfg Config) (*slog.Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(cfg.Format) {
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case FormatText, "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("got %q, %w", cfg.Format, ErrUnknownFormat)
	}
}

// Setup builds the logger and installs it as the default so packages logging through slog
// directly share its handler
func Setup(w io.Writer, cfg Config) (*slog.Logger, error) {
	logger, err := New(w, cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}
