// ABOUTME: Builds the process zap logger from the configured level string and output format.
// ABOUTME: Level parsing is lossy: unknown levels fall back to error instead of failing startup.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/2389-research/kes/config"
)

// DefaultLevel is used when the configured level cannot be parsed.
const DefaultLevel = zapcore.ErrorLevel

// New returns a logger writing to w (stdout when nil) in the given format.
func New(level string, format config.LogFormat, w zapcore.WriteSyncer) (*zap.Logger, error) {
	if w == nil {
		w = zapcore.Lock(os.Stdout)
	}

	lvl, ok := ParseLevel(level)

	var enc zapcore.Encoder
	var opts []zap.Option
	switch format {
	case config.LogFormatJSON, "":
		ec := zap.NewProductionEncoderConfig()
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(ec)
	case config.LogFormatPretty:
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(ec)
		opts = append(opts, zap.AddCaller())
	case config.LogFormatCompact:
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		ec.CallerKey = zapcore.OmitKey
		ec.NameKey = zapcore.OmitKey
		enc = zapcore.NewConsoleEncoder(ec)
	default:
		return nil, fmt.Errorf("%w: got %q", config.ErrInvalidLogFormat, format)
	}

	logger := zap.New(zapcore.NewCore(enc, w, zap.NewAtomicLevelAt(lvl)), opts...)
	if !ok {
		logger.Error("unrecognized log level, using default",
			zap.String("log_level", level),
			zap.Stringer("default", DefaultLevel))
	}
	return logger, nil
}

// ParseLevel accepts a bare level ("info") or a filter directive list
// ("kes=debug,warn"). The last level found wins. trace maps to debug.
// The second result is false when nothing usable was found.
func ParseLevel(s string) (zapcore.Level, bool) {
	found := false
	lvl := DefaultLevel
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if _, after, ok := strings.Cut(part, "="); ok {
			part = after
		}
		part = strings.ToLower(part)
		if part == "" {
			continue
		}
		if part == "trace" {
			part = "debug"
		}
		l, err := zapcore.ParseLevel(part)
		if err != nil {
			continue
		}
		lvl = l
		found = true
	}
	return lvl, found
}
