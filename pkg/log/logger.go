package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

// Output formats accepted by SetupLogger.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
	FormatCloud   = "cloud"
)

// SetupLogger builds the provider for the given format and level, installs it
// as the package default and returns it. "console" renders colored text via
// tint, "json" emits zerolog JSON lines and "cloud" emits slog JSON with
// Cloud Logging field names.
func SetupLogger(format, loglevel string) (LoggerProvider, error) {
	return SetupLoggerWithWriter(os.Stderr, format, loglevel)
}

// SetupLoggerWithWriter is SetupLogger writing to w.
func SetupLoggerWithWriter(w io.Writer, format, loglevel string) (LoggerProvider, error) {
	level, err := ParseLevel(loglevel)
	if err != nil {
		return nil, err
	}

	var provider LoggerProvider
	switch strings.ToLower(format) {
	case FormatConsole, "":
		provider = NewSlogProvider(func(lv slog.Leveler) slog.Handler {
			return tint.NewHandler(w, &tint.Options{
				Level:      lv,
				TimeFormat: "15:04:05.000",
				NoColor:    !isTerminal(w),
			})
		}, level)
	case FormatCloud:
		provider = NewSlogProvider(func(lv slog.Leveler) slog.Handler {
			return slog.NewJSONHandler(w, cloudLoggingOptions(lv))
		}, level)
	case FormatJSON:
		provider = NewZerologProviderWithWriter(w, level)
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}

	SetProvider(provider)
	return provider, nil
}

func cloudLoggingOptions(lv slog.Leveler) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		AddSource: true,
		Level:     lv,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				attr = slog.Attr{Key: "severity", Value: attr.Value}
			case slog.MessageKey:
				attr = slog.Attr{Key: "message", Value: attr.Value}
			case slog.SourceKey:
				attr = slog.Attr{Key: "logging.googleapis.com/sourceLocation", Value: attr.Value}
			}
			return attr
		},
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// ToLogLevel converts a level name to slog.Level. It panics on unknown names;
// use ParseLevel for untrusted input.
func ToLogLevel(level string) slog.Level {
	l, err := ParseLevel(level)
	if err != nil {
		panic(err.Error())
	}
	return slog.Level(l)
}

// ParseLevel converts "debug", "info", "warn" or "error" to a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(level) {
	case "info", "":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "warn":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level :%s", level)
	}
}

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

// ErrAttr is a wrapper to pass err to slog.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrAttrKey, err)
}
