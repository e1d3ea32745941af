// Package logging sets up the collector's structured logger.
//
// It layers a small set of syslog-style levels on top of log/slog
// (TRACE/NOTICE/CRITICAL/FATAL in addition to the stdlib set) and fans
// output out to a file and/or stdout using slog-multi.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// Extra levels layered on top of the four slog defines.
const (
	LevelTrace    = slog.Level(-8)
	LevelDebug    = slog.LevelDebug
	LevelInfo     = slog.LevelInfo
	LevelNotice   = slog.Level(2)
	LevelWarning  = slog.LevelWarn
	LevelError    = slog.LevelError
	LevelCritical = slog.Level(10)
	LevelFatal    = slog.Level(12)
)

// Config holds the logging section of the collector's TOML config file.
type Config struct {
	LogFile       *string
	LogFileFormat *string
	LogLevel      *string
	LogToStdout   bool
}

// ParseLevel converts a string to a slog.Level, case-insensitively.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToUpper(levelStr) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "NOTICE":
		return LevelNotice, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	case "CRITICAL":
		return LevelCritical, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", levelStr)
	}
}

func handlerOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key != slog.LevelKey {
				return a
			}
			level := a.Value.Any().(slog.Level)
			switch {
			case level < LevelDebug:
				a.Value = slog.StringValue("TRACE")
			case level < LevelInfo:
				a.Value = slog.StringValue("DEBUG")
			case level < LevelNotice:
				a.Value = slog.StringValue("INFO")
			case level < LevelWarning:
				a.Value = slog.StringValue("NOTICE")
			case level < LevelError:
				a.Value = slog.StringValue("WARN")
			case level < LevelCritical:
				a.Value = slog.StringValue("ERROR")
			case level < LevelFatal:
				a.Value = slog.StringValue("CRITICAL")
			default:
				a.Value = slog.StringValue("FATAL")
			}
			return a
		},
	}
}

// Early returns a logger suitable for use before the config file has been
// read - INFO level, stdout only.
func Early() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, handlerOptions(LevelInfo)))
}

// Setup builds the collector's real logger from the config file's logging
// section plus any command-line overrides for level and log file path.
func Setup(lc Config, cliLevel, cliLogFile string) (*slog.Logger, error) {
	levelStr := cliLevel
	if levelStr == "" {
		if lc.LogLevel != nil {
			levelStr = *lc.LogLevel
		} else {
			levelStr = "NOTICE"
		}
	}
	level, err := ParseLevel(levelStr)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", levelStr, err)
	}

	options := handlerOptions(level)
	backends := make([]slog.Handler, 0, 2)

	logfile := ""
	if lc.LogFile != nil {
		logfile = *lc.LogFile
	}
	if cliLogFile != "" {
		logfile = cliLogFile
	}
	if logfile != "" {
		f, err := os.OpenFile(logfile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("unable to open log file %s: %w", logfile, err)
		}
		format := "text"
		if lc.LogFileFormat != nil {
			format = strings.ToLower(*lc.LogFileFormat)
		}
		var fileHandler slog.Handler
		switch format {
		case "json":
			fileHandler = slog.NewJSONHandler(f, options)
		case "text":
			fileHandler = slog.NewTextHandler(f, options)
		default:
			return nil, fmt.Errorf("unknown log file format %q", format)
		}
		backends = append(backends, fileHandler)
	}
	if lc.LogToStdout {
		backends = append(backends, slog.NewTextHandler(os.Stdout, options))
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("no logging destination configured: set logfile and/or log_to_stdout")
	}
	return slog.New(slogmulti.Fanout(backends...)), nil
}
