// Package mlog is the MDS's leveled logger. It reads like aistore's own
// cmn/nlog call sites (Infoln, Errorln, Warnln, Debugln, gated by the level
// given to Init) but is backed by zerolog, writing through its console writer
// by default or as structured JSON when Config.JSONOutput is set.
package mlog

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var logger zerolog.Logger

func init() {
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}

// Config controls Init; mirrors cuemby-warren's pkg/log.Config.
type Config struct {
	Level      string // debug|info|warn|error
	JSONOutput bool
	Output     io.Writer
}

func Init(cfg Config) {
	lvl, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.JSONOutput {
		logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
}

// WithComponent returns a child logger tagged with a component field, the
// same pattern teacher code uses to prefix log lines by subsystem.
func WithComponent(component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

func Infoln(args ...any)  { logger.Info().Msg(sprint(args...)) }
func Warnln(args ...any)  { logger.Warn().Msg(sprint(args...)) }
func Errorln(args ...any) { logger.Error().Msg(sprint(args...)) }
func Debugln(args ...any) { logger.Debug().Msg(sprint(args...)) }

func sprint(args ...any) string {
	if len(args) == 1 {
		if s, ok := args[0].(string); ok {
			return s
		}
	}
	s := ""
	for i, a := range args {
		if i > 0 {
			s += " "
		}
		s += toString(a)
	}
	return s
}

func toString(a any) string {
	switch v := a.(type) {
	case string:
		return v
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
