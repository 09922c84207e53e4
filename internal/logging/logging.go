package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	levelKey   = "log.level"
	formatKey  = "log.format"
	noColorKey = "log.no_color"
)

// InitDefault sets up a console logger before flags and config are parsed,
// so early startup messages are not lost.
func InitDefault() {
	log.Logger = zerolog.New(consoleWriter(os.Stderr, false)).
		With().Timestamp().Logger()
}

// Init configures the global logger from the resolved configuration.
// A nil writer logs to stderr.
func Init(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}

	level, err := zerolog.ParseLevel(strings.ToLower(viper.GetString(levelKey)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	out := w
	if viper.GetString(formatKey) != "json" {
		out = consoleWriter(w, viper.GetBool(noColorKey))
	}

	log.Logger = zerolog.New(out).
		Level(level).
		With().Timestamp().Logger()
}

func consoleWriter(w io.Writer, noColor bool) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    noColor,
		TimeFormat: time.RFC3339,
	}
}
