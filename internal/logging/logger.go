package logging

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewLogger builds a console logger at level and installs it as the global zerolog logger.
func NewLogger(level zerolog.Level) *zerolog.Logger {
	out := zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = os.Stderr
	})
	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	log.Logger = logger
	return &logger
}
