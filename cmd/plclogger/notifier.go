package main

import (
	"time"

	"github.com/rs/zerolog/log"
)

// consoleNotifier renders engine events as log lines for headless runs. A
// GUI host would implement the same interface with a message-passing bridge
// into its main loop.
type consoleNotifier struct{}

func (consoleNotifier) OnConnected(source string) {
	log.Info().Str("source", source).Msg("Connection established")
}

func (consoleNotifier) OnDisconnected(err error) {
	log.Warn().Err(err).Msg("Connection lost")
}

func (consoleNotifier) OnRecord(record map[string]any) {
	log.Info().Interface("record", record).Msg("Sample recorded")
}

func (consoleNotifier) OnFatal(err error) {
	log.Error().Err(err).Msg("Logging stopped")
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
