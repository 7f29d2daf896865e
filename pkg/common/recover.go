// Package common holds small cross-cutting helpers shared by the engine's
// packages.
package common

import (
	"github.com/rs/zerolog"
)

// RecoverToLog converts a panic into a log line so one account's task can
// never take the whole process down. Use as a deferred call at the top of a
// goroutine.
func RecoverToLog(log zerolog.Logger, operation string) {
	if r := recover(); r != nil {
		log.Error().Str("operation", operation).Interface("panic", r).Msg("Recovered from panic")
	}
}
