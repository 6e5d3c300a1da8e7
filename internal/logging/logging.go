/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zapperlabs/zapper/internal/logbuffer"
)

// Setup configures zerolog for the process.
func Setup(environment string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := zerolog.InfoLevel
	if environment == "development" {
		level = zerolog.DebugLevel
	}

	// Console writer for human-readable output
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout}

	logger := zerolog.New(consoleWriter).With().Timestamp().Logger().Level(level)
	log.Logger = logger
	return logger
}

// SetupWithBuffer configures zerolog like Setup but tees output through an
// in-memory ring buffer so the admin log endpoint can serve recent lines.
// Log lines stay RFC3339-stamped JSON on the wire; the console writer
// renders them for humans after the buffer has captured them.
func SetupWithBuffer(environment string, capacity int) (zerolog.Logger, *logbuffer.Buffer) {
	zerolog.TimeFieldFormat = time.RFC3339
	level := zerolog.InfoLevel
	if environment == "development" {
		level = zerolog.DebugLevel
	}

	buf := logbuffer.New(capacity)
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout}
	writer := logbuffer.NewWriter(buf, consoleWriter)

	logger := zerolog.New(writer).With().Timestamp().Logger().Level(level)
	log.Logger = logger
	return logger, buf
}
