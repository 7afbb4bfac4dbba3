package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance. It discards output until Init runs.
	Logger = zerolog.Nop()
)

// Init initializes the global logger
func Init(level string) {
	var output io.Writer = os.Stdout

	// Pretty console logging in development
	if os.Getenv("ENV") == "development" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	InitWithWriter(level, output)

	Logger.Info().
		Str("level", zerolog.GlobalLevel().String()).
		Msg("logger initialized")
}

// InitWithWriter initializes the global logger against an arbitrary writer
func InitWithWriter(level string, output io.Writer) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Str("service", "facilitywatch").
		Logger()
}

// WithComponent returns a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithEquipment returns a component logger scoped to one piece of equipment
func WithEquipment(component, equipmentID string) zerolog.Logger {
	return Logger.With().
		Str("component", component).
		Str("equipment_id", equipmentID).
		Logger()
}

// WithRequestID returns a logger with a request ID field
func WithRequestID(requestID string) zerolog.Logger {
	return Logger.With().Str("request_id", requestID).Logger()
}

// WithError returns a logger with an error field
func WithError(err error) zerolog.Logger {
	return Logger.With().Err(err).Logger()
}
