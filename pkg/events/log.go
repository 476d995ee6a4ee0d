package events

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSink writes every event to the application log. Used in development and
// as the always-on fallback sink.
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink creates a sink that logs events at info level.
func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish logs the event with its payload as structured fields.
func (s *LogSink) Publish(ctx context.Context, event Event) error {
	s.logger.WithFields(logrus.Fields{
		"event":   event.Name(),
		"payload": event,
	}).Info("domain event")
	return nil
}
