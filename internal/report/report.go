// Package report collects errors that are swallowed locally so they are not
// lost. Every sink is safe for concurrent use.
package report

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
)

type Fields map[string]any

type Sink interface {
	Capture(err error, fields Fields)
}

// LogSink writes captured errors to a zerolog logger.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Capture(err error, fields Fields) {
	if err == nil {
		return
	}
	s.log.Error().Err(err).Fields(map[string]any(fields)).Msg("captured error")
}

// SentrySink forwards captured errors to Sentry.
type SentrySink struct {
	hub *sentry.Hub
}

// NewSentrySink initialises the Sentry SDK for dsn.
func NewSentrySink(dsn, environment string) (*SentrySink, error) {
	return newSentrySink(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
}

func newSentrySink(opts sentry.ClientOptions) (*SentrySink, error) {
	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &SentrySink{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

func (s *SentrySink) Capture(err error, fields Fields) {
	if err == nil {
		return
	}
	// Each capture gets its own hub so concurrent callers never share a scope.
	hub := s.hub.Clone()
	if len(fields) > 0 {
		hub.ConfigureScope(func(scope *sentry.Scope) {
			scope.SetContext("data", sentry.Context(fields))
		})
	}
	hub.CaptureException(err)
}

// Flush waits up to timeout for buffered events to be delivered.
func (s *SentrySink) Flush(timeout time.Duration) bool {
	return s.hub.Flush(timeout)
}

type multi []Sink

// Multi fans a capture out to every non-nil sink.
func Multi(sinks ...Sink) Sink {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m multi) Capture(err error, fields Fields) {
	for _, s := range m {
		s.Capture(err, fields)
	}
}

// Discard drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Capture(error, Fields) {}
