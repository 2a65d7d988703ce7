package logger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// LogDownload records the outcome of one artifact
func LogDownload(l Logger, subject, artifact, outcome string, err error) {
	entry := l.WithFields(map[string]interface{}{
		"subject":  subject,
		"artifact": artifact,
		"outcome":  outcome,
	})
	switch {
	case err != nil:
		entry.WithError(err).Error("artifact failed")
	case outcome == "ok":
		entry.Info("artifact downloaded")
	default:
		entry.Debug("artifact skipped")
	}
}

// LogPage records a fetched result page
func LogPage(l Logger, kind, subject string, page, items int) {
	l.DebugWithFields("page fetched", map[string]interface{}{
		"kind":    kind,
		"subject": subject,
		"page":    page,
		"items":   items,
	})
}

// LogRequest logs HTTP request information
func LogRequest(l Logger, method, url string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}
	switch {
	case statusCode >= 500:
		l.ErrorWithFields("HTTP request server error", fields)
	case statusCode >= 400:
		l.WarnWithFields("HTTP request client error", fields)
	default:
		l.DebugWithFields("HTTP request completed", fields)
	}
}

// LogRunSummary logs the per-outcome totals of a finished command
func LogRunSummary(l Logger, command string, counts map[string]int, errors int, elapsed time.Duration) {
	fields := map[string]interface{}{
		"command": command,
		"errors":  errors,
		"elapsed": elapsed.Round(time.Millisecond).String(),
	}
	for k, v := range counts {
		fields[k] = v
	}
	l.InfoWithFields(fmt.Sprintf("%s finished", command), fields)
}

// NewNopLogger creates a logger that discards everything
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(string)                                   {}
func (n *nopLogger) Info(string)                                    {}
func (n *nopLogger) Warn(string)                                    {}
func (n *nopLogger) Error(string)                                   {}
func (n *nopLogger) Fatal(string)                                   {}
func (n *nopLogger) WithField(string, interface{}) Logger           { return n }
func (n *nopLogger) WithFields(map[string]interface{}) Logger       { return n }
func (n *nopLogger) WithError(error) Logger                         { return n }
func (n *nopLogger) WithContext(context.Context) Logger             { return n }
func (n *nopLogger) DebugWithFields(string, map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(string, map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(string, map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(string, map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(string, map[string]interface{}) {}

func (n *nopLogger) GetZerolog() *zerolog.Logger {
	z := zerolog.Nop()
	return &z
}
