package main

import (
	"go.opencensus.io/trace"

	"go.viam.com/bevdet/logging"
)

// spanLogger exports finished spans as debug log lines.
type spanLogger struct {
	logger logging.Logger
}

func newSpanLogger(logger logging.Logger) *spanLogger {
	return &spanLogger{logger: logger}
}

// ExportSpan logs the span's name, duration and status.
func (e *spanLogger) ExportSpan(s *trace.SpanData) {
	e.logger.Debugw("span",
		"name", s.Name,
		"duration", s.EndTime.Sub(s.StartTime),
		"code", s.Status.Code,
		"message", s.Status.Message)
}
