// Package sink provides reference mesh sinks for computed pose weights.
// The playback engine only computes target weights; these sinks carry
// them the last mile to whatever is rendering the face.
package sink

import (
	"github.com/rs/zerolog"
)

// LogSink writes applied weights to the debug log. Useful during
// development and in headless runs.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a logging sink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "sink-log").Logger()}
}

// ApplyWeights logs the weight map.
func (s *LogSink) ApplyWeights(weights map[string]float64) {
	s.logger.Debug().Int("channels", len(weights)).Fields(map[string]any{"weights": weights}).Msg("Weights applied")
}
