package metrics

import (
	"time"

	"github.com/google/uuid"

	"contextagent/internal/extraction"
)

// Sample is one recorded extraction attempt outcome. Only outcome metadata
// is kept; extracted text never reaches the metrics layer.
type Sample struct {
	ID          string
	Strategy    string
	Application string
	Success     bool
	DurationMS  int64
	Score       float64
	RecordedAt  time.Time
}

// NewSample builds a Sample from a pipeline attempt outcome.
func NewSample(strategy extraction.Strategy, app string, success bool, duration time.Duration, score float64) Sample {
	return Sample{
		ID:          uuid.NewString(),
		Strategy:    string(strategy),
		Application: app,
		Success:     success,
		DurationMS:  duration.Milliseconds(),
		Score:       score,
		RecordedAt:  time.Now(),
	}
}

// Summary aggregates recorded samples for reporting.
type Summary struct {
	TotalAttempts int            `json:"totalAttempts"`
	Successes     int            `json:"successes"`
	SuccessRate   float64        `json:"successRate"`
	AverageScore  float64        `json:"averageScore"`
	ByStrategy    map[string]int `json:"byStrategy"`
}
