package stats

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mock/mock_repository.go -package=mockstats -source=interface.go Repository

// Sample is one observation of a metric
type Sample struct {
	Metric     string
	Value      float64
	RecordedAt time.Time
}

// Metric is the running aggregate of every sample recorded under one name
type Metric struct {
	Name      string
	Last      float64
	Sum       float64
	Count     int64
	UpdatedAt time.Time
}

// Mean returns the average of the recorded samples
func (m *Metric) Mean() float64 {
	if m == nil || m.Count == 0 {
		return 0
	}
	return m.Sum / float64(m.Count)
}

// LogEntry is a persisted log line
type LogEntry struct {
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository persists loop metrics and recent log lines
type Repository interface {
	// Record folds a sample into its metric
	Record(ctx context.Context, sample *Sample) error

	// Get returns one metric; not found if nothing was recorded under name
	Get(ctx context.Context, name string) (*Metric, error)

	// List returns every metric ordered by name
	List(ctx context.Context) ([]*Metric, error)

	// AppendLog stores a log entry, keeping only the most recent ones
	AppendLog(ctx context.Context, entry *LogEntry) error

	// RecentLogs returns up to limit entries, newest first
	RecentLogs(ctx context.Context, limit int64) ([]*LogEntry, error)
}
