package stats

import (
	"context"
	"sort"
	"sync"

	gemerr "github.com/ts020/sl-gem/internal/errors"
)

// InMemoryRepository implements Repository in process memory
type InMemoryRepository struct {
	mu       sync.RWMutex
	metrics  map[string]*Metric
	logs     []*LogEntry // newest first
	logLimit int64
}

// NewInMemoryRepository creates a new in-memory stats repository
func NewInMemoryRepository(logLimit int64) *InMemoryRepository {
	if logLimit <= 0 {
		logLimit = defaultLogLimit
	}
	return &InMemoryRepository{
		metrics:  make(map[string]*Metric),
		logLimit: logLimit,
	}
}

// Record folds a sample into its metric
func (r *InMemoryRepository) Record(ctx context.Context, sample *Sample) error {
	if err := validateSample(sample); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.metrics[sample.Metric]
	if !ok {
		m = &Metric{Name: sample.Metric}
		r.metrics[sample.Metric] = m
	}
	m.Last = sample.Value
	m.Sum += sample.Value
	m.Count++
	m.UpdatedAt = sample.RecordedAt

	return nil
}

// Get returns a copy of one metric
func (r *InMemoryRepository) Get(ctx context.Context, name string) (*Metric, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.metrics[name]
	if !ok {
		return nil, gemerr.NotFoundf("metric %s not found", name)
	}
	copied := *m
	return &copied, nil
}

// List returns copies of every metric ordered by name
func (r *InMemoryRepository) List(ctx context.Context) ([]*Metric, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	metrics := make([]*Metric, 0, len(r.metrics))
	for _, m := range r.metrics {
		copied := *m
		metrics = append(metrics, &copied)
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].Name < metrics[j].Name })
	return metrics, nil
}

// AppendLog stores a log entry, dropping the oldest beyond the limit
func (r *InMemoryRepository) AppendLog(ctx context.Context, entry *LogEntry) error {
	if entry == nil {
		return gemerr.InvalidArgument("log entry cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *entry
	r.logs = append([]*LogEntry{&copied}, r.logs...)
	if int64(len(r.logs)) > r.logLimit {
		r.logs = r.logs[:r.logLimit]
	}
	return nil
}

// RecentLogs returns up to limit entries, newest first
func (r *InMemoryRepository) RecentLogs(ctx context.Context, limit int64) ([]*LogEntry, error) {
	if limit <= 0 {
		return nil, gemerr.InvalidArgumentf("limit must be positive, got %d", limit)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit > int64(len(r.logs)) {
		limit = int64(len(r.logs))
	}
	entries := make([]*LogEntry, 0, limit)
	for _, e := range r.logs[:limit] {
		copied := *e
		entries = append(entries, &copied)
	}
	return entries, nil
}

func validateSample(sample *Sample) error {
	if sample == nil {
		return gemerr.InvalidArgument("sample cannot be nil")
	}
	if sample.Metric == "" {
		return gemerr.InvalidArgument("metric name is required")
	}
	return nil
}
