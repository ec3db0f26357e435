package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	gemerr "github.com/ts020/sl-gem/internal/errors"
)

const (
	// Key patterns
	metricKeyPrefix = "stats:metric:"
	metricsSetKey   = "stats:metrics"
	logsKey         = "stats:logs"

	defaultLogLimit = 500
)

// RedisRepoConfig holds configuration for the Redis repository
type RedisRepoConfig struct {
	Client   redis.UniversalClient
	LogLimit int64
}

// redisRepository implements Repository using Redis. Each metric is a hash
// (last, sum, count, updated_at) and its name is indexed in a set.
type redisRepository struct {
	client   redis.UniversalClient
	logLimit int64
}

// NewRedisRepository creates a new Redis-backed stats repository
func NewRedisRepository(cfg *RedisRepoConfig) Repository {
	if cfg.Client == nil {
		panic("redis client is required")
	}

	limit := cfg.LogLimit
	if limit <= 0 {
		limit = defaultLogLimit
	}

	return &redisRepository{
		client:   cfg.Client,
		logLimit: limit,
	}
}

func metricKey(name string) string {
	return metricKeyPrefix + name
}

// Record folds a sample into its metric hash
func (r *redisRepository) Record(ctx context.Context, sample *Sample) error {
	if err := validateSample(sample); err != nil {
		return err
	}

	key := metricKey(sample.Metric)

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key,
		"last", strconv.FormatFloat(sample.Value, 'f', -1, 64),
		"updated_at", sample.RecordedAt.UTC().Format(time.RFC3339Nano))
	pipe.HIncrByFloat(ctx, key, "sum", sample.Value)
	pipe.HIncrBy(ctx, key, "count", 1)
	pipe.SAdd(ctx, metricsSetKey, sample.Metric)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record metric %s: %w", sample.Metric, err)
	}

	return nil
}

// Get reads one metric hash
func (r *redisRepository) Get(ctx context.Context, name string) (*Metric, error) {
	fields, err := r.client.HGetAll(ctx, metricKey(name)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get metric %s from Redis: %w", name, err)
	}
	if len(fields) == 0 {
		return nil, gemerr.NotFoundf("metric %s not found", name)
	}

	return toMetric(name, fields)
}

// List reads every indexed metric concurrently
func (r *redisRepository) List(ctx context.Context) ([]*Metric, error) {
	names, err := r.client.SMembers(ctx, metricsSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics from Redis: %w", err)
	}

	metrics := make([]*Metric, len(names))

	g, ctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			m, err := r.Get(ctx, name)
			if err != nil {
				return fmt.Errorf("failed to get metric %s: %w", name, err)
			}
			metrics[i] = m
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(metrics, func(i, j int) bool { return metrics[i].Name < metrics[j].Name })
	return metrics, nil
}

// AppendLog pushes an entry and trims the list to the configured limit
func (r *redisRepository) AppendLog(ctx context.Context, entry *LogEntry) error {
	if entry == nil {
		return gemerr.InvalidArgument("log entry cannot be nil")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.LPush(ctx, logsKey, string(data))
	pipe.LTrim(ctx, logsKey, 0, r.logLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}

	return nil
}

// RecentLogs returns up to limit entries, newest first
func (r *redisRepository) RecentLogs(ctx context.Context, limit int64) ([]*LogEntry, error) {
	if limit <= 0 {
		return nil, gemerr.InvalidArgumentf("limit must be positive, got %d", limit)
	}

	raw, err := r.client.LRange(ctx, logsKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read log entries from Redis: %w", err)
	}

	entries := make([]*LogEntry, 0, len(raw))
	for _, item := range raw {
		var entry LogEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal log entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	return entries, nil
}

func toMetric(name string, fields map[string]string) (*Metric, error) {
	m := &Metric{Name: name}

	var err error
	if v, ok := fields["last"]; ok {
		if m.Last, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("invalid last value for metric %s: %w", name, err)
		}
	}
	if v, ok := fields["sum"]; ok {
		if m.Sum, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("invalid sum for metric %s: %w", name, err)
		}
	}
	if v, ok := fields["count"]; ok {
		if m.Count, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid count for metric %s: %w", name, err)
		}
	}
	if v, ok := fields["updated_at"]; ok {
		if m.UpdatedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return nil, fmt.Errorf("invalid updated_at for metric %s: %w", name, err)
		}
	}

	return m, nil
}
