package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/ts020/sl-gem/internal/config"
	"github.com/ts020/sl-gem/internal/repositories/stats"
)

func main() {
	limit := flag.Int64("logs", 20, "number of recent log entries to show")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	redisURL := cfg.Redis.URL
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	client, repo, err := stats.NewRedisFromURL(redisURL, cfg.Redis.LogLimit)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Test connection
	if pingErr := client.Ping(ctx).Err(); pingErr != nil {
		log.Fatalf("Failed to connect to Redis: %v", pingErr)
	}

	metrics, err := repo.List(ctx)
	if err != nil {
		log.Fatalf("Failed to list metrics: %v", err)
	}

	fmt.Printf("Found %d metrics:\n", len(metrics))
	for _, m := range metrics {
		fmt.Printf("  %-24s last=%-10g mean=%-10.3f samples=%d updated=%s\n",
			m.Name, m.Last, m.Mean(), m.Count, m.UpdatedAt.Format(time.RFC3339))
	}

	if *limit <= 0 {
		return
	}

	entries, err := repo.RecentLogs(ctx, *limit)
	if err != nil {
		log.Fatalf("Failed to read log entries: %v", err)
	}

	fmt.Printf("\nLast %d log entries:\n", len(entries))
	for _, e := range entries {
		fmt.Printf("  %s [%s] %s\n", e.CreatedAt.Format(time.TimeOnly), e.Level, e.Message)
	}
}
