package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/ts020/sl-gem/internal/config"
	"github.com/ts020/sl-gem/internal/dice"
	"github.com/ts020/sl-gem/internal/engine"
	"github.com/ts020/sl-gem/internal/events"
	"github.com/ts020/sl-gem/internal/handlers/logging"
	"github.com/ts020/sl-gem/internal/handlers/telemetry"
	"github.com/ts020/sl-gem/internal/repositories/stats"
	"github.com/ts020/sl-gem/internal/services/mapview"
	"github.com/ts020/sl-gem/internal/services/turn"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	} else {
		log.Println("Loaded .env file")
	}

	if err := run(); err != nil {
		log.Printf("Game loop failed: %v", err)
		os.Exit(1)
	}
}

// run wires the collaborators and blocks until the loop has stopped.
// Deferred cleanup runs before main decides the exit code.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	minLevel, err := events.ParseLogLevel(cfg.Logging.MinLevel)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	repo, redisClient := openRepository(cfg.Redis)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Printf("Error closing Redis connection: %v", err)
			} else {
				log.Println("Closed Redis connection")
			}
		}()
	}

	bus := events.NewEventBus(&events.BusConfig{
		Queue: events.NewEventQueue(&events.QueueConfig{LaneCapacity: cfg.Loop.QueueCapacity}),
	})

	// The loop must be the first subscriber
	loop := engine.NewGameLoop(&engine.LoopConfig{
		Bus:      bus,
		Settings: &cfg.Loop,
	})

	sink, err := logging.NewSink(&logging.SinkConfig{Bus: bus, MinLevel: minLevel})
	if err != nil {
		return fmt.Errorf("failed to create log sink: %w", err)
	}
	defer sink.Close()

	recorder := telemetry.NewRecorder(&telemetry.RecorderConfig{Repository: repo})
	if _, err := recorder.Subscribe(bus); err != nil {
		return fmt.Errorf("failed to subscribe telemetry: %w", err)
	}

	turns := turn.NewService(&turn.ServiceConfig{Bus: bus, Factions: cfg.Demo.Factions})
	view := mapview.New(&mapview.Config{Bus: bus, Width: mapWidth, Height: mapHeight})
	units, err := deployUnits(view, cfg.Demo.Factions)
	if err != nil {
		return fmt.Errorf("failed to deploy units: %w", err)
	}

	// A failing worker cancels groupCtx, which stops the loop
	g, groupCtx := errgroup.WithContext(context.Background())

	var (
		runCtx    context.Context
		cancelRun context.CancelFunc
	)
	if cfg.Demo.Duration > 0 {
		runCtx, cancelRun = context.WithTimeout(groupCtx, cfg.Demo.Duration)
	} else {
		runCtx, cancelRun = context.WithCancel(groupCtx)
	}
	defer cancelRun()
	// Workers outlive runCtx so the recorder sees the events of the final ticks
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer signal.Stop(sc)

	g.Go(func() error {
		defer stopWorkers()
		return loop.Run(runCtx)
	})
	g.Go(func() error {
		return recorder.Run(workerCtx)
	})
	g.Go(func() error {
		return newDemo(turns, view, units, dice.NewRandomRoller(time.Now().UnixNano())).run(workerCtx)
	})
	g.Go(func() error {
		select {
		case sig := <-sc:
			fmt.Printf("Received %s, shutting down...\n", sig)
			if err := loop.Stop(); err != nil {
				log.Printf("Failed to publish Stop: %v", err)
			}
		case <-workerCtx.Done():
		}
		return nil
	})

	if err := loop.Start(); err != nil {
		cancelRun()
		_ = g.Wait()
		return fmt.Errorf("failed to start game loop: %w", err)
	}
	if err := turns.Begin(); err != nil {
		cancelRun()
		_ = g.Wait()
		return fmt.Errorf("failed to begin turns: %w", err)
	}
	fmt.Println("Game loop is now running. Press CTRL-C to exit.")

	runErr := g.Wait()

	st := loop.Stats()
	fmt.Printf("Stopped after %d ticks: %d dispatched, %d discarded, %d warnings, %d recoverable, %d fatal\n",
		st.Ticks, st.Dispatched, st.Discarded, st.Warnings, st.Recoverable, st.Fatal)
	fmt.Printf("Map refreshed %d times, %d moves applied, round %d\n", view.Frames(), view.Moves(), turns.Round())

	return runErr
}

// openRepository uses Redis when REDIS_URL is set and reachable, memory otherwise
func openRepository(cfg config.RedisConfig) (stats.Repository, *redis.Client) {
	if cfg.URL == "" {
		log.Println("No REDIS_URL found, keeping stats in memory")
		return stats.NewInMemoryRepository(cfg.LogLimit), nil
	}

	log.Printf("Connecting to Redis at: %s", cfg.URL)
	client, repo, err := stats.NewRedisFromURL(cfg.URL, cfg.LogLimit)
	if err != nil {
		log.Printf("Failed to parse Redis URL: %v", err)
		log.Println("Falling back to in-memory stats")
		return stats.NewInMemoryRepository(cfg.LogLimit), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		log.Printf("Failed to connect to Redis: %v", err)
		log.Println("Falling back to in-memory stats")
		return stats.NewInMemoryRepository(cfg.LogLimit), nil
	}

	log.Println("Using Redis for stats")
	return repo, client
}
