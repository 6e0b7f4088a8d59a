package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/listkeeper/internal/api"
	"github.com/ignite/listkeeper/internal/config"
	"github.com/ignite/listkeeper/internal/progress"
	"github.com/ignite/listkeeper/internal/repository/postgres"
	"github.com/ignite/listkeeper/internal/service/export"
	"github.com/ignite/listkeeper/internal/storage"
	"github.com/ignite/listkeeper/internal/worker"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("Starting ListKeeper API server...")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime())

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	redisClient := connectRedis(cfg.Redis)

	store, err := storage.New(context.Background(), cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	exportSvc := export.NewService(postgres.NewExportRepo(db), store, cfg.Export.MaxPartSize, cfg.Export.Delimiter)
	handlers := api.NewHandlers(
		postgres.NewBatchRepo(db),
		postgres.NewJobRepo(db),
		postgres.NewLookupRepo(db),
		postgres.NewValidationRepo(db),
		exportSvc,
		progress.NewTracker(redisClient),
		store,
		worker.NewSuppressionLoader(db),
	)
	server := api.NewServer(cfg.Server, handlers)

	go func() {
		log.Printf("Listening on %s:%d", host, cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Stopped")
}

// connectRedis returns a Redis client, or nil when Redis is unreachable.
// Progress tracking falls back to in-memory state in that case.
func connectRedis(cfg config.RedisConfig) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("Redis unavailable at %s, using in-memory progress: %v", cfg.Addr, err)
		client.Close()
		return nil
	}
	log.Printf("Connected to Redis at %s", cfg.Addr)
	return client
}
