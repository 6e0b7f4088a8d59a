package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/listkeeper/internal/config"
	"github.com/ignite/listkeeper/internal/policy"
	"github.com/ignite/listkeeper/internal/progress"
	"github.com/ignite/listkeeper/internal/repository/postgres"
	"github.com/ignite/listkeeper/internal/service/admission"
	"github.com/ignite/listkeeper/internal/service/export"
	"github.com/ignite/listkeeper/internal/service/validation"
	"github.com/ignite/listkeeper/internal/smtpprobe"
	"github.com/ignite/listkeeper/internal/storage"
	"github.com/ignite/listkeeper/internal/worker"
)

func main() {
	log.Println("Starting ListKeeper job worker...")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
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

	policy.Extend(policy.Extensions{
		BlockedSuffixes:   cfg.Policy.ExtraBlockedSuffixes,
		TypoTLDs:          cfg.Policy.ExtraTypoTLDs,
		RoleLocals:        cfg.Policy.ExtraRoleLocals,
		FakeLocals:        cfg.Policy.ExtraFakeLocals,
		DisposableDomains: cfg.Policy.ExtraDisposableDomains,
	})
	categorySets := policy.DefaultCategorySets
	if len(cfg.Policy.CategorySets) > 0 {
		categorySets = nil
		for _, cs := range cfg.Policy.CategorySets {
			categorySets = append(categorySets, policy.NewCategorySet(cs.Name, cs.Domains))
		}
	}

	admissionSvc := admission.NewService(
		postgres.NewAdmissionRepo(db),
		categorySets,
		cfg.Import.ProgressEvery,
	)

	prober := smtpprobe.New(
		cfg.Validation.SMTPPort,
		cfg.Validation.SMTPTimeout(),
		cfg.Validation.HeloDomain,
		cfg.Validation.ProbeFrom,
	)
	validationSvc := validation.NewService(
		postgres.NewValidationRepo(db),
		prober,
		prober,
		validation.Options{
			CheckDNS:         cfg.Validation.CheckDNS,
			RejectRoleBased:  cfg.Validation.RejectRoleBased,
			RejectGreylisted: cfg.Validation.RejectGreylisted,
			Rubric: policy.Rubric{
				SyntaxValid:   cfg.Validation.Rubric.SyntaxValid,
				MXPresent:     cfg.Validation.Rubric.MXPresent,
				NotRole:       cfg.Validation.Rubric.NotRole,
				NotDisposable: cfg.Validation.Rubric.NotDisposable,
				TopTierDomain: cfg.Validation.Rubric.TopTierDomain,
			},
			Concurrency:       cfg.Validation.SMTPConcurrency,
			ProgressEvery:     cfg.Validation.ProgressEvery,
			SMTPProgressEvery: cfg.Validation.SMTPProgressEvery,
		},
	)

	exportSvc := export.NewService(postgres.NewExportRepo(db), store, cfg.Export.MaxPartSize, cfg.Export.Delimiter)

	runner := worker.NewRunner(
		postgres.NewJobRepo(db),
		admissionSvc,
		validationSvc,
		exportSvc,
		progress.NewTracker(redisClient),
		store,
		db,
		redisClient,
		cfg.Worker,
	)
	runner.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	runner.Stop()
	log.Println("Stopped")
}

// connectRedis returns a Redis client, or nil when Redis is unreachable.
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
