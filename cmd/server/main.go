// Command server runs the zonegate HTTP service. main selects backing stores
// from configuration (in-memory for development, Postgres/Redis/MinIO/Kafka
// when configured), wires the services, and owns the process lifecycle.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"zonegate/internal/imagestore"
	joinhandler "zonegate/internal/join/handler"
	joinmetrics "zonegate/internal/join/metrics"
	joinservice "zonegate/internal/join/service"
	assignmentstore "zonegate/internal/join/store/assignment"
	"zonegate/internal/join/store/memorytx"
	"zonegate/internal/jwtauth"
	"zonegate/internal/outbox"
	"zonegate/internal/platform/config"
	"zonegate/internal/platform/httpserver"
	"zonegate/internal/platform/logger"
	platformmetrics "zonegate/internal/platform/metrics"
	"zonegate/internal/platform/postgres"
	platformredis "zonegate/internal/platform/redis"
	riderstore "zonegate/internal/rider/store/rider"
	httptransport "zonegate/internal/transport/http"
	verificationhandler "zonegate/internal/verification/handler"
	verificationmetrics "zonegate/internal/verification/metrics"
	"zonegate/internal/verification/processor"
	verificationservice "zonegate/internal/verification/service"
	attemptstore "zonegate/internal/verification/store/attempt"
	cooldownstore "zonegate/internal/verification/store/cooldown"
	zonestore "zonegate/internal/zone/store/zone"
	"zonegate/pkg/platform/audit"
	auditmemory "zonegate/pkg/platform/audit/store/memory"
	auditpostgres "zonegate/pkg/platform/audit/store/postgres"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("server exited with error", "error", err.Error())
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Backing stores. An empty DSN selects the in-memory stack, which is the
	// development and test default.
	var (
		zones       joinservice.ZoneStore
		assignments interface {
			joinservice.AssignmentStore
			verificationservice.AssignmentReader
		}
		attempts interface {
			joinservice.AttemptStore
			verificationservice.AttemptStore
		}
		riders     joinservice.RiderStore
		cooldowns  verificationservice.CooldownStore
		auditStore audit.Store
		queue interface {
			outbox.Store
			outbox.EnqueueStore
		}
		tx     joinservice.StoreTx
		checks = map[string]httptransport.HealthChecker{}
	)

	if cfg.Postgres.DSN != "" {
		db, err := postgres.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		zones = zonestore.NewPostgres(db)
		assignments = assignmentstore.NewPostgres(db)
		attempts = attemptstore.NewPostgres(db)
		riders = riderstore.NewPostgres(db)
		cooldowns = cooldownstore.NewPostgres(db)
		auditStore = auditpostgres.NewStore(db)
		queue = outbox.NewPostgres(db)
		tx = newJoinPostgresTx(db)
		checks["postgres"] = healthFunc(db.PingContext)
		log.Info("using postgres stores")
	} else {
		zoneMem := zonestore.NewMemoryStore()
		assignMem := assignmentstore.NewMemoryStore()
		attemptMem := attemptstore.NewMemoryStore()
		riderMem := riderstore.NewMemoryStore()
		zones, assignments, attempts, riders = zoneMem, assignMem, attemptMem, riderMem
		cooldowns = cooldownstore.NewMemoryStore()
		auditStore = auditmemory.NewInMemoryStore()
		queue = outbox.NewMemoryStore()
		tx = memorytx.New(joinservice.TxStores{
			Zones:       zoneMem,
			Assignments: assignMem,
			Attempts:    attemptMem,
			Riders:      riderMem,
		})
		log.Warn("no postgres DSN configured, using in-memory stores")
	}

	// Redis replaces the primary cooldown store when configured so cooldown
	// reads stay off the database.
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		cooldowns = cooldownstore.NewRedis(redisClient.Client, 2*cfg.Cooldowns.Random)
		checks["redis"] = redisClient
		log.Info("using redis cooldown store")
	}

	// Proof images.
	var images interface {
		joinservice.ImageStore
		Get(ctx context.Context, key string) ([]byte, error)
	}
	if cfg.MinIO.Endpoint != "" {
		minioStore, err := imagestore.NewMinIOStore(imagestore.MinIOConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		})
		if err != nil {
			return err
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			return err
		}
		images = minioStore
		checks["minio"] = healthFunc(minioStore.Ping)
		log.Info("using minio image store", "bucket", cfg.MinIO.Bucket)
	} else {
		images = imagestore.NewMemoryStore()
		log.Warn("no minio endpoint configured, proof images held in memory")
	}

	// Audit trail: always stored, optionally fanned out to Kafka.
	auditOpts := []audit.Option{
		audit.WithLogger(log),
		audit.WithAsyncBuffer(256),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaClient, err := kgo.NewClient(kgo.SeedBrokers(cfg.Kafka.Brokers...))
		if err != nil {
			return err
		}
		defer kafkaClient.Close()
		auditOpts = append(auditOpts, audit.WithSink(audit.NewKafkaSink(kafkaClient, cfg.Kafka.Topic)))
		log.Info("audit events forwarded to kafka", "topic", cfg.Kafka.Topic)
	}
	publisher := audit.NewPublisher(auditStore, auditOpts...)
	defer publisher.Close()

	cooldownService, err := verificationservice.NewCooldownService(cooldowns,
		verificationservice.WithCooldownLogger(log),
		verificationservice.WithCooldownConfig(verificationservice.CooldownConfig{
			JoinCooldown:   cfg.Cooldowns.Join,
			RandomCooldown: cfg.Cooldowns.Random,
		}),
	)
	if err != nil {
		return err
	}

	proc := processor.NewBasic()

	joinSvc, err := joinservice.New(tx, zones, assignments, attempts, riders,
		cooldownService, images, proc,
		joinservice.WithLogger(log),
		joinservice.WithAuditPublisher(publisher),
		joinservice.WithMetrics(joinmetrics.New()),
		joinservice.WithMaxAccuracyTolerance(cfg.Geo.MaxAccuracyToleranceMeters),
	)
	if err != nil {
		return err
	}

	verificationSvc, err := verificationservice.New(attempts, assignments, zones, images, proc,
		cooldownService,
		verificationservice.WithLogger(log),
		verificationservice.WithAuditPublisher(publisher),
		verificationservice.WithMetrics(verificationmetrics.New()),
	)
	if err != nil {
		return err
	}

	replayer, err := outbox.NewReplayer(queue, images, joinSvc, outbox.WithReplayLogger(log))
	if err != nil {
		return err
	}
	ingestor, err := outbox.NewIngestor(queue, images, log)
	if err != nil {
		return err
	}

	jwtService := jwtauth.New(cfg.Server.JWTSigningKey, "zonegate")
	httpMetrics := platformmetrics.New()

	router := httptransport.NewRouter(checks,
		joinhandler.New(joinSvc, log, httpMetrics, jwtService).WithQueue(ingestor),
		verificationhandler.New(verificationSvc, log, httpMetrics, jwtService),
	)
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting zonegate", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := replayer.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// healthFunc adapts a ping function to the router's HealthChecker.
type healthFunc func(ctx context.Context) error

func (f healthFunc) Health(ctx context.Context) error {
	return f(ctx)
}
