package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tle_zone_judge/internal/api"
	"tle_zone_judge/internal/app/service"
	"tle_zone_judge/internal/app/worker"
	"tle_zone_judge/internal/common/security"
	"tle_zone_judge/internal/domain/repository"
	"tle_zone_judge/internal/judge"
	"tle_zone_judge/internal/judge/language"
	"tle_zone_judge/internal/notify"
	"tle_zone_judge/internal/platform/config"
	"tle_zone_judge/internal/platform/database"
	"tle_zone_judge/internal/platform/logger"
	"tle_zone_judge/internal/platform/objectstore"
	"tle_zone_judge/internal/platform/queue"

	"github.com/nats-io/nats.go"
)

func main() {
	// 0. The container sandbox re-executes this binary as its init process.
	if err := initSandbox(); err != nil {
		log.Fatalf("sandbox init: %v", err)
	}

	// 1. Configuration and logging
	config.Load()
	cfg := config.AppConfig
	slog.SetDefault(logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat))
	ctx := logger.WithLogger(context.Background(), slog.Default())

	// 2. JWT verification for identities issued by the user service
	security.InitJWT([]byte(cfg.JWTKey), cfg.JWTExp)

	// 3. Database
	database.Connect(cfg.DBConnStr)
	defer database.Close()
	if err := database.Migrate(ctx, database.DB); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	// 4. Redis
	queue.ConnectRedis()
	defer queue.CloseRedis()

	// 5. Languages and sandbox
	langs := language.Default()
	if cfg.LanguagesFile != "" {
		var err error
		if langs, err = language.LoadFile(cfg.LanguagesFile); err != nil {
			log.Fatalf("Loading %s: %v", cfg.LanguagesFile, err)
		}
	}
	executor, closeExecutor, err := newExecutor(cfg)
	if err != nil {
		log.Fatalf("Sandbox backend %q: %v", cfg.SandboxBackend, err)
	}
	defer closeExecutor()
	judger := judge.New(executor, langs)

	// 6. Outbound notifications
	var notifiers notify.Multi
	if cfg.NotifyWebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhook(cfg.NotifyWebhookURL, cfg.NotifyWebhookSecret))
	}
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("tle-zone-judge"))
		if err != nil {
			log.Fatalf("Could not connect to NATS: %v", err)
		}
		defer nc.Drain()
		notifiers = append(notifiers, notify.NewNATS(nc))
	}

	var blobs objectstore.Fetcher
	if cfg.MinIOEndpoint != "" {
		store, err := objectstore.New(cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOBucket, cfg.MinIOUseSSL, int64(cfg.ObjectCacheMB)<<20)
		if err != nil {
			log.Fatalf("Object storage: %v", err)
		}
		blobs = store
	}

	// 7. Repositories
	userRepo := repository.NewPgUserRepository(database.DB)
	problemRepo := repository.NewPgProblemRepository(database.DB)
	submissionRepo := repository.NewPgSubmissionRepository(database.DB)
	contestRepo := repository.NewPgContestRepository(database.DB)
	ratingRepo := repository.NewPgRatingRepository(database.DB)
	jobQueue := queue.NewJobQueue(queue.RDB, cfg.QueuePrefix)
	runResults := queue.NewResultStore(queue.RDB, cfg.QueuePrefix, cfg.RunResultTTL)
	tx := database.SQLTransactor{DB: database.DB}

	// 8. Services
	execJobService := service.NewExecutionJobService(jobQueue, queue.NewLimiter(queue.RDB, cfg.QueuePrefix, cfg.InflightSlotTTL), langs,
		service.JobLimits{MaxInflight: cfg.MaxInflightPerUser, MaxInflightPremium: cfg.MaxInflightPremium})
	aggregator := service.NewContestAggregator(contestRepo, submissionRepo, tx)
	resultService := service.NewResultService(submissionRepo, aggregator, runResults, notifiers, execJobService, tx)
	submissionService := service.NewSubmissionService(submissionRepo, problemRepo, contestRepo, userRepo, execJobService, runResults, cfg.MaxSourceBytes, cfg.SubmitWait)
	contestService := service.NewContestService(contestRepo, problemRepo, userRepo, ratingRepo)
	ratingService := service.NewRatingService(contestRepo, submissionRepo, userRepo, ratingRepo, queue.RDB, cfg.QueuePrefix, cfg.RatingLockTTL, cfg.RatingMaxDelta)
	problemService := service.NewProblemService(problemRepo, queue.RDB)
	adminService := service.NewAdminService(userRepo, execJobService, resultService)

	// 9. Execution workers
	executionWorker := worker.NewExecutionWorker(jobQueue, problemRepo, submissionRepo, judger, resultService, execJobService, blobs, worker.Options{
		Workers: map[string]int{
			language.PartitionNative: cfg.WorkersNative,
			language.PartitionJVM:    cfg.WorkersJVM,
			language.PartitionScript: cfg.WorkersScript,
		},
		PollTimeout:  cfg.QueuePollTimeout,
		Reaper:       resultService,
		StaleAfter:   cfg.JobStaleAfter,
		ReapInterval: cfg.JobReapInterval,
	})
	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		if err := executionWorker.Start(workerCtx); err != nil {
			slog.Error("execution workers stopped", "error", err)
		}
	}()

	// 10. Router & HTTP server
	router := api.NewRouter(api.Services{
		Submissions: submissionService,
		Contests:    contestService,
		Problems:    problemService,
		Ratings:     ratingService,
		Admin:       adminService,
	}, api.Options{
		CORSOrigins:    cfg.CORSOrigins,
		LogLevel:       logger.ParseLevel(cfg.LogLevel),
		LogJSON:        cfg.LogFormat == "json",
		RequestTimeout: cfg.SubmitWait + 30*time.Second,
	})

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.SubmitWait + 40*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 11. Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
		}
	}()

	<-stop

	slog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	// Workers finish the job in hand before returning.
	workerCancel()
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		slog.Warn("workers did not stop in time")
	}

	slog.Info("server and workers stopped")
}
