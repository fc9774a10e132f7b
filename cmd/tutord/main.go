package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/edustack/tutord/internal/ai"
	"github.com/edustack/tutord/internal/chunker"
	"github.com/edustack/tutord/internal/config"
	"github.com/edustack/tutord/internal/db"
	"github.com/edustack/tutord/internal/embedder"
	"github.com/edustack/tutord/internal/filestore"
	"github.com/edustack/tutord/internal/handler"
	"github.com/edustack/tutord/internal/health"
	"github.com/edustack/tutord/internal/ingest"
	"github.com/edustack/tutord/internal/job"
	"github.com/edustack/tutord/internal/jobqueue"
	"github.com/edustack/tutord/internal/middleware"
	"github.com/edustack/tutord/internal/repo"
	"github.com/edustack/tutord/internal/retrieve"
	"github.com/edustack/tutord/internal/schedule"
	"github.com/edustack/tutord/internal/service"
	"github.com/edustack/tutord/internal/vectorindex"
	"github.com/edustack/tutord/internal/worker"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "tutord",
		Short: "retrieval-grounded tutoring service",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := setup(configPath)
			if err != nil {
				return err
			}
			return runServer(d)
		},
	}
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "run the ingestion worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := setup(configPath)
			if err != nil {
				return err
			}
			return runWorker(d)
		},
	}
	rootCmd.AddCommand(serverCmd, workerCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

type deps struct {
	cfg       *config.Config
	rawDB     *sql.DB
	sdb       *sqlx.DB
	provider  ai.IProvider
	embedder  *embedder.Embedder
	index     vectorindex.Index
	queue     *jobqueue.Queue
	docRepo   *repo.DocumentRepo
	chunkRepo *repo.ChunkRepo
	traceRepo *repo.TraceRepo
	files     filestore.Store
}

func setup(configPath string) (*deps, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

	rawDB, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(rawDB); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	sdb := sqlx.NewDb(rawDB, "postgres")

	provider, err := ai.NewProvider(cfg.AI.Provider, cfg.AI.Data)
	if err != nil {
		return nil, fmt.Errorf("init ai provider: %w", err)
	}
	emb, err := embedder.New(provider, embedder.Config{
		Model:     cfg.AI.EmbeddingModel,
		Dimension: cfg.AI.EmbeddingDimension,
		BatchSize: cfg.AI.EmbeddingBatchSize,
		Timeout:   time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	var index vectorindex.Index
	switch cfg.VectorIndex.Type {
	case "memory":
		index, err = vectorindex.NewMemory(cfg.AI.EmbeddingDimension)
	default:
		index, err = vectorindex.NewPG(sdb, cfg.AI.EmbeddingDimension)
	}
	if err != nil {
		return nil, err
	}

	queue, err := jobqueue.New(sdb, jobqueue.Config{
		VisibilityTimeout: time.Duration(cfg.Queue.VisibilityTimeoutSeconds) * time.Second,
		MaxAttempts:       cfg.Queue.MaxAttempts,
		RetryBase:         time.Duration(cfg.Queue.RetryBaseSeconds) * time.Second,
		RetryMax:          time.Duration(cfg.Queue.RetryMaxSeconds) * time.Second,
		PollInterval:      time.Duration(cfg.Queue.PollIntervalMillis) * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}

	var files filestore.Store
	if cfg.FileStore.Type != "" {
		files, err = filestore.New(cfg.FileStore)
		if err != nil {
			return nil, fmt.Errorf("init file store: %w", err)
		}
	}

	return &deps{
		cfg:       cfg,
		rawDB:     rawDB,
		sdb:       sdb,
		provider:  provider,
		embedder:  emb,
		index:     index,
		queue:     queue,
		docRepo:   repo.NewDocumentRepo(rawDB),
		chunkRepo: repo.NewChunkRepo(rawDB),
		traceRepo: repo.NewTraceRepo(rawDB),
		files:     files,
	}, nil
}

func runServer(d *deps) error {
	cfg := d.cfg
	logutil.GetLogger(context.Background()).Info("starting server",
		zap.Int("port", cfg.Port),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.String("vector_index", cfg.VectorIndex.Type),
	)

	generator := ai.NewGenerator(d.provider, cfg.AI.GenerationModel)
	orchestrator, err := retrieve.NewOrchestrator(d.embedder, d.index, generator, d.traceRepo, retrieve.Config{
		DefaultTopK:       cfg.Retrieval.DefaultTopK,
		MaxTopK:           cfg.Retrieval.MaxTopK,
		MaxContextTokens:  cfg.Retrieval.MaxContextTokens,
		MinScore:          cfg.Retrieval.MinScore,
		GenerationTimeout: time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	documentService := service.NewDocumentService(d.docRepo, d.chunkRepo, d.queue, d.index, d.files)
	tutorService := service.NewTutorService(orchestrator, d.traceRepo)
	monitor := health.NewMonitor(d.rawDB, d.queue, d.index, 2*time.Second)

	routerDeps := handler.RouterDeps{
		Documents: handler.NewDocumentHandler(documentService),
		Tutor:     handler.NewTutorHandler(tutorService),
		Health:    handler.NewHealthHandler(monitor),
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, routerDeps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", addr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}

func runWorker(d *deps) error {
	cfg := d.cfg
	logutil.GetLogger(context.Background()).Info("starting worker",
		zap.Int("concurrency", cfg.Worker.Concurrency),
		zap.String("ai_provider", cfg.AI.Provider),
	)

	ck, err := chunker.New(chunker.Config{
		MaxTokens:     cfg.Ingest.ChunkTokens,
		OverlapTokens: *cfg.Ingest.OverlapTokens,
		MinTokens:     *cfg.Ingest.MinTokens,
	})
	if err != nil {
		return err
	}
	pipeline, err := ingest.NewPipeline(ck, d.embedder, d.docRepo, d.chunkRepo, d.index, d.files)
	if err != nil {
		return err
	}
	runner, err := worker.New(d.queue, cfg.Worker.Concurrency, pipeline)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewQueueReaperJob(d.queue), cfg.Worker.ReaperCronSpec); err != nil {
		return err
	}
	if err := scheduler.AddJob(job.NewTraceCleanupJob(d.traceRepo, d.queue, cfg.Worker.TraceKeepDays), cfg.Worker.CleanupCronSpec); err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	runner.Run(ctx)
	logutil.GetLogger(context.Background()).Info("worker stopping...")
	return nil
}
