package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/shopmind-ai/shopmind/internal/api/handlers"
	"github.com/shopmind-ai/shopmind/internal/config"
	"github.com/shopmind-ai/shopmind/internal/database"
	"github.com/shopmind-ai/shopmind/internal/domain"
	"github.com/shopmind-ai/shopmind/internal/jobs"
	"github.com/shopmind-ai/shopmind/internal/openai"
	"github.com/shopmind-ai/shopmind/internal/repository"
	"github.com/shopmind-ai/shopmind/internal/rerank"
	"github.com/shopmind-ai/shopmind/internal/server"
	"github.com/shopmind-ai/shopmind/internal/service"
	"github.com/shopmind-ai/shopmind/internal/storage"
	"github.com/shopmind-ai/shopmind/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the shopmind API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	knowledgeRepo := repository.NewKnowledgeRepository(pool)
	cacheRepo := repository.NewCacheRepository(pool)
	metricRepo := repository.NewMetricRepository(pool)

	openaiClient := openai.NewClientWithConfig(openai.Config{
		APIKey:    cfg.OpenAIAPIKey,
		ChatModel: cfg.ChatModel,
	})

	embedder := service.NewEmbeddingGeneratorWithConfig(openaiClient, service.EmbeddingGeneratorConfig{
		Timeout: cfg.EmbedTimeout,
	})

	semanticCache := service.NewSemanticCache(cacheRepo, cfg.CacheTTL)

	retrieverCfg := service.DefaultRetrieverConfig()
	retrieverCfg.SemanticWeight = cfg.SemanticWeight
	retrieverCfg.KeywordWeight = cfg.KeywordWeight
	retriever := service.NewHybridRetrieverWithConfig(knowledgeRepo, retrieverCfg)

	var scorer service.RelevanceScorer
	if cfg.HasRerank() {
		scorer = rerank.NewClient(cfg.RerankURL, cfg.RerankTimeout)
		log.Printf("reranking enabled via %s", cfg.RerankURL)
	}
	reranker := service.NewReranker(scorer)

	engine := service.NewGenerationEngine(&generationAdapter{client: openaiClient})
	writer := service.NewBackgroundWriter(knowledgeRepo, semanticCache, embedder)

	assistant := service.NewAssistantService(
		semanticCache,
		embedder,
		retriever,
		reranker,
		service.NewPromptAssembler(),
		engine,
		writer,
		metricRepo,
	)

	var documentHandler *handlers.DocumentHandler
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		documentHandler = handlers.NewDocumentHandler(service.NewDocumentService(s3Client, knowledgeRepo, embedder))
	} else {
		documentHandler = handlers.NewDocumentHandler(&NoOpDocumentService{})
	}

	sweeper := jobs.NewWorker(jobs.NewCacheSweeper(cacheRepo), cfg.CacheSweepInterval)
	go sweeper.Start(ctx)
	log.Println("cache sweeper started")

	router := server.NewRouter(server.RouterConfig{
		OwnerValidator:  service.NewTokenValidator(cfg.OwnerTokenSecret),
		ChatHandler:     handlers.NewChatHandler(assistant),
		DocumentHandler: documentHandler,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// Let in-flight background writes land before exit.
	writer.Wait()

	log.Println("server exited")
	return nil
}

// generationAdapter narrows the OpenAI client to the generation interface
// the engine consumes.
type generationAdapter struct {
	client *openai.Client
}

func (a *generationAdapter) Complete(ctx context.Context, prompt string) (string, error) {
	return a.client.Complete(ctx, prompt)
}

func (a *generationAdapter) StreamCompletion(ctx context.Context, prompt string) (service.TokenStream, error) {
	stream, err := a.client.StreamCompletion(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// NoOpDocumentService stands in when S3 is not configured.
type NoOpDocumentService struct{}

func (s *NoOpDocumentService) InitUpload(ctx context.Context, ownerID, filename, contentType string) (*service.UploadTicket, error) {
	return nil, domain.NewDomainError(domain.ErrCodeInvalidInput, "document storage not configured: S3_ENDPOINT required")
}

func (s *NoOpDocumentService) Ingest(ctx context.Context, ownerID, key string, topics []string) (*service.IngestResult, error) {
	return nil, domain.NewDomainError(domain.ErrCodeInvalidInput, "document storage not configured: S3_ENDPOINT required")
}

func runMigrations(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else {
		log.Printf("migrations: at version %d", version)
	}

	return nil
}
