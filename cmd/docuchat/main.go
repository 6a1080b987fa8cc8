package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/docuchat-io/docuchat/internal/ai"
	"github.com/docuchat-io/docuchat/internal/config"
	"github.com/docuchat-io/docuchat/internal/db"
	"github.com/docuchat-io/docuchat/internal/filestore"
	"github.com/docuchat-io/docuchat/internal/handler"
	"github.com/docuchat-io/docuchat/internal/ingest"
	"github.com/docuchat-io/docuchat/internal/job"
	"github.com/docuchat-io/docuchat/internal/middleware"
	"github.com/docuchat-io/docuchat/internal/orchestrate"
	"github.com/docuchat-io/docuchat/internal/repo"
	"github.com/docuchat-io/docuchat/internal/retrieve"
	"github.com/docuchat-io/docuchat/internal/schedule"
	"github.com/docuchat-io/docuchat/internal/service"
	"github.com/docuchat-io/docuchat/internal/vecstore"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "docuchat",
		Short: "docuchat backend server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run docuchat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
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

			database, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := db.ApplyMigrations(database); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, database)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

// buildProviders instantiates every configured backend once; chatbots select
// among them by name at call time.
func buildProviders(cfg config.AIConfig) (orchestrate.ProviderMap, error) {
	providers := orchestrate.ProviderMap{}
	for _, item := range cfg.Providers {
		provider, err := ai.NewProvider(item.Provider, item.Data)
		if err != nil {
			return nil, fmt.Errorf("init ai provider %s: %w", item.Provider, err)
		}
		providers[strings.ToLower(item.Provider)] = provider
	}
	return providers, nil
}

func buildEmbedder(cfg config.AIConfig, providers orchestrate.ProviderMap) (ai.IEmbedder, error) {
	name := cfg.EmbedProvider
	if name == "" && len(cfg.Providers) > 0 {
		name = cfg.Providers[0].Provider
	}
	provider, ok := providers.Provider(name)
	if !ok {
		return nil, fmt.Errorf("embed provider %q is not configured", name)
	}
	var embedModel string
	for _, item := range cfg.Providers {
		if strings.EqualFold(item.Provider, name) {
			embedModel = item.EmbedModel
		}
	}
	if embedModel == "" {
		return nil, fmt.Errorf("embed provider %q has no embed_model", name)
	}
	retry := ai.DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxAttempts
	return ai.NewEmbedder(provider, embedModel, ai.EmbedderConfig{
		MaxBatchItems: cfg.EmbedBatchSize,
		MaxBatchBytes: cfg.EmbedBatchBytes,
		Retry:         retry,
		RatePerSecond: cfg.RatePerSecond,
	}), nil
}

func runServer(cfg *config.Config, database *sql.DB) error {
	rootLogger := logutil.GetLogger(context.Background())
	rootLogger.Info("starting server",
		zap.Int("port", cfg.Port),
		zap.String("file_store", cfg.FileStore.Type),
	)

	userRepo := repo.NewUserRepo(database)
	docRepo := repo.NewDocumentRepo(database)
	botRepo := repo.NewChatbotRepo(database)
	convRepo := repo.NewConversationRepo(database)

	files, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}
	vectors := vecstore.NewPgStore(database)

	providers, err := buildProviders(cfg.AI)
	if err != nil {
		return err
	}
	embedder, err := buildEmbedder(cfg.AI, providers)
	if err != nil {
		return err
	}

	pipeline, err := ingest.New(docRepo, files, vectors, embedder, ingest.Config{
		Workers:    cfg.Ingest.Workers,
		TargetSize: cfg.Ingest.TargetSize,
		Overlap:    *cfg.Ingest.Overlap,
		Timeout:    time.Duration(cfg.Ingest.TimeoutSecond) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("init ingest pipeline: %w", err)
	}
	defer pipeline.Close()

	engine, err := retrieve.New(embedder, vectors,
		cfg.AI.CacheSize,
		time.Duration(cfg.AI.CacheTTLMinutes)*time.Minute,
		retrieve.Options{TopK: cfg.Chat.TopK, MinScore: cfg.Chat.MinScore},
	)
	if err != nil {
		return fmt.Errorf("init retrieval engine: %w", err)
	}
	orchestrator, err := orchestrate.New(providers, convRepo, orchestrate.Config{
		PromptBudget:  cfg.Chat.PromptBudget,
		HistoryBudget: cfg.Chat.HistoryBudget,
		Timeout:       time.Duration(cfg.Chat.TimeoutSecond) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}

	providerNames := make([]string, 0, len(providers))
	for name := range providers {
		providerNames = append(providerNames, name)
	}
	authService := service.NewAuthService(userRepo, []byte(cfg.JWTSecret), time.Hour*time.Duration(cfg.JWTTTLHours))
	botService := service.NewChatbotService(botRepo, providerNames)
	docService := service.NewDocumentService(docRepo, files, vectors, pipeline)
	chatService := service.NewChatService(botRepo, convRepo, engine, orchestrator,
		time.Duration(cfg.Chat.TimeoutSecond)*time.Second)

	deps := handler.RouterDeps{
		Auth:           handler.NewAuthHandler(authService),
		Chatbots:       handler.NewChatbotHandler(botService),
		Documents:      handler.NewDocumentHandler(docService),
		Chat:           handler.NewChatHandler(chatService),
		JWTSecret:      []byte(cfg.JWTSecret),
		ChatRateWindow: time.Duration(cfg.Chat.RateLimitSeconds) * time.Second,
	}

	web, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	scheduler := schedule.NewCronScheduler()
	reaper := job.NewStuckIngestionJob(docRepo, vectors,
		time.Duration(cfg.Ingest.StuckAfterMinutes)*time.Minute)
	if err := scheduler.AddJob(reaper, "*/10 * * * *"); err != nil {
		return fmt.Errorf("schedule reaper: %w", err)
	}
	retention := job.NewConversationRetentionJob(convRepo, cfg.Chat.RetentionDays)
	if err := scheduler.AddJob(retention, "30 3 * * *"); err != nil {
		return fmt.Errorf("schedule retention: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler.Start(ctx)
	defer scheduler.Stop()

	rootLogger.Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := web.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	rootLogger.Info("server stopping...")
	return nil
}
