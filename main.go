package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"evermore/internal/api"
	"evermore/internal/database"
	"evermore/internal/events"
	"evermore/internal/llm/client"
	"evermore/internal/repositories"
	"evermore/internal/services"
	"evermore/internal/utils"
)

var (
	flagAddr     string
	flagDBPath   string
	flagProvider string
	flagModel    string
	flagVerbose  bool
)

func main() {
	root := &cobra.Command{
		Use:          "evermore",
		Short:        "Story evolution service for memorial legacies",
		SilenceUsage: true,
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the evolution workflow API server",
		RunE:  runServe,
	}
	serve.Flags().StringVar(&flagAddr, "addr", "127.0.0.1:8337", "listen address")
	serve.Flags().StringVar(&flagDBPath, "db", "", "sqlite database path (defaults to the per-user data dir)")
	serve.Flags().StringVar(&flagProvider, "provider", "openai", "model provider: openai, anthropic or gemini")
	serve.Flags().StringVar(&flagModel, "model", "", "model API name (defaults to the provider's default model)")
	serve.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	root.AddCommand(serve)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := utils.LoadEnv(); err != nil && database.IsDevelopment() {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()
	events.EnableLogEmitter(logger)

	dbPath := flagDBPath
	if dbPath == "" {
		dbPath = database.GetDefaultDBPath()
	}
	db, err := database.Init(database.Config{Path: dbPath, Logger: logger})
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	logger.Info("database ready", zap.String("path", dbPath))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	keys := services.NewKeyringService()
	apiKey, err := keys.GetAPIKey(flagProvider)
	if err != nil {
		return fmt.Errorf("no API key for %s: %w", flagProvider, err)
	}

	// The model catalog has to be seeded before the chat client exists,
	// so it gets its own instance here; the container re-runs the same
	// idempotent seeding on startup.
	modelCfg := services.NewModelConfigService(repositories.NewModelSettingRepository(db))
	if err := modelCfg.Startup(ctx); err != nil {
		return fmt.Errorf("load model catalog: %w", err)
	}
	modelName := flagModel
	if modelName == "" {
		model, err := modelCfg.DefaultModel(flagProvider)
		if err != nil {
			return fmt.Errorf("resolve model for %s: %w", flagProvider, err)
		}
		modelName = model.APIName
	}
	chat, err := client.New(ctx, flagProvider, apiKey, modelName)
	if err != nil {
		return fmt.Errorf("init chat client: %w", err)
	}
	logger.Info("chat client ready",
		zap.String("provider", flagProvider),
		zap.String("model", modelName))

	svcs := services.NewDbServices(db, chat)
	if err := svcs.StartDbServices(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	server := api.NewServer(api.Config{Addr: flagAddr}, svcs, svcs.ModelConfigs, logger)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	svcs.Drafts.Shutdown()
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	return nil
}

func newLogger() (*zap.Logger, error) {
	if flagVerbose || database.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
