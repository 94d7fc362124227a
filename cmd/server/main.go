package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"siyuan-ocr/internal/api"
	"siyuan-ocr/internal/config"
	"siyuan-ocr/internal/db"
	"siyuan-ocr/internal/models"
	"siyuan-ocr/internal/ocr"
	"siyuan-ocr/internal/services"
	"siyuan-ocr/internal/siyuan"
	"siyuan-ocr/internal/storage"
)

func main() {
	cfg := config.Load()

	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	conn, err := db.Open(cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()

	var (
		notebooks services.NotebookLister
		docs      services.DocumentStore
		assets    services.AssetStore
		reader    services.DocumentReader
	)
	switch cfg.NotesBackend {
	case config.BackendLocal:
		local := storage.NewLocalStore(conn, cfg.AssetDir)
		notebooks, docs, assets, reader = local, local, local, local
		logger.Info("using local notes backend", "asset_dir", cfg.AssetDir)
	case config.BackendSiYuan:
		kernel := siyuan.NewClient(cfg.SiYuanURL, cfg.SiYuanToken, nil)
		notebooks, docs, assets = kernel, kernel, kernel
		logger.Info("using siyuan notes backend", "url", cfg.SiYuanURL)
	default:
		log.Fatalf("unknown NOTES_BACKEND %q (want %s or %s)", cfg.NotesBackend, config.BackendSiYuan, config.BackendLocal)
	}

	if cfg.AssetBackend == config.AssetBackendS3 {
		s3Store, err := storage.NewS3AssetStore(ctx, storage.S3Options{
			Region:    cfg.AwsRegion,
			AccessKey: cfg.AwsAccessKey,
			SecretKey: cfg.AwsSecretKey,
			Bucket:    cfg.S3Bucket,
			Endpoint:  cfg.S3Endpoint,
		}, logger)
		if err != nil {
			log.Fatalf("init s3 asset store: %v", err)
		}
		assets = s3Store
	}

	settings := services.NewSettingsService(conn, logger)
	if cfg.ProvidersFile != "" {
		if _, err := settings.ImportProvidersFile(ctx, cfg.ProvidersFile); err != nil {
			logger.Warn("failed to import providers file", "path", cfg.ProvidersFile, "error", err)
		}
	}

	ocrClient := &http.Client{Timeout: time.Duration(cfg.OCRTimeoutSeconds) * time.Second}
	assembler := services.NewDocumentAssembler(assets, docs, logger)
	conversions := services.NewConversionService(settings, assembler, func(p models.ProviderConfig) (ocr.Provider, error) {
		return ocr.NewProvider(p, ocr.WithHTTPClient(ocrClient))
	}, logger)

	server := api.NewServer(settings, conversions, notebooks, reader, logger)

	var handler http.Handler = server.Handler()
	handler = api.Recovery(logger)(handler)
	handler = api.WithCORS(cfg.Origins(), handler)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("server starting", "port", cfg.Port, "environment", cfg.Environment)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
}
