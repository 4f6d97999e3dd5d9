package main

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cshum/vipsgen/vips"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"gigascene/internal/config"
	"gigascene/internal/httpapi"
	"gigascene/internal/image_list"
	"gigascene/internal/image_source"
	"gigascene/internal/logger"
	"gigascene/internal/preview_cache"
	"gigascene/internal/scene"
	"gigascene/internal/session"
)

func main() {
	configPath := flag.String("config", "", "path to config file (JSON, comments allowed)")
	port := flag.Int("port", 0, "listen port (overrides config)")
	dataDir := flag.String("data-dir", "", "image directory (overrides config)")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	vipsConfig := &vips.Config{
		ConcurrencyLevel: cfg.VipsConcurrency,
		MaxCacheMem:      cfg.VipsMaxCacheMB * 1024 * 1024, // Convert MB to bytes
		MaxCacheFiles:    0,                                // Disable disk cache
		MaxCacheSize:     0,                                // Disable disk cache
		ReportLeaks:      false,
		CacheTrace:       false,
		VectorEnabled:    true,
	}

	// Set up logging
	vips.SetLogging(func(domain string, level vips.LogLevel, message string) {
		// Map vips log levels to zap levels
		if level >= vips.LogLevelError {
			log.Error("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		} else if level >= vips.LogLevelWarning {
			log.Warn("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		}
		// Ignore info/debug messages to keep logs clean
	}, vips.LogLevelError)

	vips.Startup(vipsConfig)
	defer vips.Shutdown()

	log.Info("VIPS initialized",
		zap.Int("max_cache_mb", cfg.VipsMaxCacheMB),
		zap.Int("concurrency", cfg.VipsConcurrency),
	)

	log.Info("Starting Gigascene server",
		zap.Int("port", cfg.Port),
		zap.String("data_dir", cfg.DataDir),
	)

	scanner := image_list.New(cfg.DataDir, image_source.Probe, log)
	if err := scanner.Scan(); err != nil {
		log.Warn("Initial scan failed", zap.Error(err))
	}

	previews := preview_cache.New(cfg.PreviewCacheSize)

	opener := func(imageID string, viewW, viewH int) (*session.Opened, error) {
		return openScene(cfg, scanner, previews, log, imageID, viewW, viewH)
	}
	manager := session.NewManager(opener, cfg.MaxSessions, log)

	handlers := httpapi.New(cfg, log, scanner, manager)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/images", handlers.HandleImages)
	mux.HandleFunc("/api/sessions", handlers.HandleSessions)
	mux.HandleFunc("/api/sessions/", handlers.HandleSessionRoutes)
	mux.HandleFunc("/healthz", handlers.HandleHealthz)

	handler := handlers.CORSMiddleware(handlers.RequestLoggingMiddleware(mux))

	if cfg.WarmupWorkers > 0 {
		go warmupPreviews(cfg, scanner, previews, log)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.Int("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	manager.CloseAll()

	log.Info("Server stopped")
}

// openScene builds a ready-to-draw scene over a catalog image, reusing a
// cached preview when one is available.
func openScene(cfg *config.Config, scanner *image_list.Scanner, previews *preview_cache.Cache, log *zap.Logger, imageID string, viewW, viewH int) (*session.Opened, error) {
	info := scanner.GetImageByID(imageID)
	if info == nil {
		return nil, fmt.Errorf("unknown image: %s", imageID)
	}

	opts := image_source.Options{
		MarginPx:     cfg.CacheMarginPx,
		BudgetBytes:  cfg.BudgetBytes(),
		PreviewMaxPx: cfg.PreviewMaxPx,
		Size:         image.Pt(info.Width, info.Height),
	}
	if preview, ok := previews.Get(imageID); ok {
		opts.Preview = preview
	}

	imageLog := log.With(zap.String("image_id", imageID))
	src, err := image_source.Open(scanner.GetImagePathByID(imageID), opts, imageLog)
	if err != nil {
		return nil, err
	}
	previews.Set(imageID, src.Preview())

	sc := scene.New(src, imageLog)
	sc.SetSceneSize(info.Width, info.Height)
	sc.Viewport().SetSize(viewW, viewH)
	sc.Initialize()
	sc.Start()

	return &session.Opened{
		Scene:  sc,
		Frames: src.Frames,
		Close:  sc.Close,
	}, nil
}

func warmupPreviews(cfg *config.Config, scanner *image_list.Scanner, previews *preview_cache.Cache, log *zap.Logger) {
	images := scanner.GetImages()
	if len(images) == 0 {
		return
	}

	// Worker pool size configured via env (defaults to 1)
	workerLimit := cfg.WarmupWorkers
	if workerLimit <= 0 {
		workerLimit = 1
	}

	log.Info("Starting preview warmup", zap.Int("images", len(images)), zap.Int("workers", workerLimit))

	workerChan := make(chan struct{}, workerLimit)
	var wg sync.WaitGroup

	for _, img := range images {
		wg.Add(1)
		workerChan <- struct{}{} // Acquire worker slot

		go func(img image_list.ImageInfo) {
			defer wg.Done()
			defer func() { <-workerChan }() // Release worker slot

			if _, ok := previews.Get(img.ID); ok {
				return
			}
			preview, err := image_source.BuildPreview(scanner.GetImagePathByID(img.ID), cfg.PreviewMaxPx)
			if err != nil {
				log.Debug("Preview warmup failed", zap.String("image", img.ID), zap.Error(err))
				return
			}
			previews.Set(img.ID, preview)
		}(img)
	}

	wg.Wait()
	log.Info("Preview warmup completed")
}
