package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/imgproxy/imgproxy/internal/blobstore"
	"github.com/imgproxy/imgproxy/internal/config"
	"github.com/imgproxy/imgproxy/internal/fetcher"
	"github.com/imgproxy/imgproxy/internal/lrucache"
	"github.com/imgproxy/imgproxy/internal/moderation"
	awsmoderation "github.com/imgproxy/imgproxy/internal/moderation/aws"
	"github.com/imgproxy/imgproxy/internal/pipeline"
	"github.com/imgproxy/imgproxy/internal/rpcserver"
	"github.com/imgproxy/imgproxy/internal/store"
	"github.com/imgproxy/imgproxy/internal/store/memstore"
	"github.com/imgproxy/imgproxy/internal/store/postgres"
	"github.com/imgproxy/imgproxy/internal/urlfilter"
	"github.com/imgproxy/imgproxy/internal/videoqueue"
)

func main() {
	// Self-contained healthcheck for scratch containers, mirroring the
	// teacher's -healthcheck flag.
	if len(os.Args) > 1 && os.Args[1] == "-healthcheck" {
		resp, err := http.Get("http://127.0.0.1:8080/")
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logOpts := &slog.HandlerOptions{Level: cfg.ParseLogLevel()}
	var logHandler slog.Handler = slog.NewJSONHandler(os.Stdout, logOpts)
	if os.Getenv("LOG_FORMAT") == "text" {
		logHandler = slog.NewTextHandler(os.Stdout, logOpts)
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := newStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create verdict store", "error", err)
		os.Exit(1)
	}

	cache := newCache(cfg, logger)

	moderator, rekognition, err := newModerator(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create moderation provider", "error", err)
		os.Exit(1)
	}

	filters := newFilterChain(cfg, logger)
	f := fetcher.New(cfg.IPFS, filters, time.Duration(cfg.Timeout)*time.Second, cfg.ClientUserAgent, logger)

	var dispatcher pipeline.VideoDispatcher
	if cfg.VideoQueue.Enabled {
		if rekognition == nil {
			logger.Error("video_queue.enabled requires moderation.provider=Aws")
			os.Exit(1)
		}
		blobs, err := newBlobStore(ctx, cfg)
		if err != nil {
			logger.Error("failed to create video blob store", "error", err)
			os.Exit(1)
		}
		vq := videoqueue.New(cfg.VideoQueue.Concurrency, logger)
		dispatcher = videoqueue.NewDispatcher(vq, blobs, awsmoderation.NewVideoProvider(rekognition), st, logger)
	}

	p := pipeline.New(f, cache, st, moderator, dispatcher, logger)

	apiKeys := make(map[string]string, len(cfg.Security.APIKeys))
	for _, k := range cfg.Security.APIKeys {
		apiKeys[k.Key] = k.Name
	}

	handler := rpcserver.New(p, apiKeys, cfg.CORS.Origin, cfg.MetricsEnabled, logger)
	logged := rpcserver.LoggingMiddleware(rpcserver.WithCORS(handler, cfg.CORS.Origin))

	h2s := &http2.Server{}
	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: h2c.NewHandler(logged, h2s),
	}

	go func() {
		logger.Info("starting server", "addr", cfg.Addr(), "workers", cfg.Workers, "metrics_enabled", cfg.MetricsEnabled, "video_queue", cfg.VideoQueue.Enabled)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// newStore selects the pooled Postgres store, falling back to the
// in-memory store when no database host is configured — a dev
// convenience, not a production path.
func newStore(ctx context.Context, cfg *config.Configuration, logger *slog.Logger) (store.Store, error) {
	if cfg.Database.Host == "" {
		logger.Warn("no database.host configured, running with an in-memory verdict store")
		return memstore.New(), nil
	}
	return postgres.New(ctx, cfg.Database)
}

func newCache(cfg *config.Configuration, logger *slog.Logger) *lrucache.Cache {
	if cfg.CacheConfig.CacheType != config.CacheTypeInMemory || cfg.CacheConfig.InMemoryCacheConfig == nil {
		return nil
	}
	maxBytes := cfg.CacheConfig.InMemoryCacheConfig.MaxCacheSizeMB * 1024 * 1024
	return lrucache.New(maxBytes, logger)
}

// newModerator builds the synchronous moderation.Provider the pipeline
// uses for images. The second return value is the concrete
// *awsmoderation.RekognitionProvider (nil unless Aws was selected),
// which the caller needs to also build a video provider sharing the
// same Rekognition client.
func newModerator(ctx context.Context, cfg *config.Configuration, logger *slog.Logger) (moderation.Provider, *awsmoderation.RekognitionProvider, error) {
	switch cfg.Moderation.Provider {
	case config.ModerationProviderAws:
		region := "us-east-1"
		if cfg.Moderation.Aws != nil && cfg.Moderation.Aws.Region != "" {
			region = cfg.Moderation.Aws.Region
		}
		rp, err := awsmoderation.New(ctx, region, logger)
		if err != nil {
			return nil, nil, err
		}
		return rp, rp, nil
	default:
		logger.Warn("moderation.provider is not Aws, running with the Dummy provider", "provider", cfg.Moderation.Provider)
		return moderation.NewDummy(), nil, nil
	}
}

func newBlobStore(ctx context.Context, cfg *config.Configuration) (blobstore.Store, error) {
	switch cfg.VideoQueue.BlobBackend {
	case "s3":
		return blobstore.NewS3Store(ctx, cfg.VideoQueue.S3Bucket, cfg.VideoQueue.S3Prefix, cfg.VideoQueue.S3ForcePathStyle)
	case "fs", "":
		return blobstore.NewFSStore(cfg.VideoQueue.FSRoot)
	default:
		return nil, fmt.Errorf("unknown video_queue.blob_backend: %q", cfg.VideoQueue.BlobBackend)
	}
}

func newFilterChain(cfg *config.Configuration, logger *slog.Logger) urlfilter.Chain {
	chain := urlfilter.Chain{urlfilter.NewPrivateNetworkFilter(urlfilter.StandardResolver{}, logger)}
	if cfg.IPFilter.Enabled {
		cidrFilter, err := urlfilter.NewCIDRFilter(cfg.IPFilter, urlfilter.StandardResolver{})
		if err != nil {
			logger.Error("failed to build configured ip_filter, running without it", "error", err)
			return chain
		}
		chain = append(chain, cidrFilter)
	}
	return chain
}
