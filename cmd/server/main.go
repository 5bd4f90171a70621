package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/adapter/generation/gemini"
	grpcAdapter "github.com/Abdurahmanit/GroupProject/flashlist-service/internal/adapter/grpc"
	natsAdapter "github.com/Abdurahmanit/GroupProject/flashlist-service/internal/adapter/messaging/nats"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/adapter/repository/cache"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/adapter/repository/memory"
	mongoRepo "github.com/Abdurahmanit/GroupProject/flashlist-service/internal/adapter/repository/mongodb"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/adapter/rest"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/adapter/storage/s3"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/config"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/listing/domain"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/listing/usecase"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/mailer"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/marketplace"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/platform/logger"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/platform/metrics"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/platform/tracer"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

const serviceName = "flashlist-service"

// generationDisabled answers every request when no GEMINI_API_KEY is set.
type generationDisabled struct{}

func (generationDisabled) Describe(context.Context, []byte, string) (*domain.CandidateListing, error) {
	return nil, fmt.Errorf("%w: GEMINI_API_KEY not configured", domain.ErrGenerationUnavailable)
}

func (generationDisabled) EstimatePrice(context.Context, string, string) (float64, error) {
	return 0, fmt.Errorf("%w: GEMINI_API_KEY not configured", domain.ErrGenerationUnavailable)
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Printf("INFO: .env file not found or error loading: %v. Relying on OS environment variables.\n", err)
	}

	appLogger := logger.NewLogger()
	defer func() { _ = appLogger.Sync() }()
	appLogger.Info("Application starting", zap.String("service_name", serviceName))

	cfg, err := config.LoadConfig(appLogger)
	if err != nil {
		appLogger.Fatal("Failed to load configuration", zap.Error(err))
	}
	appLogger.Info("Configuration loaded",
		zap.String("http_port", cfg.HTTPPort),
		zap.String("grpc_port", cfg.GRPCPort),
		zap.String("storage_driver", cfg.StorageDriver),
		zap.Int("marketplaces_configured", len(cfg.Marketplaces)),
	)

	ctx := context.Background()

	if cfg.OTExporterOTLPEndpoint != "" {
		tp, err := tracer.InitTracer(ctx, serviceName, cfg.OTExporterOTLPEndpoint, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				appLogger.Error("Failed to shutdown tracer provider", zap.Error(err))
			}
		}()
	} else {
		appLogger.Info("OpenTelemetry tracer not initialized (OTEL_EXPORTER_OTLP_ENDPOINT not set)")
	}

	metricsManager := metrics.NewMetricsManager("flashlist")
	if cfg.PrometheusMetricsPort != "" {
		go func() {
			if err := metrics.StartMetricsServer(cfg.PrometheusMetricsPort, appLogger, metricsManager.Registry); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLogger.Error("Prometheus metrics server failed", zap.Error(err))
			}
		}()
	}

	// Storage
	var (
		listingRepo domain.ListingRepository
		users       mailer.EmailLookup
	)
	switch cfg.StorageDriver {
	case "mongo":
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			appLogger.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		defer func() {
			if err := mongoClient.Disconnect(context.Background()); err != nil {
				appLogger.Error("Error disconnecting from MongoDB", zap.Error(err))
			}
		}()
		pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
		err = mongoClient.Ping(pingCtx, nil)
		cancelPing()
		if err != nil {
			appLogger.Fatal("Failed to ping MongoDB", zap.Error(err))
		}
		db := mongoClient.Database(cfg.MongoDatabase)
		listingRepo = mongoRepo.NewListingRepository(db, appLogger)
		users = mongoRepo.NewUserRepository(db, appLogger)
		appLogger.Info("MongoDB listing repository initialized", zap.String("database", cfg.MongoDatabase))
	default:
		listingRepo = memory.NewListingRepository()
		appLogger.Warn("Using in-memory listing repository; data is lost on restart")
	}

	if cfg.RedisAddress != "" {
		listingCache, err := cache.NewListingCache(ctx, cfg.RedisAddress)
		if err != nil {
			appLogger.Fatal("Failed to connect to Redis", zap.String("address", cfg.RedisAddress), zap.Error(err))
		}
		defer listingCache.Close()
		listingRepo = cache.NewCachedRepository(listingRepo, listingCache, cfg.CacheTTL, appLogger)
		appLogger.Info("Redis listing cache enabled", zap.Duration("ttl", cfg.CacheTTL))
	}

	var photoStorage domain.PhotoStorage
	if cfg.MinIOEndpoint != "" {
		photoStorage, err = s3.NewS3Storage(ctx, cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOBucket, cfg.MinIOUseSSL, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to initialize photo storage", zap.Error(err))
		}
	} else {
		photoStorage = memory.NewPhotoStorage()
		appLogger.Warn("MINIO_ENDPOINT not set, photos are kept in memory")
	}

	// Generation
	var generator domain.Generator = generationDisabled{}
	if cfg.GeminiAPIKey != "" {
		geminiClient, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to initialize Gemini client", zap.Error(err))
		}
		defer geminiClient.Close()
		generator = geminiClient
	} else {
		appLogger.Warn("GEMINI_API_KEY not set, generation endpoints will answer 503")
	}

	// Events and notifications
	var publisher domain.EventPublisher
	if cfg.NATSURL != "" {
		natsPublisher, err := natsAdapter.NewPublisher(cfg.NATSURL, appLogger, serviceName)
		if err != nil {
			appLogger.Fatal("Failed to initialize NATS publisher", zap.Error(err))
		}
		defer natsPublisher.Close()
		publisher = natsPublisher
	}

	var notifier domain.Notifier
	if cfg.SMTPHost != "" && users != nil {
		notifier = mailer.NewSMTPMailer(mailer.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, users, appLogger)
		appLogger.Info("Distribution summary mails enabled", zap.String("smtp_host", cfg.SMTPHost))
	}

	// Marketplaces
	baseURL := strings.TrimRight(cfg.PublicBaseURL, "/")
	photoURL := func(ref domain.PhotoReference) string { return baseURL + "/api/" + string(ref) }

	registry, err := marketplace.NewRegistry()
	if err != nil {
		appLogger.Fatal("Failed to create marketplace registry", zap.Error(err))
	}
	for _, mc := range cfg.Marketplaces {
		adapter, err := marketplace.NewBuiltin(mc.Name, mc.Endpoint, mc.Token, cfg.AdapterRetryCount, photoURL)
		if err != nil {
			appLogger.Fatal("Failed to build marketplace adapter", zap.String("marketplace", mc.Name), zap.Error(err))
		}
		if err := registry.Register(adapter); err != nil {
			appLogger.Fatal("Failed to register marketplace adapter", zap.String("marketplace", mc.Name), zap.Error(err))
		}
		appLogger.Info("Marketplace adapter registered", zap.String("marketplace", mc.Name), zap.String("endpoint", mc.Endpoint))
	}
	if len(registry.Names()) == 0 {
		appLogger.Warn("No marketplace adapters configured; every selected marketplace will fail as unknown_marketplace")
	}

	// Usecases
	distributor := usecase.NewDistributor(listingRepo, registry, publisher, notifier, metricsManager,
		usecase.DistributorConfig{
			AdapterTimeout:     cfg.AdapterTimeout,
			MaxConcurrentPosts: cfg.MaxConcurrentPosts,
		}, appLogger)
	listingUsecase := usecase.NewListingUsecase(listingRepo, distributor, publisher, metricsManager, cfg.MaxMarketplaces, appLogger)
	photoUsecase := usecase.NewPhotoUsecase(photoStorage, cfg.MaxPhotoBytes, appLogger)
	generationUsecase := usecase.NewGenerationUsecase(generator, photoUsecase, cfg.GenerationTimeout, appLogger)

	// Transports
	handler := rest.NewHandler(listingUsecase, photoUsecase, generationUsecase, registry, cfg.MaxPhotoBytes, appLogger)
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           rest.NewRouter(handler, rest.RouterConfig{JWTSecret: cfg.JWTSecret, Metrics: metricsManager}, appLogger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		appLogger.Info("Starting HTTP server", zap.String("port", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	opsServer := grpcAdapter.NewOpsServer(serviceName, appLogger)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		appLogger.Fatal("Failed to listen for gRPC", zap.String("port", cfg.GRPCPort), zap.Error(err))
	}
	go func() {
		if err := opsServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			appLogger.Fatal("gRPC server Serve error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	appLogger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	opsServer.Shutdown()

	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), 10*time.Second)
	if err := httpServer.Shutdown(httpCtx); err != nil {
		appLogger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	cancelHTTP()

	// let postings already running record their outcome
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.AdapterTimeout+5*time.Second)
	if err := distributor.Shutdown(drainCtx); err != nil {
		appLogger.Warn("Postings still in flight at shutdown", zap.Error(err))
	}
	cancelDrain()
	if n := distributor.AbandonedCalls(); n > 0 {
		appLogger.Warn("Abandoned marketplace calls never returned", zap.Int64("count", n))
	}

	appLogger.Info("Application shut down")
}
