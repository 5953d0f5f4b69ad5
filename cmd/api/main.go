// main.go - The entry point and dependency wiring.

package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bosocmputer/lease_analyzer/configs"
	"github.com/bosocmputer/lease_analyzer/internal/ai"
	"github.com/bosocmputer/lease_analyzer/internal/api"
	"github.com/bosocmputer/lease_analyzer/internal/auth"
	"github.com/bosocmputer/lease_analyzer/internal/billing"
	"github.com/bosocmputer/lease_analyzer/internal/clauses"
	"github.com/bosocmputer/lease_analyzer/internal/entitlement"
	"github.com/bosocmputer/lease_analyzer/internal/events"
	"github.com/bosocmputer/lease_analyzer/internal/health"
	"github.com/bosocmputer/lease_analyzer/internal/logging"
	"github.com/bosocmputer/lease_analyzer/internal/orchestrator"
	"github.com/bosocmputer/lease_analyzer/internal/processor"
	"github.com/bosocmputer/lease_analyzer/internal/ratelimit"
	"github.com/bosocmputer/lease_analyzer/internal/storage"
	"github.com/bosocmputer/lease_analyzer/internal/traces"
	"github.com/gin-gonic/gin"
)

func main() {
	// Step 0: Load configuration from environment variables
	configs.LoadConfig()

	logger := logging.New(configs.LOG_LEVEL, configs.LOG_FORMAT)
	slog.SetDefault(logger)

	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTraces, err := traces.Init(context.Background(), configs.OTLP_ENDPOINT, logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	checks := health.NewRegistry()

	// Step 1: Storage. An empty MONGO_URI keeps everything in memory.
	var (
		profiles  entitlement.Store
		analyses  storage.AnalysisStore
		templates storage.TemplateStore
		payments  storage.PaymentStore
	)
	if configs.MONGO_URI != "" {
		if err := storage.InitMongoDB(configs.MONGO_URI, configs.MONGO_DB_NAME); err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		defer storage.CloseMongoDB()

		db := storage.GetMongoDB()
		if err := storage.EnsureIndexes(context.Background(), db); err != nil {
			logger.Warn("index creation failed", "error", err)
		}
		profiles = entitlement.NewMongoStore(db)
		analyses = storage.NewMongoAnalysisStore(db)
		templates = storage.NewMongoTemplateStore(db)
		payments = storage.NewMongoPaymentStore(db)
		checks.RegisterPing("mongodb", storage.PingMongoDB)
	} else {
		logger.Warn("MONGO_URI not set, using in-memory stores")
		profiles = entitlement.NewMemoryStore()
		analyses = storage.NewMemoryAnalysisStore()
		templates = storage.NewMemoryTemplateStore()
		payments = storage.NewMemoryPaymentStore()
	}
	templateCache := storage.NewTemplateCache(templates, storage.CACHE_TTL)

	// Step 2: LLM pool and document extraction
	generator := ai.NewGeminiGenerator(configs.MODEL_NAME)
	defer generator.Close()

	pool, err := ai.NewPool(configs.GEMINI_API_KEYS, generator,
		ai.WithRateLimiter(ratelimit.NewRateLimiter(configs.LLM_RATE_LIMIT_TOKENS, configs.LLM_RATE_LIMIT_REFILL)),
		ai.WithTimeout(configs.LLM_TIMEOUT),
	)
	if err != nil {
		log.Fatalf("Failed to build LLM pool: %v", err)
	}
	checks.Register(func(context.Context) health.Status {
		return health.Status{Name: "llm_credentials", Healthy: pool.Size() > 0}
	})

	ocrEngines := ai.CreateOCREngines(ai.OCRSettings{
		Provider:      configs.OCR_PROVIDER,
		MistralAPIKey: configs.MISTRAL_API_KEY,
		MistralModel:  configs.MISTRAL_MODEL_NAME,
		TesseractLang: configs.TESSERACT_LANG,
	}, pool, logger)

	extractor := processor.NewExtractor(configs.MIN_TEXT_CHARS,
		processor.WithTextLayers(processor.GoPDFText{}, processor.PopplerText{}),
		processor.WithRasterizer(processor.NewCLIRasterizer(200)),
		processor.WithOCR(ocrEngines...),
		processor.WithImageOptions(processor.PreprocessOptions{
			Mode:         processor.BalancedMode,
			MaxDimension: configs.MAX_IMAGE_DIMENSION,
		}),
	)

	library, err := clauses.Load(configs.CLAUSE_LIBRARY_PATH)
	if err != nil {
		log.Fatalf("Failed to load clause library: %v", err)
	}

	// Step 3: Side channels
	var publisher events.Publisher = events.NopPublisher{}
	if configs.RABBITMQ_URL != "" {
		publisher = events.NewAMQPPublisher(configs.RABBITMQ_URL)
	}
	defer publisher.Close()

	redisClient := ratelimit.NewRedisClient(configs.REDIS_ADDR, configs.REDIS_PASSWORD, configs.REDIS_DB)
	if redisClient != nil {
		defer redisClient.Close()
		checks.RegisterPing("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	analyzeLimiter := ratelimit.NewUserLimiter(redisClient, configs.ANALYZE_RATE_PER_MINUTE, "ratelimit:analyze:")

	var verifier auth.TokenVerifier
	if configs.AUTH_ISSUER != "" {
		v, err := auth.NewVerifier(configs.AUTH_ISSUER, configs.AUTH_AUDIENCE, configs.AUTH_JWKS_URL)
		if err != nil {
			log.Fatalf("Failed to initialize token verifier: %v", err)
		}
		verifier = v
	} else {
		logger.Warn("no identity provider configured, authenticated routes will reject every request")
	}

	var stripeClient *billing.Stripe
	if configs.STRIPE_SECRET_KEY != "" {
		billing.InitStripe(configs.STRIPE_SECRET_KEY, configs.PAYMENT_TIMEOUT)
		stripeClient = billing.NewStripe(configs.STRIPE_WEBHOOK_SECRET, configs.STRIPE_PRICE_TIERS, configs.FRONTEND_URL)
	}

	// Step 4: Orchestrator and HTTP surface
	analyzer := orchestrator.NewService(profiles, extractor, pool, analyses,
		orchestrator.WithTemplates(templateCache),
		orchestrator.WithClauseLibrary(library),
		orchestrator.WithPublisher(publisher),
		orchestrator.WithStrictQuota(configs.STRICT_QUOTA),
	)

	handler := &api.Handler{
		Analyzer:       analyzer,
		Extractor:      extractor,
		Profiles:       profiles,
		Analyses:       analyses,
		Templates:      templateCache,
		Payments:       payments,
		Billing:        billing.NewService(profiles, payments),
		Stripe:         stripeClient,
		Health:         checks,
		MaxUploadBytes: configs.MAX_UPLOAD_BYTES,
		MaxImageBytes:  configs.MAX_IMAGE_BYTES,
		WebhookSecret:  configs.PAYMENT_WEBHOOK_SECRET,
		VariantTiers:   configs.PAYMENT_VARIANT_TIERS,
	}
	router := api.NewRouter(handler, api.RouterConfig{
		Logger:         logger,
		Verifier:       verifier,
		AdminIDs:       configs.ADMIN_USER_IDS,
		AnalyzeLimiter: analyzeLimiter,
		AllowedOrigins: configs.ALLOWED_ORIGINS,
	})

	// Step 5: Setup HTTP server with timeouts
	srv := &http.Server{
		Addr:           ":" + configs.PORT,
		Handler:        router,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   3 * time.Minute, // Allow up to 3 minutes for AI processing
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Info("starting server",
			"port", configs.PORT,
			"credentials", pool.Size(),
			"clauses", library.Len(),
			"strict_quota", configs.STRICT_QUOTA,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := shutdownTraces(ctx); err != nil {
		logger.Warn("trace exporter shutdown failed", "error", err)
	}

	logger.Info("server exited")
}
