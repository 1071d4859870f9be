package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"pinetree/internal/config"
	"pinetree/internal/crypto"
	"pinetree/internal/database"
	"pinetree/internal/handlers"
	"pinetree/internal/jobs"
	"pinetree/internal/logging"
	"pinetree/internal/middleware"
	"pinetree/internal/preflight"
	"pinetree/internal/services"
	"pinetree/pkg/auth"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🌲 Starting Pinetree Server...")

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, Environment: %s)", cfg.Port, cfg.Environment)

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	// Run preflight checks
	checker := preflight.NewChecker(db, preflight.Options{
		UploadDir:     cfg.UploadDir,
		JWTSecret:     cfg.JWTSecret,
		EncryptionKey: cfg.EncryptionMasterKey,
		Production:    cfg.IsProduction(),
	})
	var results []preflight.CheckResult
	if cfg.QuickPreflight {
		results = checker.QuickCheck()
	} else {
		results = checker.RunAll()
	}
	if preflight.HasFailures(results) {
		log.Fatal("❌ Pre-flight checks failed. Please fix the issues above before starting the server.")
	}

	// MongoDB is optional and only backs the audit trail
	var mongoDB *database.MongoDB
	if cfg.MongoDBURI != "" {
		log.Println("🔗 Connecting to MongoDB...")
		mongoDB, err = database.NewMongoDB(cfg.MongoDBURI)
		if err != nil {
			log.Printf("⚠️ Failed to connect to MongoDB: %v (audit trail disabled)", err)
			mongoDB = nil
		} else {
			defer mongoDB.Close(context.Background())
			if err := mongoDB.Initialize(context.Background()); err != nil {
				log.Printf("⚠️ %v", err)
			}
			log.Println("✅ MongoDB connected successfully")
		}
	} else {
		log.Println("⚠️ MONGODB_URI not set - audit events are logged only")
	}

	// Redis is optional: shared upload counters and sweep locks
	var redisService *services.RedisService
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		log.Println("🔗 Connecting to Redis...")
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Failed to connect to Redis: %v (in-process counters)", err)
			redisService = nil
		} else {
			defer redisService.Close()
			redisClient = redisService.Client()
			log.Println("✅ Redis connected successfully")
		}
	} else {
		log.Println("⚠️ REDIS_URL not set - upload counters kept in process")
	}

	// Encryption of private notes
	var encryptionService *crypto.EncryptionService
	if cfg.EncryptionMasterKey != "" {
		encryptionService, err = crypto.NewEncryptionService(cfg.EncryptionMasterKey)
		if err != nil {
			log.Fatalf("❌ Failed to initialize encryption: %v", err)
		}
		log.Println("✅ Encryption service initialized")
	} else if cfg.IsProduction() {
		log.Fatal("❌ CRITICAL SECURITY ERROR: ENCRYPTION_MASTER_KEY is required in production. Generate with: openssl rand -hex 32")
	}

	// Initialize authentication (Local JWT)
	var jwtAuth *auth.LocalJWTAuth
	if cfg.JWTSecret == "" {
		if cfg.IsProduction() {
			log.Fatal("❌ CRITICAL SECURITY ERROR: JWT_SECRET is required in production. Generate with: openssl rand -hex 64")
		}
		log.Println("⚠️  JWT_SECRET not set - authentication disabled (development mode)")
	} else {
		jwtAuth, err = auth.NewLocalJWTAuth(cfg.JWTSecret, cfg.AccessTokenExpiry, cfg.RefreshTokenExpiry)
		if err != nil {
			log.Fatalf("❌ Failed to initialize JWT authentication: %v", err)
		}
		log.Printf("✅ Local JWT authentication initialized (access: %v, refresh: %v)", cfg.AccessTokenExpiry, cfg.RefreshTokenExpiry)
	}

	tierLimits, err := config.LoadTierLimits(cfg.TierLimitsFile)
	if err != nil {
		log.Fatalf("❌ Failed to load tier limits: %v", err)
	}

	services.InitMetrics()

	// Services
	userService := services.NewUserService(db)
	tierService := services.NewTierService(userService, tierLimits)
	usageLimiter := services.NewUsageLimiterService(tierService, redisClient)
	auditService := services.NewAuditService(mongoDB)
	renderService := services.NewRenderService()
	pineconeService := services.NewPineconeService(
		services.NewPineconeStore(db),
		tierService,
		services.NewContentVault(encryptionService),
		auditService,
		renderService,
	)
	editSessions := services.NewEditSessionService(pineconeService, tierService, cfg.EditSessionTTL)
	imageService := services.NewImageService(db, pineconeService, tierService, usageLimiter, auditService, cfg.UploadDir)

	// Background jobs
	jobScheduler, err := jobs.NewJobScheduler()
	if err != nil {
		log.Fatalf("❌ Failed to create job scheduler: %v", err)
	}
	if err := jobScheduler.Register("trash_sweep", jobs.NewTrashSweepJob(pineconeService, redisService, cfg.TrashRetention, cfg.TrashSweepCron)); err != nil {
		log.Fatalf("❌ %v", err)
	}
	if err := jobScheduler.Register("orphan_image_sweep", jobs.NewOrphanImageSweepJob(imageService, redisService, cfg.ImageSweepCron)); err != nil {
		log.Fatalf("❌ %v", err)
	}
	if err := jobScheduler.Start(); err != nil {
		log.Fatalf("❌ Failed to start job scheduler: %v", err)
	}

	app := fiber.New(fiber.Config{
		AppName:      "Pinetree",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    32 * 1024 * 1024, // large trees and image uploads
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("pinetree")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	rateLimitConfig := middleware.LoadRateLimitConfig()
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: Global=%d/min, Public=%d/min, Auth=%d/15min, TreeSaves=%.0f/s burst %d",
		rateLimitConfig.GlobalAPIMax,
		rateLimitConfig.PublicReadMax,
		rateLimitConfig.AuthAttemptMax,
		rateLimitConfig.TreeSavesPerSecond,
		rateLimitConfig.TreeSaveBurst,
	)

	// Fiber's CORS middleware does not allow AllowCredentials with wildcard origins.
	allowCredentials := cfg.AllowedOrigins != "*"
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: allowCredentials,
	}))
	log.Printf("🔒 [SECURITY] CORS allowed origins: %s", cfg.AllowedOrigins)

	app.Use("/api", middleware.GlobalAPIRateLimiter(rateLimitConfig))

	// Handlers
	healthHandler := handlers.NewHealthHandler(db, redisService, mongoDB)
	authHandler := handlers.NewLocalAuthHandler(jwtAuth, userService, tierService)
	treeHandler := handlers.NewTreeHandler(pineconeService)
	sessionHandler := handlers.NewSessionHandler(editSessions)
	imageHandler := handlers.NewImageHandler(imageService)
	publicHandler := handlers.NewPublicHandler(pineconeService)

	requireAuth := middleware.LocalAuthMiddleware(jwtAuth)
	treeSaveLimiter := middleware.NewTreeSaveLimiter(rateLimitConfig).Handler()

	// Rate limiter for upload endpoint (10 uploads per minute per user)
	uploadLimiter := limiter.New(limiter.Config{
		Max:        10,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			if userName := middleware.UserName(c); userName != "" {
				return "upload:" + userName
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("⚠️  [RATE-LIMIT] Upload limit reached for user: %s", middleware.UserName(c))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many upload requests. Please wait before uploading again.",
			})
		},
	})

	// Routes
	app.Get("/health", healthHandler.Handle)
	app.Get("/public/:guid", middleware.PublicReadRateLimiter(rateLimitConfig), publicHandler.Render)

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authAttempts := middleware.AuthAttemptRateLimiter(rateLimitConfig)
	if jwtAuth != nil {
		authRoutes.Post("/register", authAttempts, authHandler.Register)
		authRoutes.Post("/login", authAttempts, authHandler.Login)
		authRoutes.Post("/refresh", authHandler.RefreshToken)
		authRoutes.Post("/logout", requireAuth, authHandler.Logout)
		authRoutes.Get("/me", requireAuth, authHandler.GetCurrentUser)
	}

	trees := api.Group("/trees", requireAuth)
	trees.Get("/", treeHandler.List)
	trees.Post("/", treeHandler.Create)
	trees.Get("/:rootId", treeHandler.Get)
	trees.Put("/:rootId", treeSaveLimiter, treeHandler.Save)
	trees.Delete("/:rootId", treeHandler.Trash)
	trees.Post("/:rootId/restore", treeHandler.Restore)

	// Server-held edit sessions
	trees.Post("/:rootId/session", sessionHandler.Open)
	trees.Post("/:rootId/session/ops", sessionHandler.Apply)
	trees.Post("/:rootId/session/commit", treeSaveLimiter, sessionHandler.Commit)
	trees.Delete("/:rootId/session", sessionHandler.Discard)

	api.Get("/trash", requireAuth, treeHandler.ListTrash)

	pinecones := api.Group("/pinecones", requireAuth)
	pinecones.Delete("/:guid", treeHandler.DeleteNode)
	pinecones.Put("/:guid/visibility", treeHandler.SetVisibility)
	pinecones.Post("/:guid/images", uploadLimiter, imageHandler.Upload)

	api.Get("/images/:id", middleware.OptionalLocalAuthMiddleware(jwtAuth), imageHandler.Get)
	api.Delete("/images/:id", requireAuth, imageHandler.Delete)

	log.Printf("✅ Server ready on port %s", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)
	log.Printf("🕐 Background jobs: trash sweep (%s, retention %v), orphan image sweep (%s)",
		cfg.TrashSweepCron, cfg.TrashRetention, cfg.ImageSweepCron)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("🛑 Shutting down server...")

		jobScheduler.Stop()

		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + strings.TrimPrefix(cfg.Port, ":")); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
