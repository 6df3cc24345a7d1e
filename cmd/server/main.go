package main

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/foxxcyber/rappi-flow/internal/config"
	"github.com/foxxcyber/rappi-flow/internal/database"
	"github.com/foxxcyber/rappi-flow/internal/handlers"
	"github.com/foxxcyber/rappi-flow/internal/services"
)

// flowBackend is a store of both conversation states and catalogs
type flowBackend interface {
	database.FlowStateRepo
	handlers.CatalogStore
}

func main() {
	// Load .env file if it exists
	godotenv.Load()

	// Load configuration
	cfg := config.Load()

	if cfg.BotClientSecretHash == "" {
		log.Println("Warning: BOT_CLIENT_SECRET_HASH is not set, no bot can obtain a token")
	}
	if cfg.IsProduction() && cfg.JWTSecret == "change-me-in-production-please" {
		log.Fatal("JWT_SECRET must be set in production")
	}

	ctx := context.Background()

	// Postgres when configured, a local SQLite file otherwise
	var backend flowBackend
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := database.RunMigrations(ctx, db); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		backend = db
	} else {
		store, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to open SQLite store: %v", err)
		}
		defer store.Close()
		log.Printf("Using SQLite flow store at %s", cfg.SQLitePath)
		backend = store
	}

	bridge := services.NewBrowserBridge(cfg.BridgeURL, cfg.SessionFile, cfg.BridgeTimeout)
	extractor := services.NewMenuExtractor(services.DefaultExtractorConfig())

	deps := handlers.Deps{
		Flows:    backend,
		Catalogs: backend,
		Search:   bridge,
	}

	// Initialize artifact storage
	var storage *services.StorageService
	if cfg.StorageEnabled() {
		s, err := services.NewStorageService(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3Region, cfg.S3UseSSL)
		if err != nil {
			log.Printf("Warning: Failed to initialize storage service: %v", err)
		} else if err := s.EnsureBucket(ctx); err != nil {
			log.Printf("Warning: Failed to ensure S3 bucket exists: %v", err)
		} else {
			storage = s
			deps.Archive = s
			log.Println("Artifact archive initialized")
		}
	} else {
		log.Println("S3 storage not configured, artifact archive disabled")
	}

	// Menu sources: the DOM scan always, screenshot OCR when tesseract is available
	sources := []services.CandidateSource{services.NewDOMCandidateSource(bridge)}
	ocrService, err := services.NewOCRService(cfg.OCRLanguage)
	if err != nil {
		log.Printf("Warning: Failed to initialize OCR service: %v", err)
	} else {
		defer ocrService.Close()
		deps.OCR = ocrService

		var screenshots services.ScreenshotArchiver
		if storage != nil {
			screenshots = storage
		}
		sources = append(sources, services.NewOCRCandidateSource(bridge, ocrService, extractor, screenshots))
		log.Println("Menu OCR service initialized")
	}

	var catalogArchive services.CatalogArchiver
	if storage != nil {
		catalogArchive = storage
	}
	deps.Menus = services.NewCatalogFetcher(extractor, catalogArchive, sources...)

	// The flow controller only calls the bridge once live orders are enabled
	deps.Payments = bridge
	if cfg.LiveOrderEnabled {
		log.Println("Warning: RAPPI_LIVE_ORDER_ENABLED is set, confirmed flows may attempt a live payment")
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler,
		BodyLimit:    12 * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	h := handlers.New(cfg, deps)
	h.Routes(app)

	log.Printf("Server starting on port %s", cfg.Port)
	log.Fatal(app.Listen(":" + cfg.Port))
}
