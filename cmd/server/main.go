package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	swagger "github.com/gofiber/swagger"
	"github.com/joho/godotenv"
	"github.com/localnerve/shopdb/internal/config"
	"github.com/localnerve/shopdb/internal/database"
	"github.com/localnerve/shopdb/internal/handlers"
	"github.com/localnerve/shopdb/internal/services"

	_ "github.com/localnerve/shopdb/docs/api" // Swagger docs
)

// @title ShopDB API
// @version 1.0.0
// @description Industrial shop operations backend with versioned database backups
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url https://github.com/localnerve/shopdb
// @contact.email info@localnerve.com

// @license.name AGPL-3.0
// @license.url https://www.gnu.org/licenses/agpl-3.0.html

// @host localhost:3000
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey AdminKey
// @in header
// @name X-Admin-Key

// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name cookie_session

func main() {
	envFile := flag.String("f", "", "Path to a .env file to load before reading the environment")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("Failed to load env file %s: %v", *envFile, err)
		}
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Println("Performing startup system check...")

	// Open every collection (load-or-create)
	registry, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to open live store: %v", err)
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler,
		BodyLimit:    int(cfg.MaxImportBytes) + 1<<20,
	})

	shutdown := make(chan string, 1)
	requestShutdown := func(reason string) {
		select {
		case shutdown <- reason:
		default:
		}
	}

	restarter := services.NewDelayedRestarter(cfg.RestartDelay, func() {
		requestShutdown("restart after live store replacement")
	})

	deps, err := handlers.NewDependencies(cfg, registry, restarter)
	if err != nil {
		log.Fatalf("Failed to build services: %v", err)
	}

	// Global middleware
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			log.Printf("CRITICAL: panic in %s %s: %v", c.Method(), c.OriginalURL(), e)
			requestShutdown(fmt.Sprintf("panic: %v", e))
		},
	}))
	app.Use(logger.New())
	app.Use(compress.New(compress.Config{
		// archives are already compressed and streamed
		Next: func(c *fiber.Ctx) bool {
			return strings.HasSuffix(c.Path(), "/download")
		},
	}))

	// Prometheus metrics
	prometheus := fiberprometheus.New("shopdb")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	// Swagger documentation
	app.Get("/swagger/*", swagger.HandlerDefault)

	handlers.Routes(app, deps)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"status":    "error",
			"code":      fiber.StatusNotFound,
			"message":   "[404] Resource Not Found",
			"ok":        false,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"url":       c.OriginalURL(),
		})
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Snapshot on boot; a failure is logged and the server proceeds
	scheduler := services.NewScheduler(deps.Backups, cfg.BackupInterval)
	if cfg.BackupOnStartup {
		scheduler.RunOnce(ctx, "Startup")
	}
	go func() {
		if err := scheduler.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("Backup scheduler stopped: %v", err)
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-c:
			log.Printf("Received %s, gracefully shutting down...", sig)
		case reason := <-shutdown:
			log.Printf("Controlled shutdown: %s", reason)
		}
		cancel()
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	// Start server
	log.Printf("Starting server on port %s", cfg.Port)
	log.Printf("Database path: %s (%s)", cfg.StorageDir, cfg.StorageEngine)
	log.Printf("Backup path:   %s", cfg.BackupDir)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	deps.Activity.Close()
	if err := registry.Close(); err != nil {
		log.Printf("Closing live store: %v", err)
	}
	if restarter.Fired() {
		log.Printf("Server stopped for restart, exit status %d", services.RestartExitCode)
		os.Exit(services.RestartExitCode)
	}
	log.Println("Server stopped")
}
