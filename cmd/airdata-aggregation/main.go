package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/joho/godotenv"

	"github.com/aqhub/airdata-aggregation/internal/airdata"
	"github.com/aqhub/airdata-aggregation/internal/airdata/vendors"
	httpapi "github.com/aqhub/airdata-aggregation/internal/api/http"
	"github.com/aqhub/airdata-aggregation/internal/archive"
	"github.com/aqhub/airdata-aggregation/internal/config"
	"github.com/aqhub/airdata-aggregation/internal/scheduler"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Shared HTTP client for outbound vendor calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Vendor clients; a vendor with missing credentials is not registered
	// and its routes answer 503.
	clients, neboClient := buildClients(cfg, httpClient)

	service := airdata.NewService(clients, cfg.FetchConcurrency)

	// Nebo archiver + periodic scheduler.
	var archiver *archive.Archiver
	var sched *scheduler.Scheduler
	if neboClient != nil {
		store, err := archive.NewFSStore(cfg.ArchiveDir)
		if err != nil {
			log.Fatalf("failed to init archive store: %v", err)
		}
		neboSensors, _ := neboClient.Sensors(context.Background())
		archiver = archive.NewArchiver(neboClient, store, neboSensors)

		sched = scheduler.New(archiver, cfg.ArchiveInterval)
		if err := sched.Start(); err != nil {
			log.Fatalf("failed to start scheduler: %v", err)
		}
		defer sched.Stop()
	} else {
		log.Println("INFO: Nebo credentials not configured; archiver disabled")
	}

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "airdata-aggregation",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: "GET,POST,OPTIONS",
	}))

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "airdata-aggregation",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, httpapi.Deps{
		Service:      service,
		Archiver:     archiver,
		FetchTimeout: cfg.HTTPTimeout,
	})

	// Start server with graceful shutdown
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Port
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}

// buildClients registers every vendor whose configuration is complete. The
// Nebo client is returned separately for the archiver.
func buildClients(cfg *config.AppConfig, httpClient *http.Client) ([]airdata.Client, airdata.Client) {
	var clients []airdata.Client

	if cfg.AurassureAccessID != "" && cfg.AurassureAccessKey != "" {
		sensors := numberedSensors(airdata.VendorAurassure, "Aurassure Sensor", cfg.AurassureSensorIDs)
		clients = append(clients, vendors.NewAurassureClient(httpClient, cfg.AurassureAccessID, cfg.AurassureAccessKey, sensors))
	}

	if cfg.AirGradientToken != "" {
		sensors := numberedSensors(airdata.VendorAirGradient, "AirGradient Sensor", cfg.AirGradientLocationIDs)
		clients = append(clients, vendors.NewAirGradientClient(httpClient, cfg.AirGradientToken, sensors))
	}

	if len(cfg.AirVisualDevices) > 0 {
		clients = append(clients, vendors.NewAirVisualClient(httpClient, cfg.AirVisualDevices, cfg.AirVisualCacheDir))
	}

	if cfg.CraftedClimateAPIKey != "" && cfg.CraftedClimateAUID != "" {
		sensors := []airdata.Sensor{{
			ID:     cfg.CraftedClimateAUID,
			Name:   fmt.Sprintf("Crafted Climate Sensor (%s)", cfg.CraftedClimateAUID),
			Vendor: airdata.VendorCraftedClimate,
		}}
		clients = append(clients, vendors.NewCraftedClimateClient(httpClient, cfg.CraftedClimateAPIKey, sensors))
	}

	if cfg.EcomeasureToken != "" {
		clients = append(clients, vendors.NewEcomeasureClient(httpClient, cfg.EcomeasureToken, cfg.EcomeasureSensorIDs))
	}

	if len(cfg.EnviraDeviceUUIDs) > 0 {
		sensors := numberedSensors(airdata.VendorEnvira, "Envira Device", cfg.EnviraDeviceUUIDs)
		clients = append(clients, vendors.NewEnviraClient(httpClient, sensors))
	}

	var neboClient airdata.Client
	if cfg.NeboToken != "" && cfg.NeboCode != "" && len(cfg.NeboSensorSlugs) > 0 {
		sensors := numberedSensors(airdata.VendorNebo, "Nebo Sensor", cfg.NeboSensorSlugs)
		neboClient = vendors.NewNeboClient(httpClient, cfg.NeboToken, cfg.NeboCode, sensors)
		clients = append(clients, neboClient)
	}

	return clients, neboClient
}

func numberedSensors(vendor airdata.Vendor, prefix string, ids []string) []airdata.Sensor {
	sensors := make([]airdata.Sensor, 0, len(ids))
	for i, id := range ids {
		sensors = append(sensors, airdata.Sensor{
			ID:     id,
			Name:   fmt.Sprintf("%s %d", prefix, i+1),
			Vendor: vendor,
		})
	}
	return sensors
}
