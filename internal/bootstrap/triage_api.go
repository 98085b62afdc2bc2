package bootstrap

import (
	"context"
	"strings"
	"time"

	"triage_server/adapter/in/http"
	"triage_server/config"
	"triage_server/infra/middleware"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewAPI builds the HTTP surface on top of deps. ctx bounds background runs
// started by HTTP triggers and the rate limiter's cleanup loop.
func NewAPI(ctx context.Context, cfg *config.Config, deps *Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),

		// go-json for request and response bodies
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit:    1 * 1024 * 1024,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger())
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	if allowOrigins == "" {
		allowOrigins = "http://localhost:3000,http://localhost:5173"
		if cfg.IsProduction() {
			allowOrigins = ""
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  allowOrigins,
		AllowMethods:  "GET,POST,PUT,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders: "X-Request-ID,X-RateLimit-Limit,X-RateLimit-Remaining,X-RateLimit-Reset",
		MaxAge:        86400,
	}))

	// Health and metrics (no auth required)
	http.NewHealthHandler(deps.ReadinessChecks()).Register(app)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1", middleware.JWTAuth(cfg.JWTSecret))

	limiter := middleware.NewRateLimiter(cfg.TriggerRateLimit, time.Minute)
	limiter.StartCleanup(ctx)

	http.NewTriggerHandler(ctx, deps.Triage, deps.Publisher, deps.Log).Register(app, api, limiter.Handler())
	http.NewDashboardHandler(deps.Dashboard).Register(api)

	if cfg.JWTSecret == "" {
		deps.Log.Warn("API_JWT_SECRET not set: API routes are unauthenticated")
	}
	return app
}
