package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	"portfolio/internal/config"
	"portfolio/internal/http"
	"portfolio/internal/http/middleware"
)

// publicCORSConfig is shared by every endpoint the portfolio site calls
// cross-origin.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referrer, User-Agent",
}

// SetupSession configures the dashboard session cookie on the server.
func SetupSession(srv *cartridge.Server) {
	cfg := config.GetConfig()
	sessionMgr := cartridge.NewSessionManager(cartridge.SessionConfig{
		CookieName: cfg.AppName + "_session",
		Secret:     cfg.GetSessionSecret(),
		TTL:        time.Duration(cfg.GetLoginSessionTimeout()) * time.Second,
		Secure:     cfg.IsProduction(),
		LoginPath:  "/dashboard/auth",
	})
	srv.SetSession(sessionMgr)
}

// MountAppRoutes builds the services over the server's database and mounts
// every route. Used where no Application is constructed, such as tests.
func MountAppRoutes(srv *cartridge.Server) {
	SetupSession(srv)

	services, err := NewServices(config.GetConfig(), srv.GetDBManager().GetConnection(), srv.GetLogger())
	if err != nil {
		panic("failed to build services: " + err.Error())
	}
	MountRoutes(srv, services)
}

// MountRoutes mounts all application routes. The session manager must be
// set first.
func MountRoutes(srv *cartridge.Server, services *Services) {
	cfg := config.GetConfig()
	logger := srv.GetLogger()

	// In development and test rate limiting would interfere with testing
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// 70 requests per minute per IP for ingestion
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// 10 attempts per minute per IP for the dashboard password
	authRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(10),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Beacons are not checked for Sec-Fetch-Site.
	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:         true,
		WriteConcurrency:   false,
		CustomMiddleware:   []fiber.Handler{publicRateLimiter},
		CORSConfig:         publicCORSConfig,
		EnableSecFetchSite: cartridge.Bool(false),
	}

	authConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{authRateLimiter},
	}

	dashboardConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{
			middleware.DashboardAuth(srv.Session(), cfg.DashboardRequireAuth, logger),
		},
	}

	preflight := func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}

	// === ROOT ROUTES ===
	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)
	srv.Get("/metrics", http.MetricsAction(services.Metrics.Handler()))

	// === PUBLIC INGESTION ROUTES ===
	api := services.API
	srv.Post("/analytics/track", api.TrackAction, publicAPIConfig)
	srv.Options("/analytics/track", preflight, publicAPIConfig)
	srv.Post("/analytics/error", api.ErrorAction, publicAPIConfig)
	srv.Options("/analytics/error", preflight, publicAPIConfig)
	srv.Post("/analytics/performance", api.PerformanceAction, publicAPIConfig)
	srv.Options("/analytics/performance", preflight, publicAPIConfig)
	srv.Get("/analytics/identity", api.IdentityAction, publicAPIConfig)
	srv.Options("/analytics/identity", preflight, publicAPIConfig)
	srv.Post("/feedback/submit", api.FeedbackSubmitAction, publicAPIConfig)
	srv.Options("/feedback/submit", preflight, publicAPIConfig)
	srv.Get("/feedback", api.FeedbackListAction, publicAPIConfig)
	srv.Options("/feedback", preflight, publicAPIConfig)

	// === DASHBOARD AUTHENTICATION ===
	dashboard := services.Dashboard
	srv.Post("/dashboard/auth", dashboard.AuthAction, authConfig)
	srv.Post("/dashboard/logout", dashboard.LogoutAction)
	srv.Get("/dashboard/session", dashboard.SessionAction)

	// === DASHBOARD READS ===
	srv.Get("/analytics/stats", dashboard.StatsAction, dashboardConfig)
	srv.Get("/analytics/realtime", dashboard.RealtimeAction, dashboardConfig)
	srv.Get("/analytics/contacts", dashboard.ContactsAction, dashboardConfig)
}
