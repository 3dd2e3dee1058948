// Package internal assembles the analytics service: its services, routes and
// the cartridge application that runs them.
package internal

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	v1 "portfolio/api/v1"
	"portfolio/internal/analytics"
	"portfolio/internal/config"
	"portfolio/internal/database"
	"portfolio/internal/events"
	"portfolio/internal/feedback"
	"portfolio/internal/http"
	"portfolio/internal/jobs"
	"portfolio/internal/metrics"
	"portfolio/internal/pkg/geoip"
	"portfolio/internal/visitors"
)

// Application wraps cartridge.Application with the services built for it.
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager
	Services  *Services
}

// Services holds everything request handlers depend on. It is built once and
// never mutated afterwards.
type Services struct {
	Metrics   *metrics.Metrics
	Locator   *geoip.Chain
	Ingestor  *events.Ingestor
	Engine    *analytics.Engine
	Feedback  *feedback.Service
	Visitors  *visitors.Resolver
	API       *v1.Handler
	Dashboard *http.Dashboard
	Jobs      *jobs.Scheduler

	geoLite *geoip.GeoLite
}

// NewServices wires the analytics pipeline over db.
func NewServices(cfg *config.Config, db *gorm.DB, logger *slog.Logger) (*Services, error) {
	s := &Services{
		Metrics: metrics.NewMetrics("portfolio"),
	}

	providers := []geoip.Provider{geoip.NewEdgeHeaders(), geoip.LocalNetwork{}}
	geoLite, err := geoip.OpenGeoLite(cfg.GeoDBPath, logger)
	if err != nil {
		logger.Warn("GeoLite2 database unavailable", slog.Any("error", err))
	}
	updatesGeoLite := cfg.MaxMindLicenseKey != "" && !cfg.IsTest()
	if geoLite == nil && updatesGeoLite {
		geoLite = geoip.NewGeoLite(cfg.GeoDBPath, logger)
	}
	if geoLite != nil {
		s.geoLite = geoLite
		providers = append(providers, geoLite)
	}
	if cfg.IPLookupURL != "" && !cfg.IsTest() {
		providers = append(providers, geoip.NewIPAPI(geoip.IPAPIConfig{
			BaseURL:    cfg.IPLookupURL,
			Timeout:    cfg.GetIPLookupTimeout(),
			RatePerSec: cfg.IPLookupRatePerSec,
			Burst:      cfg.IPLookupBurst,
			CacheTTL:   cfg.GetIPLookupCacheTTL(),
		}, logger))
	}
	s.Locator = geoip.NewChain(logger, providers,
		geoip.WithProviderTimeout(cfg.GetIPLookupTimeout()),
		geoip.WithObserver(s.Metrics.GeoLookup))

	s.Ingestor = events.NewIngestor(db, logger, s.Locator,
		events.WithRecorder(s.Metrics),
		events.WithTimeout(cfg.GetQueryTimeout()))

	s.Engine = analytics.NewEngine(db, logger,
		analytics.WithWorkers(cfg.GetStatsWorkers()),
		analytics.WithQueryTimeout(cfg.GetQueryTimeout()),
		analytics.WithLocation(time.Local),
		analytics.WithObserver(s.Metrics))

	s.Feedback = feedback.NewService(db, logger)
	s.Visitors = visitors.NewResolver(cfg.IsProduction())

	s.API = v1.NewHandler(v1.Options{
		Ingestor:          s.Ingestor,
		Visitors:          s.Visitors,
		Feedback:          s.Feedback,
		EdgeCountryHeader: cfg.EdgeCountryHeader,
		EdgeCityHeader:    cfg.EdgeCityHeader,
	})

	s.Jobs = jobs.NewScheduler(logger)
	if updatesGeoLite {
		s.Jobs.Every(time.Hour, jobs.NewGeoLiteUpdaterJob(cfg.GeoDBPath, cfg.MaxMindLicenseKey,
			cfg.GeoLiteDownloadURL, cfg.GetGeoLiteUpdateInterval(), geoLite, logger))
	}

	s.Dashboard, err = http.NewDashboard(s.Engine, cfg.DashboardPassword)
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the GeoLite2 reader, if one was opened.
func (s *Services) Close() error {
	if s.geoLite == nil {
		return nil
	}
	return s.geoLite.Close()
}

// NewApp creates the application from the global configuration.
func NewApp() (*Application, error) {
	return NewAppWithConfig(config.GetConfig())
}

// NewAppWithConfig creates the application with the provided config.
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	services, err := NewServices(cfg, dbManager.GetConnection(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:            cfg,
		Logger:            logger,
		DBManager:         dbManager,
		BackgroundWorkers: []cartridge.BackgroundWorker{services.Jobs},
		RouteMountFunc: func(srv *cartridge.Server) {
			SetupSession(srv)
			MountRoutes(srv, services)
		},
	})
	if err != nil {
		services.Close()
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
		Services:    services,
	}, nil
}
