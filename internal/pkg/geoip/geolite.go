package geoip

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// GeoLite looks addresses up in a local MaxMind GeoLite2 database. Both the
// City and the Country editions are accepted. The reader can be swapped with
// Reload while lookups are in flight.
type GeoLite struct {
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	reader *geoip2.Reader
}

// OpenGeoLite opens the database at path. It returns (nil, nil) when the path
// is empty or the file does not exist, since the database is optional.
func OpenGeoLite(path string, logger *slog.Logger) (*GeoLite, error) {
	if path == "" {
		logger.Debug("GeoIP database path not configured - local lookups disabled")
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err == nil {
		logger.Debug("GeoIP database absolute path", slog.String("abs_path", absPath))
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info("GeoLite2 database not found - local lookups disabled",
			slog.String("path", path),
			slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("geoip: stat %s: %w", path, err)
	}

	g := NewGeoLite(path, logger)
	if err := g.Reload(); err != nil {
		return nil, err
	}
	return g, nil
}

// NewGeoLite returns a provider with no database loaded. It answers
// ErrProviderUnavailable until Reload succeeds.
func NewGeoLite(path string, logger *slog.Logger) *GeoLite {
	return &GeoLite{path: path, logger: logger}
}

// Reload opens the file at the provider's path and replaces the current
// reader, closing the old one.
func (g *GeoLite) Reload() error {
	reader, err := geoip2.Open(g.path)
	if err != nil {
		return fmt.Errorf("geoip: open %s: %w", g.path, err)
	}

	g.mu.Lock()
	old := g.reader
	g.reader = reader
	g.mu.Unlock()

	if old != nil {
		old.Close()
	}

	g.logger.Info("GeoLite2 database initialized successfully",
		slog.String("path", g.path),
		slog.String("db_type", reader.Metadata().DatabaseType))
	return nil
}

func (g *GeoLite) Name() string { return "geolite" }

func (g *GeoLite) Lookup(_ context.Context, req Request) (Location, error) {
	ip := publicIP(req.IP)
	if ip == nil {
		return Location{}, ErrNoLocation
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.reader == nil {
		return Location{}, ErrProviderUnavailable
	}

	if city, err := g.reader.City(ip); err == nil {
		country := city.Country.Names["en"]
		if country == "" {
			return Location{}, ErrNoLocation
		}
		return Location{Country: country, City: city.City.Names["en"]}, nil
	}

	country, err := g.reader.Country(ip)
	if err != nil {
		return Location{}, fmt.Errorf("geoip: country lookup: %w", err)
	}
	if country.Country.Names["en"] == "" {
		return Location{}, ErrNoLocation
	}
	return Location{Country: country.Country.Names["en"]}, nil
}

func (g *GeoLite) Close() error {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.reader == nil {
		return nil
	}
	err := g.reader.Close()
	g.reader = nil
	return err
}
