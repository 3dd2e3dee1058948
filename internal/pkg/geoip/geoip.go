// Package geoip resolves a best-effort country and city for an ingestion
// request through an ordered chain of providers.
package geoip

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const (
	Unknown     = "Unknown"
	Local       = "Local"
	Development = "Development"
)

// ErrNoLocation is returned by a provider that has no answer for a request.
// The chain moves on to the next provider.
var ErrNoLocation = errors.New("geoip: no location")

// ErrProviderUnavailable is returned when a provider refuses to make a call,
// for example while rate limited or with an open circuit.
var ErrProviderUnavailable = errors.New("geoip: provider unavailable")

type Location struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

// UnknownLocation terminates the chain when every provider falls through.
var UnknownLocation = Location{Country: Unknown, City: Unknown}

// LocalLocation is used for loopback and private addresses.
var LocalLocation = Location{Country: Local, City: Development}

// Request carries what the providers may look at.
type Request struct {
	IP          string
	EdgeCountry string
	EdgeCity    string
}

type Provider interface {
	Name() string
	Lookup(ctx context.Context, req Request) (Location, error)
}

// Observer is notified of every provider outcome: "hit", "miss" or "error".
type Observer func(provider, outcome string)

type Chain struct {
	providers []Provider
	timeout   time.Duration
	logger    *slog.Logger
	observe   Observer
}

type ChainOption func(*Chain)

// WithProviderTimeout bounds each provider call.
func WithProviderTimeout(d time.Duration) ChainOption {
	return func(c *Chain) {
		c.timeout = d
	}
}

func WithObserver(o Observer) ChainOption {
	return func(c *Chain) {
		c.observe = o
	}
}

// NewChain builds a chain; nil providers are skipped so optional providers
// can be passed unconditionally.
func NewChain(logger *slog.Logger, providers []Provider, opts ...ChainOption) *Chain {
	c := &Chain{
		timeout: 2 * time.Second,
		logger:  logger,
		observe: func(string, string) {},
	}
	for _, p := range providers {
		if p != nil {
			c.providers = append(c.providers, p)
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve returns the first provider answer, or UnknownLocation. It never fails.
func (c *Chain) Resolve(ctx context.Context, req Request) Location {
	for _, p := range c.providers {
		loc, err := c.lookup(ctx, p, req)
		switch {
		case err == nil:
			c.observe(p.Name(), "hit")
			return normalize(loc)
		case errors.Is(err, ErrNoLocation):
			c.observe(p.Name(), "miss")
		default:
			c.observe(p.Name(), "error")
			c.logger.Debug("Geolocation provider failed",
				slog.String("provider", p.Name()),
				slog.String("ip", req.IP),
				slog.Any("error", err))
		}
	}
	return UnknownLocation
}

func (c *Chain) lookup(ctx context.Context, p Provider, req Request) (Location, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return p.Lookup(lookupCtx, req)
}

func normalize(loc Location) Location {
	if loc.Country == "" {
		loc.Country = Unknown
	}
	if loc.City == "" {
		loc.City = Unknown
	}
	return loc
}

// isUnknown reports values providers treat as absent.
func isUnknown(value string) bool {
	return value == "" || value == Unknown
}
