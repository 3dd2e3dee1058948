package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// IPAPIConfig configures the ip-api.com compatible lookup.
type IPAPIConfig struct {
	BaseURL    string
	Timeout    time.Duration
	RatePerSec float64
	Burst      int
	CacheTTL   time.Duration
	CacheSize  int
}

// IPAPI queries an ip-api.com compatible JSON endpoint. Calls are rate
// limited, guarded by a circuit breaker and cached per IP. Concurrent
// lookups for the same IP share one remote call.
type IPAPI struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	cache   *expirable.LRU[string, Location]
	group   singleflight.Group
	logger  *slog.Logger
}

type ipAPIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Country string `json:"country"`
	City    string `json:"city"`
}

func NewIPAPI(cfg IPAPIConfig, logger *slog.Logger) *IPAPI {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1500 * time.Millisecond
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 10000
	}

	p := &IPAPI{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		cache:   expirable.NewLRU[string, Location](cfg.CacheSize, nil, cfg.CacheTTL),
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, cfg.Burst),
		logger:  logger,
	}

	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ip-lookup",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Geolocation circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	return p
}

func (p *IPAPI) Name() string { return "ip-api" }

// Lookup waits for the shared remote call only as long as ctx allows. The
// call itself is bounded by the provider timeout, not by any one caller.
func (p *IPAPI) Lookup(ctx context.Context, req Request) (Location, error) {
	ip := publicIP(req.IP)
	if ip == nil {
		return Location{}, ErrNoLocation
	}
	key := ip.String()
	if loc, ok := p.cache.Get(key); ok {
		return loc, nil
	}

	ch := p.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		loc, err := p.fetch(fetchCtx, key)
		if err != nil {
			return Location{}, err
		}
		p.cache.Add(key, loc)
		return loc, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Location{}, res.Err
		}
		return res.Val.(Location), nil
	case <-ctx.Done():
		return Location{}, ctx.Err()
	}
}

// fetch performs the remote call. Answers without a country are returned as
// ErrNoLocation outside the breaker so they do not count as failures.
func (p *IPAPI) fetch(ctx context.Context, ip string) (Location, error) {
	if !p.limiter.Allow() {
		return Location{}, fmt.Errorf("%w: rate limited", ErrProviderUnavailable)
	}

	out, err := p.breaker.Execute(func() (interface{}, error) {
		return p.call(ctx, ip)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return Location{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return Location{}, err
	}

	body := out.(ipAPIResponse)
	if body.Status != "" && body.Status != "success" {
		return Location{}, fmt.Errorf("%w: %s", ErrNoLocation, body.Message)
	}
	if isUnknown(body.Country) {
		return Location{}, ErrNoLocation
	}
	return Location{Country: body.Country, City: body.City}, nil
}

func (p *IPAPI) call(ctx context.Context, ip string) (ipAPIResponse, error) {
	endpoint := fmt.Sprintf("%s/%s?fields=status,message,country,city", p.baseURL, url.PathEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ipAPIResponse{}, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return ipAPIResponse{}, fmt.Errorf("geoip: ip lookup request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ipAPIResponse{}, fmt.Errorf("geoip: ip lookup returned %d", resp.StatusCode)
	}

	var body ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ipAPIResponse{}, fmt.Errorf("geoip: decode ip lookup response: %w", err)
	}
	return body, nil
}
