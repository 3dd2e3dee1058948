// Package seeder fills a database with plausible portfolio traffic by
// replaying generated sessions through the event ingestor.
package seeder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"gorm.io/gorm"

	"portfolio/internal/events"
	"portfolio/internal/pkg/geoip"
)

// Summary counts what a run ingested.
type Summary struct {
	Sessions      int
	PageViews     int
	Events        int
	Errors        int
	Performance   int
	OpenSessions  int
	VisitorsTotal int
}

// Seeder generates Sessions sessions spread over the last Days days.
type Seeder struct {
	Sessions int
	Days     int

	db     *gorm.DB
	logger *slog.Logger
	rng    *rand.Rand
	now    func() time.Time
}

func NewSeeder(db *gorm.DB, logger *slog.Logger, sessions int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		Sessions: sessions,
		Days:     30,
		db:       db,
		logger:   logger,
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		now:      time.Now,
	}
}

// WithSeed makes the generated data reproducible.
func (s *Seeder) WithSeed(seed uint64) *Seeder {
	s.rng = rand.New(rand.NewPCG(seed, seed))
	return s
}

type location struct {
	country string // ISO code, as sent by the edge
	city    string
}

var locations = []location{
	{"PT", "Lisbon"}, {"PT", "Porto"}, {"ES", "Madrid"}, {"ES", "Barcelona"},
	{"US", "New York"}, {"US", "San Francisco"}, {"DE", "Berlin"}, {"GB", "London"},
	{"BR", "São Paulo"}, {"FR", "Paris"},
}

// Common user agents across device types
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
	"Mozilla/5.0 (iPad; CPU OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
}

var referrers = []string{
	"", // Direct visit
	"",
	"https://www.google.com/",
	"https://duckduckgo.com/",
	"https://www.linkedin.com/feed/",
	"https://t.co/abc123",
	"https://github.com/",
	"https://news.ycombinator.com/item?id=1",
}

// Paths visitors take through the site
var journeys = [][]string{
	{"/"},
	{"/", "/projects"},
	{"/", "/about", "/contact"},
	{"/projects", "/projects/analytics", "/"},
	{"/", "/blog", "/blog/go-concurrency"},
	{"/blog/go-concurrency"},
	{"/", "/projects", "/about", "/contact"},
}

var socialPlatforms = []string{"github", "linkedin", "twitter"}

// Run ingests the generated sessions. It stops at the first failure.
func (s *Seeder) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	s.logger.Info("Seeding analytics data...", slog.Int("sessions", s.Sessions), slog.Int("days", s.Days))

	var at time.Time
	ingestor := events.NewIngestor(s.db, s.logger,
		geoip.NewChain(s.logger, []geoip.Provider{geoip.NewEdgeHeaders()}),
		events.WithClock(func() time.Time { return at }))

	var summary Summary
	var visitors []string
	window := time.Duration(s.Days) * 24 * time.Hour

	for i := 0; i < s.Sessions; i++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		visitorID, isNew := s.pickVisitor(&visitors, i)
		sessionID := fmt.Sprintf("seed-session-%d", i)
		loc := locations[s.rng.IntN(len(locations))]
		info := events.RequestInfo{
			IP:          "203.0.113.10",
			UserAgent:   userAgents[s.rng.IntN(len(userAgents))],
			EdgeCountry: loc.country,
			EdgeCity:    loc.city,
		}
		journey := journeys[s.rng.IntN(len(journeys))]

		at = s.now().Add(-time.Duration(s.rng.Int64N(int64(window)))).UTC()
		sessionStart := at

		err := ingestor.Ingest(ctx, envelope(events.KindSessionStart, sessionID, visitorID, events.SessionStartData{
			IsNewVisitor: &isNew,
			Referrer:     referrers[s.rng.IntN(len(referrers))],
		}), info)
		if err != nil {
			return summary, fmt.Errorf("failed to start session %s: %w", sessionID, err)
		}
		summary.Sessions++

		for _, path := range journey {
			at = at.Add(time.Duration(5+s.rng.IntN(120)) * time.Second)
			err := ingestor.Ingest(ctx, envelope(events.KindPageView, sessionID, visitorID, events.PageViewData{
				PagePath:     path,
				ScreenWidth:  1440,
				ScreenHeight: 900,
			}), info)
			if err != nil {
				return summary, fmt.Errorf("failed to track page view: %w", err)
			}
			summary.PageViews++
		}

		if eventType, payload, ok := s.conversion(journey); ok {
			err := ingestor.Ingest(ctx, envelope(events.KindEvent, sessionID, visitorID, events.EventData{
				EventType: eventType,
				EventData: payload,
				PagePath:  journey[len(journey)-1],
			}), info)
			if err != nil {
				return summary, fmt.Errorf("failed to track event: %w", err)
			}
			summary.Events++
		}

		if s.rng.IntN(3) == 0 {
			if err := ingestor.RecordPerformance(ctx, s.vitals(sessionID, journey[0])); err != nil {
				return summary, fmt.Errorf("failed to record performance: %w", err)
			}
			summary.Performance++
		}

		if s.rng.IntN(20) == 0 {
			if err := ingestor.RecordError(ctx, events.ErrorRecord{
				SessionID:    sessionID,
				ErrorMessage: "TypeError: Cannot read properties of undefined (reading 'map')",
				ErrorStack:   "at renderProjects (main.js:42:17)",
				PagePath:     journey[0],
				Browser:      "Chrome",
				OS:           "Windows",
			}); err != nil {
				return summary, fmt.Errorf("failed to record error: %w", err)
			}
			summary.Errors++
		}

		// Roughly one session in ten is left open, as if the tab never closed.
		if s.rng.IntN(10) == 0 {
			summary.OpenSessions++
			continue
		}
		duration := at.Sub(sessionStart).Seconds() + float64(s.rng.IntN(60))
		err = ingestor.Ingest(ctx, envelope(events.KindSessionEnd, sessionID, visitorID, events.SessionEndData{
			Duration:  &duration,
			PageCount: len(journey),
		}), info)
		if err != nil {
			return summary, fmt.Errorf("failed to end session %s: %w", sessionID, err)
		}
	}

	summary.VisitorsTotal = len(visitors)
	s.logger.Info("Seeding completed successfully",
		slog.Int("sessions", summary.Sessions),
		slog.Int("page_views", summary.PageViews),
		slog.Int("events", summary.Events),
		slog.Duration("elapsed", time.Since(start)))
	return summary, nil
}

// pickVisitor reuses an earlier visitor for about a third of sessions.
func (s *Seeder) pickVisitor(visitors *[]string, i int) (string, bool) {
	if len(*visitors) > 0 && s.rng.IntN(3) == 0 {
		return (*visitors)[s.rng.IntN(len(*visitors))], false
	}
	id := fmt.Sprintf("seed-visitor-%d", i)
	*visitors = append(*visitors, id)
	return id, true
}

func (s *Seeder) conversion(journey []string) (string, json.RawMessage, bool) {
	last := journey[len(journey)-1]
	switch {
	case last == "/contact" && s.rng.IntN(2) == 0:
		return events.EventContactSubmit, mustJSON(events.ContactSubmission{
			Name:    "Seed Visitor",
			Email:   fmt.Sprintf("visitor%d@example.com", s.rng.IntN(1000)),
			Message: "Loved the projects, let's talk.",
		}), true
	case last == "/about" && s.rng.IntN(2) == 0:
		return events.EventDownloadCV, mustJSON(events.DownloadCV{File: "cv.pdf", Language: "en"}), true
	case s.rng.IntN(6) == 0:
		platform := socialPlatforms[s.rng.IntN(len(socialPlatforms))]
		return events.EventSocialClick, mustJSON(events.SocialClick{
			Platform: platform,
			URL:      "https://" + platform + ".com/portfolio",
		}), true
	case s.rng.IntN(8) == 0:
		return "theme_toggle", mustJSON(map[string]string{"theme": "dark"}), true
	}
	return "", nil, false
}

func (s *Seeder) vitals(sessionID, path string) events.PerformanceMetric {
	ms := func(base, spread int) *float64 {
		v := float64(base + s.rng.IntN(spread))
		return &v
	}
	cls := float64(s.rng.IntN(25)) / 100
	return events.PerformanceMetric{
		SessionID: sessionID,
		PagePath:  path,
		FCP:       ms(400, 1200),
		LCP:       ms(900, 2500),
		FID:       ms(5, 120),
		CLS:       &cls,
		TTFB:      ms(50, 400),
		LoadTime:  ms(1000, 3000),
	}
}

func envelope(kind events.Kind, sessionID, visitorID string, data interface{}) events.Envelope {
	return events.Envelope{
		Type:      kind,
		SessionID: sessionID,
		VisitorID: visitorID,
		Data:      mustJSON(data),
	}
}

func mustJSON(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
