package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"portfolio/internal/pkg/geoip"
	"portfolio/internal/pkg/user_agent"
)

// Locator resolves geolocation for a request. geoip.Chain implements it.
type Locator interface {
	Resolve(ctx context.Context, req geoip.Request) geoip.Location
}

// Recorder receives ingestion outcomes for instrumentation.
type Recorder interface {
	EventIngested(kind string)
	IngestFailed(kind string)
	PageCountIncrementFailed()
}

type nopRecorder struct{}

func (nopRecorder) EventIngested(string)      {}
func (nopRecorder) IngestFailed(string)       {}
func (nopRecorder) PageCountIncrementFailed() {}

// RequestInfo is what the transport knows about the caller.
type RequestInfo struct {
	IP          string
	UserAgent   string
	EdgeCountry string
	EdgeCity    string
}

func (r RequestInfo) geoRequest() geoip.Request {
	return geoip.Request{IP: r.IP, EdgeCountry: r.EdgeCountry, EdgeCity: r.EdgeCity}
}

// Ingestor turns envelopes into rows. It holds no mutable state after
// construction and is safe for concurrent use.
type Ingestor struct {
	db       *gorm.DB
	logger   *slog.Logger
	locator  Locator
	recorder Recorder
	timeout  time.Duration
	now      func() time.Time
}

type Option func(*Ingestor)

func WithRecorder(r Recorder) Option {
	return func(i *Ingestor) {
		if r != nil {
			i.recorder = r
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(i *Ingestor) {
		i.now = now
	}
}

// WithTimeout bounds every store call.
func WithTimeout(d time.Duration) Option {
	return func(i *Ingestor) {
		if d > 0 {
			i.timeout = d
		}
	}
}

func NewIngestor(db *gorm.DB, logger *slog.Logger, locator Locator, opts ...Option) *Ingestor {
	i := &Ingestor{
		db:       db,
		logger:   logger,
		locator:  locator,
		recorder: nopRecorder{},
		timeout:  5 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ingest validates and persists one envelope. Validation failures are
// returned as *ValidationError and write nothing.
func (i *Ingestor) Ingest(ctx context.Context, env Envelope, info RequestInfo) error {
	if err := env.Validate(); err != nil {
		return err
	}

	var err error
	switch env.Type {
	case KindPageView:
		err = i.trackPageView(ctx, env, info)
	case KindEvent:
		err = i.trackEvent(ctx, env)
	case KindSessionStart:
		err = i.startSession(ctx, env, info)
	case KindSessionEnd:
		err = i.endSession(ctx, env)
	}

	if err != nil {
		if !IsValidationError(err) {
			i.recorder.IngestFailed(string(env.Type))
			i.logger.Error("Failed to ingest analytics event",
				slog.String("type", string(env.Type)),
				slog.String("session_id", env.SessionID),
				slog.Any("error", err))
		}
		return err
	}

	i.recorder.EventIngested(string(env.Type))
	return nil
}

func (i *Ingestor) trackPageView(ctx context.Context, env Envelope, info RequestInfo) error {
	data, err := env.PageView()
	if err != nil {
		return err
	}

	loc := i.locator.Resolve(ctx, info.geoRequest())
	client := classifyMissing(info.UserAgent, data.DeviceType, data.Browser, data.OS)

	view := &PageView{
		SessionID:    env.SessionID,
		VisitorID:    env.VisitorID,
		PagePath:     data.PagePath,
		PageTitle:    data.PageTitle,
		Referrer:     data.Referrer,
		UTMSource:    data.UTMSource,
		UTMMedium:    data.UTMMedium,
		UTMCampaign:  data.UTMCampaign,
		Country:      loc.Country,
		City:         loc.City,
		DeviceType:   client.DeviceType,
		Browser:      client.Browser,
		OS:           client.OS,
		ScreenWidth:  data.ScreenWidth,
		ScreenHeight: data.ScreenHeight,
		CreatedAt:    i.now().UTC(),
	}

	if err := i.write(ctx, func(tx *gorm.DB) error {
		return tx.Create(view).Error
	}); err != nil {
		return fmt.Errorf("failed to insert page view: %w", err)
	}

	// The page view is already recorded; a failed increment is only logged.
	if err := i.incrementPageCount(ctx, env.SessionID, data.PagePath); err != nil {
		i.recorder.PageCountIncrementFailed()
		i.logger.Warn("Failed to increment session page count",
			slog.String("session_id", env.SessionID),
			slog.Any("error", err))
	}
	return nil
}

func (i *Ingestor) trackEvent(ctx context.Context, env Envelope) error {
	data, err := env.Event()
	if err != nil {
		return err
	}
	if _, err := DecodePayload(data.EventType, data.EventData); err != nil {
		return err
	}

	raw := strings.TrimSpace(string(data.EventData))
	if raw == "" || raw == "null" {
		raw = "{}"
	}

	event := &Event{
		SessionID: env.SessionID,
		VisitorID: env.VisitorID,
		EventType: data.EventType,
		EventData: []byte(raw),
		PagePath:  data.PagePath,
		CreatedAt: i.now().UTC(),
	}

	if err := i.write(ctx, func(tx *gorm.DB) error {
		return tx.Create(event).Error
	}); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// RecordError stores a client error report.
func (i *Ingestor) RecordError(ctx context.Context, record ErrorRecord) error {
	record.ErrorMessage = strings.TrimSpace(record.ErrorMessage)
	if record.ErrorMessage == "" {
		return newValidationError("errorMessage", "is required")
	}
	record.ID = 0
	record.CreatedAt = i.now().UTC()

	if err := i.write(ctx, func(tx *gorm.DB) error {
		return tx.Create(&record).Error
	}); err != nil {
		i.recorder.IngestFailed("error")
		return fmt.Errorf("failed to insert error record: %w", err)
	}
	i.recorder.EventIngested("error")
	return nil
}

// RecordPerformance stores one page's Web Vitals sample.
func (i *Ingestor) RecordPerformance(ctx context.Context, metric PerformanceMetric) error {
	for name, value := range map[string]*float64{
		"fcp": metric.FCP, "lcp": metric.LCP, "fid": metric.FID,
		"cls": metric.CLS, "ttfb": metric.TTFB, "loadTime": metric.LoadTime,
	} {
		if value != nil && *value < 0 {
			return newValidationError("metrics."+name, "must not be negative")
		}
	}
	metric.ID = 0
	metric.CreatedAt = i.now().UTC()

	if err := i.write(ctx, func(tx *gorm.DB) error {
		return tx.Create(&metric).Error
	}); err != nil {
		i.recorder.IngestFailed("performance")
		return fmt.Errorf("failed to insert performance metric: %w", err)
	}
	i.recorder.EventIngested("performance")
	return nil
}

// write runs fn in a write transaction bounded by the store timeout.
func (i *Ingestor) write(ctx context.Context, fn func(tx *gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()
	return sqlite.PerformWrite(i.logger, i.db.WithContext(ctx), fn)
}

// classifyMissing fills only the fields the client did not send. A device
// type outside the stored buckets counts as not sent.
func classifyMissing(userAgent, deviceType, browser, os string) user_agent.Client {
	client := user_agent.Client{
		DeviceType: strings.ToLower(strings.TrimSpace(deviceType)),
		Browser:    strings.TrimSpace(browser),
		OS:         strings.TrimSpace(os),
	}
	if !user_agent.IsDeviceType(client.DeviceType) {
		client.DeviceType = ""
	}
	if client.DeviceType != "" && client.Browser != "" && client.OS != "" {
		return client
	}

	derived := user_agent.Classify(userAgent)
	if client.DeviceType == "" {
		client.DeviceType = derived.DeviceType
	}
	if client.Browser == "" {
		client.Browser = derived.Browser
	}
	if client.OS == "" {
		client.OS = derived.OS
	}
	return client
}
