package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"portfolio/internal/pkg/async"
	"portfolio/internal/timeframe"
)

// ErrReportUnavailable is returned when no section of a report could be computed.
var ErrReportUnavailable = errors.New("analytics: report unavailable")

// Stats section names, also used as keys of StatsReport.Errors.
const (
	SectionOverview       = "overview"
	SectionTrafficSources = "trafficSources"
	SectionDevices        = "devices"
	SectionEngagement     = "engagement"
	SectionConversions    = "conversions"
	SectionPerformance    = "performance"
	SectionTopPages       = "topPages"
	SectionErrorCount     = "errorCount"
	SectionErrorRate      = "errorRate"
	SectionTrends         = "trends"
)

// Observer is told about section failures and report latency.
type Observer interface {
	SectionFailed(section string)
	ReportComputed(report string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) SectionFailed(string)                  {}
func (nopObserver) ReportComputed(string, time.Duration) {}

// Engine computes reports. It is safe for concurrent use; nothing is
// mutated after construction.
type Engine struct {
	db       *gorm.DB
	logger   *slog.Logger
	pool     *async.Pool
	clock    timeframe.TimeProvider
	loc      *time.Location
	timeout  time.Duration
	observer Observer
}

type Option func(*Engine)

// WithWorkers bounds how many sections are queried at once.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.pool = async.NewPool(n)
	}
}

func WithClock(clock timeframe.TimeProvider) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLocation sets the zone used for hour-of-day bucketing.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithQueryTimeout bounds each section query.
func WithQueryTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

func NewEngine(db *gorm.DB, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		db:       db,
		logger:   logger,
		pool:     async.NewPool(4),
		clock:    timeframe.DefaultTimeProvider{},
		loc:      time.Local,
		timeout:  5 * time.Second,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// query returns a session bound to ctx with the per-query timeout applied.
func (e *Engine) query(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	return e.db.WithContext(ctx), cancel
}

func (e *Engine) section(name string, fn func(db *gorm.DB) (interface{}, error)) async.Task {
	return async.Task{
		Name: name,
		Execute: func(ctx context.Context) (interface{}, error) {
			db, cancel := e.query(ctx)
			defer cancel()
			return fn(db)
		},
	}
}

// ComputeStats runs every stats section concurrently. A failing section is
// reported in StatsReport.Errors and leaves its zero default in place; the
// error return is reserved for the case where every section failed.
func (e *Engine) ComputeStats(ctx context.Context, label timeframe.RangeLabel) (*StatsReport, error) {
	start := time.Now()
	tf := timeframe.NewTimeFrame(label, e.clock.Now())

	tasks := []async.Task{
		e.section(SectionOverview, func(db *gorm.DB) (interface{}, error) { return overview(db, tf) }),
		e.section(SectionTrafficSources, func(db *gorm.DB) (interface{}, error) { return trafficSources(db, tf) }),
		e.section(SectionDevices, func(db *gorm.DB) (interface{}, error) { return devices(db, tf) }),
		e.section(SectionEngagement, func(db *gorm.DB) (interface{}, error) { return engagement(db, tf) }),
		e.section(SectionConversions, func(db *gorm.DB) (interface{}, error) { return conversions(db, tf) }),
		e.section(SectionPerformance, func(db *gorm.DB) (interface{}, error) { return performance(db, tf) }),
		e.section(SectionTopPages, func(db *gorm.DB) (interface{}, error) { return topPages(db, tf) }),
		e.section(SectionErrorCount, func(db *gorm.DB) (interface{}, error) { return errorCount(db, tf) }),
		e.section(SectionTrends, func(db *gorm.DB) (interface{}, error) { return dailyTrends(db, tf) }),
	}

	results := e.pool.Execute(ctx, tasks)
	report := emptyStatsReport(label)

	failed := 0
	ok := func(name string) bool {
		result := results[name]
		if result.Err == nil {
			return true
		}
		failed++
		e.fail(report, name, result.Err)
		return false
	}

	if ok(SectionOverview) {
		report.Overview = results[SectionOverview].Data.(Overview)
	}
	if ok(SectionTrafficSources) {
		report.TrafficSources = results[SectionTrafficSources].Data.(TrafficSources)
	}
	if ok(SectionDevices) {
		report.Devices = results[SectionDevices].Data.(Devices)
	}
	if ok(SectionEngagement) {
		report.Engagement = results[SectionEngagement].Data.(Engagement)
	}
	if ok(SectionConversions) {
		report.Conversions = results[SectionConversions].Data.(Conversions)
	}
	if ok(SectionPerformance) {
		report.Performance = results[SectionPerformance].Data.(Performance)
	}
	if ok(SectionTopPages) {
		report.TopPages = results[SectionTopPages].Data.([]PageCount)
	}
	if ok(SectionTrends) {
		report.Trends = results[SectionTrends].Data.([]timeframe.DateStat)
	}

	countOK := ok(SectionErrorCount)
	if countOK {
		report.ErrorCount = results[SectionErrorCount].Data.(int64)
	}
	if countOK && results[SectionOverview].Err == nil {
		report.ErrorRate = errorRate(report.ErrorCount, report.Overview.TotalPageViews)
	} else {
		e.fail(report, SectionErrorRate, fmt.Errorf("depends on %s and %s", SectionErrorCount, SectionOverview))
	}

	e.observer.ReportComputed("stats", time.Since(start))

	if failed == len(tasks) {
		return report, fmt.Errorf("%w: every stats section failed", ErrReportUnavailable)
	}
	return report, nil
}

func (e *Engine) fail(report *StatsReport, section string, err error) {
	if report.Errors == nil {
		report.Errors = map[string]string{}
	}
	report.Errors[section] = err.Error()
	e.observer.SectionFailed(section)
	e.logger.Error("Failed to compute stats section",
		slog.String("section", section),
		slog.String("time_range", string(report.TimeRange)),
		slog.Any("error", err))
}

// errorRate is errors per hundred page views, two decimals; 0 without views.
func errorRate(errs, pageViews int64) float64 {
	if pageViews == 0 {
		return 0
	}
	return round(float64(errs)/float64(pageViews)*100, 2)
}
