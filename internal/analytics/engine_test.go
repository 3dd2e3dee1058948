package analytics_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"portfolio/internal/analytics"
	"portfolio/internal/events"
	"portfolio/internal/feedback"
	"portfolio/internal/testsupport"
	"portfolio/internal/timeframe"
)

var now = time.Date(2026, 3, 14, 15, 30, 0, 0, time.UTC)

type recordingObserver struct {
	mu       sync.Mutex
	failed   []string
	computed []string
}

func (o *recordingObserver) SectionFailed(section string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, section)
}

func (o *recordingObserver) ReportComputed(report string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.computed = append(o.computed, report)
}

func setupEngine(t *testing.T, opts ...analytics.Option) (*analytics.Engine, *gorm.DB) {
	t.Helper()
	db := testsupport.SetupTestDB(t)
	opts = append([]analytics.Option{
		analytics.WithClock(timeframe.FixedTimeProvider{At: now}),
		analytics.WithLocation(time.UTC),
		analytics.WithWorkers(1),
	}, opts...)
	return analytics.NewEngine(db, testsupport.GetLogger(), opts...), db
}

func TestComputeStatsEmptyWindow(t *testing.T) {
	engine, _ := setupEngine(t)

	report, err := engine.ComputeStats(context.Background(), timeframe.RangeLast7Days)
	require.NoError(t, err)

	assert.Empty(t, report.Errors)
	assert.Equal(t, timeframe.RangeLast7Days, report.TimeRange)
	assert.Zero(t, report.Overview.TotalPageViews)
	assert.Zero(t, report.Overview.TotalVisitors)
	assert.Empty(t, report.Overview.TopCountries)
	assert.Empty(t, report.Overview.TopCities)
	assert.Equal(t, analytics.TrafficSources{}, report.TrafficSources)
	assert.Equal(t, analytics.DeviceCounts{}, report.Devices.Counts)
	assert.Empty(t, report.Devices.Browsers)
	assert.Equal(t, analytics.Engagement{}, report.Engagement)
	assert.Empty(t, report.Conversions.ByType)
	assert.Equal(t, analytics.Performance{}, report.Performance)
	assert.Empty(t, report.TopPages)
	assert.Empty(t, report.Trends)
	assert.Zero(t, report.ErrorRate)
	assert.Zero(t, report.ErrorCount)

	// Empty slices must encode as [] for the dashboard.
	raw, err := json.Marshal(report)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"topPages":[]`)
	assert.NotContains(t, string(raw), `"errors"`)
}

func TestComputeStatsErrorRate(t *testing.T) {
	t.Run("one view and one error in the last day", func(t *testing.T) {
		engine, db := setupEngine(t)
		testsupport.CleanAllTables(db)
		testsupport.CreatePageView(t, db, events.PageView{PagePath: "/", CreatedAt: now.Add(-2 * time.Hour)})
		testsupport.CreateErrorRecord(t, db, events.ErrorRecord{CreatedAt: now.Add(-time.Hour)})

		report, err := engine.ComputeStats(context.Background(), timeframe.RangeLast24Hours)
		require.NoError(t, err)
		assert.Equal(t, 100.00, report.ErrorRate)
		assert.Equal(t, int64(1), report.Overview.TotalPageViews)
		assert.Equal(t, int64(1), report.ErrorCount)
	})

	t.Run("errors without views", func(t *testing.T) {
		engine, db := setupEngine(t)
		testsupport.CleanAllTables(db)
		testsupport.CreateErrorRecord(t, db, events.ErrorRecord{CreatedAt: now.Add(-time.Hour)})
		testsupport.CreateErrorRecord(t, db, events.ErrorRecord{CreatedAt: now.Add(-time.Hour)})

		report, err := engine.ComputeStats(context.Background(), timeframe.RangeLast24Hours)
		require.NoError(t, err)
		assert.Zero(t, report.ErrorRate)
		assert.Equal(t, int64(2), report.ErrorCount)
	})

	t.Run("two decimals", func(t *testing.T) {
		engine, db := setupEngine(t)
		testsupport.CleanAllTables(db)
		for i := 0; i < 3; i++ {
			testsupport.CreatePageView(t, db, events.PageView{PagePath: "/", CreatedAt: now.Add(-time.Hour)})
		}
		testsupport.CreateErrorRecord(t, db, events.ErrorRecord{CreatedAt: now.Add(-time.Hour)})

		report, err := engine.ComputeStats(context.Background(), timeframe.RangeLast24Hours)
		require.NoError(t, err)
		assert.Equal(t, 33.33, report.ErrorRate)
	})
}

func TestComputeStatsTrafficSources(t *testing.T) {
	engine, db := setupEngine(t)

	views := []events.PageView{
		{PagePath: "/", Referrer: "", UTMMedium: "social", UTMSource: "twitter"},
		{PagePath: "/", Referrer: "https://www.google.com/search", UTMMedium: "social"},
		{PagePath: "/", Referrer: "https://www.linkedin.com/feed/"},
		{PagePath: "/", Referrer: "https://duckduckgo.com/"},
		{PagePath: "/", Referrer: "https://news.ycombinator.com/"},
		{PagePath: "/", Referrer: "https://news.ycombinator.com/"},
	}
	for _, view := range views {
		view.CreatedAt = now.Add(-time.Hour)
		testsupport.CreatePageView(t, db, view)
	}

	report, err := engine.ComputeStats(context.Background(), timeframe.RangeLast24Hours)
	require.NoError(t, err)
	assert.Equal(t, analytics.TrafficSources{Direct: 1, Social: 2, Search: 1, Other: 2}, report.TrafficSources)
}

func TestComputeStatsSections(t *testing.T) {
	engine, db := setupEngine(t)
	ctx := context.Background()

	day := func(d int, h int) time.Time { return now.AddDate(0, 0, -d).Add(-time.Duration(h) * time.Hour) }

	views := []events.PageView{
		{VisitorID: "v1", PagePath: "/", Country: "Portugal", City: "Lisbon", DeviceType: "desktop", Browser: "Chrome", CreatedAt: day(0, 1)},
		{VisitorID: "v1", PagePath: "/projects", Country: "Portugal", City: "Lisbon", DeviceType: "desktop", Browser: "Chrome", CreatedAt: day(0, 1)},
		{VisitorID: "v2", PagePath: "/", Country: "Portugal", City: "Porto", DeviceType: "mobile", Browser: "Safari", CreatedAt: day(2, 0)},
		{VisitorID: "v3", PagePath: "/", Country: "Spain", City: "Madrid", DeviceType: "tablet", Browser: "Firefox", CreatedAt: day(2, 0)},
		{VisitorID: "v3", PagePath: "/contact", Country: "Spain", City: "Madrid", DeviceType: "tv", Browser: "", CreatedAt: day(2, 0)},
		// Outside the 7 day window.
		{VisitorID: "v9", PagePath: "/old", Country: "France", City: "Paris", DeviceType: "desktop", Browser: "Edge", CreatedAt: day(8, 0)},
	}
	for _, view := range views {
		testsupport.CreatePageView(t, db, view)
	}

	duration := func(v int) *int { return &v }
	testsupport.CreateSession(t, db, events.Session{ID: "s1", IsNewVisitor: true, StartTime: day(0, 1), Duration: duration(100), PageCount: 2})
	testsupport.CreateSession(t, db, events.Session{ID: "s2", IsNewVisitor: true, StartTime: day(2, 0), Duration: duration(21), PageCount: 1, Bounce: true})
	testsupport.CreateSession(t, db, events.Session{ID: "s3", IsNewVisitor: false, StartTime: day(2, 0), Duration: duration(40), PageCount: 2})
	// Still open, excluded from engagement but counted as returning.
	testsupport.CreateSession(t, db, events.Session{ID: "s4", IsNewVisitor: false, StartTime: day(1, 0), PageCount: 5})

	for _, eventType := range []string{"download_cv", "download_cv", "contact_submit", "social_click", "theme_toggle"} {
		testsupport.CreateEvent(t, db, events.Event{EventType: eventType, CreatedAt: day(1, 0)})
	}

	testsupport.CreatePerformanceMetric(t, db, events.PerformanceMetric{
		LCP: testsupport.Float(2000), FID: testsupport.Float(10), CLS: testsupport.Float(0.1), LoadTime: testsupport.Float(3001), CreatedAt: day(1, 0),
	})
	testsupport.CreatePerformanceMetric(t, db, events.PerformanceMetric{
		LCP: testsupport.Float(1001), CLS: testsupport.Float(0.05), LoadTime: testsupport.Float(1000), CreatedAt: day(1, 0),
	})

	report, err := engine.ComputeStats(ctx, timeframe.RangeLast7Days)
	require.NoError(t, err)
	require.Empty(t, report.Errors)

	assert.Equal(t, int64(3), report.Overview.TotalVisitors)
	assert.Equal(t, int64(5), report.Overview.TotalPageViews)
	assert.Equal(t, int64(2), report.Overview.NewVisitors)
	assert.Equal(t, int64(2), report.Overview.ReturningVisitors)
	assert.Equal(t, []analytics.MetricCountResult{
		{Name: "Portugal", Count: 3},
		{Name: "Spain", Count: 2},
	}, report.Overview.TopCountries)
	assert.Equal(t, []analytics.MetricCountResult{
		{Name: "Lisbon, Portugal", Count: 2},
		{Name: "Madrid, Spain", Count: 2},
		{Name: "Porto, Portugal", Count: 1},
	}, report.Overview.TopCities)

	assert.Equal(t, analytics.DeviceCounts{Mobile: 1, Desktop: 2, Tablet: 1}, report.Devices.Counts)
	assert.Equal(t, []analytics.MetricCountResult{
		{Name: "Chrome", Count: 2},
		{Name: "Firefox", Count: 1},
		{Name: "Safari", Count: 1},
	}, report.Devices.Browsers)

	assert.Equal(t, analytics.Engagement{AvgDuration: 54, AvgPagesPerSession: 1.67, BounceRate: 33}, report.Engagement)

	assert.Equal(t, int64(2), report.Conversions.Downloads)
	assert.Equal(t, int64(1), report.Conversions.ContactSubmissions)
	assert.Equal(t, int64(1), report.Conversions.SocialClicks)
	assert.Equal(t, int64(1), report.Conversions.ByType["theme_toggle"])

	assert.Equal(t, analytics.Performance{AvgLCP: 1501, AvgFID: 5, AvgCLS: 0.075, AvgLoadTime: 2001}, report.Performance)

	assert.Equal(t, []analytics.PageCount{
		{Path: "/", Views: 3},
		{Path: "/contact", Views: 1},
		{Path: "/projects", Views: 1},
	}, report.TopPages)

	assert.Equal(t, []timeframe.DateStat{
		{Date: "2026-03-12", Count: 3},
		{Date: "2026-03-14", Count: 2},
	}, report.Trends)
}

func TestComputeStatsPartialResults(t *testing.T) {
	observer := &recordingObserver{}
	engine, db := setupEngine(t, analytics.WithObserver(observer))
	testsupport.CreatePageView(t, db, events.PageView{PagePath: "/", CreatedAt: now.Add(-time.Hour)})

	require.NoError(t, db.Migrator().DropTable(&events.PerformanceMetric{}))

	report, err := engine.ComputeStats(context.Background(), timeframe.RangeLast24Hours)
	require.NoError(t, err)

	require.Contains(t, report.Errors, analytics.SectionPerformance)
	assert.Len(t, report.Errors, 1)
	assert.Equal(t, analytics.Performance{}, report.Performance)
	assert.Equal(t, int64(1), report.Overview.TotalPageViews)
	assert.Equal(t, []string{analytics.SectionPerformance}, observer.failed)
	assert.Equal(t, []string{"stats"}, observer.computed)
}

func TestComputeStatsAllSectionsFail(t *testing.T) {
	engine, _ := setupEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := engine.ComputeStats(ctx, timeframe.RangeLast24Hours)
	require.Error(t, err)
	assert.ErrorIs(t, err, analytics.ErrReportUnavailable)
	require.NotNil(t, report)
	assert.Contains(t, report.Errors, analytics.SectionErrorRate)
}

func TestComputeRealtime(t *testing.T) {
	engine, db := setupEngine(t)

	testsupport.CreateSession(t, db, events.Session{ID: "active", StartTime: now.Add(-2 * time.Minute), EntryPage: "/", ExitPage: "/contact"})
	testsupport.CreateSession(t, db, events.Session{ID: "recent", StartTime: now.Add(-30 * time.Minute), EntryPage: "/", ExitPage: "/"})
	testsupport.CreateSession(t, db, events.Session{ID: "no-pages", StartTime: now.Add(-40 * time.Minute)})
	testsupport.CreateSession(t, db, events.Session{ID: "earlier", StartTime: now.Add(-3 * time.Hour), EntryPage: "/old"})

	testsupport.CreatePageView(t, db, events.PageView{VisitorID: "v1", PagePath: "/", Country: "Portugal", City: "Lisbon", DeviceType: "desktop", Browser: "Chrome", CreatedAt: now.Add(-10 * time.Minute)})
	testsupport.CreatePageView(t, db, events.PageView{VisitorID: "v2", PagePath: "/projects", Country: "Spain", Referrer: "https://t.co/x", CreatedAt: now.Add(-5 * time.Minute)})
	testsupport.CreatePageView(t, db, events.PageView{VisitorID: "v3", PagePath: "/old", CreatedAt: now.Add(-2 * time.Hour)})

	report, err := engine.ComputeRealtime(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.ActiveVisitors)

	require.Len(t, report.RecentActivity, 2)
	assert.Equal(t, analytics.Activity{
		VisitorID: "v2", Page: "/projects", Location: "Spain", Referrer: "https://t.co/x",
		Timestamp: now.Add(-5 * time.Minute).Format(time.RFC3339),
	}, report.RecentActivity[0])
	assert.Equal(t, "Lisbon, Portugal", report.RecentActivity[1].Location)
	assert.Equal(t, "Direct", report.RecentActivity[1].Referrer)

	require.Len(t, report.HourlyTraffic, 24)
	assert.Equal(t, "0:00", report.HourlyTraffic[0].Hour)
	assert.Equal(t, "23:00", report.HourlyTraffic[23].Hour)
	assert.Equal(t, int64(3), report.HourlyTraffic[14].Sessions+report.HourlyTraffic[15].Sessions)
	assert.Equal(t, int64(1), report.HourlyTraffic[12].Sessions)

	assert.Equal(t, []analytics.PageFrequency{{Page: "/", Count: 2}}, report.EntryPages)
	assert.Equal(t, []analytics.PageFrequency{{Page: "/", Count: 1}, {Page: "/contact", Count: 1}}, report.ExitPages)
}

func TestHourlyTrafficIsHourOfDay(t *testing.T) {
	engine, db := setupEngine(t)

	// 15:45 yesterday and 15:10 today are 23h25m apart and share hour 15.
	testsupport.CreateSession(t, db, events.Session{ID: "yesterday", StartTime: time.Date(2026, 3, 13, 15, 45, 0, 0, time.UTC)})
	testsupport.CreateSession(t, db, events.Session{ID: "today", StartTime: time.Date(2026, 3, 14, 15, 10, 0, 0, time.UTC)})

	report, err := engine.ComputeRealtime(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), report.HourlyTraffic[15].Sessions)
	var total int64
	for _, point := range report.HourlyTraffic {
		total += point.Sessions
	}
	assert.Equal(t, int64(2), total)
}

func TestHourlyTrafficUsesLocation(t *testing.T) {
	lisbonSummer := time.FixedZone("UTC+1", 3600)
	engine, db := setupEngine(t, analytics.WithLocation(lisbonSummer))

	testsupport.CreateSession(t, db, events.Session{ID: "s", StartTime: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)})

	report, err := engine.ComputeRealtime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.HourlyTraffic[10].Sessions)
}

func TestComputeContacts(t *testing.T) {
	engine, db := setupEngine(t)
	service := feedback.NewService(db, testsupport.GetLogger())

	testsupport.CreateEvent(t, db, events.Event{
		EventType: events.EventContactSubmit, VisitorID: "v1",
		EventData: []byte(`{"name":"Ada","email":"ada@example.com","message":"Hello"}`),
		CreatedAt: now.Add(-2 * time.Hour),
	})
	testsupport.CreateEvent(t, db, events.Event{
		EventType: events.EventContactSubmit, VisitorID: "v2",
		EventData: []byte(`{"message":"No name"}`),
		CreatedAt: now.Add(-time.Hour),
	})
	testsupport.CreateEvent(t, db, events.Event{EventType: events.EventDownloadCV, CreatedAt: now.Add(-time.Hour)})
	testsupport.CreateEvent(t, db, events.Event{EventType: events.EventContactSubmit, CreatedAt: now.AddDate(0, 0, -10)})

	_, err := service.WithClock(func() time.Time { return now.Add(-3 * time.Hour) }).Submit(context.Background(), feedback.Input{
		Name: "Grace", Feedback: "Lovely", Rating: json.RawMessage(`5`),
	})
	require.NoError(t, err)

	report, err := engine.ComputeContacts(context.Background(), timeframe.RangeLast7Days)
	require.NoError(t, err)

	require.Equal(t, 2, report.TotalContacts)
	assert.Equal(t, analytics.Contact{
		Email: "N/A", Name: "Anonymous", Message: "No name",
		Timestamp: now.Add(-time.Hour).Format(time.RFC3339), VisitorID: "v2",
	}, report.Contacts[0])
	assert.Equal(t, "ada@example.com", report.Contacts[1].Email)

	require.Equal(t, 1, report.TotalFeedbacks)
	assert.Equal(t, analytics.FeedbackEntry{
		Name: "Grace", Feedback: "Lovely", Rating: 5,
		Timestamp: now.Add(-3 * time.Hour).Format(time.RFC3339),
	}, report.Feedbacks[0])
}
