package analytics

import (
	"fmt"
	"math"

	"gorm.io/gorm"

	"portfolio/internal/events"
	"portfolio/internal/pkg/referrers"
	"portfolio/internal/pkg/user_agent"
	"portfolio/internal/timeframe"
)

const (
	topLocationsLimit = 5
	topBrowsersLimit  = 5
	topPagesLimit     = 10
)

func overview(db *gorm.DB, tf *timeframe.TimeFrame) (Overview, error) {
	result := Overview{}

	views := db.Model(&events.PageView{}).Where("created_at BETWEEN ? AND ?", tf.From, tf.To)
	if err := views.Session(&gorm.Session{}).Count(&result.TotalPageViews).Error; err != nil {
		return Overview{}, fmt.Errorf("error counting page views: %w", err)
	}
	if err := views.Session(&gorm.Session{}).Distinct("visitor_id").Count(&result.TotalVisitors).Error; err != nil {
		return Overview{}, fmt.Errorf("error counting visitors: %w", err)
	}

	var split struct {
		NewVisitors       int64
		ReturningVisitors int64
	}
	err := db.Raw(`
    SELECT
        COALESCE(SUM(CASE WHEN is_new_visitor THEN 1 ELSE 0 END), 0) AS new_visitors,
        COALESCE(SUM(CASE WHEN is_new_visitor THEN 0 ELSE 1 END), 0) AS returning_visitors
    FROM sessions
    WHERE start_time BETWEEN ? AND ?
    `, tf.From, tf.To).Scan(&split).Error
	if err != nil {
		return Overview{}, fmt.Errorf("error counting new and returning visitors: %w", err)
	}
	result.NewVisitors = split.NewVisitors
	result.ReturningVisitors = split.ReturningVisitors

	result.TopCountries, err = rankPageViews(db, tf, "country", topLocationsLimit)
	if err != nil {
		return Overview{}, err
	}
	result.TopCities, err = rankPageViews(db, tf, "city || ', ' || country", topLocationsLimit)
	if err != nil {
		return Overview{}, err
	}
	return result, nil
}

// rankPageViews groups in-window page views by expr, most frequent first.
// Ties are broken by name so the ranking is stable.
func rankPageViews(db *gorm.DB, tf *timeframe.TimeFrame, expr string, limit int) ([]MetricCountResult, error) {
	results := []MetricCountResult{}
	query := fmt.Sprintf(`
    SELECT
        %s AS name,
        COUNT(*) AS count
    FROM page_views
    WHERE created_at BETWEEN ? AND ?
    GROUP BY name
    ORDER BY count DESC, name ASC
    LIMIT ?
    `, expr)

	if err := db.Raw(query, tf.From, tf.To, limit).Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("error ranking page views by %s: %w", expr, err)
	}
	return results, nil
}

func trafficSources(db *gorm.DB, tf *timeframe.TimeFrame) (TrafficSources, error) {
	var rows []struct {
		Referrer  string
		UTMMedium string `gorm:"column:utm_medium"`
		Count     int64
	}
	err := db.Raw(`
    SELECT
        COALESCE(referrer, '') AS referrer,
        COALESCE(utm_medium, '') AS utm_medium,
        COUNT(*) AS count
    FROM page_views
    WHERE created_at BETWEEN ? AND ?
    GROUP BY referrer, utm_medium
    `, tf.From, tf.To).Scan(&rows).Error
	if err != nil {
		return TrafficSources{}, fmt.Errorf("error fetching referrers: %w", err)
	}

	sources := TrafficSources{}
	for _, row := range rows {
		switch referrers.Classify(row.Referrer, row.UTMMedium) {
		case referrers.Direct:
			sources.Direct += row.Count
		case referrers.Social:
			sources.Social += row.Count
		case referrers.Search:
			sources.Search += row.Count
		default:
			sources.Other += row.Count
		}
	}
	return sources, nil
}

func devices(db *gorm.DB, tf *timeframe.TimeFrame) (Devices, error) {
	var rows []MetricCountResult
	err := db.Raw(`
    SELECT device_type AS name, COUNT(*) AS count
    FROM page_views
    WHERE created_at BETWEEN ? AND ?
    GROUP BY device_type
    `, tf.From, tf.To).Scan(&rows).Error
	if err != nil {
		return Devices{}, fmt.Errorf("error fetching device types: %w", err)
	}

	result := Devices{}
	for _, row := range rows {
		switch row.Name {
		case user_agent.DeviceMobile:
			result.Counts.Mobile = row.Count
		case user_agent.DeviceDesktop:
			result.Counts.Desktop = row.Count
		case user_agent.DeviceTablet:
			result.Counts.Tablet = row.Count
		}
	}

	result.Browsers = []MetricCountResult{}
	err = db.Raw(`
    SELECT browser AS name, COUNT(*) AS count
    FROM page_views
    WHERE created_at BETWEEN ? AND ?
    AND browser <> ''
    GROUP BY browser
    ORDER BY count DESC, name ASC
    LIMIT ?
    `, tf.From, tf.To, topBrowsersLimit).Scan(&result.Browsers).Error
	if err != nil {
		return Devices{}, fmt.Errorf("error fetching top browsers: %w", err)
	}
	return result, nil
}

// engagement only considers closed sessions, i.e. those with a duration.
func engagement(db *gorm.DB, tf *timeframe.TimeFrame) (Engagement, error) {
	var row struct {
		Sessions    int64
		AvgDuration *float64
		AvgPages    *float64
		Bounced     int64
	}
	err := db.Raw(`
    SELECT
        COUNT(*) AS sessions,
        AVG(duration) AS avg_duration,
        AVG(page_count) AS avg_pages,
        COALESCE(SUM(CASE WHEN bounce THEN 1 ELSE 0 END), 0) AS bounced
    FROM sessions
    WHERE start_time BETWEEN ? AND ?
    AND duration IS NOT NULL
    `, tf.From, tf.To).Scan(&row).Error
	if err != nil {
		return Engagement{}, fmt.Errorf("error fetching engagement: %w", err)
	}

	if row.Sessions == 0 {
		return Engagement{}, nil
	}
	result := Engagement{
		BounceRate: int64(math.Round(float64(row.Bounced) / float64(row.Sessions) * 100)),
	}
	if row.AvgDuration != nil {
		result.AvgDuration = int64(math.Round(*row.AvgDuration))
	}
	if row.AvgPages != nil {
		result.AvgPagesPerSession = round(*row.AvgPages, 2)
	}
	return result, nil
}

func conversions(db *gorm.DB, tf *timeframe.TimeFrame) (Conversions, error) {
	var rows []MetricCountResult
	err := db.Raw(`
    SELECT event_type AS name, COUNT(*) AS count
    FROM events
    WHERE created_at BETWEEN ? AND ?
    GROUP BY event_type
    `, tf.From, tf.To).Scan(&rows).Error
	if err != nil {
		return Conversions{}, fmt.Errorf("error fetching events: %w", err)
	}

	result := Conversions{ByType: make(map[string]int64, len(rows))}
	for _, row := range rows {
		result.ByType[row.Name] = row.Count
	}
	result.Downloads = result.ByType[events.EventDownloadCV]
	result.ContactSubmissions = result.ByType[events.EventContactSubmit]
	result.SocialClicks = result.ByType[events.EventSocialClick]
	return result, nil
}

// performance averages over every sample in the window; a vital the browser
// did not report counts as zero.
func performance(db *gorm.DB, tf *timeframe.TimeFrame) (Performance, error) {
	var row struct {
		Samples  int64
		LCP      float64
		FID      float64
		CLS      float64
		LoadTime float64
	}
	err := db.Raw(`
    SELECT
        COUNT(*) AS samples,
        COALESCE(AVG(COALESCE(lcp, 0)), 0) AS lcp,
        COALESCE(AVG(COALESCE(fid, 0)), 0) AS fid,
        COALESCE(AVG(COALESCE(cls, 0)), 0) AS cls,
        COALESCE(AVG(COALESCE(load_time, 0)), 0) AS load_time
    FROM performance_metrics
    WHERE created_at BETWEEN ? AND ?
    `, tf.From, tf.To).Scan(&row).Error
	if err != nil {
		return Performance{}, fmt.Errorf("error fetching performance metrics: %w", err)
	}

	if row.Samples == 0 {
		return Performance{}, nil
	}
	return Performance{
		AvgLCP:      int64(math.Round(row.LCP)),
		AvgFID:      int64(math.Round(row.FID)),
		AvgCLS:      round(row.CLS, 3),
		AvgLoadTime: int64(math.Round(row.LoadTime)),
	}, nil
}

func topPages(db *gorm.DB, tf *timeframe.TimeFrame) ([]PageCount, error) {
	ranked, err := rankPageViews(db, tf, "page_path", topPagesLimit)
	if err != nil {
		return nil, err
	}
	pages := make([]PageCount, len(ranked))
	for i, r := range ranked {
		pages[i] = PageCount{Path: r.Name, Views: r.Count}
	}
	return pages, nil
}

func errorCount(db *gorm.DB, tf *timeframe.TimeFrame) (int64, error) {
	var count int64
	err := db.Model(&events.ErrorRecord{}).
		Where("created_at BETWEEN ? AND ?", tf.From, tf.To).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("error counting client errors: %w", err)
	}
	return count, nil
}

// dailyTrends emits one point per UTC date that has page views, ascending.
// Dates without views are not filled in.
func dailyTrends(db *gorm.DB, tf *timeframe.TimeFrame) ([]timeframe.DateStat, error) {
	points := []timeframe.DateStat{}
	err := db.Raw(`
    SELECT date(created_at) AS date, COUNT(*) AS count
    FROM page_views
    WHERE created_at BETWEEN ? AND ?
    GROUP BY date(created_at)
    ORDER BY date ASC
    `, tf.From, tf.To).Scan(&points).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching daily trends: %w", err)
	}
	return points, nil
}
