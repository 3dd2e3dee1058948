package analytics

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"portfolio/internal/events"
	"portfolio/internal/pkg/async"
	"portfolio/internal/timeframe"
)

const (
	activeWindow        = 5 * time.Minute
	recentWindow        = time.Hour
	hourlyWindow        = 24 * time.Hour
	recentActivityLimit = 50
	topSessionPages     = 5
)

// ComputeRealtime builds the live snapshot over fixed windows ending now.
// Unlike ComputeStats it fails as a whole when any part fails.
func (e *Engine) ComputeRealtime(ctx context.Context) (*RealtimeReport, error) {
	start := time.Now()
	now := e.clock.Now()

	tasks := []async.Task{
		e.section("activeVisitors", func(db *gorm.DB) (interface{}, error) {
			return activeVisitors(db, timeframe.Last(activeWindow, now))
		}),
		e.section("recentActivity", func(db *gorm.DB) (interface{}, error) {
			return recentActivity(db, timeframe.Last(recentWindow, now))
		}),
		e.section("hourlyTraffic", func(db *gorm.DB) (interface{}, error) {
			return hourlyTraffic(db, timeframe.Last(hourlyWindow, now), e.loc)
		}),
		e.section("entryPages", func(db *gorm.DB) (interface{}, error) {
			return sessionPages(db, timeframe.Last(recentWindow, now), "entry_page")
		}),
		e.section("exitPages", func(db *gorm.DB) (interface{}, error) {
			return sessionPages(db, timeframe.Last(recentWindow, now), "exit_page")
		}),
	}

	results := e.pool.Execute(ctx, tasks)
	for _, task := range tasks {
		if err := results[task.Name].Err; err != nil {
			return nil, fmt.Errorf("error fetching %s: %w", task.Name, err)
		}
	}

	e.observer.ReportComputed("realtime", time.Since(start))
	return &RealtimeReport{
		ActiveVisitors: results["activeVisitors"].Data.(int64),
		RecentActivity: results["recentActivity"].Data.([]Activity),
		HourlyTraffic:  results["hourlyTraffic"].Data.([]HourlyPoint),
		EntryPages:     results["entryPages"].Data.([]PageFrequency),
		ExitPages:      results["exitPages"].Data.([]PageFrequency),
	}, nil
}

func activeVisitors(db *gorm.DB, tf *timeframe.TimeFrame) (int64, error) {
	var count int64
	err := db.Model(&events.Session{}).
		Where("start_time BETWEEN ? AND ?", tf.From, tf.To).
		Distinct("id").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("error counting active sessions: %w", err)
	}
	return count, nil
}

func recentActivity(db *gorm.DB, tf *timeframe.TimeFrame) ([]Activity, error) {
	var views []events.PageView
	err := db.Where("created_at BETWEEN ? AND ?", tf.From, tf.To).
		Order("created_at DESC, id DESC").
		Limit(recentActivityLimit).
		Find(&views).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching recent page views: %w", err)
	}

	activity := make([]Activity, len(views))
	for i, view := range views {
		location := view.Country
		if view.City != "" {
			location = view.City + ", " + view.Country
		}
		referrer := view.Referrer
		if referrer == "" {
			referrer = "Direct"
		}
		activity[i] = Activity{
			VisitorID: view.VisitorID,
			Page:      view.PagePath,
			Location:  location,
			Device:    view.DeviceType,
			Browser:   view.Browser,
			Referrer:  referrer,
			Timestamp: view.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	return activity, nil
}

// hourlyTraffic buckets sessions by hour of day in loc. The 24 buckets are
// always present and ordered 0..23; it is not a rolling window, so sessions
// from the same clock hour on consecutive days share a bucket.
func hourlyTraffic(db *gorm.DB, tf *timeframe.TimeFrame, loc *time.Location) ([]HourlyPoint, error) {
	var starts []time.Time
	err := db.Model(&events.Session{}).
		Where("start_time BETWEEN ? AND ?", tf.From, tf.To).
		Pluck("start_time", &starts).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching session start times: %w", err)
	}

	var buckets [24]int64
	for _, start := range starts {
		buckets[start.In(loc).Hour()]++
	}

	points := make([]HourlyPoint, len(buckets))
	for hour, sessions := range buckets {
		points[hour] = HourlyPoint{Hour: fmt.Sprintf("%d:00", hour), Sessions: sessions}
	}
	return points, nil
}

// sessionPages ranks the non-empty values of column among sessions started
// in the window.
func sessionPages(db *gorm.DB, tf *timeframe.TimeFrame, column string) ([]PageFrequency, error) {
	pages := []PageFrequency{}
	query := fmt.Sprintf(`
    SELECT %[1]s AS page, COUNT(*) AS count
    FROM sessions
    WHERE start_time BETWEEN ? AND ?
    AND %[1]s <> ''
    GROUP BY %[1]s
    ORDER BY count DESC, page ASC
    LIMIT ?
    `, column)

	if err := db.Raw(query, tf.From, tf.To, topSessionPages).Scan(&pages).Error; err != nil {
		return nil, fmt.Errorf("error ranking %s: %w", column, err)
	}
	return pages, nil
}
