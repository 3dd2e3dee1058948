// Package analytics computes dashboard statistics directly from the raw
// analytics tables. It keeps no state of its own: every report is a pure
// function of the rows inside the requested window.
//
// The package is organized into focused modules:
//   - engine.go: Engine construction and the concurrent stats fan-out
//   - stats.go: one query function per stats section
//   - realtime.go: short fixed-window snapshot for live widgets
//   - contacts.go: contact submissions and feedback listing
package analytics

import (
	"math"

	"portfolio/internal/timeframe"
)

// MetricCountResult is a generic name-count pair for ranked results.
type MetricCountResult struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

type Overview struct {
	TotalVisitors     int64               `json:"totalVisitors"`
	TotalPageViews    int64               `json:"totalPageViews"`
	NewVisitors       int64               `json:"newVisitors"`
	ReturningVisitors int64               `json:"returningVisitors"`
	TopCountries      []MetricCountResult `json:"topCountries"`
	TopCities         []MetricCountResult `json:"topCities"`
}

type TrafficSources struct {
	Direct int64 `json:"direct"`
	Social int64 `json:"social"`
	Search int64 `json:"search"`
	Other  int64 `json:"other"`
}

type DeviceCounts struct {
	Mobile  int64 `json:"mobile"`
	Desktop int64 `json:"desktop"`
	Tablet  int64 `json:"tablet"`
}

type Devices struct {
	Counts   DeviceCounts        `json:"counts"`
	Browsers []MetricCountResult `json:"browsers"`
}

type Engagement struct {
	AvgDuration        int64   `json:"avgDuration"`
	AvgPagesPerSession float64 `json:"avgPagesPerSession"`
	BounceRate         int64   `json:"bounceRate"`
}

type Conversions struct {
	Downloads          int64            `json:"downloads"`
	ContactSubmissions int64            `json:"contactSubmissions"`
	SocialClicks       int64            `json:"socialClicks"`
	ByType             map[string]int64 `json:"byType"`
}

type Performance struct {
	AvgLCP      int64   `json:"avgLCP"`
	AvgFID      int64   `json:"avgFID"`
	AvgCLS      float64 `json:"avgCLS"`
	AvgLoadTime int64   `json:"avgLoadTime"`
}

type PageCount struct {
	Path  string `json:"path"`
	Views int64  `json:"views"`
}

// StatsReport is the body of GET /analytics/stats. Errors names the sections
// that could not be computed; those sections hold their zero defaults.
type StatsReport struct {
	TimeRange      timeframe.RangeLabel `json:"timeRange"`
	Overview       Overview             `json:"overview"`
	TrafficSources TrafficSources       `json:"trafficSources"`
	Devices        Devices              `json:"devices"`
	Engagement     Engagement           `json:"engagement"`
	Conversions    Conversions          `json:"conversions"`
	Performance    Performance          `json:"performance"`
	TopPages       []PageCount          `json:"topPages"`
	ErrorRate      float64              `json:"errorRate"`
	ErrorCount     int64                `json:"errorCount"`
	Trends         []timeframe.DateStat `json:"trends"`
	Errors         map[string]string    `json:"errors,omitempty"`
}

func emptyStatsReport(label timeframe.RangeLabel) *StatsReport {
	return &StatsReport{
		TimeRange: label,
		Overview: Overview{
			TopCountries: []MetricCountResult{},
			TopCities:    []MetricCountResult{},
		},
		Devices:     Devices{Browsers: []MetricCountResult{}},
		Conversions: Conversions{ByType: map[string]int64{}},
		TopPages:    []PageCount{},
		Trends:      []timeframe.DateStat{},
	}
}

type Activity struct {
	VisitorID string `json:"visitor_id"`
	Page      string `json:"page"`
	Location  string `json:"location"`
	Device    string `json:"device"`
	Browser   string `json:"browser"`
	Referrer  string `json:"referrer"`
	Timestamp string `json:"timestamp"`
}

type HourlyPoint struct {
	Hour     string `json:"hour"`
	Sessions int64  `json:"sessions"`
}

type PageFrequency struct {
	Page  string `json:"page"`
	Count int64  `json:"count"`
}

// RealtimeReport is the body of GET /analytics/realtime.
type RealtimeReport struct {
	ActiveVisitors int64           `json:"activeVisitors"`
	RecentActivity []Activity      `json:"recentActivity"`
	HourlyTraffic  []HourlyPoint   `json:"hourlyTraffic"`
	EntryPages     []PageFrequency `json:"entryPages"`
	ExitPages      []PageFrequency `json:"exitPages"`
}

type Contact struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	VisitorID string `json:"visitor_id"`
}

type FeedbackEntry struct {
	Name      string `json:"name"`
	Feedback  string `json:"feedback"`
	Rating    int    `json:"rating"`
	Timestamp string `json:"timestamp"`
}

// ContactsReport is the body of GET /analytics/contacts.
type ContactsReport struct {
	Contacts       []Contact       `json:"contacts"`
	Feedbacks      []FeedbackEntry `json:"feedbacks"`
	TotalContacts  int             `json:"totalContacts"`
	TotalFeedbacks int             `json:"totalFeedbacks"`
}

// round rounds v half away from zero to the given number of decimals.
func round(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}
