package events

import (
	"time"

	"gorm.io/datatypes"
)

// Session is one browsing session. It is the only mutable analytics row:
// created by session_start, incremented by each page view and closed once
// by session_end.
type Session struct {
	ID           string `gorm:"primaryKey;size:64"`
	VisitorID    string `gorm:"index;size:64"`
	IsNewVisitor bool   `gorm:"not null;default:false"`
	Referrer     string
	UTMSource    string `gorm:"column:utm_source"`
	UTMMedium    string `gorm:"column:utm_medium"`
	UTMCampaign  string `gorm:"column:utm_campaign"`
	Country      string
	City         string
	DeviceType   string
	Browser      string
	OS           string    `gorm:"column:os"`
	StartTime    time.Time `gorm:"index;not null"`
	EndTime      *time.Time
	Duration     *int
	PageCount    int  `gorm:"not null;default:0"`
	Bounce       bool `gorm:"not null;default:false"`
	EntryPage    string
	ExitPage     string
}

// PageView is append-only.
type PageView struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	SessionID    string `gorm:"index;size:64;not null"`
	VisitorID    string `gorm:"index;size:64;not null"`
	PagePath     string `gorm:"index;not null"`
	PageTitle    string
	Referrer     string
	UTMSource    string `gorm:"column:utm_source"`
	UTMMedium    string `gorm:"column:utm_medium"`
	UTMCampaign  string `gorm:"column:utm_campaign"`
	Country      string
	City         string
	DeviceType   string
	Browser      string
	OS           string `gorm:"column:os"`
	ScreenWidth  int
	ScreenHeight int
	CreatedAt    time.Time `gorm:"index;not null"`
}

// Event is an append-only custom event. EventData holds the client JSON as
// received; Payload gives the typed view selected by EventType.
type Event struct {
	ID        uint           `gorm:"primaryKey;autoIncrement"`
	SessionID string         `gorm:"index;size:64;not null"`
	VisitorID string         `gorm:"index;size:64"`
	EventType string         `gorm:"index;not null"`
	EventData datatypes.JSON `gorm:"type:json"`
	PagePath  string
	CreatedAt time.Time `gorm:"index;not null"`
}

// PerformanceMetric holds Web Vitals in milliseconds, except CLS which is a
// unitless score. Append-only.
type PerformanceMetric struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID string `gorm:"index;size:64"`
	PagePath  string
	FCP       *float64 `gorm:"column:fcp"`
	LCP       *float64 `gorm:"column:lcp"`
	FID       *float64 `gorm:"column:fid"`
	CLS       *float64 `gorm:"column:cls"`
	TTFB      *float64 `gorm:"column:ttfb"`
	LoadTime  *float64
	CreatedAt time.Time `gorm:"index;not null"`
}

// ErrorRecord is a client-side error report. Append-only.
type ErrorRecord struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	SessionID    string `gorm:"index;size:64"`
	ErrorMessage string `gorm:"type:text;not null"`
	ErrorStack   string `gorm:"type:text"`
	PagePath     string
	Browser      string
	OS           string    `gorm:"column:os"`
	CreatedAt    time.Time `gorm:"index;not null"`
}

// Models lists every table owned by this package, in migration order.
func Models() []any {
	return []any{
		&Session{},
		&PageView{},
		&Event{},
		&PerformanceMetric{},
		&ErrorRecord{},
	}
}
