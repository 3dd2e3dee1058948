package events

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
)

// Kind discriminates the ingestion envelope.
type Kind string

const (
	KindPageView     Kind = "pageview"
	KindEvent        Kind = "event"
	KindSessionStart Kind = "session_start"
	KindSessionEnd   Kind = "session_end"
)

// Envelope is the body of POST /analytics/track.
type Envelope struct {
	Type      Kind            `json:"type"`
	SessionID string          `json:"sessionId"`
	VisitorID string          `json:"visitorId"`
	Data      json.RawMessage `json:"data"`
}

type PageViewData struct {
	PagePath     string `json:"pagePath"`
	PageTitle    string `json:"pageTitle"`
	Referrer     string `json:"referrer"`
	UTMSource    string `json:"utmSource"`
	UTMMedium    string `json:"utmMedium"`
	UTMCampaign  string `json:"utmCampaign"`
	DeviceType   string `json:"deviceType"`
	Browser      string `json:"browser"`
	OS           string `json:"os"`
	ScreenWidth  int    `json:"screenWidth"`
	ScreenHeight int    `json:"screenHeight"`
}

type EventData struct {
	EventType string          `json:"eventType"`
	EventData json.RawMessage `json:"eventData"`
	PagePath  string          `json:"pagePath"`
}

type SessionStartData struct {
	IsNewVisitor *bool  `json:"isNewVisitor"`
	Referrer     string `json:"referrer"`
	UTMSource    string `json:"utmSource"`
	UTMMedium    string `json:"utmMedium"`
	UTMCampaign  string `json:"utmCampaign"`
	DeviceType   string `json:"deviceType"`
	Browser      string `json:"browser"`
	OS           string `json:"os"`
	// EntryPage is optional; the first page view fills it otherwise.
	EntryPage string `json:"entryPage"`
}

// maxSessionSeconds keeps rounded durations within the int range of every
// platform and the INTEGER column.
const maxSessionSeconds = math.MaxInt32

type SessionEndData struct {
	Duration  *float64 `json:"duration"`
	PageCount int      `json:"pageCount"`
}

// Seconds returns the duration rounded to whole seconds.
func (d SessionEndData) Seconds() int {
	if d.Duration == nil {
		return 0
	}
	return int(math.Round(*d.Duration))
}

// Validate checks the envelope fields shared by every kind.
func (e *Envelope) Validate() error {
	e.SessionID = strings.TrimSpace(e.SessionID)
	e.VisitorID = strings.TrimSpace(e.VisitorID)

	switch e.Type {
	case KindPageView, KindEvent, KindSessionStart, KindSessionEnd:
	case "":
		return newValidationError("type", "is required")
	default:
		return newValidationError("type", "must be one of pageview, event, session_start, session_end")
	}

	if e.SessionID == "" {
		return newValidationError("sessionId", "is required")
	}
	if len(e.SessionID) > 64 {
		return newValidationError("sessionId", "must be at most 64 characters")
	}
	if (e.Type == KindPageView || e.Type == KindSessionStart) && e.VisitorID == "" {
		return newValidationError("visitorId", "is required")
	}
	if len(e.VisitorID) > 64 {
		return newValidationError("visitorId", "must be at most 64 characters")
	}
	return nil
}

// decodeData unmarshals the per-kind data object. Absent data leaves out untouched.
func (e *Envelope) decodeData(out interface{}) error {
	data := bytes.TrimSpace(e.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] != '{' {
		return newValidationError("data", "must be an object")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return newValidationError("data", "malformed "+string(e.Type)+" data: "+err.Error())
	}
	return nil
}

func (e *Envelope) PageView() (PageViewData, error) {
	var d PageViewData
	if err := e.decodeData(&d); err != nil {
		return d, err
	}
	d.PagePath = strings.TrimSpace(d.PagePath)
	if d.PagePath == "" {
		return d, newValidationError("data.pagePath", "is required")
	}
	return d, nil
}

func (e *Envelope) Event() (EventData, error) {
	var d EventData
	if err := e.decodeData(&d); err != nil {
		return d, err
	}
	d.EventType = strings.TrimSpace(d.EventType)
	if d.EventType == "" {
		return d, newValidationError("data.eventType", "is required")
	}
	return d, nil
}

func (e *Envelope) SessionStart() (SessionStartData, error) {
	var d SessionStartData
	err := e.decodeData(&d)
	return d, err
}

func (e *Envelope) SessionEnd() (SessionEndData, error) {
	var d SessionEndData
	if err := e.decodeData(&d); err != nil {
		return d, err
	}
	if d.Duration == nil {
		return d, newValidationError("data.duration", "is required")
	}
	if *d.Duration < 0 || math.IsNaN(*d.Duration) {
		return d, newValidationError("data.duration", "must be a non-negative number of seconds")
	}
	if *d.Duration > maxSessionSeconds {
		return d, newValidationError("data.duration", "is too large")
	}
	if d.PageCount < 0 {
		return d, newValidationError("data.pageCount", "must not be negative")
	}
	return d, nil
}
