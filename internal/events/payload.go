package events

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Named conversion event types.
const (
	EventDownloadCV    = "download_cv"
	EventContactSubmit = "contact_submit"
	EventSocialClick   = "social_click"
)

// Payload is the typed form of an event's data. Exactly one implementation
// exists per named conversion; any other event type decodes to Opaque.
type Payload interface {
	EventType() string
}

type DownloadCV struct {
	File     string `json:"file,omitempty"`
	Language string `json:"language,omitempty"`
}

func (DownloadCV) EventType() string { return EventDownloadCV }

type ContactSubmission struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Message string `json:"message,omitempty"`
}

func (ContactSubmission) EventType() string { return EventContactSubmit }

type SocialClick struct {
	Platform string `json:"platform,omitempty"`
	URL      string `json:"url,omitempty"`
}

func (SocialClick) EventType() string { return EventSocialClick }

// Opaque keeps the raw JSON of event types without a known schema.
type Opaque struct {
	Type string
	Raw  json.RawMessage
}

func (o Opaque) EventType() string { return o.Type }

// DecodePayload selects the payload variant for eventType. Missing or null
// data yields the zero value of that variant. Named conversions must be JSON
// objects whose fields have the expected types; fields outside the schema are
// ignored by the typed view but kept in the stored JSON.
func DecodePayload(eventType string, data json.RawMessage) (Payload, error) {
	data = bytes.TrimSpace(data)
	empty := len(data) == 0 || bytes.Equal(data, []byte("null"))

	switch eventType {
	case EventDownloadCV:
		var p DownloadCV
		err := decodeObject(eventType, data, empty, &p)
		return p, err
	case EventContactSubmit:
		var p ContactSubmission
		err := decodeObject(eventType, data, empty, &p)
		return p, err
	case EventSocialClick:
		var p SocialClick
		err := decodeObject(eventType, data, empty, &p)
		return p, err
	}

	if empty {
		return Opaque{Type: eventType}, nil
	}
	if !json.Valid(data) {
		return nil, newValidationError("eventData", "must be valid JSON")
	}
	return Opaque{Type: eventType, Raw: append(json.RawMessage(nil), data...)}, nil
}

func decodeObject(eventType string, data json.RawMessage, empty bool, out interface{}) error {
	if empty {
		return nil
	}
	if data[0] != '{' {
		return newValidationError("eventData", fmt.Sprintf("%s data must be an object", eventType))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return newValidationError("eventData", fmt.Sprintf("invalid %s data: %v", eventType, err))
	}
	return nil
}

// Payload decodes the stored event_data back into its typed variant.
func (e Event) Payload() (Payload, error) {
	return DecodePayload(e.EventType, json.RawMessage(e.EventData))
}
