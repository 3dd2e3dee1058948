package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"portfolio/internal/events"
	"portfolio/internal/feedback"
	"portfolio/internal/timeframe"
)

// ComputeContacts lists contact form submissions and feedback in the window,
// newest first.
func (e *Engine) ComputeContacts(ctx context.Context, label timeframe.RangeLabel) (*ContactsReport, error) {
	tf := timeframe.NewTimeFrame(label, e.clock.Now())
	db, cancel := e.query(ctx)
	defer cancel()

	var submissions []events.Event
	err := db.Where("event_type = ? AND created_at BETWEEN ? AND ?", events.EventContactSubmit, tf.From, tf.To).
		Order("created_at DESC, id DESC").
		Find(&submissions).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching contact submissions: %w", err)
	}

	report := &ContactsReport{
		Contacts:  make([]Contact, 0, len(submissions)),
		Feedbacks: []FeedbackEntry{},
	}
	for _, submission := range submissions {
		report.Contacts = append(report.Contacts, e.contactFrom(submission))
	}

	entries, err := feedback.Since(ctx, db, tf.From)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if !tf.Contains(entry.CreatedAt) {
			continue
		}
		report.Feedbacks = append(report.Feedbacks, FeedbackEntry{
			Name:      entry.Name,
			Feedback:  entry.Feedback,
			Rating:    entry.Rating,
			Timestamp: entry.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	report.TotalContacts = len(report.Contacts)
	report.TotalFeedbacks = len(report.Feedbacks)
	return report, nil
}

// contactFrom maps a stored submission to its listing row. Undecodable data
// is listed with placeholders rather than dropped.
func (e *Engine) contactFrom(event events.Event) Contact {
	var submission events.ContactSubmission
	payload, err := event.Payload()
	if err != nil {
		e.logger.Warn("Undecodable contact submission",
			slog.Uint64("event_id", uint64(event.ID)),
			slog.Any("error", err))
	} else if decoded, ok := payload.(events.ContactSubmission); ok {
		submission = decoded
	}

	contact := Contact{
		Email:     strings.TrimSpace(submission.Email),
		Name:      strings.TrimSpace(submission.Name),
		Message:   submission.Message,
		Timestamp: event.CreatedAt.UTC().Format(time.RFC3339),
		VisitorID: event.VisitorID,
	}
	if contact.Email == "" {
		contact.Email = "N/A"
	}
	if contact.Name == "" {
		contact.Name = "Anonymous"
	}
	return contact
}
