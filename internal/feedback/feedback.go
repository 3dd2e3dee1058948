// Package feedback stores visitor feedback submitted from the site footer.
package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

const (
	MaxNameLength     = 100
	MaxFeedbackLength = 1000
	MinRating         = 1
	MaxRating         = 5
)

type Feedback struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Feedback  string    `gorm:"type:text;not null" json:"feedback"`
	Rating    int       `gorm:"not null" json:"rating"`
	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`
}

func Models() []any {
	return []any{&Feedback{}}
}

// ValidationError is returned for input that is rejected before storage.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Input is the submit body. Rating may arrive as a JSON number or string.
type Input struct {
	Name     string          `json:"name"`
	Feedback string          `json:"feedback"`
	Rating   json.RawMessage `json:"rating"`
}

type Service struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewService(db *gorm.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger, now: time.Now}
}

// WithClock returns a copy of the service that reads time from now.
func (s *Service) WithClock(now func() time.Time) *Service {
	clone := *s
	clone.now = now
	return &clone
}

// Submit validates and stores one feedback entry.
func (s *Service) Submit(ctx context.Context, in Input) (*Feedback, error) {
	name := strings.TrimSpace(in.Name)
	text := strings.TrimSpace(in.Feedback)
	if name == "" || text == "" {
		return nil, &ValidationError{Message: "Name and feedback are required"}
	}

	rating, err := parseRating(in.Rating)
	if err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return nil, &ValidationError{Message: "Name is too long"}
	}
	if utf8.RuneCountInString(text) > MaxFeedbackLength {
		return nil, &ValidationError{Message: "Feedback is too long"}
	}

	entry := &Feedback{
		Name:      name,
		Feedback:  text,
		Rating:    rating,
		CreatedAt: s.now().UTC(),
	}
	if err := sqlite.PerformWrite(s.logger, s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Create(entry).Error
	}); err != nil {
		return nil, fmt.Errorf("failed to save feedback: %w", err)
	}

	s.logger.Info("Feedback received", slog.Uint64("feedback_id", uint64(entry.ID)), slog.Int("rating", rating))
	return entry, nil
}

// List returns every feedback entry, newest first.
func (s *Service) List(ctx context.Context) ([]Feedback, error) {
	return Since(ctx, s.db, time.Time{})
}

// Since returns feedback created at or after from, newest first.
func Since(ctx context.Context, db *gorm.DB, from time.Time) ([]Feedback, error) {
	entries := []Feedback{}
	query := db.WithContext(ctx).Order("created_at DESC, id DESC")
	if !from.IsZero() {
		query = query.Where("created_at >= ?", from.UTC())
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch feedbacks: %w", err)
	}
	return entries, nil
}

func parseRating(raw json.RawMessage) (int, error) {
	invalid := &ValidationError{Message: fmt.Sprintf("Rating must be between %d and %d", MinRating, MaxRating)}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, invalid
	}

	var rating int
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, invalid
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, invalid
		}
		rating = n
	} else {
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil || f != float64(int(f)) {
			return 0, invalid
		}
		rating = int(f)
	}

	if rating < MinRating || rating > MaxRating {
		return 0, invalid
	}
	return rating, nil
}
