package timeframe

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateStat is one point of a daily series.
type DateStat struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// RangeLabel is a dashboard lookback option.
type RangeLabel string

const (
	RangeLast24Hours RangeLabel = "24h"
	RangeLast7Days   RangeLabel = "7d"
	RangeLast30Days  RangeLabel = "30d"
	RangeLast90Days  RangeLabel = "90d"
)

// DefaultRange is used when the caller sends no range.
const DefaultRange = RangeLast7Days

var rangeDays = map[RangeLabel]int{
	RangeLast24Hours: 1,
	RangeLast7Days:   7,
	RangeLast30Days:  30,
	RangeLast90Days:  90,
}

type TimeProvider interface {
	Now() time.Time
}

// DefaultTimeProvider reads the system clock in UTC.
type DefaultTimeProvider struct{}

func (DefaultTimeProvider) Now() time.Time {
	return time.Now().UTC()
}

// FixedTimeProvider always returns the same instant. Used by tests and the CLI.
type FixedTimeProvider struct {
	At time.Time
}

func (p FixedTimeProvider) Now() time.Time {
	return p.At.UTC()
}

// TimeFrame is the closed window [From, To] used by every aggregation.
type TimeFrame struct {
	From  time.Time
	To    time.Time
	Label RangeLabel
}

// ParseRange maps a query value to a label. Empty input yields the default;
// any other unrecognised value falls back to the widest window.
func ParseRange(value string) RangeLabel {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return DefaultRange
	}
	label := RangeLabel(value)
	if _, ok := rangeDays[label]; ok {
		return label
	}
	return RangeLast90Days
}

// ErrInvalidRange is returned by ValidateRange for unknown labels.
var ErrInvalidRange = errors.New("invalid time range")

// ValidateRange is the strict form of ParseRange, for callers that should
// reject a typo instead of widening the window.
func ValidateRange(value string) (RangeLabel, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return DefaultRange, nil
	}
	label := RangeLabel(value)
	if _, ok := rangeDays[label]; !ok {
		return "", fmt.Errorf("%w: %q (expected 24h, 7d, 30d or 90d)", ErrInvalidRange, value)
	}
	return label, nil
}

// Days returns the lookback length of the label in days.
func (l RangeLabel) Days() int {
	if days, ok := rangeDays[l]; ok {
		return days
	}
	return rangeDays[RangeLast90Days]
}

// NewTimeFrame returns [now - days, now] for label.
func NewTimeFrame(label RangeLabel, now time.Time) *TimeFrame {
	now = now.UTC()
	return &TimeFrame{
		From:  now.AddDate(0, 0, -label.Days()),
		To:    now,
		Label: label,
	}
}

// Last returns the window of length d ending at now.
func Last(d time.Duration, now time.Time) *TimeFrame {
	now = now.UTC()
	return &TimeFrame{From: now.Add(-d), To: now}
}

// Contains reports whether t falls in [From, To].
func (tf *TimeFrame) Contains(t time.Time) bool {
	return !t.Before(tf.From) && !t.After(tf.To)
}
