package feedback_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio/internal/feedback"
	"portfolio/internal/testsupport"
)

func TestSubmit(t *testing.T) {
	testCases := []struct {
		name    string
		input   feedback.Input
		wantErr string
		rating  int
	}{
		{name: "numeric rating", input: feedback.Input{Name: " Ada ", Feedback: " Great site ", Rating: json.RawMessage(`5`)}, rating: 5},
		{name: "string rating", input: feedback.Input{Name: "Ada", Feedback: "Nice", Rating: json.RawMessage(`"3"`)}, rating: 3},
		{name: "missing name", input: feedback.Input{Name: "  ", Feedback: "Nice", Rating: json.RawMessage(`3`)}, wantErr: "Name and feedback are required"},
		{name: "missing feedback", input: feedback.Input{Name: "Ada", Rating: json.RawMessage(`3`)}, wantErr: "Name and feedback are required"},
		{name: "missing rating", input: feedback.Input{Name: "Ada", Feedback: "Nice"}, wantErr: "Rating must be between 1 and 5"},
		{name: "rating too high", input: feedback.Input{Name: "Ada", Feedback: "Nice", Rating: json.RawMessage(`6`)}, wantErr: "Rating must be between 1 and 5"},
		{name: "fractional rating", input: feedback.Input{Name: "Ada", Feedback: "Nice", Rating: json.RawMessage(`4.5`)}, wantErr: "Rating must be between 1 and 5"},
		{name: "non numeric rating", input: feedback.Input{Name: "Ada", Feedback: "Nice", Rating: json.RawMessage(`"five"`)}, wantErr: "Rating must be between 1 and 5"},
		{name: "long name", input: feedback.Input{Name: strings.Repeat("é", 101), Feedback: "Nice", Rating: json.RawMessage(`1`)}, wantErr: "Name is too long"},
		{name: "long feedback", input: feedback.Input{Name: "Ada", Feedback: strings.Repeat("x", 1001), Rating: json.RawMessage(`1`)}, wantErr: "Feedback is too long"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db := testsupport.SetupTestDB(t)
			testsupport.CleanAllTables(db)
			service := feedback.NewService(db, testsupport.GetLogger())

			entry, err := service.Submit(context.Background(), tc.input)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.True(t, feedback.IsValidationError(err))
				assert.Equal(t, tc.wantErr, err.Error())

				var count int64
				require.NoError(t, db.Model(&feedback.Feedback{}).Count(&count).Error)
				assert.Zero(t, count)
				return
			}

			require.NoError(t, err)
			assert.NotZero(t, entry.ID)
			assert.Equal(t, tc.rating, entry.Rating)
			assert.Equal(t, strings.TrimSpace(tc.input.Name), entry.Name)
			assert.Equal(t, strings.TrimSpace(tc.input.Feedback), entry.Feedback)
		})
	}
}

func TestListAndSince(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	service := feedback.NewService(db, testsupport.GetLogger())
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"first", "second", "third"} {
		at := base.Add(time.Duration(i) * time.Hour)
		_, err := service.WithClock(func() time.Time { return at }).Submit(ctx, feedback.Input{
			Name: name, Feedback: "ok", Rating: json.RawMessage(`4`),
		})
		require.NoError(t, err)
	}

	all, err := service.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "third", all[0].Name)
	assert.Equal(t, "first", all[2].Name)

	recent, err := feedback.Since(ctx, db, base.Add(90*time.Minute))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "third", recent[0].Name)
}
