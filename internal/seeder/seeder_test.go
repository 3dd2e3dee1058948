package seeder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio/internal/events"
	"portfolio/internal/testsupport"
)

func TestSeederRun(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CleanAllTables(db)

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	s := NewSeeder(db, testsupport.GetLogger(), 40).WithSeed(7)
	s.now = func() time.Time { return now }

	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40, summary.Sessions)

	count := func(model interface{}) int {
		var n int64
		require.NoError(t, db.Model(model).Count(&n).Error)
		return int(n)
	}
	assert.Equal(t, summary.Sessions, count(&events.Session{}))
	assert.Equal(t, summary.PageViews, count(&events.PageView{}))
	assert.Equal(t, summary.Events, count(&events.Event{}))
	assert.Equal(t, summary.Performance, count(&events.PerformanceMetric{}))
	assert.Equal(t, summary.Errors, count(&events.ErrorRecord{}))

	var open int64
	require.NoError(t, db.Model(&events.Session{}).Where("end_time IS NULL").Count(&open).Error)
	assert.Equal(t, int64(summary.OpenSessions), open)

	var sessions []events.Session
	require.NoError(t, db.Find(&sessions).Error)
	for _, session := range sessions {
		var views int64
		require.NoError(t, db.Model(&events.PageView{}).Where("session_id = ?", session.ID).Count(&views).Error)
		assert.Equal(t, int(views), session.PageCount, session.ID)
		assert.NotEmpty(t, session.EntryPage)
		assert.NotEqual(t, "Unknown", session.Country)
		assert.False(t, session.StartTime.Before(now.Add(-30*24*time.Hour)), session.ID)
	}
}

func TestSeederStopsOnCancelledContext(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := NewSeeder(db, testsupport.GetLogger(), 5).WithSeed(1).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, summary.Sessions)
}
