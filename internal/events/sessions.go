package events

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// sessionUpsertColumns are overwritten when session_start repeats for a
// known id. Lifecycle columns (start_time, page_count, end_time, duration,
// bounce, exit_page) are never touched by a repeated start.
var sessionUpsertColumns = []string{
	"visitor_id",
	"is_new_visitor",
	"referrer",
	"utm_source",
	"utm_medium",
	"utm_campaign",
	"country",
	"city",
	"device_type",
	"browser",
	"os",
}

func (i *Ingestor) startSession(ctx context.Context, env Envelope, info RequestInfo) error {
	data, err := env.SessionStart()
	if err != nil {
		return err
	}

	loc := i.locator.Resolve(ctx, info.geoRequest())
	client := classifyMissing(info.UserAgent, data.DeviceType, data.Browser, data.OS)

	isNew := false
	if data.IsNewVisitor != nil {
		isNew = *data.IsNewVisitor
	}

	session := &Session{
		ID:           env.SessionID,
		VisitorID:    env.VisitorID,
		IsNewVisitor: isNew,
		Referrer:     data.Referrer,
		UTMSource:    data.UTMSource,
		UTMMedium:    data.UTMMedium,
		UTMCampaign:  data.UTMCampaign,
		Country:      loc.Country,
		City:         loc.City,
		DeviceType:   client.DeviceType,
		Browser:      client.Browser,
		OS:           client.OS,
		StartTime:    i.now().UTC(),
		EntryPage:    data.EntryPage,
	}

	if err := i.write(ctx, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(sessionUpsertColumns),
		}).Create(session).Error
	}); err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

// incrementPageCount bumps page_count in a single statement. A page view for
// a session that does not exist yet matches no row and is not an error.
func (i *Ingestor) incrementPageCount(ctx context.Context, sessionID, pagePath string) error {
	return i.write(ctx, func(tx *gorm.DB) error {
		return tx.Model(&Session{}).
			Where("id = ?", sessionID).
			UpdateColumns(map[string]interface{}{
				"page_count": gorm.Expr("page_count + 1"),
				"exit_page":  pagePath,
				"entry_page": gorm.Expr("COALESCE(NULLIF(entry_page, ''), ?)", pagePath),
			}).Error
	})
}

// endSession closes an open session. The client page count only raises the
// stored one, and bounce is derived from the resulting value in the same
// statement. Closed or unknown sessions are left alone.
func (i *Ingestor) endSession(ctx context.Context, env Envelope) error {
	data, err := env.SessionEnd()
	if err != nil {
		return err
	}

	var affected int64
	err = i.write(ctx, func(tx *gorm.DB) error {
		result := tx.Model(&Session{}).
			Where("id = ? AND end_time IS NULL", env.SessionID).
			UpdateColumns(map[string]interface{}{
				"end_time":   i.now().UTC(),
				"duration":   data.Seconds(),
				"page_count": gorm.Expr("MAX(page_count, ?)", data.PageCount),
				"bounce":     gorm.Expr("MAX(page_count, ?) = 1", data.PageCount),
			})
		affected = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}

	if affected == 0 {
		i.logger.Info("Ignoring session_end for unknown or closed session",
			slog.String("session_id", env.SessionID))
	}
	return nil
}
