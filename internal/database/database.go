package database

import (
	"log/slog"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"portfolio/internal/config"
	"portfolio/internal/events"
	"portfolio/internal/feedback"
)

// DBManager wraps cartridge's sqlite.Manager with the analytics migrations.
type DBManager struct {
	*sqlite.Manager
	logger *slog.Logger
}

func NewDBManager(cfg *config.Config, logger *slog.Logger) *DBManager {
	sqliteCfg := sqlite.Config{
		Path:         cfg.DatabaseName,
		MaxOpenConns: cfg.GetMaxOpenConns(),
		MaxIdleConns: cfg.GetMaxIdleConns(),
		Logger:       logger,
		EnableWAL:    true,
		TxImmediate:  true,
		BusyTimeout:  5000,
	}

	return &DBManager{
		Manager: sqlite.NewManager(sqliteCfg),
		logger:  logger,
	}
}

// Init opens the connection.
func (dm *DBManager) Init() error {
	_, err := dm.Manager.Connect()
	return err
}

// Models lists every migrated table.
func Models() []any {
	return append(events.Models(), feedback.Models()...)
}

// MigrateDatabase creates or updates every table in one transaction.
func (dm *DBManager) MigrateDatabase() error {
	db := dm.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.AutoMigrate(Models()...)
	})
	if err != nil {
		dm.logger.Error("Failed to auto-migrate database", slog.Any("error", err))
		return err
	}

	if err := dm.CheckpointWAL("FULL"); err != nil {
		dm.logger.Warn("Failed to checkpoint WAL after migration", slog.Any("error", err))
	}

	dm.logger.Info("Database migration completed successfully")
	return nil
}

// TableCounts returns the row count of every analytics table, for status
// reporting.
func TableCounts(db *gorm.DB) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, model := range Models() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(model); err != nil {
			return nil, err
		}
		var count int64
		if err := db.Model(model).Count(&count).Error; err != nil {
			return nil, err
		}
		counts[stmt.Schema.Table] = count
	}
	return counts, nil
}
