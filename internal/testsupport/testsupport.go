package testsupport

import (
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"portfolio/internal"
	"portfolio/internal/config"
	"portfolio/internal/database"
	"portfolio/internal/events"
)

// SessionCookieName matches the dashboard session cookie set in routes.go.
const SessionCookieName = "portfolio_session"

// testDBCache lets several calls within one test share a database.
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager.
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

var _ cartridge.DBManager = (*TestDBManager)(nil)

// SetupTestDB creates a named shared in-memory database with every model
// migrated, cached by root test name.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	rootName := t.Name()
	if idx := strings.Index(rootName, "/"); idx > 0 {
		rootName = rootName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA journal_mode = WAL")

	if err := db.AutoMigrate(database.Models()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager refuses to run outside the test environment.
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := config.GetConfig()

	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set PORTFOLIO_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	return NewTestDBManager(db), GetLogger()
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tables []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tables)
	if len(tables) == 0 {
		return
	}

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// UseTestEnvironment points config at the test environment. Call it from
// TestMain before anything reads the config.
func UseTestEnvironment() {
	os.Setenv("PORTFOLIO_ENV", "test")
	config.Reset()
}

// CreateSession inserts a session row directly.
func CreateSession(t *testing.T, db *gorm.DB, session events.Session) events.Session {
	t.Helper()
	if session.VisitorID == "" {
		session.VisitorID = "visitor-" + session.ID
	}
	if session.StartTime.IsZero() {
		session.StartTime = time.Now().UTC()
	}
	require.NoError(t, db.Create(&session).Error)
	return session
}

// CreatePageView inserts a page view row directly.
func CreatePageView(t *testing.T, db *gorm.DB, view events.PageView) events.PageView {
	t.Helper()
	if view.SessionID == "" {
		view.SessionID = "session-test"
	}
	if view.VisitorID == "" {
		view.VisitorID = "visitor-test"
	}
	if view.CreatedAt.IsZero() {
		view.CreatedAt = time.Now().UTC()
	}
	require.NoError(t, db.Create(&view).Error)
	return view
}

// CreateEvent inserts a custom event row directly.
func CreateEvent(t *testing.T, db *gorm.DB, event events.Event) events.Event {
	t.Helper()
	if event.SessionID == "" {
		event.SessionID = "session-test"
	}
	if len(event.EventData) == 0 {
		event.EventData = []byte("{}")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	require.NoError(t, db.Create(&event).Error)
	return event
}

// CreateErrorRecord inserts a client error row directly.
func CreateErrorRecord(t *testing.T, db *gorm.DB, record events.ErrorRecord) events.ErrorRecord {
	t.Helper()
	if record.ErrorMessage == "" {
		record.ErrorMessage = "TypeError: test"
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	require.NoError(t, db.Create(&record).Error)
	return record
}

// CreatePerformanceMetric inserts a Web Vitals row directly.
func CreatePerformanceMetric(t *testing.T, db *gorm.DB, metric events.PerformanceMetric) events.PerformanceMetric {
	t.Helper()
	if metric.CreatedAt.IsZero() {
		metric.CreatedAt = time.Now().UTC()
	}
	require.NoError(t, db.Create(&metric).Error)
	return metric
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// CreateMinimalTestApp creates a test Fiber app with all routes mounted.
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test
	appConfig.PublicDirectory = t.TempDir()

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager
	cfg.StaticDirectory = appConfig.PublicDirectory
	cfg.StaticPrefix = appConfig.PublicAssetsUrlPrefix
	cfg.TemplatesDirectory = appConfig.PublicDirectory
	cfg.EnableSecFetchSite = false

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv)
	return srv.App()
}

// LoginDashboard posts the dashboard password and returns the session cookie
// header value.
func LoginDashboard(t *testing.T, app *fiber.App, password string) string {
	t.Helper()

	body := fmt.Sprintf(`{"password":%q}`, password)
	req := httptest.NewRequest("POST", "/dashboard/auth", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))

	for _, cookie := range resp.Cookies() {
		if cookie.Name == SessionCookieName {
			return fmt.Sprintf("%s=%s", cookie.Name, cookie.Value)
		}
	}
	t.Fatalf("testsupport: dashboard login did not set %s", SessionCookieName)
	return ""
}
