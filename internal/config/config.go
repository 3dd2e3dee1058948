// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

const (
	defaultPrivateKey        = "88888888888888888888888888888888"
	defaultDashboardPassword = "admin123"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName                    string   `mapstructure:"appname"`
	AppPort                    string   `mapstructure:"appport"`
	Environment                string   `mapstructure:"environment"`
	LogLevel                   LogLevel `mapstructure:"loglevel"`
	PrivateKey                 string   `mapstructure:"privatekey"`
	LoginSessionTimeoutSeconds int      `mapstructure:"loginsessiontimeoutseconds"`

	// File paths
	DatabasePath          string `mapstructure:"storagepath"`
	DatabaseName          string `mapstructure:"-"` // Derived from other settings
	GeoDBPath             string `mapstructure:"geodbpath"`
	PublicDirectory       string `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string `mapstructure:"publicassetsurlprefix"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseMaxOpenConns int `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int `mapstructure:"dbmaxidleconns"`
	QueryTimeoutMillis   int `mapstructure:"querytimeoutms"`

	// Dashboard
	DashboardPassword    string `mapstructure:"dashboardpassword"`
	DashboardRequireAuth bool   `mapstructure:"dashboardrequireauth"`
	StatsWorkers         int    `mapstructure:"statsworkers"`

	// Geolocation
	EdgeCountryHeader    string  `mapstructure:"edgecountryheader"`
	EdgeCityHeader       string  `mapstructure:"edgecityheader"`
	IPLookupURL          string  `mapstructure:"iplookupurl"`
	IPLookupTimeoutMs    int     `mapstructure:"iplookuptimeoutms"`
	IPLookupRatePerSec   float64 `mapstructure:"iplookupratepersec"`
	IPLookupBurst        int     `mapstructure:"iplookupburst"`
	IPLookupCacheSeconds int     `mapstructure:"iplookupcacheseconds"`

	// GeoLite2 updates, disabled without a license key
	MaxMindLicenseKey  string `mapstructure:"maxmindlicensekey"`
	GeoLiteDownloadURL string `mapstructure:"geolitedownloadurl"`
	GeoLiteUpdateHours int    `mapstructure:"geoliteupdatehours"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "portfolio")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", defaultPrivateKey)
		v.SetDefault("loginsessiontimeoutseconds", 86400)
		v.SetDefault("storagepath", "storage")
		v.SetDefault("geodbpath", "storage/GeoLite2-City.mmdb")
		v.SetDefault("publicdir", "public")
		v.SetDefault("publicassetsurlprefix", "/")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("querytimeoutms", 5000)
		v.SetDefault("dashboardpassword", defaultDashboardPassword)
		v.SetDefault("dashboardrequireauth", true)
		v.SetDefault("statsworkers", 4)
		v.SetDefault("edgecountryheader", "X-Vercel-IP-Country")
		v.SetDefault("edgecityheader", "X-Vercel-IP-City")
		v.SetDefault("iplookupurl", "http://ip-api.com/json")
		v.SetDefault("iplookuptimeoutms", 1500)
		v.SetDefault("iplookupratepersec", 0.75) // ip-api free tier allows 45 req/min
		v.SetDefault("iplookupburst", 5)
		v.SetDefault("iplookupcacheseconds", 3600)
		v.SetDefault("maxmindlicensekey", "")
		v.SetDefault("geolitedownloadurl", "https://download.maxmind.com/app/geoip_download?edition_id=GeoLite2-City&license_key=%s&suffix=tar.gz")
		v.SetDefault("geoliteupdatehours", 168) // MaxMind publishes weekly

		v.BindEnv("appname", "PORTFOLIO_APP_NAME")
		v.BindEnv("appport", "PORTFOLIO_APP_PORT")
		v.BindEnv("environment", "PORTFOLIO_ENV")
		v.BindEnv("loglevel", "PORTFOLIO_LOG_LEVEL")
		v.BindEnv("privatekey", "PORTFOLIO_PRIVATE_KEY")
		v.BindEnv("loginsessiontimeoutseconds", "PORTFOLIO_LOGIN_SESSION_TIMEOUT_SECONDS")
		v.BindEnv("storagepath", "PORTFOLIO_STORAGE_PATH")
		v.BindEnv("geodbpath", "PORTFOLIO_GEO_DB_PATH")
		v.BindEnv("publicdir", "PORTFOLIO_PUBLIC_DIR")
		v.BindEnv("publicassetsurlprefix", "PORTFOLIO_PUBLIC_ASSETS_URL_PREFIX")
		v.BindEnv("logsdir", "PORTFOLIO_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "PORTFOLIO_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "PORTFOLIO_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "PORTFOLIO_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbmaxopenconns", "PORTFOLIO_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "PORTFOLIO_DB_MAX_IDLE_CONNS")
		v.BindEnv("querytimeoutms", "PORTFOLIO_QUERY_TIMEOUT_MS")
		// DASHBOARD_PASSWORD is kept for deployments that predate the prefix
		v.BindEnv("dashboardpassword", "PORTFOLIO_DASHBOARD_PASSWORD", "DASHBOARD_PASSWORD")
		v.BindEnv("dashboardrequireauth", "PORTFOLIO_DASHBOARD_REQUIRE_AUTH")
		v.BindEnv("statsworkers", "PORTFOLIO_STATS_WORKERS")
		v.BindEnv("edgecountryheader", "PORTFOLIO_EDGE_COUNTRY_HEADER")
		v.BindEnv("edgecityheader", "PORTFOLIO_EDGE_CITY_HEADER")
		v.BindEnv("iplookupurl", "PORTFOLIO_IP_LOOKUP_URL")
		v.BindEnv("iplookuptimeoutms", "PORTFOLIO_IP_LOOKUP_TIMEOUT_MS")
		v.BindEnv("iplookupratepersec", "PORTFOLIO_IP_LOOKUP_RATE_PER_SEC")
		v.BindEnv("iplookupburst", "PORTFOLIO_IP_LOOKUP_BURST")
		v.BindEnv("iplookupcacheseconds", "PORTFOLIO_IP_LOOKUP_CACHE_SECONDS")
		v.BindEnv("maxmindlicensekey", "PORTFOLIO_MAXMIND_LICENSE_KEY")
		v.BindEnv("geolitedownloadurl", "PORTFOLIO_GEOLITE_DOWNLOAD_URL")
		v.BindEnv("geoliteupdatehours", "PORTFOLIO_GEOLITE_UPDATE_HOURS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.DatabaseName = cfg.GetDatabasePath()
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	if c.PrivateKey == "" {
		return fmt.Errorf("private key is required")
	}
	if c.DashboardPassword == "" {
		return fmt.Errorf("dashboard password is required")
	}

	if c.IsProduction() {
		if c.PrivateKey == defaultPrivateKey {
			return fmt.Errorf("production requires a unique PORTFOLIO_PRIVATE_KEY (cannot use default)")
		}
		if c.DashboardPassword == defaultDashboardPassword {
			return fmt.Errorf("production requires PORTFOLIO_DASHBOARD_PASSWORD (cannot use default)")
		}
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the session encryption key (implements cartridge.FactoryConfig interface).
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GetLoginSessionTimeout returns the dashboard login cookie lifetime in seconds.
func (c *Config) GetLoginSessionTimeout() int {
	return c.LoginSessionTimeoutSeconds
}

// GetQueryTimeout bounds every store call made by the analytics services.
func (c *Config) GetQueryTimeout() time.Duration {
	if c.QueryTimeoutMillis <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.QueryTimeoutMillis) * time.Millisecond
}

// GetIPLookupTimeout bounds a single external geolocation call.
func (c *Config) GetIPLookupTimeout() time.Duration {
	if c.IPLookupTimeoutMs <= 0 {
		return 1500 * time.Millisecond
	}
	return time.Duration(c.IPLookupTimeoutMs) * time.Millisecond
}

// GetIPLookupCacheTTL returns how long a resolved IP location is reused.
func (c *Config) GetIPLookupCacheTTL() time.Duration {
	return time.Duration(c.IPLookupCacheSeconds) * time.Second
}

// GetGeoLiteUpdateInterval returns how old the GeoLite2 file may get before it
// is downloaded again.
func (c *Config) GetGeoLiteUpdateInterval() time.Duration {
	if c.GeoLiteUpdateHours <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.GeoLiteUpdateHours) * time.Hour
}

// GetStatsWorkers returns the number of concurrent aggregation queries per report.
func (c *Config) GetStatsWorkers() int {
	if c.StatsWorkers <= 0 {
		return 1
	}
	return c.StatsWorkers
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1
// - Development/Production: 10 (allows the stats fan-out to read concurrently)
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
