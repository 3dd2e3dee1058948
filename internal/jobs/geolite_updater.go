package jobs

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const geoLiteDownloadTimeout = 5 * time.Minute

var errNoMMDB = errors.New("no .mmdb file found in archive")

// Reloader is implemented by geoip.GeoLite.
type Reloader interface {
	Reload() error
}

// GeoLiteUpdaterJob keeps the local GeoLite2 file fresh. The file's mtime is
// the last update time, so nothing is persisted in the database.
type GeoLiteUpdaterJob struct {
	Path        string
	LicenseKey  string
	URLTemplate string // one %s, replaced by the license key
	MaxAge      time.Duration

	client   *http.Client
	reloader Reloader
	logger   *slog.Logger
	now      func() time.Time
}

func NewGeoLiteUpdaterJob(path, licenseKey, urlTemplate string, maxAge time.Duration, reloader Reloader, logger *slog.Logger) *GeoLiteUpdaterJob {
	return &GeoLiteUpdaterJob{
		Path:        path,
		LicenseKey:  licenseKey,
		URLTemplate: urlTemplate,
		MaxAge:      maxAge,
		client:      &http.Client{Timeout: geoLiteDownloadTimeout},
		reloader:    reloader,
		logger:      logger,
		now:         time.Now,
	}
}

func (j *GeoLiteUpdaterJob) Name() string { return "geolite_updater" }

// Run downloads the database when it is missing or older than MaxAge.
func (j *GeoLiteUpdaterJob) Run(ctx context.Context) error {
	if j.LicenseKey == "" {
		j.logger.Debug("GeoLite license key not configured, skipping update")
		return nil
	}

	lastUpdate := j.lastUpdate()
	if age := j.now().Sub(lastUpdate); age < j.MaxAge {
		j.logger.Debug("GeoLite database is up to date",
			slog.Time("last_update", lastUpdate),
			slog.Duration("age", age))
		return nil
	}

	j.logger.Info("Starting GeoLite database update", slog.Time("last_update", lastUpdate))
	if err := j.download(ctx); err != nil {
		return fmt.Errorf("failed to update GeoLite database: %w", err)
	}

	if j.reloader != nil {
		if err := j.reloader.Reload(); err != nil {
			return fmt.Errorf("failed to reload GeoLite database: %w", err)
		}
	}

	j.logger.Info("GeoLite database updated successfully", slog.String("path", j.Path))
	return nil
}

func (j *GeoLiteUpdaterJob) lastUpdate() time.Time {
	info, err := os.Stat(j.Path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// download fetches the archive and replaces Path with its .mmdb entry. The
// file is written next to Path and renamed, so readers never see a partial
// database.
func (j *GeoLiteUpdaterJob) download(ctx context.Context) error {
	dir := filepath.Dir(j.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(j.URLTemplate, j.LicenseKey), nil)
	if err != nil {
		return err
	}
	resp, err := j.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download GeoLite database: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(dir, "geolite-*.mmdb")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := extractMMDB(resp.Body, tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to extract database: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), j.Path)
}

// extractMMDB copies the first .mmdb entry of a tar.gz stream into dst.
func extractMMDB(archive io.Reader, dst io.Writer) error {
	gzr, err := gzip.NewReader(archive)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return errNoMMDB
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}

		if strings.HasSuffix(header.Name, ".mmdb") {
			if _, err := io.Copy(dst, tr); err != nil {
				return fmt.Errorf("failed to extract file: %w", err)
			}
			return nil
		}
	}
}
