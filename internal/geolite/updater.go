package geolite

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

const (
	asnEdition  = "GeoLite2-ASN"
	asnFilename = "GeoLite2-ASN.mmdb"
	userAgent   = "anonedits-geolite-updater/1.0"

	DefaultUpdateInterval = 24 * time.Hour
)

var (
	maxMindDownloadURL = "https://download.maxmind.com/app/geoip_download"

	updateGroup singleflight.Group
	httpClient  = &http.Client{Timeout: 2 * time.Minute}
)

// ErrNoLicenseKey indicates that no MaxMind license key has been configured.
var ErrNoLicenseKey = errors.New("geolite: license key is not configured")

// EnsureDatabase downloads the GeoLite2-ASN database to destPath when the
// file does not exist yet. It returns true when a download was performed.
func EnsureDatabase(ctx context.Context, licenseKey, destPath string) (bool, error) {
	if _, err := os.Stat(destPath); err == nil {
		return false, nil
	}
	return UpdateDatabase(ctx, licenseKey, destPath)
}

// UpdateDatabase downloads the GeoLite2-ASN archive and installs its mmdb
// file at destPath. Concurrent calls share one download.
func UpdateDatabase(ctx context.Context, licenseKey, destPath string) (bool, error) {
	result, err, _ := updateGroup.Do(destPath, func() (interface{}, error) {
		licenseKey = strings.TrimSpace(licenseKey)
		if licenseKey == "" {
			return false, ErrNoLicenseKey
		}

		if err := downloadEdition(ctx, licenseKey, destPath); err != nil {
			return false, err
		}

		log.Info("GeoLite ASN database downloaded", "path", destPath)
		return true, nil
	})

	if err != nil {
		return false, err
	}

	updated, _ := result.(bool)
	return updated, nil
}

// Refresh downloads a fresh copy of the database behind r and swaps it in.
func (r *Reader) Refresh(ctx context.Context, licenseKey string) error {
	if r == nil {
		return ErrNoDatabase
	}
	if _, err := UpdateDatabase(ctx, licenseKey, r.path); err != nil {
		return err
	}
	return r.Reload()
}

// RunUpdates calls Refresh every interval until ctx is done. Failures are
// logged and the current database stays in use.
func (r *Reader) RunUpdates(ctx context.Context, licenseKey string, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultUpdateInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := r.Refresh(ctx, licenseKey)
			switch {
			case errors.Is(err, ErrNoLicenseKey):
				log.Debug("GeoLite update skipped: license key missing")
			case err != nil && ctx.Err() == nil:
				log.Error("GeoLite update failed", "error", err)
			}
		}
	}
}

func downloadEdition(ctx context.Context, licenseKey, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, buildDownloadURL(licenseKey, asnEdition), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", asnEdition, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("download %s: unexpected status %d: %s", asnEdition, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	gzipReader, err := gzip.NewReader(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: open gzip: %w", asnEdition, err)
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)
	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%s: read tar: %w", asnEdition, err)
		}
		if header.Typeflag != tar.TypeReg || filepath.Base(header.Name) != asnFilename {
			continue
		}

		if err := writeToFile(destPath, tarReader); err != nil {
			return fmt.Errorf("%s: write file: %w", asnEdition, err)
		}
		return nil
	}

	return fmt.Errorf("%s: mmdb file not found in archive", asnEdition)
}

func writeToFile(destPath string, data io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), "geolite-*.mmdb")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmpFile.Name())
	}()

	if _, err := io.Copy(tmpFile, data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("copy data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpFile.Name(), destPath); err != nil {
		return fmt.Errorf("replace file: %w", err)
	}

	return nil
}

func buildDownloadURL(licenseKey, edition string) string {
	return fmt.Sprintf("%s?edition_id=%s&license_key=%s&suffix=tar.gz", maxMindDownloadURL, edition, licenseKey)
}
