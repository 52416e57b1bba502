package geoip

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

	"shrike/internal/config"
)

const (
	maxMindDownloadURL = "https://download.maxmind.com/app/geoip_download"
	userAgent          = "shrike-geoip-updater/1.0"

	CountryEdition = "GeoLite2-Country"
	ASNEdition     = "GeoLite2-ASN"
)

var (
	updateGroup singleflight.Group
	httpClient  = &http.Client{Timeout: 2 * time.Minute}
)

var (
	// ErrNoLicenseKey indicates that the MaxMind license key has not been configured.
	ErrNoLicenseKey = errors.New("geoip: license key is not configured")
	// ErrNoDatabasePaths indicates that no mmdb destination paths are configured.
	ErrNoDatabasePaths = errors.New("geoip: no database paths configured")
)

type downloadTarget struct {
	editionID string
	destPath  string
}

func downloadTargets(cfg config.Config) []downloadTarget {
	var targets []downloadTarget
	if path := strings.TrimSpace(cfg.GeoIP.CountryDB); path != "" {
		targets = append(targets, downloadTarget{editionID: CountryEdition, destPath: path})
	}
	if path := strings.TrimSpace(cfg.GeoIP.ASNDB); path != "" {
		targets = append(targets, downloadTarget{editionID: ASNEdition, destPath: path})
	}
	return targets
}

// UpdateDatabases downloads the GeoLite editions whose paths are configured,
// reloads the locator, and distributes the fresh files over redis when
// distribution is enabled. It returns true when an update was performed.
// Concurrent callers share a single download.
func UpdateDatabases(ctx context.Context, locator *Locator) (bool, error) {
	result, err, _ := updateGroup.Do("update", func() (interface{}, error) {
		cfg := config.GetConfig()
		licenseKey := strings.TrimSpace(cfg.GeoIP.LicenseKey)
		if licenseKey == "" {
			return false, ErrNoLicenseKey
		}

		targets := downloadTargets(cfg)
		if len(targets) == 0 {
			return false, ErrNoDatabasePaths
		}

		for _, target := range targets {
			if err := downloadEdition(ctx, licenseKey, target); err != nil {
				return false, err
			}
		}

		if err := locator.Reload(cfg.GeoIP.CountryDB, cfg.GeoIP.ASNDB); err != nil {
			return false, fmt.Errorf("reload databases: %w", err)
		}

		if err := PublishDatabases(ctx, nil); err != nil {
			log.Warn("Failed to publish GeoIP databases to redis", "error", err)
		}

		return true, nil
	})

	if err != nil {
		return false, err
	}

	updated, _ := result.(bool)
	return updated, nil
}

func downloadEdition(ctx context.Context, licenseKey string, target downloadTarget) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, buildDownloadURL(licenseKey, target.editionID), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", target.editionID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("download %s: unexpected status %d: %s", target.editionID, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	gzipReader, err := gzip.NewReader(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: open gzip: %w", target.editionID, err)
	}
	defer gzipReader.Close()

	// The archive nests the database under a dated directory, e.g.
	// GeoLite2-ASN_20240101/GeoLite2-ASN.mmdb.
	wantName := target.editionID + ".mmdb"

	tarReader := tar.NewReader(gzipReader)
	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%s: read tar: %w", target.editionID, err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		if filepath.Base(header.Name) != wantName {
			continue
		}

		if err := writeToFile(target.destPath, tarReader); err != nil {
			return fmt.Errorf("%s: write file: %w", target.editionID, err)
		}
		return nil
	}

	return fmt.Errorf("%s: mmdb file not found in archive", target.editionID)
}

func writeToFile(destPath string, data io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), "geoip-*.mmdb")
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

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
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
