package geolite

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	maxMindDownloadURL = "https://download.maxmind.com/app/geoip_download"
	updaterUserAgent   = "proxysheet-geolite-updater/1.0"
)

// ErrNoAPIKey indicates that no MaxMind license key has been configured.
var ErrNoAPIKey = errors.New("geolite: api key is not configured")

// Updater fetches GeoLite2 editions from MaxMind.
type Updater struct {
	apiKey      string
	downloadURL string
	client      *http.Client
}

func NewUpdater(apiKey string) *Updater {
	return &Updater{
		apiKey:      strings.TrimSpace(apiKey),
		downloadURL: maxMindDownloadURL,
		client:      &http.Client{Timeout: 2 * time.Minute},
	}
}

// EnsureDatabases downloads each edition whose file is missing or older than
// maxAge. maxAge <= 0 only fills in missing files. It returns true when
// anything was written.
func (u *Updater) EnsureDatabases(ctx context.Context, cityPath, asnPath string, maxAge time.Duration) (bool, error) {
	targets := map[string]string{CityEdition: cityPath, ASNEdition: asnPath}

	updated := false
	for _, edition := range []string{CityEdition, ASNEdition} {
		destPath := targets[edition]
		if strings.TrimSpace(destPath) == "" || !needsDownload(destPath, maxAge) {
			continue
		}
		if u.apiKey == "" {
			return updated, ErrNoAPIKey
		}

		log.Info("Downloading GeoLite database", "edition", edition, "path", destPath)
		if err := u.downloadEdition(ctx, edition, destPath); err != nil {
			return updated, err
		}
		updated = true
	}

	return updated, nil
}

func needsDownload(path string, maxAge time.Duration) bool {
	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	return maxAge > 0 && time.Since(info.ModTime()) > maxAge
}

func (u *Updater) downloadEdition(ctx context.Context, edition, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.buildDownloadURL(edition), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", updaterUserAgent)

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", edition, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("download %s: unexpected status %d: %s", edition, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	gzipReader, err := gzip.NewReader(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: open gzip: %w", edition, err)
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)
	targetBase := edition + ".mmdb"
	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%s: read tar: %w", edition, err)
		}
		if header.Typeflag != tar.TypeReg || filepath.Base(header.Name) != targetBase {
			continue
		}

		if err := writeToFile(destPath, tarReader); err != nil {
			return fmt.Errorf("%s: write file: %w", edition, err)
		}
		return nil
	}

	return fmt.Errorf("%s: mmdb file not found in archive", edition)
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

func (u *Updater) buildDownloadURL(edition string) string {
	query := url.Values{}
	query.Set("edition_id", edition)
	query.Set("license_key", u.apiKey)
	query.Set("suffix", "tar.gz")
	return u.downloadURL + "?" + query.Encode()
}
