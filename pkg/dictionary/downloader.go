package dictionary

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
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

const (
	repoOwner = "scriptin"
	repoName  = "jmdict-simplified"
)

// Downloader fetches the jmdict-simplified release asset when no local copy exists.
type Downloader struct {
	Client *http.Client
	// ReleaseURL is the GitHub "latest release" API endpoint.
	ReleaseURL string
	Logger     *slog.Logger
}

// NewDownloader returns a Downloader pointed at the upstream GitHub releases API.
func NewDownloader(timeout time.Duration) *Downloader {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Downloader{
		Client:     &http.Client{Timeout: timeout},
		ReleaseURL: fmt.Sprintf("https://api.github.com/repos/%s/%s/releases/latest", repoOwner, repoName),
	}
}

// EnsureDictionary checks if the dictionary exists at path.
// If not, it discovers the latest release from GitHub, downloads it, and decompresses it.
func EnsureDictionary(ctx context.Context, path string) error {
	return NewDownloader(0).Ensure(ctx, path)
}

// Ensure downloads the dictionary to path unless a file is already there.
func (d *Downloader) Ensure(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	log := d.logger()
	log.Info("dictionary not found, downloading", slog.String("path", path))

	downloadURL, err := d.latestReleaseAssetURL(ctx)
	if err != nil {
		return fmt.Errorf("find latest dictionary release: %w", err)
	}

	log.Info("downloading dictionary", slog.String("url", downloadURL))
	return d.downloadAndExtract(ctx, downloadURL, path)
}

func (d *Downloader) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Downloader) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return http.DefaultClient
}

func (d *Downloader) latestReleaseAssetURL(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.ReleaseURL, nil)
	if err != nil {
		return "", err
	}
	// GitHub rejects API calls without a User-Agent.
	req.Header.Set("User-Agent", "yomikomi")

	resp, err := d.client().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("github api returned status: %s", resp.Status)
	}

	var release struct {
		Assets []struct {
			Name               string `json:"name"`
			BrowserDownloadURL string `json:"browser_download_url"`
		} `json:"assets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", err
	}

	// Pattern: jmdict-eng-common-*.json.tgz
	for _, asset := range release.Assets {
		if strings.Contains(asset.Name, "jmdict-eng-common") && (strings.HasSuffix(asset.Name, ".json.tgz") || strings.HasSuffix(asset.Name, ".json.gz")) {
			return asset.BrowserDownloadURL, nil
		}
	}
	return "", errors.New("no suitable dictionary asset found in latest release")
}

func (d *Downloader) downloadAndExtract(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := d.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s", resp.Status)
	}

	gzReader, err := gzip.NewReader(resp.Body)
	if err != nil {
		return fmt.Errorf("create gzip reader: %w", err)
	}
	defer gzReader.Close()

	var src io.Reader = gzReader
	if strings.HasSuffix(url, ".tgz") {
		tarReader := tar.NewReader(gzReader)
		found := false
		for {
			header, err := tarReader.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("read tar archive: %w", err)
			}
			if header.Typeflag == tar.TypeReg && strings.HasSuffix(header.Name, ".json") {
				found = true
				break
			}
		}
		if !found {
			return errors.New("no json file found in downloaded archive")
		}
		src = tarReader
	}

	return writeAtomic(destPath, src)
}

// writeAtomic writes r to a temp file next to path and renames it into place,
// so an interrupted download never leaves a truncated file behind.
func writeAtomic(path string, r io.Reader) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.part")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write dictionary: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
