// ABOUTME: Artwork downloader for album art and metadata images
// ABOUTME: Downloads images from URLs and saves to temp directory
package artwork

import (
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Downloader manages artwork downloads for the metadata carried by
// Component I (§3 Metadata.artwork_url).
type Downloader struct {
	logger      *zap.Logger
	cacheDir    string
	currentPath string
	client      *http.Client
}

// NewDownloader creates a new artwork downloader backed by the fixed
// cache directory sendspin-artwork under os.TempDir(), shared by every
// Downloader and process.
func NewDownloader(opts ...Option) (*Downloader, error) {
	cacheDir := filepath.Join(os.TempDir(), "sendspin-artwork")
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	d := &Downloader{
		logger:   zap.NewNop(),
		cacheDir: cacheDir,
		client:   &http.Client{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Option configures a Downloader at construction.
type Option func(*Downloader)

// WithLogger injects a structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Downloader) { d.logger = l }
}

// Download fetches artwork from URL and saves to cache
func (d *Downloader) Download(url string) (string, error) {
	if url == "" {
		return "", nil
	}

	// Create a cache key from URL hash
	hash := sha256.Sum256([]byte(url))
	ext := getExtension(url)
	filename := fmt.Sprintf("%x%s", hash[:8], ext)
	cachePath := filepath.Join(d.cacheDir, filename)

	// Check if already cached
	if _, err := os.Stat(cachePath); err == nil {
		d.logger.Debug("artwork cache hit", zap.String("path", cachePath))
		d.currentPath = cachePath
		return cachePath, nil
	}

	d.logger.Debug("downloading artwork", zap.String("url", url))
	resp, err := d.client.Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to download artwork: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("artwork download failed: HTTP %d", resp.StatusCode)
	}

	// Save to file
	f, err := os.Create(cachePath)
	if err != nil {
		return "", fmt.Errorf("failed to create cache file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(cachePath)
		return "", fmt.Errorf("failed to save artwork: %w", err)
	}

	d.logger.Debug("artwork saved", zap.String("path", cachePath))
	d.currentPath = cachePath
	return cachePath, nil
}

// CurrentPath returns the path to the current artwork
func (d *Downloader) CurrentPath() string {
	return d.currentPath
}

// getExtension extracts file extension from URL
func getExtension(url string) string {
	// Remove query string
	url = strings.Split(url, "?")[0]

	// Get extension
	ext := filepath.Ext(url)
	if ext == "" {
		ext = ".jpg" // Default to JPEG
	}

	return ext
}

// Cleanup removes old cached artwork
func (d *Downloader) Cleanup() error {
	return os.RemoveAll(d.cacheDir)
}
