package instagram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// downloadBufferSize keeps memory flat while streaming media that can be tens
// of megabytes.
const downloadBufferSize = 8 * 1024

// Fetcher downloads a resolved media URL into a scoped temp directory. The
// caller owns the returned path and must call Cleanup after delivery.
type Fetcher struct {
	client  *http.Client
	tempDir string
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		client:  &http.Client{Timeout: 2 * time.Minute},
		tempDir: os.TempDir(),
	}
}

// Download streams the media body to disk in fixed-size chunks and returns the
// local file path.
func (f *Fetcher) Download(ctx context.Context, mediaURL, shortcode string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", igUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("media download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("media download status %d", resp.StatusCode)
	}

	dir := filepath.Join(f.tempDir, "reel_"+shortcode)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}

	path := filepath.Join(dir, shortcode+".mp4")
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create media file: %w", err)
	}

	buf := make([]byte, downloadBufferSize)
	written, err := io.CopyBuffer(out, resp.Body, buf)
	closeErr := out.Close()
	if err != nil {
		f.Cleanup(path)
		return "", fmt.Errorf("stream media body: %w", err)
	}
	if closeErr != nil {
		f.Cleanup(path)
		return "", fmt.Errorf("flush media file: %w", closeErr)
	}

	logrus.Infof("[INSTAGRAM] downloaded %d bytes to %s", written, path)
	return path, nil
}

// Cleanup removes the downloaded file and its containing directory. Missing
// files and non-empty directories are logged, never raised: cleanup runs on
// every exit path and must not mask the original outcome.
func (f *Fetcher) Cleanup(localPath string) {
	if localPath == "" {
		return
	}
	if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
		logrus.Warnf("[INSTAGRAM] cleanup file %s: %v", localPath, err)
	}
	dir := filepath.Dir(localPath)
	if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
		logrus.Warnf("[INSTAGRAM] cleanup dir %s: %v", dir, err)
	}
}
