// Package dataset handles the public Hemrec sample datasets: downloading the
// raw CSV files and round-tripping session data through the CSV schema.
package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/renalytics-ai/platform/pkg/common/logger"
)

// RawFiles maps each raw dataset file to its public download URL.
var RawFiles = map[string]string{
	"d1.csv":  "https://figshare.com/ndownloader/files/15142151",
	"idp.csv": "https://figshare.com/ndownloader/files/15142154",
	"vip.csv": "https://figshare.com/ndownloader/files/15142157",
}

const downloadAttempts = 3

// Fetcher downloads the raw datasets into a local directory.
type Fetcher struct {
	client  *resty.Client
	baseDir string
}

func NewFetcher(baseDir string) *Fetcher {
	return &Fetcher{
		client:  resty.New().SetTimeout(60 * time.Second),
		baseDir: baseDir,
	}
}

// DownloadRawFiles fetches every raw dataset file into a "temp" directory
// under the fetcher's base directory and returns that directory. Files that
// already exist are skipped; failed downloads are retried with exponential
// backoff before giving up on the batch.
func (f *Fetcher) DownloadRawFiles(ctx context.Context) (string, error) {
	tempDir := filepath.Join(f.baseDir, "temp")
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}
	logger.Log.WithField("dir", tempDir).Info("starting batch file download")

	for filename, url := range RawFiles {
		localPath := filepath.Join(tempDir, filename)
		if _, err := os.Stat(localPath); err == nil {
			logger.Log.WithField("file", filename).Info("file already exists, skipping download")
			continue
		}
		if err := f.downloadWithRetry(ctx, url, localPath); err != nil {
			return "", fmt.Errorf("download %s: %w", filename, err)
		}
	}
	return tempDir, nil
}

func (f *Fetcher) downloadWithRetry(ctx context.Context, url, localPath string) error {
	var lastErr error
	for attempt := 1; attempt <= downloadAttempts; attempt++ {
		lastErr = f.downloadFile(ctx, url, localPath)
		if lastErr == nil {
			logger.Log.WithFields(map[string]interface{}{
				"file":     filepath.Base(localPath),
				"attempts": attempt,
			}).Info("file downloaded")
			return nil
		}
		logger.Log.WithError(lastErr).WithFields(map[string]interface{}{
			"file":    filepath.Base(localPath),
			"attempt": attempt,
		}).Warn("download attempt failed")
		if attempt < downloadAttempts {
			wait := time.Duration(1<<attempt) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", downloadAttempts, lastErr)
}

func (f *Fetcher) downloadFile(ctx context.Context, url, localPath string) error {
	resp, err := f.client.R().
		SetContext(ctx).
		SetOutput(localPath).
		Get(url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		// resty writes the error body to the output file; remove it so a
		// retry does not mistake it for a completed download.
		_ = os.Remove(localPath)
		return fmt.Errorf("unexpected status %s", resp.Status())
	}
	return nil
}

// DeleteTempDir removes the download directory created by DownloadRawFiles.
// It refuses to delete anything outside the fetcher's base directory.
func (f *Fetcher) DeleteTempDir(dir string) error {
	if dir == "" {
		dir = filepath.Join(f.baseDir, "temp")
	}
	resolved, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve temp directory: %w", err)
	}
	expected, err := filepath.Abs(filepath.Join(f.baseDir, "temp"))
	if err != nil {
		return fmt.Errorf("resolve base directory: %w", err)
	}
	if resolved != expected {
		return fmt.Errorf("refusing to delete directory outside the download root: %s", resolved)
	}
	if _, err := os.Stat(resolved); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(resolved); err != nil {
		return fmt.Errorf("delete temp directory: %w", err)
	}
	logger.Log.WithField("dir", resolved).Info("deleted temp directory")
	return nil
}
