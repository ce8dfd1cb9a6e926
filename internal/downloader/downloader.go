package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// client bounds the whole transfer; the wallpaper is the only download.
var client = &http.Client{Timeout: 2 * time.Minute}

// DownloadFile downloads url to dst. The file only appears at dst once the
// transfer completed.
var DownloadFile = func(ctx context.Context, dst, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download file from %s: %s", url, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(out.Name())

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return fmt.Errorf("failed to download file from %s: %w", url, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := os.Chmod(out.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(out.Name(), dst)
}

// Image downloads an image to dst, rejecting responses that are not images.
func Image(ctx context.Context, dst, url string) error {
	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://") {
		return fmt.Errorf("unsupported URL %q", url)
	}
	if err := DownloadFile(ctx, dst, url); err != nil {
		return err
	}
	f, err := os.Open(dst)
	if err != nil {
		return err
	}
	defer f.Close()
	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	if ct := http.DetectContentType(head[:n]); !strings.HasPrefix(ct, "image/") {
		os.Remove(dst)
		return fmt.Errorf("%s is not an image (%s)", url, ct)
	}
	return nil
}
