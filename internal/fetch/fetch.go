// Package fetch downloads files over HTTP(S) with an optional progress bar.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// Options tunes a download.
type Options struct {
	// Quiet suppresses the progress bar even on a terminal.
	Quiet bool
	// Client overrides the HTTP client. Defaults to NewHTTPClient().
	Client *http.Client
	// Description labels the progress bar.
	Description string
}

// StatusError is returned when the server answers with a non-200 status.
type StatusError struct {
	URL    string
	Status string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download of %s failed with status: %s", e.URL, e.Status)
}

// NewHTTPClient returns a client tuned for large archive downloads.
func NewHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// some mirrors are slow to complete the handshake
	transport.TLSHandshakeTimeout = 30 * time.Second

	return &http.Client{
		Transport: transport,
		Timeout:   300 * time.Second,
	}
}

// ToWriter streams url into w and returns the number of bytes written.
func ToWriter(ctx context.Context, url string, w io.Writer, opt Options) (int64, error) {
	client := opt.Client
	if client == nil {
		client = NewHTTPClient()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("invalid download request for %s: %w", url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http get %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &StatusError{URL: url, Status: resp.Status, Code: resp.StatusCode}
	}

	dst := w
	if bar := newBar(resp.ContentLength, opt); bar != nil {
		defer func() { _ = bar.Finish() }()
		dst = io.MultiWriter(w, bar)
	}

	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to read response body from %s: %w", url, err)
	}
	return n, nil
}

// File downloads url to dest. The data is written to dest+".part" first and
// renamed into place only after the transfer completed.
func File(ctx context.Context, url, dest string, opt Options) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", dest, err)
	}

	part := dest + ".part"
	out, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", part, err)
	}

	if _, err := ToWriter(ctx, url, out, opt); err != nil {
		out.Close()
		os.Remove(part)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(part)
		return fmt.Errorf("failed to write %s: %w", part, err)
	}
	if err := os.Rename(part, dest); err != nil {
		os.Remove(part)
		return fmt.Errorf("failed to move %s into place: %w", dest, err)
	}
	return nil
}

func newBar(size int64, opt Options) *progressbar.ProgressBar {
	if opt.Quiet || !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	desc := opt.Description
	if desc == "" {
		desc = "downloading"
	}
	return progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
