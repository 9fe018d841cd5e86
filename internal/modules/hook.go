package modules

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/imamik/dropship/internal/util/retry"
)

// FetchHook downloads files into the module's staged files directory.
type FetchHook struct {
	Files  []FetchSpec
	Client *http.Client
}

// BeforePost implements PreHook.
func (h *FetchHook) BeforePost(ctx context.Context, d *Descriptor, dir string) error {
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	filesDir := filepath.Join(dir, FilesDir)
	if err := os.MkdirAll(filesDir, 0o750); err != nil {
		return fmt.Errorf("%s: %w", d.Name, err)
	}

	for _, f := range h.Files {
		dest := filepath.Join(filesDir, filepath.Base(f.Dest))
		err := retry.WithExponentialBackoff(ctx, func() error {
			return download(ctx, client, f.URL, dest)
		}, retry.WithMaxRetries(3), retry.WithInitialDelay(2*time.Second))
		if err != nil {
			return fmt.Errorf("%s: fetch %s: %w", d.Name, f.URL, err)
		}
	}
	return nil
}

func download(ctx context.Context, client *http.Client, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return retry.Fatal(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("unexpected status %s", resp.Status)
	case resp.StatusCode != http.StatusOK:
		return retry.Fatal(fmt.Errorf("unexpected status %s", resp.Status))
	}

	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return retry.Fatal(err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}
