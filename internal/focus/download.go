package focus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
)

// DefaultPlotFilename is the name the attention graph is saved under.
const DefaultPlotFilename = "attention_graph.png"

// DownloadPlot fetches the image at url and saves it as dir/filename,
// returning the saved path. An empty dir means the working directory. Network failures are reported as KindDownload and
// filesystem permission failures as KindPermissionDenied.
func (c *Client) DownloadPlot(ctx context.Context, url, dir, filename string) (string, error) {
	path, err := c.downloadPlot(ctx, url, dir, filename)
	if err != nil {
		c.logger.Warn("image download failed", "url", url, "err", err)
		return "", err
	}
	c.logger.Info("saved attention graph", "path", path)
	return path, nil
}

func (c *Client) downloadPlot(ctx context.Context, url, dir, filename string) (string, error) {
	if url == "" {
		return "", &Error{Kind: KindDownload, Message: "no image available"}
	}
	if dir == "" {
		dir = "."
	}
	if filename == "" {
		filename = DefaultPlotFilename
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", &Error{Kind: KindDownload, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &Error{Kind: KindDownload, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &Error{Kind: KindDownload, StatusCode: resp.StatusCode}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", saveError(err)
	}

	// Write to a temp file first so a failed transfer never leaves a partial image.
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", saveError(err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return "", &Error{Kind: KindDownload, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return "", saveError(err)
	}

	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return "", saveError(err)
	}

	dest := filepath.Join(dir, filename)
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", saveError(err)
	}
	return dest, nil
}

func saveError(err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return &Error{Kind: KindPermissionDenied, Err: err}
	}
	return &Error{Kind: KindDownload, Err: fmt.Errorf("failed to save image: %w", err)}
}
