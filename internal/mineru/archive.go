package mineru

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// FullMarkdown is the document file inside a result archive.
const FullMarkdown = "full.md"

// Download fetches a result archive into dst, retrying transient failures.
// Each attempt rewrites dst from the start.
func (c *Client) Download(ctx context.Context, url, dst string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create download directory: %w", err)
	}
	dl := &http.Client{Timeout: 5 * time.Minute}

	return retry.DoWithData(
		func() (int64, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return 0, retry.Unrecoverable(err)
			}
			resp, err := dl.Do(req)
			if err != nil {
				return 0, err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				err := fmt.Errorf("download failed (status %d)", resp.StatusCode)
				if resp.StatusCode < 500 {
					return 0, retry.Unrecoverable(err)
				}
				return 0, err
			}

			f, err := os.Create(dst)
			if err != nil {
				return 0, retry.Unrecoverable(fmt.Errorf("failed to create %s: %w", dst, err))
			}
			n, err := io.Copy(f, resp.Body)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return 0, fmt.Errorf("failed to write archive: %w", err)
			}
			return n, nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(2*time.Second),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("archive download retry", "attempt", n+1, "error", err)
		}),
	)
}

// Unpack extracts a result archive into dir and returns the extracted file
// names as slash-separated paths relative to dir. Archives that wrap
// everything in one top-level folder are flattened so full.md lands at the
// top of dir.
func Unpack(archive, dir string) ([]string, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer zr.Close()

	strip := commonRoot(zr.File)

	var files []string
	for _, zf := range zr.File {
		name := strings.TrimPrefix(path.Clean(zf.Name), strip)
		if name == "" || name == "." || strings.HasSuffix(zf.Name, "/") {
			continue
		}
		if !filepath.IsLocal(filepath.FromSlash(name)) {
			return nil, fmt.Errorf("archive entry %q escapes the destination", zf.Name)
		}
		dst := filepath.Join(dir, filepath.FromSlash(name))
		if err := unpackFile(zf, dst); err != nil {
			return nil, err
		}
		files = append(files, name)
	}
	return files, nil
}

func unpackFile(zf *zip.File, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", zf.Name, err)
	}
	rc, err := zf.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", zf.Name, err)
	}
	defer rc.Close()

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return fmt.Errorf("failed to extract %s: %w", zf.Name, err)
	}
	return f.Close()
}

// commonRoot returns "<dir>/" when every entry sits under the same top-level
// directory and full.md is not already at the archive root.
func commonRoot(files []*zip.File) string {
	root := ""
	for _, zf := range files {
		name := path.Clean(zf.Name)
		if name == FullMarkdown {
			return ""
		}
		first, _, found := strings.Cut(name, "/")
		if !found && !strings.HasSuffix(zf.Name, "/") {
			return ""
		}
		if root == "" {
			root = first
		} else if root != first {
			return ""
		}
	}
	if root == "" {
		return ""
	}
	return root + "/"
}

// Result is the outcome of a full extraction.
type Result struct {
	TaskID   string   `json:"task_id" yaml:"task_id"`
	ZipURL   string   `json:"zip_url" yaml:"zip_url"`
	Dir      string   `json:"dir" yaml:"dir"`
	Files    []string `json:"files" yaml:"files"`
	Markdown string   `json:"markdown" yaml:"markdown"`
}

// Extract runs a document through the service end to end: submit, wait,
// download, unpack into dir.
func (c *Client) Extract(ctx context.Context, req TaskRequest, dir string, onProgress func(*Task)) (*Result, error) {
	taskID, err := c.Submit(ctx, req)
	if err != nil {
		return nil, err
	}

	task, err := c.Wait(ctx, taskID, onProgress)
	if err != nil {
		return nil, err
	}
	if task.FullZipURL == "" {
		return nil, fmt.Errorf("%w: task %s finished without an archive url", ErrAPI, taskID)
	}

	archive := filepath.Join(dir, "result.zip")
	size, err := c.Download(ctx, task.FullZipURL, archive)
	if err != nil {
		return nil, fmt.Errorf("failed to download archive: %w", err)
	}
	c.logger.Info("mineru archive downloaded", "task_id", taskID, "bytes", size)

	files, err := Unpack(archive, dir)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(archive); err != nil {
		c.logger.Warn("failed to remove archive", "path", archive, "error", err)
	}

	res := &Result{TaskID: taskID, ZipURL: task.FullZipURL, Dir: dir, Files: files}
	for _, f := range files {
		if f == FullMarkdown {
			res.Markdown = filepath.Join(dir, FullMarkdown)
		}
	}
	if res.Markdown == "" {
		return res, fmt.Errorf("%w: archive has no %s", ErrAPI, FullMarkdown)
	}
	return res, nil
}
