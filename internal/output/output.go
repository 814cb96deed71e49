// Package output writes a pipeline result into a blob store using the
// Question_output / Answer_key / Answer_output layout.
package output

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/jackzampolin/qsplit/internal/blobstore"
	"github.com/jackzampolin/qsplit/internal/pipeline"
)

// ErrOutputUncreatable is returned when the output location cannot be
// created or written.
var ErrOutputUncreatable = errors.New("output location uncreatable")

// Supporting file names copied from the extraction directory.
const (
	FullMarkdown = "full.md"
	ImagesDir    = "images"
	ReportFile   = "report.yaml"
)

// Writer stores results under Prefix in Store.
type Writer struct {
	Store  blobstore.Store
	Prefix string
	Logger *slog.Logger
}

// NewDirWriter returns a writer over a local output directory.
func NewDirWriter(dir string, logger *slog.Logger) (*Writer, error) {
	store, err := blobstore.NewFS(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutputUncreatable, err)
	}
	return &Writer{Store: store, Logger: logger}, nil
}

// Summary lists what was written.
type Summary struct {
	Files         []string `json:"files" yaml:"files"`
	Placeholders  int      `json:"placeholders" yaml:"placeholders"`
	CopiedFullMD  bool     `json:"copied_full_md" yaml:"copied_full_md"`
	CopiedImages  int      `json:"copied_images" yaml:"copied_images"`
	Warnings      []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	ReportWritten bool     `json:"report_written" yaml:"report_written"`
}

func (w *Writer) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.Default()
	}
	return w.Logger
}

func (w *Writer) key(name string) string {
	if w.Prefix == "" {
		return name
	}
	return path.Join(w.Prefix, name)
}

// Write stores every slot of res, then the report. inputDir, when not
// empty, is the extraction directory holding full.md and images/.
func (w *Writer) Write(ctx context.Context, res *pipeline.Result, inputDir string) (*Summary, error) {
	sum := &Summary{Placeholders: len(res.Report.Placeholders)}

	for _, s := range pipeline.Slots() {
		key := w.key(s.Path)
		if err := w.Store.Write(ctx, key, []byte(res.Content(s))); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOutputUncreatable, err)
		}
		sum.Files = append(sum.Files, key)
	}

	if inputDir != "" {
		if err := w.copySupporting(ctx, inputDir, sum); err != nil {
			return nil, err
		}
	}

	data, err := yaml.Marshal(res.Report)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	if err := w.Store.Write(ctx, w.key(ReportFile), data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutputUncreatable, err)
	}
	sum.ReportWritten = true

	w.logger().Info("split files written",
		"files", len(sum.Files),
		"placeholders", sum.Placeholders,
		"images", sum.CopiedImages)
	return sum, nil
}

// copySupporting copies full.md and images/ next to the split files. Both
// are optional; a missing one is recorded as a warning.
func (w *Writer) copySupporting(ctx context.Context, inputDir string, sum *Summary) error {
	full := filepath.Join(inputDir, FullMarkdown)
	if f, err := os.Open(full); err == nil {
		err = w.Store.WriteFrom(ctx, w.key(FullMarkdown), f)
		f.Close()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrOutputUncreatable, err)
		}
		sum.CopiedFullMD = true
	} else {
		sum.Warnings = append(sum.Warnings, fmt.Sprintf("%s not found in %s", FullMarkdown, inputDir))
	}

	images := filepath.Join(inputDir, ImagesDir)
	info, err := os.Stat(images)
	if err != nil || !info.IsDir() {
		sum.Warnings = append(sum.Warnings, fmt.Sprintf("%s directory not found in %s", ImagesDir, inputDir))
		w.logger().Warn("images directory not found", "dir", images)
		return nil
	}

	return filepath.WalkDir(images, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(inputDir, p)
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", p, err)
		}
		defer f.Close()
		if err := w.Store.WriteFrom(ctx, w.key(filepath.ToSlash(rel)), f); err != nil {
			return fmt.Errorf("%w: %v", ErrOutputUncreatable, err)
		}
		sum.CopiedImages++
		return nil
	})
}
