package output

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/jackzampolin/qsplit/internal/blobstore"
	"github.com/jackzampolin/qsplit/internal/pipeline"
)

// ImageRemoval reports what RemoveImage changed.
type ImageRemoval struct {
	Image        string   `json:"image" yaml:"image"`
	Deleted      bool     `json:"deleted" yaml:"deleted"`
	UpdatedFiles []string `json:"updated_files" yaml:"updated_files"`
}

// ValidImageName reports whether name is a bare file name under images/.
func ValidImageName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// imageRef matches markdown image references whose target is name, either
// bare or as the last path element, with an optional title.
func imageRef(name string) *regexp.Regexp {
	return regexp.MustCompile(`!\[[^\]]*\]\((?:[^)\s]*/)?` + regexp.QuoteMeta(name) + `(?:\s+"[^"]*")?\)`)
}

// RemoveImage deletes images/<name> under the writer's prefix and strips its
// references from every split markdown file. Updated files are returned
// relative to the prefix.
func (w *Writer) RemoveImage(ctx context.Context, name string) (*ImageRemoval, error) {
	if !ValidImageName(name) {
		return nil, fmt.Errorf("invalid image name %q", name)
	}
	out := &ImageRemoval{Image: name, UpdatedFiles: []string{}}

	key := w.key(path.Join(ImagesDir, name))
	exists, err := w.Store.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if exists {
		if err := w.Store.Delete(ctx, key); err != nil {
			return nil, err
		}
		out.Deleted = true
	}

	re := imageRef(name)
	for _, slot := range pipeline.Slots() {
		key := w.key(slot.Path)
		data, err := w.Store.Read(ctx, key)
		if errors.Is(err, blobstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !re.Match(data) {
			continue
		}
		if err := w.Store.Write(ctx, key, re.ReplaceAll(data, nil)); err != nil {
			return nil, fmt.Errorf("failed to rewrite %s: %w", slot.Path, err)
		}
		out.UpdatedFiles = append(out.UpdatedFiles, slot.Path)
	}

	w.logger().Info("image removed", "image", name, "deleted", out.Deleted, "updated_files", len(out.UpdatedFiles))
	return out, nil
}
