package endpoints

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/qsplit/internal/api"
	"github.com/jackzampolin/qsplit/internal/ingest"
	"github.com/jackzampolin/qsplit/internal/ledger"
	"github.com/jackzampolin/qsplit/internal/svcctx"
	"github.com/jackzampolin/qsplit/internal/workflow"
)

// UploadResponse is the response for an uploaded chapter.
type UploadResponse struct {
	ingest.Result `yaml:",inline"`
	Stages        []ledger.StageRecord `json:"stages,omitempty" yaml:"stages,omitempty"`
	Error         string               `json:"error,omitempty" yaml:"error,omitempty"`
}

// UploadIngestEndpoint handles POST /api/books/ingest/upload with multipart file upload.
type UploadIngestEndpoint struct{}

var _ api.Endpoint = (*UploadIngestEndpoint)(nil)

func (e *UploadIngestEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books/ingest/upload", e.handler
}

func (e *UploadIngestEndpoint) RequiresInit() bool { return true }

func (e *UploadIngestEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse multipart form with 100MB max memory
	const maxMemory = 100 << 20
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}
	for _, fh := range files {
		if !strings.HasSuffix(strings.ToLower(fh.Filename), ".pdf") {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("file %s is not a PDF", fh.Filename))
			return
		}
	}

	title := r.FormValue("title")
	sourceURL := r.FormValue("source_url")
	autoProcess := r.FormValue("auto_process") == "true"
	logger := svcctx.LoggerFrom(ctx)

	tempDir, err := os.MkdirTemp("", "qsplit-upload-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to create temp dir: %v", err))
		return
	}
	// Originals are copied into the blob store by ingest.
	defer os.RemoveAll(tempDir)

	var pdfPaths []string
	for _, fh := range files {
		destPath := filepath.Join(tempDir, filepath.Base(fh.Filename))
		if err := saveUpload(fh.Open, destPath); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		pdfPaths = append(pdfPaths, destPath)
	}

	res, err := ingest.Ingest(ctx, svcctx.StoreFrom(ctx), svcctx.LedgerFrom(ctx), ingest.Request{
		PDFPaths:  pdfPaths,
		Title:     title,
		SourceURL: sourceURL,
		Logger:    logger,
	})
	if errors.Is(err, ingest.ErrInvalidPDF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("ingest failed: %v", err))
		return
	}

	resp := UploadResponse{Result: *res}
	runner := svcctx.RunnerFrom(ctx)
	if runner == nil {
		writeJSON(w, http.StatusCreated, resp)
		return
	}

	st := svcctx.PatternsFrom(ctx)
	split := st.Split
	opts := workflow.Options{Catalog: st.Catalog, Split: &split, OverrideErrors: st.Errors, Logger: logger}
	if autoProcess {
		resp.Stages, err = runner.RunAll(ctx, res.BookID, opts)
	} else {
		var rec *ledger.StageRecord
		if rec, err = runner.Run(ctx, res.BookID, workflow.StageIngest, opts); err == nil {
			resp.Stages = []ledger.StageRecord{*rec}
		}
	}
	if err != nil {
		// The book exists; report how far processing got.
		logger.Error("processing after upload failed", "book_id", res.BookID, "error", err)
		resp.Error = err.Error()
	}

	writeJSON(w, http.StatusCreated, resp)
}

func saveUpload(open func() (multipart.File, error), dest string) error {
	src, err := open()
	if err != nil {
		return fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to save file: %w", err)
	}
	return dst.Close()
}

func (e *UploadIngestEndpoint) Command(_ func() string) *cobra.Command {
	// No CLI command for file upload - use the path-based ingest command instead
	return nil
}
