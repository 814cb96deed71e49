package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/qsplit/internal/api"
	"github.com/jackzampolin/qsplit/internal/ingest"
	"github.com/jackzampolin/qsplit/internal/ledger"
	"github.com/jackzampolin/qsplit/internal/svcctx"
	"github.com/jackzampolin/qsplit/internal/workflow"
)

// Book is a book with its stage records and current edit lock.
type Book struct {
	ledger.Book `yaml:",inline"`
	Stages      []ledger.StageRecord `json:"stages" yaml:"stages"`
	Lock        *ledger.Lock         `json:"lock,omitempty" yaml:"lock,omitempty"`
}

// ListBooksResponse is the response for listing books.
type ListBooksResponse struct {
	Books []ledger.Book `json:"books" yaml:"books"`
}

// ListBooksEndpoint handles GET /api/books.
type ListBooksEndpoint struct{}

func (e *ListBooksEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books", e.handler
}

func (e *ListBooksEndpoint) RequiresInit() bool { return true }

func (e *ListBooksEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	books, err := svcctx.LedgerFrom(r.Context()).ListBooks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if books == nil {
		books = []ledger.Book{}
	}
	writeJSON(w, http.StatusOK, ListBooksResponse{Books: books})
}

func (e *ListBooksEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all books",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListBooksResponse
			if err := client.Get(cmd.Context(), "/api/books", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// GetBookEndpoint handles GET /api/books/{id}.
type GetBookEndpoint struct{}

func (e *GetBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}", e.handler
}

func (e *GetBookEndpoint) RequiresInit() bool { return true }

func (e *GetBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	led := svcctx.LedgerFrom(ctx)

	b, err := led.GetBook(ctx, id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	book := Book{Book: *b, Stages: []ledger.StageRecord{}}

	if runner := svcctx.RunnerFrom(ctx); runner != nil {
		book.Stages, err = runner.Status(ctx, id)
	} else {
		book.Stages, err = led.Stages(ctx, id)
	}
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if book.Lock, err = led.LockStatus(ctx, id); err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, book)
}

func (e *GetBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a book with its stage status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var book Book
			if err := client.Get(cmd.Context(), "/api/books/"+args[0], &book); err != nil {
				return err
			}
			return api.Output(book)
		},
	}
}

// DeleteBookEndpoint handles DELETE /api/books/{id}.
type DeleteBookEndpoint struct{}

func (e *DeleteBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/books/{id}", e.handler
}

func (e *DeleteBookEndpoint) RequiresInit() bool { return true }

func (e *DeleteBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	led := svcctx.LedgerFrom(ctx)

	if _, err := led.GetBook(ctx, id); err != nil {
		writeLedgerError(w, err)
		return
	}
	if lock, err := led.LockStatus(ctx, id); err != nil {
		writeLedgerError(w, err)
		return
	} else if lock != nil {
		writeError(w, http.StatusConflict, fmt.Sprintf("%v: held by %s", ledger.ErrLocked, lock.Holder))
		return
	}

	if err := led.DeleteBook(ctx, id); err != nil {
		writeLedgerError(w, err)
		return
	}

	// The blob store is rooted at the home directory, so removing the book
	// directory drops every stored artifact.
	if h := svcctx.HomeFrom(ctx); h != nil {
		if err := os.RemoveAll(h.BookDir(id)); err != nil {
			svcctx.LoggerFrom(ctx).Warn("failed to remove book files", "book_id", id, "error", err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (e *DeleteBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a book and all its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			if err := client.Delete(cmd.Context(), "/api/books/"+args[0], nil); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}

// IngestRequest is the request body for registering a chapter PDF.
type IngestRequest struct {
	PDFPaths  []string `json:"pdf_paths"`
	Title     string   `json:"title,omitempty"`
	SourceURL string   `json:"source_url,omitempty"`
}

// IngestEndpoint handles POST /api/books/ingest.
type IngestEndpoint struct{}

func (e *IngestEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books/ingest", e.handler
}

func (e *IngestEndpoint) RequiresInit() bool { return true }

func (e *IngestEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.PDFPaths) == 0 {
		writeError(w, http.StatusBadRequest, "pdf_paths is required")
		return
	}

	logger := svcctx.LoggerFrom(ctx)
	res, err := ingest.Ingest(ctx, svcctx.StoreFrom(ctx), svcctx.LedgerFrom(ctx), ingest.Request{
		PDFPaths:  req.PDFPaths,
		Title:     req.Title,
		SourceURL: req.SourceURL,
		Logger:    logger,
	})
	if errors.Is(err, ingest.ErrInvalidPDF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if runner := svcctx.RunnerFrom(ctx); runner != nil {
		if _, err := runner.Run(ctx, res.BookID, workflow.StageIngest, workflow.Options{Logger: logger}); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	writeJSON(w, http.StatusCreated, res)
}

func (e *IngestEndpoint) Command(getServerURL func() string) *cobra.Command {
	var title, sourceURL string
	cmd := &cobra.Command{
		Use:   "ingest <pdf-files...>",
		Short: "Register a chapter PDF as a book",
		Long: `Register one or more PDF files as a book.

For multi-part scans, files are sorted by numeric suffix (e.g., chapter-1.pdf, chapter-2.pdf)
and merged. Title is derived from the filename if not provided.

--source-url is the public URL the extraction service downloads the PDF from.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := absPaths(args)
			if err != nil {
				return err
			}
			client := api.NewClient(getServerURL())
			var resp ingest.Result
			if err := client.Post(cmd.Context(), "/api/books/ingest", IngestRequest{
				PDFPaths:  paths,
				Title:     title,
				SourceURL: sourceURL,
			}, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Book title (derived from filename if not provided)")
	cmd.Flags().StringVar(&sourceURL, "source-url", "", "Public URL of the PDF for extraction")
	return cmd
}

func absPaths(args []string) ([]string, error) {
	paths := make([]string, len(args))
	for i, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid path %s: %w", arg, err)
		}
		paths[i] = abs
	}
	return paths, nil
}
