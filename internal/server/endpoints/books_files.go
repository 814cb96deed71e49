package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/qsplit/internal/api"
	"github.com/jackzampolin/qsplit/internal/blobstore"
	"github.com/jackzampolin/qsplit/internal/home"
	"github.com/jackzampolin/qsplit/internal/ledger"
	"github.com/jackzampolin/qsplit/internal/svcctx"
)

// DefaultLockTTL is used when a lock request carries no ttl.
const DefaultLockTTL = 30 * time.Minute

// LockRequest is the request body for taking an edit lock.
type LockRequest struct {
	Holder string `json:"holder"`
	TTL    string `json:"ttl,omitempty"` // Go duration, e.g. "15m"
}

// LockResponse reports the lock on a book. Lock is nil when it is free.
type LockResponse struct {
	BookID string       `json:"book_id" yaml:"book_id"`
	Locked bool         `json:"locked" yaml:"locked"`
	Lock   *ledger.Lock `json:"lock,omitempty" yaml:"lock,omitempty"`
}

// GetLockEndpoint handles GET /api/books/{id}/lock.
type GetLockEndpoint struct{}

func (e *GetLockEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/lock", e.handler
}

func (e *GetLockEndpoint) RequiresInit() bool { return true }

func (e *GetLockEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	led := svcctx.LedgerFrom(ctx)
	if _, err := led.GetBook(ctx, id); err != nil {
		writeLedgerError(w, err)
		return
	}
	lock, err := led.LockStatus(ctx, id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LockResponse{BookID: id, Locked: lock != nil, Lock: lock})
}

func (e *GetLockEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "lock-status <id>",
		Short: "Show who holds a book's edit lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp LockResponse
			if err := client.Get(cmd.Context(), "/api/books/"+args[0]+"/lock", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// AcquireLockEndpoint handles POST /api/books/{id}/lock.
type AcquireLockEndpoint struct{}

func (e *AcquireLockEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books/{id}/lock", e.handler
}

func (e *AcquireLockEndpoint) RequiresInit() bool { return true }

func (e *AcquireLockEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	var req LockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Holder == "" {
		writeError(w, http.StatusBadRequest, "holder is required")
		return
	}
	ttl := DefaultLockTTL
	if req.TTL != "" {
		d, err := time.ParseDuration(req.TTL)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid ttl %q", req.TTL))
			return
		}
		ttl = d
	}

	lock, err := svcctx.LedgerFrom(ctx).AcquireLock(ctx, id, req.Holder, ttl)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LockResponse{BookID: id, Locked: true, Lock: lock})
}

func (e *AcquireLockEndpoint) Command(getServerURL func() string) *cobra.Command {
	var req LockRequest
	cmd := &cobra.Command{
		Use:   "lock <id>",
		Short: "Take or renew a book's edit lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp LockResponse
			if err := client.Post(cmd.Context(), "/api/books/"+args[0]+"/lock", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&req.Holder, "holder", os.Getenv("USER"), "Lock holder")
	cmd.Flags().StringVar(&req.TTL, "ttl", "", "Lock duration (default 30m)")
	return cmd
}

// ReleaseLockEndpoint handles DELETE /api/books/{id}/lock?holder=<name>.
type ReleaseLockEndpoint struct{}

func (e *ReleaseLockEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/books/{id}/lock", e.handler
}

func (e *ReleaseLockEndpoint) RequiresInit() bool { return true }

func (e *ReleaseLockEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	holder := r.URL.Query().Get("holder")
	if holder == "" {
		writeError(w, http.StatusBadRequest, "holder is required")
		return
	}
	if err := svcctx.LedgerFrom(ctx).ReleaseLock(ctx, r.PathValue("id"), holder); err != nil {
		writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (e *ReleaseLockEndpoint) Command(getServerURL func() string) *cobra.Command {
	var holder string
	cmd := &cobra.Command{
		Use:   "unlock <id>",
		Short: "Release a book's edit lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			return client.Delete(cmd.Context(), "/api/books/"+args[0]+"/lock?holder="+url.QueryEscape(holder), nil)
		},
	}
	cmd.Flags().StringVar(&holder, "holder", os.Getenv("USER"), "Lock holder")
	return cmd
}

// FilesResponse lists a book's split files relative to its splits prefix.
type FilesResponse struct {
	BookID string   `json:"book_id" yaml:"book_id"`
	Files  []string `json:"files" yaml:"files"`
}

// ListFilesEndpoint handles GET /api/books/{id}/files.
type ListFilesEndpoint struct{}

func (e *ListFilesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/files", e.handler
}

func (e *ListFilesEndpoint) RequiresInit() bool { return true }

func (e *ListFilesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	if _, err := svcctx.LedgerFrom(ctx).GetBook(ctx, id); err != nil {
		writeLedgerError(w, err)
		return
	}

	prefix := home.SplitsKey(id)
	keys, err := svcctx.StoreFrom(ctx).List(ctx, prefix)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	files := make([]string, 0, len(keys))
	for _, k := range keys {
		files = append(files, strings.TrimPrefix(k, prefix+"/"))
	}
	writeJSON(w, http.StatusOK, FilesResponse{BookID: id, Files: files})
}

func (e *ListFilesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "files <id>",
		Short: "List a book's split files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp FilesResponse
			if err := client.Get(cmd.Context(), "/api/books/"+args[0]+"/files", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// FileContent is a split file and its text.
type FileContent struct {
	Path    string `json:"path" yaml:"path"`
	Content string `json:"content" yaml:"content"`
}

// GetFileEndpoint handles GET /api/books/{id}/files/{path...}.
type GetFileEndpoint struct{}

func (e *GetFileEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/files/{path...}", e.handler
}

func (e *GetFileEndpoint) RequiresInit() bool { return true }

func (e *GetFileEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, rel, ok := splitFileKey(w, r)
	if !ok {
		return
	}
	data, err := svcctx.StoreFrom(ctx).Read(ctx, key)
	if errors.Is(err, blobstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("file %s not found", rel))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, FileContent{Path: rel, Content: string(data)})
}

func (e *GetFileEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <id> <path>",
		Short: "Print a split file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp FileContent
			if err := client.Get(cmd.Context(), "/api/books/"+args[0]+"/files/"+args[1], &resp); err != nil {
				return err
			}
			fmt.Print(resp.Content)
			return nil
		},
	}
}

// UpdateFileRequest replaces a split file's content.
type UpdateFileRequest struct {
	Holder  string `json:"holder"`
	Content string `json:"content"`
}

// UpdateFileEndpoint handles PUT /api/books/{id}/files/{path...}. The caller
// must hold the book's edit lock or the lock must be free.
type UpdateFileEndpoint struct{}

func (e *UpdateFileEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PUT", "/api/books/{id}/files/{path...}", e.handler
}

func (e *UpdateFileEndpoint) RequiresInit() bool { return true }

func (e *UpdateFileEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	key, rel, ok := splitFileKey(w, r)
	if !ok {
		return
	}

	var req UpdateFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Holder == "" {
		writeError(w, http.StatusBadRequest, "holder is required")
		return
	}

	led := svcctx.LedgerFrom(ctx)
	if _, err := led.GetBook(ctx, id); err != nil {
		writeLedgerError(w, err)
		return
	}
	if err := led.CheckEditable(ctx, id, req.Holder); err != nil {
		writeLedgerError(w, err)
		return
	}

	store := svcctx.StoreFrom(ctx)
	exists, err := store.Exists(ctx, key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Sprintf("file %s not found", rel))
		return
	}
	if err := store.Write(ctx, key, []byte(req.Content)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := led.RecordModification(ctx, id, req.Holder, rel); err != nil {
		writeLedgerError(w, err)
		return
	}

	svcctx.LoggerFrom(ctx).Info("split file updated", "book_id", id, "path", rel, "holder", req.Holder)
	writeJSON(w, http.StatusOK, FileContent{Path: rel, Content: req.Content})
}

func (e *UpdateFileEndpoint) Command(getServerURL func() string) *cobra.Command {
	var holder string
	cmd := &cobra.Command{
		Use:   "put <id> <path> <local-file>",
		Short: "Replace a split file with a local file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[2])
			if err != nil {
				return err
			}
			client := api.NewClient(getServerURL())
			var resp FileContent
			if err := client.Put(cmd.Context(), "/api/books/"+args[0]+"/files/"+args[1], UpdateFileRequest{
				Holder:  holder,
				Content: string(data),
			}, &resp); err != nil {
				return err
			}
			fmt.Printf("Updated %s\n", resp.Path)
			return nil
		},
	}
	cmd.Flags().StringVar(&holder, "holder", os.Getenv("USER"), "Lock holder")
	return cmd
}

// ModificationsEndpoint handles GET /api/books/{id}/modifications.
type ModificationsEndpoint struct{}

func (e *ModificationsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/modifications", e.handler
}

func (e *ModificationsEndpoint) RequiresInit() bool { return true }

func (e *ModificationsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	led := svcctx.LedgerFrom(ctx)
	if _, err := led.GetBook(ctx, id); err != nil {
		writeLedgerError(w, err)
		return
	}
	mods, err := led.Modifications(ctx, id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if mods == nil {
		mods = []ledger.Modification{}
	}
	writeJSON(w, http.StatusOK, mods)
}

func (e *ModificationsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "modifications <id>",
		Short: "List manual edits of a book's split files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var mods []ledger.Modification
			if err := client.Get(cmd.Context(), "/api/books/"+args[0]+"/modifications", &mods); err != nil {
				return err
			}
			return api.Output(mods)
		},
	}
}

// splitFileKey resolves the {path...} of a request to a blob key under the
// book's splits prefix, writing a 400 for paths that escape it.
func splitFileKey(w http.ResponseWriter, r *http.Request) (key, rel string, ok bool) {
	rel = r.PathValue("path")
	clean := path.Clean("/" + rel)[1:]
	if clean == "" || clean != rel {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid file path %q", rel))
		return "", "", false
	}
	key, err := blobstore.CleanKey(path.Join(home.SplitsKey(r.PathValue("id")), clean))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	return key, clean, true
}
