package endpoints

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/qsplit/internal/api"
	"github.com/jackzampolin/qsplit/internal/home"
	"github.com/jackzampolin/qsplit/internal/output"
	"github.com/jackzampolin/qsplit/internal/svcctx"
)

// DeleteImageEndpoint handles DELETE /api/books/{id}/images/{name}?holder=<name>.
// It removes the image from the extracted and split directories and strips
// its references from the split files. The caller must hold the book's edit
// lock or the lock must be free.
type DeleteImageEndpoint struct{}

func (e *DeleteImageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/books/{id}/images/{name}", e.handler
}

func (e *DeleteImageEndpoint) RequiresInit() bool { return true }

func (e *DeleteImageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, name := r.PathValue("id"), r.PathValue("name")
	holder := r.URL.Query().Get("holder")
	if holder == "" {
		writeError(w, http.StatusBadRequest, "holder is required")
		return
	}
	if !output.ValidImageName(name) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid image name %q", name))
		return
	}

	led := svcctx.LedgerFrom(ctx)
	if _, err := led.GetBook(ctx, id); err != nil {
		writeLedgerError(w, err)
		return
	}
	if err := led.CheckEditable(ctx, id, holder); err != nil {
		writeLedgerError(w, err)
		return
	}

	store := svcctx.StoreFrom(ctx)
	extracted := home.BookKey(id, home.ExtractedName, path.Join(output.ImagesDir, name))
	hadExtracted, err := store.Exists(ctx, extracted)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if hadExtracted {
		if err := store.Delete(ctx, extracted); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	logger := svcctx.LoggerFrom(ctx)
	writer := &output.Writer{Store: store, Prefix: home.SplitsKey(id), Logger: logger}
	rm, err := writer.RemoveImage(ctx, name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rm.Deleted = rm.Deleted || hadExtracted
	if !rm.Deleted && len(rm.UpdatedFiles) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("image %s not found", name))
		return
	}

	for _, f := range rm.UpdatedFiles {
		if err := led.RecordModification(ctx, id, holder, f); err != nil {
			writeLedgerError(w, err)
			return
		}
	}
	logger.Info("image deleted", "book_id", id, "image", name, "holder", holder, "updated_files", len(rm.UpdatedFiles))
	writeJSON(w, http.StatusOK, rm)
}

func (e *DeleteImageEndpoint) Command(getServerURL func() string) *cobra.Command {
	var holder string
	cmd := &cobra.Command{
		Use:   "delete-image <id> <image-name>",
		Short: "Delete an image and strip its references from the split files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp output.ImageRemoval
			p := "/api/books/" + args[0] + "/images/" + url.PathEscape(args[1]) + "?holder=" + url.QueryEscape(holder)
			if err := client.Delete(cmd.Context(), p, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&holder, "holder", os.Getenv("USER"), "Lock holder")
	return cmd
}
