package endpoints

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/qsplit/internal/api"
	"github.com/jackzampolin/qsplit/internal/ledger"
	"github.com/jackzampolin/qsplit/internal/svcctx"
	"github.com/jackzampolin/qsplit/internal/workflow"
)

// RunStageRequest configures a stage run.
type RunStageRequest struct {
	SourceURL  string `json:"source_url,omitempty"`
	PageRanges string `json:"page_ranges,omitempty"`
	Force      bool   `json:"force,omitempty"`
}

// RunStageEndpoint handles POST /api/books/{id}/stages/{stage}.
// The request blocks until the stage finishes.
type RunStageEndpoint struct{}

func (e *RunStageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books/{id}/stages/{stage}", e.handler
}

func (e *RunStageEndpoint) RequiresInit() bool { return true }

func (e *RunStageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, name := r.PathValue("id"), r.PathValue("stage")

	var req RunStageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	runner := svcctx.RunnerFrom(ctx)
	st := svcctx.PatternsFrom(ctx)
	split := st.Split
	rec, err := runner.Run(ctx, id, name, workflow.Options{
		SourceURL:      req.SourceURL,
		PageRanges:     req.PageRanges,
		Catalog:        st.Catalog,
		Split:          &split,
		OverrideErrors: st.Errors,
		Force:          req.Force,
		Logger:         svcctx.LoggerFrom(ctx),
	})
	switch {
	case errors.Is(err, workflow.ErrStageNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, workflow.ErrDependencyIncomplete), errors.Is(err, workflow.ErrNoSourceURL):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeLedgerError(w, err)
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

func (e *RunStageEndpoint) Command(getServerURL func() string) *cobra.Command {
	var req RunStageRequest
	cmd := &cobra.Command{
		Use:   "run <id> <stage>",
		Short: "Run a stage (ingest, extract, split) for a book",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var rec ledger.StageRecord
			if err := client.Post(cmd.Context(), "/api/books/"+args[0]+"/stages/"+args[1], req, &rec); err != nil {
				return err
			}
			return api.Output(rec)
		},
	}
	cmd.Flags().StringVar(&req.SourceURL, "source-url", "", "Override the book's source URL for extraction")
	cmd.Flags().StringVar(&req.PageRanges, "pages", "", "Page ranges to extract, e.g. 1-10")
	cmd.Flags().BoolVar(&req.Force, "force", false, "Re-run a completed stage")
	return cmd
}

// StageStatusEndpoint handles GET /api/books/{id}/status.
type StageStatusEndpoint struct{}

func (e *StageStatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/status", e.handler
}

func (e *StageStatusEndpoint) RequiresInit() bool { return true }

func (e *StageStatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	records, err := svcctx.RunnerFrom(r.Context()).Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (e *StageStatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show the stage status of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var records []ledger.StageRecord
			if err := client.Get(cmd.Context(), "/api/books/"+args[0]+"/status", &records); err != nil {
				return err
			}
			return api.Output(records)
		},
	}
}
