package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/qsplit/internal/api"
	"github.com/jackzampolin/qsplit/internal/output"
	"github.com/jackzampolin/qsplit/internal/patterns"
	"github.com/jackzampolin/qsplit/internal/pipeline"
	"github.com/jackzampolin/qsplit/internal/svcctx"
)

// SplitRequest is the request body for splitting a chapter document.
type SplitRequest struct {
	Markdown string `json:"markdown"`

	// Split is decoded over the configured split rules, so fields it omits
	// keep the server's values: {"level1": {"at": 11}} changes one ordinal.
	Split json.RawMessage `json:"split,omitempty"`

	// Patterns is an override document layered over the server's patterns.
	Patterns map[string]any `json:"patterns,omitempty"`
}

// SplitResponse holds every output file and the extraction report.
type SplitResponse struct {
	Files  map[string]string `json:"files" yaml:"files"`
	Report *pipeline.Report  `json:"report" yaml:"report"`
}

// SplitEndpoint handles POST /api/split.
type SplitEndpoint struct{}

func (e *SplitEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/split", e.handler
}

func (e *SplitEndpoint) RequiresInit() bool { return false }

func (e *SplitEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req SplitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Markdown == "" {
		writeError(w, http.StatusBadRequest, "markdown is required")
		return
	}

	opts, err := splitOptions(r, req.Split, req.Patterns)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := pipeline.Run(req.Markdown, opts)
	writeJSON(w, http.StatusOK, SplitResponse{Files: res.Files, Report: res.Report})
}

// splitOptions builds pipeline options from the server's current patterns
// and the per-request overrides.
func splitOptions(r *http.Request, split json.RawMessage, raw map[string]any) (pipeline.Options, error) {
	st := svcctx.PatternsFrom(r.Context())
	opts := pipeline.Options{
		Catalog:        st.Catalog,
		OverrideErrors: st.Errors,
		Logger:         svcctx.LoggerFrom(r.Context()),
	}

	cfg := st.Split
	if len(split) > 0 {
		if err := json.Unmarshal(split, &cfg); err != nil {
			return opts, fmt.Errorf("invalid split: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return opts, err
	}
	opts.Split = &cfg

	if raw != nil {
		doc, err := patterns.NewOverrideDocument(raw)
		if err != nil {
			return opts, err
		}
		set, errs := doc.Adapt()
		opts.Catalog = patterns.NewCatalogFrom(st.Catalog.Effective(), &set)
		opts.OverrideErrors = append(append([]error{}, st.Errors...), errs...)
	}
	return opts, nil
}

func (e *SplitEndpoint) Command(getServerURL func() string) *cobra.Command {
	var patternsFile, outDir string
	cmd := &cobra.Command{
		Use:   "split <full.md>",
		Short: "Split a chapter document on the server",
		Long: `Send a chapter document to the server and print the extraction report.

With --out, the split files are written locally in the
Question_output / Answer_key / Answer_output layout, together with
full.md and images/ from the document's directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			doc, err := pipeline.ReadDocument(args[0])
			if err != nil {
				return err
			}

			req := SplitRequest{Markdown: doc}
			if patternsFile != "" {
				od, err := patterns.LoadOverridesFile(patternsFile)
				if err != nil {
					return err
				}
				req.Patterns = od.Raw()
			}

			client := api.NewClient(getServerURL())
			var resp SplitResponse
			if err := client.Post(ctx, "/api/split", req, &resp); err != nil {
				return err
			}

			if outDir != "" {
				w, err := output.NewDirWriter(outDir, nil)
				if err != nil {
					return err
				}
				if _, err := w.Write(ctx, &pipeline.Result{Files: resp.Files, Report: resp.Report}, filepath.Dir(args[0])); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "wrote %d files to %s\n", len(resp.Files), outDir)
			}
			return api.Output(resp.Report)
		},
	}
	cmd.Flags().StringVar(&patternsFile, "patterns", "", "Override document (YAML or JSON) for this request")
	cmd.Flags().StringVar(&outDir, "out", "", "Write split files to this directory")
	return cmd
}
