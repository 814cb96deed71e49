package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/qsplit/internal/api"
	"github.com/jackzampolin/qsplit/internal/detect"
	"github.com/jackzampolin/qsplit/internal/headings"
	"github.com/jackzampolin/qsplit/internal/patterns"
	"github.com/jackzampolin/qsplit/internal/pipeline"
	"github.com/jackzampolin/qsplit/internal/svcctx"
)

// PatternsResponse describes the patterns the server splits with.
type PatternsResponse struct {
	Source         string               `json:"source,omitempty" yaml:"source,omitempty"`
	Split          patterns.SplitConfig `json:"split" yaml:"split"`
	Effective      patterns.Set         `json:"effective" yaml:"effective"`
	Overrides      patterns.Set         `json:"overrides" yaml:"overrides"`
	OverrideErrors []string             `json:"override_errors,omitempty" yaml:"override_errors,omitempty"`
	Issues         []patterns.Issue     `json:"issues,omitempty" yaml:"issues,omitempty"`
}

// PatternsEndpoint handles GET /api/patterns.
type PatternsEndpoint struct{}

func (e *PatternsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/patterns", e.handler
}

func (e *PatternsEndpoint) RequiresInit() bool { return false }

func (e *PatternsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.PatternsFrom(r.Context())
	eff := st.Catalog.Effective()
	writeJSON(w, http.StatusOK, PatternsResponse{
		Source:         st.Source,
		Split:          st.Split,
		Effective:      eff,
		Overrides:      st.Catalog.Overrides(),
		OverrideErrors: errorStrings(st.Errors),
		Issues:         patterns.Validate(eff),
	})
}

func (e *PatternsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "patterns",
		Short: "Show the patterns the server splits with",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp PatternsResponse
			if err := client.Get(cmd.Context(), "/api/patterns", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// DocumentRequest carries a chapter document.
type DocumentRequest struct {
	Markdown string `json:"markdown"`
}

// DetectEndpoint handles POST /api/detect.
type DetectEndpoint struct{}

func (e *DetectEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/detect", e.handler
}

func (e *DetectEndpoint) RequiresInit() bool { return false }

func (e *DetectEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	d := svcctx.DetectorFrom(r.Context())
	if d == nil {
		writeError(w, http.StatusServiceUnavailable, "pattern detection not configured")
		return
	}

	res, err := d.Detect(r.Context(), req.Markdown)
	if errors.Is(err, detect.ErrNoPatterns) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (e *DetectEndpoint) Command(getServerURL func() string) *cobra.Command {
	var save string
	cmd := &cobra.Command{
		Use:   "detect <full.md>",
		Short: "Detect section markers with the configured chat model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := pipeline.ReadDocument(args[0])
			if err != nil {
				return err
			}
			client := api.NewClient(getServerURL())
			var resp detect.Result
			if err := client.Post(cmd.Context(), "/api/detect", DocumentRequest{Markdown: doc}, &resp); err != nil {
				return err
			}
			if save != "" {
				f, err := os.Create(save)
				if err != nil {
					return err
				}
				defer f.Close()
				if err := api.OutputTo(f, api.OutputFormatYAML, resp.Patterns); err != nil {
					return err
				}
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&save, "save", "", "Write the detected patterns to this file as an override document")
	return cmd
}

// HeadingsEndpoint handles POST /api/headings.
type HeadingsEndpoint struct{}

func (e *HeadingsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/headings", e.handler
}

func (e *HeadingsEndpoint) RequiresInit() bool { return false }

func (e *HeadingsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	hs := headings.Inventory(req.Markdown, svcctx.PatternsFrom(r.Context()).Catalog)
	if r.URL.Query().Get("unmatched") == "true" {
		hs = headings.Unmatched(hs)
	}
	if hs == nil {
		hs = []headings.Heading{}
	}
	writeJSON(w, http.StatusOK, hs)
}

func (e *HeadingsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var unmatched bool
	cmd := &cobra.Command{
		Use:   "headings <full.md>",
		Short: "List a document's headings and the markers they match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := pipeline.ReadDocument(args[0])
			if err != nil {
				return err
			}
			path := "/api/headings"
			if unmatched {
				path += "?unmatched=true"
			}
			client := api.NewClient(getServerURL())
			var resp []headings.Heading
			if err := client.Post(cmd.Context(), path, DocumentRequest{Markdown: doc}, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().BoolVar(&unmatched, "unmatched", false, "Only list headings no marker matches")
	return cmd
}
