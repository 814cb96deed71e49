package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/qsplit/internal/api"
	"github.com/jackzampolin/qsplit/internal/detect"
	"github.com/jackzampolin/qsplit/internal/headings"
	"github.com/jackzampolin/qsplit/internal/patterns"
	"github.com/jackzampolin/qsplit/internal/pipeline"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Inspect and validate section markers",
}

// patternsView is the printable form of a catalog.
type patternsView struct {
	Source         string               `json:"source,omitempty" yaml:"source,omitempty"`
	Split          patterns.SplitConfig `json:"split" yaml:"split"`
	Effective      patterns.Set         `json:"effective" yaml:"effective"`
	Overrides      patterns.Set         `json:"overrides" yaml:"overrides"`
	OverrideErrors []string             `json:"override_errors,omitempty" yaml:"override_errors,omitempty"`
	Issues         []patterns.Issue     `json:"issues,omitempty" yaml:"issues,omitempty"`
}

var patternsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective markers (defaults overlaid with patterns_file)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cm, _, err := setup()
		if err != nil {
			return err
		}
		cfg := cm.Get()
		cat, errs, err := cfg.LoadCatalog()
		if err != nil {
			return err
		}
		eff := cat.Effective()
		return api.Output(patternsView{
			Source:         cfg.PatternsFile,
			Split:          cfg.SplitConfig(),
			Effective:      eff,
			Overrides:      cat.Overrides(),
			OverrideErrors: errStrings(errs),
			Issues:         patterns.Validate(eff),
		})
	},
}

var patternsValidateCmd = &cobra.Command{
	Use:   "validate <patterns-file>",
	Short: "Check an override document",
	Long: `Check an override document against the schema, adapt it section by
section and lint the resulting markers.

Rejected sections fall back to the built-in markers at split time; they are
listed here so they can be fixed. The command fails when a section is
rejected or a lint issue is an error.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := patterns.LoadOverridesFile(args[0])
		if err != nil {
			return err
		}
		set, errs := doc.Adapt()
		eff := patterns.NewCatalog(&set).Effective()
		issues := patterns.Validate(eff)

		if err := api.Output(patternsView{
			Source:         args[0],
			Split:          patterns.DefaultSplitConfig(),
			Effective:      eff,
			Overrides:      set,
			OverrideErrors: errStrings(errs),
			Issues:         issues,
		}); err != nil {
			return err
		}
		if len(errs) > 0 || patterns.HasErrors(issues) {
			return fmt.Errorf("%s: %d rejected sections, %d issues", args[0], len(errs), len(issues))
		}
		return nil
	},
}

var headingsUnmatched bool

var headingsCmd = &cobra.Command{
	Use:   "headings <full.md>",
	Short: "List a document's headings and the markers they match",
	Long: `List every markdown heading of a chapter document with its line and the
start markers it matches. Headings that match nothing are the usual
candidates for a custom pattern.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cm, _, err := setup()
		if err != nil {
			return err
		}
		doc, err := pipeline.ReadDocument(args[0])
		if err != nil {
			return err
		}
		cat, _, err := cm.Get().LoadCatalog()
		if err != nil {
			return err
		}
		hs := headings.Inventory(doc, cat)
		if headingsUnmatched {
			hs = headings.Unmatched(hs)
		}
		if hs == nil {
			hs = []headings.Heading{}
		}
		return api.Output(hs)
	},
}

var detectSave string

var detectCmd = &cobra.Command{
	Use:   "detect <full.md>",
	Short: "Detect section markers with the configured chat model",
	Long: `Send the head of a chapter document to the configured OpenAI-compatible
chat model and print the markers it finds. Only markers that occur in the
document literally are kept.

--save writes the markers as an override document for split --patterns or
patterns_file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cm, logger, err := setup()
		if err != nil {
			return err
		}
		doc, err := pipeline.ReadDocument(args[0])
		if err != nil {
			return err
		}

		dcfg := cm.Get().ToDetectConfig()
		if dcfg.APIKey == "" {
			return fmt.Errorf("detect.api_key is not set (export OPENAI_API_KEY or edit the config)")
		}
		dcfg.Logger = logger

		res, err := detect.New(dcfg).Detect(cmd.Context(), doc)
		if err != nil {
			return err
		}
		if detectSave != "" {
			f, err := os.Create(detectSave)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := api.OutputTo(f, api.OutputFormatYAML, res.Patterns); err != nil {
				return err
			}
			logger.Info("saved detected patterns", "file", detectSave)
		}
		return api.Output(res)
	},
}

func errStrings(errs []error) []string {
	var out []string
	for _, err := range errs {
		out = append(out, err.Error())
	}
	return out
}

func init() {
	patternsCmd.AddCommand(patternsShowCmd)
	patternsCmd.AddCommand(patternsValidateCmd)

	headingsCmd.Flags().BoolVar(&headingsUnmatched, "unmatched", false, "Only list headings no marker matches")
	detectCmd.Flags().StringVar(&detectSave, "save", "", "Write the detected patterns to this file as an override document")

	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(headingsCmd)
	rootCmd.AddCommand(detectCmd)
}
