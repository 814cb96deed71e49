package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/qsplit/internal/api"
	"github.com/jackzampolin/qsplit/internal/config"
	"github.com/jackzampolin/qsplit/internal/output"
	"github.com/jackzampolin/qsplit/internal/patterns"
	"github.com/jackzampolin/qsplit/internal/pipeline"
)

var (
	splitOut      string
	splitPatterns string
	splitPrepend  []string
	splitLevel1At int
	splitLevel2At int
	splitNoLevel1 bool
	splitNoLevel2 bool
	splitDryRun   bool
)

var splitCmd = &cobra.Command{
	Use:   "split <full.md>",
	Short: "Split a chapter document into section files",
	Long: `Split a chapter document into the Question_output, Answer_key and
Answer_output directories, copy full.md and images/ next to them and write
report.yaml.

Markers come from the built-in tables, overlaid with the configured
patterns_file, overlaid with --patterns. --prepend puts a single marker in
front of a section's list:

  --prepend questions/level1/start="# LEVEL-I"

Examples:
  qsplit split chapter/full.md
  qsplit split chapter/full.md --out build/ch4 --level1-at 11
  qsplit split chapter/full.md --patterns ch4.yaml --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, cm, logger, err := setup()
		if err != nil {
			return err
		}

		doc, err := pipeline.ReadDocument(args[0])
		if err != nil {
			return err
		}

		opts, err := localSplitOptions(cmd, cm.Get())
		if err != nil {
			return err
		}
		opts.Logger = logger

		res := pipeline.Run(doc, opts)
		if splitDryRun {
			return api.Output(res.Report)
		}

		out := splitOut
		if out == "" {
			out = filepath.Join(filepath.Dir(args[0]), "splits")
		}
		w, err := output.NewDirWriter(out, logger)
		if err != nil {
			return err
		}
		sum, err := w.Write(ctx, res, filepath.Dir(args[0]))
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %d files to %s (%d placeholders)\n", len(sum.Files), absPath(out), sum.Placeholders)
		return api.Output(res.Report)
	},
}

// localSplitOptions layers the command's flags over the config.
func localSplitOptions(cmd *cobra.Command, cfg *config.Config) (pipeline.Options, error) {
	cat, errs, err := cfg.LoadCatalog()
	if err != nil {
		return pipeline.Options{}, err
	}

	if splitPatterns != "" {
		doc, err := patterns.LoadOverridesFile(splitPatterns)
		if err != nil {
			return pipeline.Options{}, err
		}
		set, more := doc.Adapt()
		cat = patterns.NewCatalogFrom(cat.Effective(), &set)
		errs = append(errs, more...)
	}

	for _, p := range splitPrepend {
		view, sec, kind, marker, err := parsePrepend(p)
		if err != nil {
			return pipeline.Options{}, err
		}
		if cat, err = cat.WithPrepended(view, sec, kind, marker); err != nil {
			return pipeline.Options{}, err
		}
	}

	split := cfg.SplitConfig()
	if cmd.Flags().Changed("level1-at") {
		split.Level1.At = splitLevel1At
	}
	if cmd.Flags().Changed("level2-at") {
		split.Level2.At = splitLevel2At
	}
	if splitNoLevel1 {
		split.Level1.Enabled = false
	}
	if splitNoLevel2 {
		split.Level2.Enabled = false
	}
	if err := split.Validate(); err != nil {
		return pipeline.Options{}, err
	}

	return pipeline.Options{Catalog: cat, Split: &split, OverrideErrors: errs}, nil
}

// parsePrepend parses view/section/kind=marker.
func parsePrepend(s string) (patterns.View, patterns.Section, patterns.MarkerKind, string, error) {
	target, marker, ok := strings.Cut(s, "=")
	parts := strings.Split(target, "/")
	if !ok || len(parts) != 3 {
		return "", "", "", "", fmt.Errorf("invalid --prepend %q (want view/section/start=marker)", s)
	}
	view, err := patterns.ParseView(parts[0])
	if err != nil {
		return "", "", "", "", err
	}
	sec, err := patterns.ParseSection(parts[1])
	if err != nil {
		return "", "", "", "", err
	}
	// Shells make a literal \n awkward to type.
	marker = strings.ReplaceAll(marker, `\n`, "\n")
	return view, sec, patterns.MarkerKind(parts[2]), marker, nil
}

func init() {
	splitCmd.Flags().StringVar(&splitOut, "out", "", "Output directory (default: <input dir>/splits)")
	splitCmd.Flags().StringVar(&splitPatterns, "patterns", "", "Override document (YAML or JSON) layered over the configured patterns")
	splitCmd.Flags().StringArrayVar(&splitPrepend, "prepend", nil, "Prepend a marker: view/section/start=marker (repeatable)")
	splitCmd.Flags().IntVar(&splitLevel1At, "level1-at", 13, "Level 1 question that opens part 2")
	splitCmd.Flags().IntVar(&splitLevel2At, "level2-at", 11, "Level 2 question that opens part 2")
	splitCmd.Flags().BoolVar(&splitNoLevel1, "no-level1-split", false, "Write level 1 whole to both parts")
	splitCmd.Flags().BoolVar(&splitNoLevel2, "no-level2-split", false, "Write level 2 whole to both parts")
	splitCmd.Flags().BoolVar(&splitDryRun, "dry-run", false, "Print the report without writing files")

	rootCmd.AddCommand(splitCmd)
}
