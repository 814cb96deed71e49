package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/qsplit/internal/api"
	"github.com/jackzampolin/qsplit/internal/blobstore"
	"github.com/jackzampolin/qsplit/internal/config"
	"github.com/jackzampolin/qsplit/internal/home"
	"github.com/jackzampolin/qsplit/internal/ingest"
	"github.com/jackzampolin/qsplit/internal/ledger"
	"github.com/jackzampolin/qsplit/internal/mineru"
	"github.com/jackzampolin/qsplit/internal/workflow"
)

// local holds the services the book commands use without a server.
type local struct {
	home   *home.Dir
	cfg    *config.Config
	ledger *ledger.Ledger
	store  blobstore.Store
	runner *workflow.Runner
	logger *slog.Logger
}

// openLocal opens the ledger and blob store of the home directory.
func openLocal() (*local, error) {
	h, cm, logger, err := setup()
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, err
	}
	cfg := cm.Get()

	path := cfg.Ledger.Path
	if path == "" {
		path = h.LedgerPath()
	}
	led, err := ledger.Open(path)
	if err != nil {
		return nil, err
	}
	store, err := blobstore.NewFS(h.Path())
	if err != nil {
		led.Close()
		return nil, err
	}

	mcfg, err := cfg.ToMinerUConfig()
	if err != nil {
		led.Close()
		return nil, err
	}
	mcfg.Logger = logger
	reg, err := workflow.NewDefaultRegistry(workflow.Deps{
		Store:     store,
		Ledger:    led,
		Home:      h,
		Extractor: mineru.NewClient(mcfg),
	})
	if err != nil {
		led.Close()
		return nil, err
	}

	return &local{
		home:   h,
		cfg:    cfg,
		ledger: led,
		store:  store,
		runner: &workflow.Runner{Registry: reg, Ledger: led, Logger: logger},
		logger: logger,
	}, nil
}

func (l *local) Close() error {
	return l.ledger.Close()
}

// options returns stage options carrying the configured patterns.
func (l *local) options() (workflow.Options, error) {
	cat, errs, err := l.cfg.LoadCatalog()
	if err != nil {
		return workflow.Options{}, err
	}
	split := l.cfg.SplitConfig()
	return workflow.Options{
		Catalog:        cat,
		Split:          &split,
		OverrideErrors: errs,
		Logger:         l.logger,
	}, nil
}

var (
	ingestTitle     string
	ingestSourceURL string
	ingestProcess   bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <pdf-files...>",
	Short: "Register a chapter PDF as a book",
	Long: `Register one or more PDF files as a book in the home directory.

For multi-part scans, files are sorted by numeric suffix (e.g., chapter-1.pdf,
chapter-2.pdf) and merged. Title is derived from the filename if not provided.

--source-url is the public URL the extraction service downloads the PDF from.
With --process the book is extracted and split right away.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		l, err := openLocal()
		if err != nil {
			return err
		}
		defer l.Close()

		paths := make([]string, len(args))
		for i, a := range args {
			paths[i] = absPath(a)
		}
		res, err := ingest.Ingest(ctx, l.store, l.ledger, ingest.Request{
			PDFPaths:  paths,
			Title:     ingestTitle,
			SourceURL: ingestSourceURL,
			Logger:    l.logger,
		})
		if err != nil {
			return err
		}

		opts, err := l.options()
		if err != nil {
			return err
		}
		if ingestProcess {
			_, err = l.runner.RunAll(ctx, res.BookID, opts)
		} else {
			_, err = l.runner.Run(ctx, res.BookID, workflow.StageIngest, opts)
		}
		if err != nil {
			return err
		}
		return api.Output(res)
	},
}

var (
	extractSourceURL string
	extractPages     string
	extractNoSplit   bool
	extractForce     bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <book-id>",
	Short: "Extract a book with MinerU and split the result",
	Long: `Submit a book's PDF to the MinerU extraction service, wait for the task,
unpack full.md and images/ into the book directory and split the chapter.

The service fetches the PDF from the book's source URL; --source-url sets or
replaces it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		l, err := openLocal()
		if err != nil {
			return err
		}
		defer l.Close()

		opts, err := l.options()
		if err != nil {
			return err
		}
		opts.SourceURL = extractSourceURL
		opts.PageRanges = extractPages
		opts.Force = extractForce

		stages := []string{workflow.StageExtract}
		if !extractNoSplit {
			stages = append(stages, workflow.StageSplit)
		}
		var records []*ledger.StageRecord
		for _, s := range stages {
			rec, err := l.runner.Run(ctx, args[0], s, opts)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		if !extractNoSplit {
			fmt.Fprintf(os.Stderr, "split files in %s\n", l.home.SplitsDir(args[0]))
		}
		return api.Output(records)
	},
}

var booksCmd = &cobra.Command{
	Use:   "books",
	Short: "List registered books and their stage status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLocal()
		if err != nil {
			return err
		}
		defer l.Close()
		return listBooks(cmd.Context(), l)
	},
}

type bookStatus struct {
	ledger.Book `yaml:",inline"`
	Stages      map[string]ledger.Status `json:"stages" yaml:"stages"`
}

func listBooks(ctx context.Context, l *local) error {
	books, err := l.ledger.ListBooks(ctx)
	if err != nil {
		return err
	}
	out := make([]bookStatus, 0, len(books))
	for _, b := range books {
		records, err := l.runner.Status(ctx, b.ID)
		if err != nil {
			return err
		}
		bs := bookStatus{Book: b, Stages: map[string]ledger.Status{}}
		for _, r := range records {
			bs.Stages[r.Stage] = r.Status
		}
		out = append(out, bs)
	}
	return api.Output(out)
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "Book title (default: derived from filename)")
	ingestCmd.Flags().StringVar(&ingestSourceURL, "source-url", "", "Public URL of the PDF for the extraction service")
	ingestCmd.Flags().BoolVar(&ingestProcess, "process", false, "Extract and split after registering")

	extractCmd.Flags().StringVar(&extractSourceURL, "source-url", "", "Set the book's source URL before extracting")
	extractCmd.Flags().StringVar(&extractPages, "pages", "", "Page ranges to extract, e.g. 1-10")
	extractCmd.Flags().BoolVar(&extractNoSplit, "no-split", false, "Stop after extraction")
	extractCmd.Flags().BoolVar(&extractForce, "force", false, "Re-run stages that already completed")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(booksCmd)
}
