package home

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the qsplit home directory.
	DefaultDirName = ".qsplit"

	// BooksDirName is the subdirectory holding one directory per book.
	BooksDirName = "books"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// LedgerFileName is the SQLite ledger file name.
	LedgerFileName = "ledger.db"
)

// Per-book layout, relative to books/<id>.
const (
	OriginalName  = "original.pdf"
	ExtractedName = "extracted"
	SplitsName    = "splits"
)

// Dir represents the qsplit home directory structure:
//
//	~/.qsplit/
//	  config.yaml
//	  ledger.db
//	  books/<id>/original.pdf
//	  books/<id>/extracted/full.md, images/
//	  books/<id>/splits/Question_output/, Answer_key/, Answer_output/
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.qsplit).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// BooksPath returns the path to the books directory.
func (d *Dir) BooksPath() string {
	return filepath.Join(d.path, BooksDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// LedgerPath returns the path to the default ledger database.
func (d *Dir) LedgerPath() string {
	return filepath.Join(d.path, LedgerFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	// Create books directory (this also creates the parent)
	if err := os.MkdirAll(d.BooksPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create books directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// BookDir returns the directory of a book.
func (d *Dir) BookDir(bookID string) string {
	return filepath.Join(d.BooksPath(), bookID)
}

// ExtractedDir returns the directory holding a book's full.md and images.
func (d *Dir) ExtractedDir(bookID string) string {
	return filepath.Join(d.BookDir(bookID), ExtractedName)
}

// SplitsDir returns the directory holding a book's split files.
func (d *Dir) SplitsDir(bookID string) string {
	return filepath.Join(d.BookDir(bookID), SplitsName)
}

// Blob store keys. The blob store is rooted at the home directory, so these
// are the slash-separated equivalents of the paths above.

// BookKey returns the blob key of a book directory, optionally joined with
// more elements.
func BookKey(bookID string, elem ...string) string {
	return path.Join(append([]string{BooksDirName, bookID}, elem...)...)
}

// OriginalKey returns the blob key of a book's source PDF.
func OriginalKey(bookID string) string {
	return BookKey(bookID, OriginalName)
}

// SplitsKey returns the blob key prefix of a book's split files.
func SplitsKey(bookID string) string {
	return BookKey(bookID, SplitsName)
}
