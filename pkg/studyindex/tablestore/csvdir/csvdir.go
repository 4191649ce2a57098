// Package csvdir stores each table as <name>.csv inside one directory.
package csvdir

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cognicore/studyindex/pkg/studyindex/tablestore"
)

const ext = ".csv"

// Backend is a directory of CSV files.
type Backend struct {
	dir string
}

// New returns a backend rooted at dir, creating the directory if needed.
func New(dir string) (*Backend, error) {
	if dir == "" {
		return nil, fmt.Errorf("csvdir: directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("csvdir: %w", err)
	}
	return &Backend{dir: dir}, nil
}

// Dir returns the backing directory.
func (b *Backend) Dir() string { return b.dir }

func (b *Backend) path(name string) string {
	return filepath.Join(b.dir, name+ext)
}

func (b *Backend) ListTables(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("csvdir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
	}
	sort.Strings(out)
	return out, nil
}

func (b *Backend) ReadTable(ctx context.Context, name string) ([]string, [][]string, error) {
	f, err := os.Open(b.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("csvdir: %w", err)
	}
	defer f.Close()
	return tablestore.ReadCSV(f)
}

// WriteTable replaces the file through a temporary sibling so a failed
// write never leaves a truncated table behind.
func (b *Backend) WriteTable(ctx context.Context, name string, header []string, records [][]string) error {
	tmp, err := os.CreateTemp(b.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("csvdir: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tablestore.WriteCSV(tmp, header, records); err != nil {
		tmp.Close()
		return fmt.Errorf("csvdir %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("csvdir %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), b.path(name)); err != nil {
		return fmt.Errorf("csvdir %s: %w", name, err)
	}
	return nil
}

func (b *Backend) DeleteTable(ctx context.Context, name string) error {
	err := os.Remove(b.path(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("csvdir: %w", err)
	}
	return nil
}
