// Package Dataset owns the on-disk image tree: one directory per split, one
// sub-directory per food class, images as loose files.
package Dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

type Split string

const (
	Train Split = "train"
	Valid Split = "valid"
	Test  Split = "test"
)

var Splits = []Split{Train, Valid, Test}

type Layout struct {
	Root string
}

func NewLayout(root string) Layout {
	return Layout{Root: root}
}

func (l Layout) SplitDir(split Split) string {
	return filepath.Join(l.Root, string(split))
}

func (l Layout) ClassDir(split Split, class string) string {
	return filepath.Join(l.Root, string(split), class)
}

// EnsureClass creates the class directory under every split.
func (l Layout) EnsureClass(class string) error {
	for _, split := range Splits {
		if err := os.MkdirAll(l.ClassDir(split, class), 0o755); err != nil {
			return fmt.Errorf("create %s directory for %q: %w", split, class, err)
		}
	}
	return nil
}

// Classes lists the class directories of a split in lexical order.
func (l Layout) Classes(split Split) ([]string, error) {
	entries, err := os.ReadDir(l.SplitDir(split))
	if err != nil {
		return nil, err
	}

	var classes []string
	for _, e := range entries {
		if e.IsDir() {
			classes = append(classes, e.Name())
		}
	}
	sort.Strings(classes)
	return classes, nil
}

// Files lists the regular files of a class directory in lexical order. A missing directory
// has no files.
func (l Layout) Files(split Split, class string) ([]string, error) {
	entries, err := os.ReadDir(l.ClassDir(split, class))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func (l Layout) CountFiles(split Split, class string) (int, error) {
	files, err := l.Files(split, class)
	return len(files), err
}
