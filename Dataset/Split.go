package Dataset

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

// HoldoutPercent is the share of a class's remaining training files moved by each pass.
const HoldoutPercent = 20

// HoldoutCount is ceil(n * HoldoutPercent / 100).
func HoldoutCount(n int) int {
	return (n*HoldoutPercent + 99) / 100
}

type Move struct {
	Class string `json:"class"`
	File  string `json:"file"`
	From  Split  `json:"from"`
	To    Split  `json:"to"`
}

type ClassCounts struct {
	Train int `json:"train"`
	Valid int `json:"valid"`
	Test  int `json:"test"`
}

// Manifest records a realized split so it can be audited or reproduced.
type Manifest struct {
	Seed    int64                  `json:"seed"`
	Created time.Time              `json:"created"`
	Moves   []Move                 `json:"moves"`
	Counts  map[string]ClassCounts `json:"counts"`
}

func (m *Manifest) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// SplitDataset moves HoldoutCount of every train class into test, then repeats against
// the reduced train set to fill valid. The same seed over the same tree yields the same
// moves. onClass, if set, is called after each class of each pass.
func SplitDataset(layout Layout, seed int64, onClass func(to Split, class string)) (*Manifest, error) {
	rng := rand.New(rand.NewSource(seed))
	manifest := &Manifest{
		Seed:    seed,
		Created: time.Now().UTC(),
		Counts:  make(map[string]ClassCounts),
	}

	for _, to := range []Split{Test, Valid} {
		classes, err := layout.Classes(Train)
		if err != nil {
			return manifest, err
		}

		for _, class := range classes {
			moves, err := moveHoldout(layout, class, to, rng)
			manifest.Moves = append(manifest.Moves, moves...)
			if err != nil {
				return manifest, err
			}
			log.Debug("Moved ", len(moves), " files of ", class, " to ", to)
			if onClass != nil {
				onClass(to, class)
			}
		}
	}

	classes, err := layout.Classes(Train)
	if err != nil {
		return manifest, err
	}
	for _, class := range classes {
		counts, err := countClass(layout, class)
		if err != nil {
			return manifest, err
		}
		manifest.Counts[class] = counts
	}

	return manifest, nil
}

func moveHoldout(layout Layout, class string, to Split, rng *rand.Rand) ([]Move, error) {
	files, err := layout.Files(Train, class)
	if err != nil {
		return nil, err
	}

	n := HoldoutCount(len(files))
	if n == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(layout.ClassDir(to, class), 0o755); err != nil {
		return nil, err
	}

	var moves []Move
	for _, i := range rng.Perm(len(files))[:n] {
		file := files[i]
		src := filepath.Join(layout.ClassDir(Train, class), file)
		dst := filepath.Join(layout.ClassDir(to, class), file)
		if err := os.Rename(src, dst); err != nil {
			return moves, fmt.Errorf("move %s to %s: %w", src, dst, err)
		}
		moves = append(moves, Move{Class: class, File: file, From: Train, To: to})
	}

	return moves, nil
}

func countClass(layout Layout, class string) (ClassCounts, error) {
	var counts ClassCounts
	var err error
	if counts.Train, err = layout.CountFiles(Train, class); err != nil {
		return counts, err
	}
	if counts.Valid, err = layout.CountFiles(Valid, class); err != nil {
		return counts, err
	}
	if counts.Test, err = layout.CountFiles(Test, class); err != nil {
		return counts, err
	}
	return counts, nil
}

// Revert moves every file of the valid and test splits back into train and returns the
// number of files moved.
func Revert(layout Layout) (int, error) {
	moved := 0
	for _, from := range []Split{Valid, Test} {
		classes, err := layout.Classes(from)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return moved, err
		}

		for _, class := range classes {
			files, err := layout.Files(from, class)
			if err != nil {
				return moved, err
			}
			if len(files) == 0 {
				continue
			}
			if err := os.MkdirAll(layout.ClassDir(Train, class), 0o755); err != nil {
				return moved, err
			}
			for _, file := range files {
				src := filepath.Join(layout.ClassDir(from, class), file)
				dst := filepath.Join(layout.ClassDir(Train, class), file)
				if _, err := os.Stat(dst); err == nil {
					return moved, fmt.Errorf("revert %s: %s already exists", src, dst)
				}
				if err := os.Rename(src, dst); err != nil {
					return moved, err
				}
				moved++
			}
		}
	}
	return moved, nil
}
