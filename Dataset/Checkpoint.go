package Dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrNoCheckpoint = errors.New("no checkpoint")

// Checkpoint is the resumable state of collecting one class.
type Checkpoint struct {
	Class      string   `json:"class"`
	URLs       []string `json:"urls"`
	NextOffset int      `json:"next_offset"`
	// Downloaded maps a source URL to the file it was written to.
	Downloaded map[string]string `json:"downloaded"`
}

func NewCheckpoint(class string) *Checkpoint {
	return &Checkpoint{
		Class:      class,
		NextOffset: 1,
		Downloaded: make(map[string]string),
	}
}

type CheckpointStore interface {
	// Load returns ErrNoCheckpoint when nothing was saved for class.
	Load(ctx context.Context, class string) (*Checkpoint, error)
	Save(ctx context.Context, cp *Checkpoint) error
	Clear(ctx context.Context, class string) error
}

// FileCheckpointStore keeps one JSON file per class in Dir.
type FileCheckpointStore struct {
	Dir string
}

func NewFileCheckpointStore(dir string) *FileCheckpointStore {
	return &FileCheckpointStore{Dir: dir}
}

func (s *FileCheckpointStore) path(class string) string {
	name := strings.NewReplacer("/", "_", string(filepath.Separator), "_").Replace(class)
	return filepath.Join(s.Dir, name+".json")
}

func (s *FileCheckpointStore) Load(_ context.Context, class string) (*Checkpoint, error) {
	data, err := os.ReadFile(s.path(class))
	if os.IsNotExist(err) {
		return nil, ErrNoCheckpoint
	}
	if err != nil {
		return nil, err
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint for %q: %w", class, err)
	}
	if cp.Downloaded == nil {
		cp.Downloaded = make(map[string]string)
	}
	return &cp, nil
}

// Save writes through a temporary file so an interrupted run never leaves a torn checkpoint.
func (s *FileCheckpointStore) Save(_ context.Context, cp *Checkpoint) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}

	tmp := s.path(cp.Class) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(cp.Class))
}

func (s *FileCheckpointStore) Clear(_ context.Context, class string) error {
	err := os.Remove(s.path(class))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
