package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"lootforge/internal/safeio"
	"lootforge/internal/util/jsonutil"
)

// FileStore keeps the session as one indented JSON document.
type FileStore struct {
	path string
	now  func() time.Time
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: strings.TrimSpace(path), now: time.Now}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	fsys, name, err := s.open(false)
	if errors.Is(err, fs.ErrNotExist) {
		return Normalize(Snapshot{}), nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	raw, err := fsys.SafeReadFile(name)
	if errors.Is(err, fs.ErrNotExist) {
		return Normalize(Snapshot{}), nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read session %s: %w", s.path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode session %s: %w", s.path, err)
	}
	return Normalize(snap), nil
}

func (s *FileStore) Save(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snap = Normalize(snap)
	snap.SavedAt = s.now().UTC()
	raw, err := jsonutil.MarshalNoEscapeIndent(snap)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	fsys, name, err := s.open(true)
	if err != nil {
		return err
	}
	if err := fsys.SafeWriteFile(name, raw); err != nil {
		return fmt.Errorf("write session %s: %w", s.path, err)
	}
	return nil
}

// open binds a SafeFS to the session's directory, creating it when writing.
func (s *FileStore) open(create bool) (*safeio.SafeFS, string, error) {
	if s.path == "" {
		return nil, "", errors.New("session: empty file path")
	}
	dir, name := filepath.Split(s.path)
	if dir == "" {
		dir = "."
	}
	if create {
		fsys, err := safeio.Ensure(dir)
		return fsys, name, err
	}
	fsys, err := safeio.NewSafeFS(dir)
	return fsys, name, err
}
