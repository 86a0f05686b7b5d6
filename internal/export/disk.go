package export

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"lootforge/internal/safeio"
)

// DiskStore writes each export under <root>/<exportID>/<path>.
type DiskStore struct {
	root string
}

func NewDiskStore(root string) *DiskStore {
	return &DiskStore{root: strings.TrimSpace(root)}
}

func (s *DiskStore) fs() (*safeio.SafeFS, error) {
	if s == nil || s.root == "" {
		return nil, fmt.Errorf("root is required")
	}
	return safeio.Ensure(s.root)
}

func (s *DiskStore) Put(_ context.Context, exportID, path string, content []byte) error {
	exportID, path, err := normalizeKey(exportID, path)
	if err != nil {
		return err
	}
	fsys, err := s.fs()
	if err != nil {
		return err
	}
	return fsys.SafeWriteFile(objectKey(exportID, path), content)
}

func (s *DiskStore) Get(_ context.Context, exportID, path string) ([]byte, error) {
	exportID, path, err := normalizeKey(exportID, path)
	if err != nil {
		return nil, err
	}
	fsys, err := s.fs()
	if err != nil {
		return nil, err
	}
	raw, err := fsys.SafeReadFile(objectKey(exportID, path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return raw, err
}

func (s *DiskStore) List(_ context.Context, exportID string) ([]string, error) {
	exportID, err := normalizeID(exportID)
	if err != nil {
		return nil, err
	}
	fsys, err := s.fs()
	if err != nil {
		return nil, err
	}
	prefix := exportID + "/"
	paths := make([]string, 0, 32)
	err = fsys.WalkFiles(exportID, func(rel string) error {
		paths = append(paths, strings.TrimPrefix(rel, prefix))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
