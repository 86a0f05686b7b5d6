package export

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store persists the files of an export run, keyed by (exportID, path).
type Store interface {
	Put(ctx context.Context, exportID, path string, content []byte) error
	Get(ctx context.Context, exportID, path string) ([]byte, error)
	List(ctx context.Context, exportID string) ([]string, error)
}

var ErrNotFound = errors.New("export file not found")

// normalizeKey validates the pair and returns it trimmed, with path slash-relative.
func normalizeKey(exportID, path string) (string, string, error) {
	exportID, err := normalizeID(exportID)
	if err != nil {
		return "", "", err
	}
	path = strings.TrimLeft(strings.TrimSpace(path), "/")
	if path == "" {
		return "", "", fmt.Errorf("path is required")
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return "", "", fmt.Errorf("invalid path: %s", path)
		}
	}
	return exportID, path, nil
}

func normalizeID(exportID string) (string, error) {
	exportID = strings.TrimSpace(exportID)
	if exportID == "" {
		return "", fmt.Errorf("export_id is required")
	}
	if strings.ContainsAny(exportID, `/\`) || exportID == "." || exportID == ".." {
		return "", fmt.Errorf("invalid export_id: %s", exportID)
	}
	return exportID, nil
}

func objectKey(exportID, path string) string {
	return exportID + "/" + path
}
