package blob

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	tserrors "github.com/tenantsync/engine/internal/errors"
)

type filesystemStore struct {
	root string
}

func newFilesystemStore(root string) (Store, error) {
	if root == "" {
		root = "./data/blobs"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, tserrors.Config("blob_root_unwritable", "create blob root", err)
	}
	return &filesystemStore{root: root}, nil
}

// sanitizeKey collapses the key to a relative path and rejects traversal.
func sanitizeKey(key string) string {
	key = strings.TrimPrefix(path.Clean("/"+key), "/")
	return strings.ReplaceAll(key, "..", "_")
}

func (s *filesystemStore) pathFor(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(sanitizeKey(key)))
}

func (s *filesystemStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	fullPath := s.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", tserrors.TransientIO("blob_write_failed", "create blob directory", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", tserrors.TransientIO("blob_write_failed", "write blob", err)
	}
	return "file://" + fullPath, nil
}

func (s *filesystemStore) resolve(location string) string {
	return strings.TrimPrefix(location, "file://")
}

func (s *filesystemStore) Get(_ context.Context, location string) ([]byte, error) {
	data, err := os.ReadFile(s.resolve(location))
	if os.IsNotExist(err) {
		return nil, tserrors.NotFound("blob_not_found", "blob not found", err)
	}
	if err != nil {
		return nil, tserrors.TransientIO("blob_read_failed", "read blob", err)
	}
	return data, nil
}

func (s *filesystemStore) GetReader(_ context.Context, location string) (io.ReadCloser, error) {
	f, err := os.Open(s.resolve(location))
	if os.IsNotExist(err) {
		return nil, tserrors.NotFound("blob_not_found", "blob not found", err)
	}
	if err != nil {
		return nil, tserrors.TransientIO("blob_read_failed", "open blob", err)
	}
	return f, nil
}

func (s *filesystemStore) Delete(_ context.Context, location string) error {
	if err := os.Remove(s.resolve(location)); err != nil && !os.IsNotExist(err) {
		return tserrors.TransientIO("blob_delete_failed", "delete blob", err)
	}
	return nil
}
