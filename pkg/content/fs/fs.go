package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/marmos91/dittoweb/pkg/content"
)

// FSContentStore serves content from a directory on the local filesystem.
//
// Content IDs map to paths below basePath. IDs are validated with
// content.ParseID before touching the filesystem, so a store never opens a
// path outside its root.
//
// Thread safety: all methods are safe for concurrent use; the store holds no
// mutable state besides the base path.
type FSContentStore struct {
	basePath string
}

// NewFSContentStore creates a store rooted at basePath.
//
// When create is true the directory is created if missing (used by tests
// and by `dittoweb init`); otherwise basePath must already be a directory.
func NewFSContentStore(ctx context.Context, basePath string, create bool) (*FSContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory %q: %w", basePath, err)
	}

	if create {
		if err := os.MkdirAll(abs, 0755); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to access base directory %q: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("base path %q is not a directory", abs)
	}

	return &FSContentStore{basePath: abs}, nil
}

// BasePath returns the absolute document root.
func (r *FSContentStore) BasePath() string {
	return r.basePath
}

func (r *FSContentStore) getFilePath(id content.ContentID) (string, error) {
	clean, err := content.ParseID(string(id))
	if err != nil {
		return "", fmt.Errorf("content %s: %w", id, err)
	}
	return filepath.Join(r.basePath, filepath.FromSlash(string(clean))), nil
}

// mapError converts filesystem errors into content store errors.
func mapError(id content.ContentID, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("content %s: %w", id, content.ErrAccessDenied)
	default:
		return err
	}
}

func (r *FSContentStore) statRegular(id content.ContentID) (string, os.FileInfo, error) {
	filePath, err := r.getFilePath(id)
	if err != nil {
		return "", nil, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return "", nil, mapError(id, err)
	}
	if !info.Mode().IsRegular() {
		return "", nil, fmt.Errorf("content %s: %w", id, content.ErrNotRegularFile)
	}

	return filePath, info, nil
}

func (r *FSContentStore) ReadContent(ctx context.Context, id content.ContentID) (io.ReadCloser, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	filePath, _, err := r.statRegular(id)
	if err != nil {
		return nil, 0, err
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, 0, mapError(id, err)
	}

	// The path may have been replaced since statRegular; size the open file.
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, 0, mapError(id, err)
	}
	if !info.Mode().IsRegular() {
		_ = file.Close()
		return nil, 0, fmt.Errorf("content %s: %w", id, content.ErrNotRegularFile)
	}

	return file, uint64(info.Size()), nil
}

func (r *FSContentStore) GetContentSize(ctx context.Context, id content.ContentID) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	_, info, err := r.statRegular(id)
	if err != nil {
		return 0, err
	}

	return uint64(info.Size()), nil
}

func (r *FSContentStore) ContentExists(ctx context.Context, id content.ContentID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, _, err := r.statRegular(id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, content.ErrContentNotFound), errors.Is(err, content.ErrNotRegularFile):
		return false, nil
	default:
		return false, fmt.Errorf("failed to check content existence: %w", err)
	}
}

func (r *FSContentStore) WriteContent(ctx context.Context, id content.ContentID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	filePath, err := r.getFilePath(id)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}

	return nil
}

func (r *FSContentStore) Delete(ctx context.Context, id content.ContentID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	filePath, err := r.getFilePath(id)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete content: %w", err)
	}

	return nil
}

// Close is a no-op; the filesystem store holds no open handles.
func (r *FSContentStore) Close() error {
	return nil
}
