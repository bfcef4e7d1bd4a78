// internal/storage/local.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/FairForge/stevedore/internal/transfer"
)

// LocalStore implements transfer.ObjectStore on a directory tree, with
// bucket/key mapping to subdirectory/file. Used for development and tests.
type LocalStore struct {
	root   string
	logger *zap.Logger
}

// NewLocalStore creates a filesystem-rooted object store.
func NewLocalStore(root string, logger *zap.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStore{root: root, logger: logger}, nil
}

func (l *LocalStore) path(uri string) (string, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.root, bucket, filepath.FromSlash(key)), nil
}

// Copy duplicates an object inside the store.
func (l *LocalStore) Copy(ctx context.Context, src, dst string) error {
	srcPath, err := l.path(src)
	if err != nil {
		return err
	}
	dstPath, err := l.path(dst)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return classifyLocal(copyFile(srcPath, dstPath), src, "copy")
}

// Download copies an object out to localPath.
func (l *LocalStore) Download(ctx context.Context, src, localPath string) error {
	srcPath, err := l.path(src)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return classifyLocal(copyFile(srcPath, localPath), src, "download")
}

// Upload copies a local file into the store.
func (l *LocalStore) Upload(ctx context.Context, localPath, dst string) error {
	dstPath, err := l.path(dst)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return classifyLocal(copyFile(localPath, dstPath), dst, "upload")
}

// Exists reports whether an object is present.
func (l *LocalStore) Exists(ctx context.Context, uri string) (bool, error) {
	p, err := l.path(uri)
	if err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, classifyLocal(err, uri, "stat")
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - paths derive from store root
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return err
	}

	out, err := os.Create(dst) // #nosec G304 - paths derive from store root
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func classifyLocal(err error, uri, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return &transfer.NotFoundError{URI: uri}
	}
	if errors.Is(err, os.ErrPermission) {
		return &transfer.PermissionError{URI: uri, Op: op}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &transfer.BackendError{URI: uri, Op: op, Err: err}
}
