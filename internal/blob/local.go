package blob

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// LocalStore keeps objects under root/<bucket>/<name>.
type LocalStore struct {
	root string
}

// NewLocalStore creates a LocalStore rooted at dir.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{root: dir}
}

func (s *LocalStore) path(bucket, name string) (string, error) {
	key, err := cleanKey(bucket, name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

// Read implements Store.
func (s *LocalStore) Read(ctx context.Context, bucket, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "blob: local read")
	}
	p, err := s.path(bucket, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(ErrNotFound, "blob: local read %s/%s", bucket, name)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "blob: local read %s/%s", bucket, name)
	}
	return data, nil
}

// Write implements Store. The object is written to a temp file and renamed
// into place so readers never observe a partial object.
func (s *LocalStore) Write(ctx context.Context, bucket, name string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "blob: local write")
	}
	p, err := s.path(bucket, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return eris.Wrapf(err, "blob: mkdir for %s/%s", bucket, name)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".blob-*")
	if err != nil {
		return eris.Wrapf(err, "blob: create temp for %s/%s", bucket, name)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec
		return eris.Wrapf(err, "blob: write %s/%s", bucket, name)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "blob: close %s/%s", bucket, name)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return eris.Wrapf(err, "blob: rename %s/%s", bucket, name)
	}

	zap.L().Debug("blob: wrote object",
		zap.String("bucket", bucket),
		zap.String("name", name),
		zap.Int("bytes", len(data)),
	)
	return nil
}
