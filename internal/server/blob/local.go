package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/taskkeeper/internal/common"
	"github.com/dmitrijs2005/taskkeeper/internal/filex"
)

const stagingDirName = ".staging"

// LocalStore keeps blobs under a root directory. Writes land in
// root/.staging first and are renamed into place.
type LocalStore struct {
	root    string
	staging string
}

func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filex.EnsureDir(root)
	if err != nil {
		return nil, err
	}
	staging, err := filex.EnsureDir(filepath.Join(abs, stagingDirName))
	if err != nil {
		return nil, err
	}
	return &LocalStore{root: abs, staging: staging}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	clean, err := CleanKey(key)
	if err != nil {
		return "", fmt.Errorf("invalid blob key %q: %w", key, err)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

func (s *LocalStore) Put(ctx context.Context, key string, r io.ReadSeeker, size int64, contentType string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	return filex.WriteAtomic(s.staging, p, r)
}

func (s *LocalStore) Open(ctx context.Context, key string) (io.ReadCloser, *Info, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, nil, common.ErrorNotFound
	}

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, common.ErrorNotFound
		}
		return nil, nil, err
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, nil, common.ErrorNotFound
	}

	return f, &Info{Size: st.Size(), ContentType: ContentType(p), ModTime: st.ModTime()}, nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	return filex.RemoveIfExists(p)
}

func (s *LocalStore) DeletePrefix(ctx context.Context, prefix string) error {
	p, err := s.path(prefix)
	if err != nil {
		return err
	}
	return os.RemoveAll(p)
}
