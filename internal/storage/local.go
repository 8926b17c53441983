package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/afero"
)

// localStorage keeps files on a local directory served as static content.
// Chat images live here.
type localStorage struct {
	fs      afero.Fs
	dir     string
	baseURL string
}

// NewLocalStorage stores files under dir and builds URLs as baseURL/<key>.
func NewLocalStorage(fs afero.Fs, dir, baseURL string) (FileStorage, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &localStorage{fs: fs, dir: dir, baseURL: baseURL}, nil
}

func (s *localStorage) filePath(key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" {
		return "", ErrEmptyKey
	}
	return filepath.Join(s.dir, filepath.FromSlash(clean)), nil
}

func (s *localStorage) Put(_ context.Context, key, _ string, body io.Reader, _ int64) (string, error) {
	p, err := s.filePath(key)
	if err != nil {
		return "", err
	}
	if err := s.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	f, err := s.fs.Create(p)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		_ = s.fs.Remove(p)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return joinURL(s.baseURL, key), nil
}

func (s *localStorage) Delete(_ context.Context, key string) error {
	p, err := s.filePath(key)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
