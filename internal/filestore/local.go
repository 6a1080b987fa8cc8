package filestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type localConfig struct {
	Dir string `json:"dir"`
}

type localStore struct {
	dir string
}

func init() {
	Register("local", createLocalStore)
}

func createLocalStore(args interface{}) (Store, error) {
	config := &localConfig{}
	if err := decodeConfig(args, config); err != nil {
		return nil, err
	}
	if config.Dir == "" {
		return nil, fmt.Errorf("local store dir is required")
	}
	return &localStore{dir: config.Dir}, nil
}

func (s *localStore) Save(ctx context.Context, key string, r io.Reader, size int64) error {
	_ = ctx
	_ = size
	if err := validKey(key); err != nil {
		return err
	}
	target := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.Create(target)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, r)
	return err
}

func (s *localStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	_ = ctx
	if err := validKey(key); err != nil {
		return nil, err
	}
	return os.Open(filepath.Join(s.dir, filepath.FromSlash(key)))
}

func (s *localStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	if err := validKey(key); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(key)))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// validKey accepts slash-separated keys like "company/doc.txt". Every
// segment must be a plain name: no empty segments, no "." or "..", no
// backslashes. Keys are store-relative, never absolute.
func validKey(key string) error {
	if key == "" || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid file key: %q", key)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return fmt.Errorf("invalid file key: %q", key)
		}
	}
	return nil
}
