package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type localConfig struct {
	Dir string `json:"dir"`
}

// localStore keeps blobs in a directory tree. Used in development and in
// tests; signed URLs degrade to plain file paths, which ffprobe/ffmpeg
// accept as inputs.
type localStore struct {
	dir string
}

func init() {
	Register("local", createLocalStore)
}

func createLocalStore(args interface{}) (Store, error) {
	cfg := &localConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("blob_store dir is required for local store")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	return &localStore{dir: cfg.Dir}, nil
}

func (s *localStore) path(key string) string {
	return filepath.Join(s.dir, filepath.FromSlash(strings.TrimPrefix(key, "/")))
}

func (s *localStore) Download(ctx context.Context, key string, dstPath string) error {
	src, err := os.Open(s.path(key))
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer dst.Close()
	_, err = io.Copy(dst, src)
	return err
}

func (s *localStore) Upload(ctx context.Context, key string, r io.Reader) error {
	target := s.path(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	file, err := os.Create(target)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = io.Copy(file, r)
	return err
}

func (s *localStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(s.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *localStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return s.path(key), nil
}
