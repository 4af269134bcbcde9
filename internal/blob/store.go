package blob

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/thunderlab/examprep/internal/config"
)

// Store abstracts the blob backend holding uploaded documents, lecture
// audio and temporary audio slices.
type Store interface {
	// Download copies the object at key into the local file at dstPath.
	Download(ctx context.Context, key string, dstPath string) error
	Upload(ctx context.Context, key string, r io.Reader) error
	Delete(ctx context.Context, key string) error
	// SignedURL returns a URL readable without credentials until ttl
	// elapses; used to hand blobs to ffprobe/ffmpeg.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type Factory func(args interface{}) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(cfg config.BlobStoreConfig) (Store, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if key == "" {
		return nil, fmt.Errorf("blob_store.type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported blob store type: %s", cfg.Type)
	}
	return factory(cfg.Data)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("store config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode store config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode store config: %w", err)
	}
	return nil
}
