package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrAssetNotFound is returned when no asset exists for an ID.
var ErrAssetNotFound = errors.New("bridge: asset not found")

// AssetStore loads playable audio assets by ID.
type AssetStore interface {
	Load(ctx context.Context, id string) ([]byte, error)
}

// DirAssetStore serves WAV assets from a local directory, one file per
// asset ID.
type DirAssetStore struct {
	dir string
}

// NewDirAssetStore creates a store rooted at dir.
func NewDirAssetStore(dir string) *DirAssetStore {
	return &DirAssetStore{dir: dir}
}

// Load reads the asset file for id. IDs containing path separators are
// rejected so a device cannot escape the asset directory.
func (s *DirAssetStore) Load(_ context.Context, id string) ([]byte, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return nil, fmt.Errorf("%w: %q", ErrAssetNotFound, id)
	}

	name := id
	if filepath.Ext(name) == "" {
		name += ".wav"
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", ErrAssetNotFound, id)
		}
		return nil, fmt.Errorf("bridge: read asset %q: %w", id, err)
	}
	return data, nil
}

// MemAssetStore is an in-memory AssetStore for tests.
type MemAssetStore struct {
	Assets map[string][]byte
}

// Load returns the asset registered for id.
func (s *MemAssetStore) Load(_ context.Context, id string) ([]byte, error) {
	data, ok := s.Assets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAssetNotFound, id)
	}
	return data, nil
}

var (
	_ AssetStore = (*DirAssetStore)(nil)
	_ AssetStore = (*MemAssetStore)(nil)
)
