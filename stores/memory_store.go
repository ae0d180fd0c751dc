package stores

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// errMemoryNotFound marks Get/Exists misses of a MemoryStore.
var errMemoryNotFound = errors.New("path not found")

// MemoryStore is an in-memory implementation of Store for testing.
// A single MemoryStore may back several memory:// replica URLs: content is
// keyed by the URL host ("bucket") joined with the object path.
type MemoryStore struct {
	Content  map[string][]byte
	ModTimes map[string]time.Time
	mu       sync.RWMutex
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Content:  make(map[string][]byte),
		ModTimes: make(map[string]time.Time),
	}
}

// Constructor adapts the MemoryStore into a Constructor for the "memory"
// scheme. Each constructed view scopes object paths under the URL's
// host and path.
func (m *MemoryStore) Constructor(ep *url.URL) (Store, error) {
	return &memoryView{store: m, prefix: ep.Host + ep.Path}, nil
}

type memoryView struct {
	store  *MemoryStore
	prefix string
}

func (v *memoryView) Provider() string { return "memory" }

func (v *memoryView) Exists(ctx context.Context, path string) (bool, error) {
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()

	var _, exists = v.store.Content[v.prefix+path]
	return exists, nil
}

func (v *memoryView) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()

	var content, exists = v.store.Content[v.prefix+path]
	if !exists {
		return nil, fmt.Errorf("%w: %s", errMemoryNotFound, path)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (v *memoryView) Put(ctx context.Context, path string, content io.ReaderAt, contentLength int64, contentEncoding string) error {
	var buf = make([]byte, contentLength)
	if _, err := content.ReadAt(buf, 0); err != nil && err != io.EOF {
		return fmt.Errorf("failed to read content: %w", err)
	}

	v.store.mu.Lock()
	defer v.store.mu.Unlock()

	v.store.Content[v.prefix+path] = buf
	v.store.ModTimes[v.prefix+path] = time.Now()
	return nil
}

func (v *memoryView) List(ctx context.Context, prefix string, callback func(path string, modTime time.Time) error) error {
	v.store.mu.RLock()

	var full = v.prefix + prefix
	var matched []string
	for fullPath := range v.store.Content {
		if strings.HasPrefix(fullPath, full) {
			matched = append(matched, fullPath)
		}
	}
	sort.Strings(matched)

	// Snapshot mod-times before releasing the lock.
	var modTimes = make([]time.Time, len(matched))
	for i, fullPath := range matched {
		modTimes[i] = v.store.ModTimes[fullPath]
	}
	v.store.mu.RUnlock()

	for i, fullPath := range matched {
		if err := callback(strings.TrimPrefix(fullPath, full), modTimes[i]); err != nil {
			return err
		}
	}
	return nil
}

func (v *memoryView) Remove(ctx context.Context, path string) error {
	v.store.mu.Lock()
	defer v.store.mu.Unlock()

	delete(v.store.Content, v.prefix+path)
	delete(v.store.ModTimes, v.prefix+path)
	return nil
}

func (v *memoryView) IsNotFound(err error) bool { return errors.Is(err, errMemoryNotFound) }

func (v *memoryView) IsAuthError(err error) bool { return false }
