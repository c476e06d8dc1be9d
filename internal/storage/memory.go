package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore is a BlobStore kept in process memory. Presigned urls point to
// a fake host and carry the expiry as a query parameter.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]memoryObject
	puts    map[string]int
	err     error
}

var _ BlobStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memoryObject),
		puts:    make(map[string]int),
	}
}

// FailWith makes every following call return err. A nil err restores the store.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MemoryStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return m.PutBytes(ctx, key, data, contentType)
}

func (m *MemoryStore) PutBytes(_ context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.objects[key] = memoryObject{data: append([]byte(nil), data...), contentType: contentType}
	m.puts[key]++
	return nil
}

func (m *MemoryStore) PresignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	if _, ok := m.objects[key]; !ok {
		return "", fmt.Errorf("object %s not found", key)
	}
	q := url.Values{}
	q.Set("expires", fmt.Sprintf("%d", int64(ttl.Seconds())))
	return fmt.Sprintf("https://blobs.local/%s?%s", key, q.Encode()), nil
}

func (m *MemoryStore) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Get returns a copy of the stored object.
func (m *MemoryStore) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

// Puts returns how many times key was written.
func (m *MemoryStore) Puts(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts[key]
}
