package media

import (
	"context"
	"sync"
)

type object struct {
	data        []byte
	contentType string
}

// Memory keeps objects in process. It backs tests and local development,
// where Open serves the bytes behind the public URLs.
type Memory struct {
	mu       sync.RWMutex
	objects  map[string]object
	baseURL  string
	maxBytes int64
}

// NewMemory returns an empty store issuing URLs under baseURL.
func NewMemory(baseURL string, maxBytes int64) *Memory {
	return &Memory{objects: make(map[string]object), baseURL: baseURL, maxBytes: maxBytes}
}

// Upload implements Store.
func (m *Memory) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := Key(data, contentType, m.maxBytes)
	if err != nil {
		return "", err
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	m.objects[key] = object{data: buf, contentType: contentType}
	m.mu.Unlock()
	return m.baseURL + "/" + key, nil
}

// Delete implements Store. Deleting a missing object is not an error.
func (m *Memory) Delete(ctx context.Context, url string) error {
	key, err := keyFromURL(m.baseURL, url)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Open returns the object stored under key.
func (m *Memory) Open(key string) (data []byte, contentType string, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[key]
	return o.data, o.contentType, ok
}

// Len reports how many objects are stored.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
