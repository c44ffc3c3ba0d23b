package blob

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
)

type object struct {
	data        []byte
	contentType string
}

// MemoryStore keeps objects in process memory. Objects are served by the web
// server under PublicPrefix.
type MemoryStore struct {
	PublicPrefix string
	ChunkSize    int

	mu      sync.RWMutex
	objects map[string]object
}

func NewMemoryStore(publicPrefix string) *MemoryStore {
	return &MemoryStore{
		PublicPrefix: strings.TrimRight(publicPrefix, "/"),
		ChunkSize:    32 << 10,
		objects:      make(map[string]object),
	}
}

func (m *MemoryStore) Upload(ctx context.Context, name, contentType string, data []byte) <-chan Progress {
	out := newEvents()
	go func() {
		defer close(out)
		if len(data) == 0 {
			out <- Progress{Err: ErrEmpty}
			return
		}
		pr := newProgressReader(bytes.NewReader(data), int64(len(data)), func(p int) { out <- Progress{Percent: p} })
		pr.start()
		var buf bytes.Buffer
		chunk := make([]byte, m.chunkSize())
		for {
			if err := ctx.Err(); err != nil {
				out <- Progress{Err: err}
				return
			}
			n, err := pr.Read(chunk)
			buf.Write(chunk[:n])
			if err == io.EOF {
				break
			}
			if err != nil {
				out <- Progress{Err: err}
				return
			}
		}
		key := newKey(name)
		m.mu.Lock()
		m.objects[key] = object{data: buf.Bytes(), contentType: contentType}
		m.mu.Unlock()
		h := m.Bind(Handle{Key: key, URL: m.PublicPrefix + "/" + key, ContentType: contentType})
		out <- Progress{Percent: 100, Handle: &h}
	}()
	return out
}

func (m *MemoryStore) chunkSize() int {
	if m.ChunkSize <= 0 {
		return 32 << 10
	}
	return m.ChunkSize
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	o, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), o.data...), nil
}

// ContentType returns the stored content type of key.
func (m *MemoryStore) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[key].contentType
}

func (m *MemoryStore) Bind(h Handle) Handle {
	h.fetch = m.Get
	return h
}

// Len reports how many objects are stored.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
