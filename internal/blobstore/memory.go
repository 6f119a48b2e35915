package blobstore

import (
	"context"
	"strings"
	"sync"
)

const memoryScheme = "mem://"

type memoryBlob struct {
	data        []byte
	contentType string
}

// MemoryStore is a thread-safe in-memory BlobStore for tests and local runs.
// SignErr and FetchErr force every call of that kind to fail.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob

	SignErr  error
	FetchErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]memoryBlob)}
}

// Put stores a copy of data under bucket/path.
func (s *MemoryStore) Put(bucket, path string, data []byte, contentType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[bucket+"/"+path] = memoryBlob{data: append([]byte(nil), data...), contentType: contentType}
}

func (s *MemoryStore) SignURL(_ context.Context, bucket, path string) (string, error) {
	if s.SignErr != nil {
		return "", s.SignErr
	}
	clean, err := CleanPath(path)
	if err != nil {
		return "", err
	}
	return memoryScheme + bucket + "/" + clean, nil
}

func (s *MemoryStore) Fetch(ctx context.Context, url string) (*Blob, error) {
	if s.FetchErr != nil {
		return nil, s.FetchErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, ok := strings.CutPrefix(url, memoryScheme)
	if !ok {
		return nil, ErrInvalidPath
	}

	s.mu.RLock()
	blob, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return &Blob{Data: append([]byte(nil), blob.data...), ContentType: blob.contentType}, nil
}
