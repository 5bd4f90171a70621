package memory

import (
	"context"
	"sync"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/listing/domain"
)

type photoObject struct {
	data        []byte
	contentType string
}

// PhotoStorage keeps photo objects in process memory. Used with
// STORAGE_DRIVER=memory when no object store is configured.
type PhotoStorage struct {
	mu      sync.RWMutex
	objects map[string]photoObject
}

func NewPhotoStorage() *PhotoStorage {
	return &PhotoStorage{objects: make(map[string]photoObject)}
}

func (s *PhotoStorage) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *PhotoStorage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = photoObject{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

func (s *PhotoStorage) Get(ctx context.Context, key string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, "", domain.ErrPhotoNotFound
	}
	return append([]byte(nil), obj.data...), obj.contentType, nil
}
