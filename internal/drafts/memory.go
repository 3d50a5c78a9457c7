package drafts

import (
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps drafts for the life of the process
type MemoryStore struct {
	mu     sync.RWMutex
	drafts map[string]Draft
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: make(map[string]Draft)}
}

func (s *MemoryStore) Load(key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.drafts[key].Content, nil
}

func (s *MemoryStore) Save(key, content string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return s.Delete(key)
	}
	s.mu.Lock()
	s.drafts[key] = Draft{Key: key, Content: content, UpdatedAt: time.Now()}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.drafts, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
