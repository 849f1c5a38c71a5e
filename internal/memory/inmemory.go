package memory

import (
	"context"
	"sync"
)

// InMemoryStore keeps snippets for the lifetime of one process. It is the
// default when no redis address is configured.
type InMemoryStore struct {
	mu       sync.Mutex
	byKey    map[string]Snippet
	byIntent map[string][]string // newest first
	maxper   int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byKey:    map[string]Snippet{},
		byIntent: map[string][]string{},
		maxper:   defaultIntentListLen,
	}
}

const defaultIntentListLen = 50

func (s *InMemoryStore) Put(_ context.Context, sn Snippet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[sn.Key] = sn
	list := append([]string{sn.Text}, s.byIntent[sn.Intent]...)
	if len(list) > s.maxper {
		list = list[:s.maxper]
	}
	s.byIntent[sn.Intent] = list
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, key string) (Snippet, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sn, ok := s.byKey[key]
	return sn, ok, nil
}

func (s *InMemoryStore) Recent(_ context.Context, intent string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.byIntent[intent]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return append([]string(nil), list...), nil
}

func (s *InMemoryStore) Close() error { return nil }
