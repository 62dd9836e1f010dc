package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and single-node setups.
type MemoryStore struct {
	mu         sync.Mutex
	containers map[string][]byte
	refs       map[string]map[string]struct{}
	names      map[string]string
	apps       map[string]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		containers: make(map[string][]byte),
		refs:       make(map[string]map[string]struct{}),
		names:      make(map[string]string),
		apps:       make(map[string]string),
	}
}

func (s *MemoryStore) Login(ctx context.Context, appKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.apps[appKey]; ok {
		return id, nil
	}
	id := uuid.NewString()
	s.containers[id] = nil
	s.apps[appKey] = id
	return id, nil
}

func (s *MemoryStore) Create(ctx context.Context, spec ContainerSpec) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.containers[id] = nil
	return id, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.containers[id]
	if !ok || len(data) == 0 {
		return Result{}, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return Result{Data: out, Found: true}, nil
}

func (s *MemoryStore) Put(ctx context.Context, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.containers[id] = buf
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.containers, id)
	delete(s.refs, id)
	return nil
}

func (s *MemoryStore) AddRef(ctx context.Context, parentID, childID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.refs[parentID]
	if !ok {
		set = make(map[string]struct{})
		s.refs[parentID] = set
	}
	set[childID] = struct{}{}
	return nil
}

func (s *MemoryStore) RemoveRef(ctx context.Context, parentID, childID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refs[parentID], childID)
	return nil
}

func (s *MemoryStore) Refs(ctx context.Context, parentID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.refs[parentID]))
	for id := range s.refs[parentID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Resolve(ctx context.Context, name string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.names[name]
	return id, ok, nil
}

func (s *MemoryStore) Bind(ctx context.Context, name, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.names[name]; ok {
		return current == id, nil
	}
	s.names[name] = id
	return true, nil
}

func (s *MemoryStore) Rebind(ctx context.Context, name, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[name] = id
	return nil
}

func (s *MemoryStore) Unbind(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.names, name)
	return nil
}

func (s *MemoryStore) Names(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.names))
	for k, v := range s.names {
		out[k] = v
	}
	return out, nil
}

// Exists reports whether a container is allocated.
func (s *MemoryStore) Exists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.containers[id]
	return ok
}
