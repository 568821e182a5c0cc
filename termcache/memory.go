package termcache

import (
	"context"

	"github.com/Yiling-J/theine-go"

	"github.com/teranos/breg-harvester/errors"
)

// MemoryBackend is a bounded process-local backend. Documents and set
// members share one theine cache of maxEntries entries, so failure
// markers can be evicted like documents.
type MemoryBackend struct {
	cache *theine.Cache[string, []byte]
}

func NewMemoryBackend(maxEntries int64) (*MemoryBackend, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	cache, err := theine.NewBuilder[string, []byte](maxEntries).Build()
	if err != nil {
		return nil, errors.Wrap(err, "build in-memory term cache")
	}
	return &MemoryBackend{cache: cache}, nil
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.cache.Get(key)
	return v, ok, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte) error {
	m.cache.Set(key, value, 1)
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}

func (m *MemoryBackend) SAdd(_ context.Context, set, member string) error {
	m.cache.Set(string(setMemberKey(set, member)), nil, 1)
	return nil
}

func (m *MemoryBackend) SRem(_ context.Context, set, member string) error {
	m.cache.Delete(string(setMemberKey(set, member)))
	return nil
}

func (m *MemoryBackend) SIsMember(_ context.Context, set, member string) (bool, error) {
	_, ok := m.cache.Get(string(setMemberKey(set, member)))
	return ok, nil
}

func (m *MemoryBackend) Close() error {
	m.cache.Close()
	return nil
}
