package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
)

// MemoryBackend keeps everything in process memory. It is used in development
// and tests.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string]string
	lists  map[string][]string
	sets   map[string]map[string]struct{}
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		values: make(map[string]string),
		lists:  make(map[string][]string),
		sets:   make(map[string]map[string]struct{}),
	}
}

func (b *MemoryBackend) Close() error { return nil }

func (b *MemoryBackend) Ping(ctx context.Context) error { return nil }

func (b *MemoryBackend) Get(ctx context.Context, key string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[key]
	return v, ok, nil
}

func (b *MemoryBackend) Set(ctx context.Context, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = value
	return nil
}

func (b *MemoryBackend) SetNX(ctx context.Context, key, value string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.values[key]; ok {
		return false, nil
	}
	b.values[key] = value
	return true, nil
}

func (b *MemoryBackend) Del(ctx context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		delete(b.values, k)
		delete(b.lists, k)
		delete(b.sets, k)
	}
	return nil
}

func (b *MemoryBackend) Incr(ctx context.Context, key string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var n int64
	if v, ok := b.values[key]; ok {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, err
		}
		n = parsed
	}
	n++
	b.values[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (b *MemoryBackend) RPush(ctx context.Context, key string, values ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lists[key] = append(b.lists[key], values...)
	return nil
}

func (b *MemoryBackend) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	list := b.lists[key]
	from, to, ok := rangeBounds(len(list), start, stop)
	if !ok {
		return []string{}, nil
	}
	out := make([]string, to-from)
	copy(out, list[from:to])
	return out, nil
}

func (b *MemoryBackend) SAdd(ctx context.Context, key string, members ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.sets[key]
	if !ok {
		set = make(map[string]struct{})
		b.sets[key] = set
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
	return nil
}

func (b *MemoryBackend) SRem(ctx context.Context, key string, members ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.sets[key]
	for _, m := range members {
		delete(set, m)
	}
	return nil
}

// SMembers returns members sorted, so callers get a stable order.
func (b *MemoryBackend) SMembers(ctx context.Context, key string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.sets[key]))
	for m := range b.sets[key] {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}
