package store

import (
	"context"
)

// Backend is the key-value collaborator behind the Gateway. Redis, PostgreSQL,
// SQLite and an in-memory map all implement it. No transactions are assumed:
// every call is an independent operation.
type Backend interface {
	// Connection management
	Close() error
	Ping(ctx context.Context) error

	// Key-value operations. Get reports ok=false for a missing key.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	SetNX(ctx context.Context, key, value string) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)

	// List operations. LRange follows Redis semantics: negative indexes count
	// from the end, stop is inclusive.
	RPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// Set operations.
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

// rangeBounds converts Redis-style list indexes into slice bounds for a list
// of length n. ok is false when the range is empty.
func rangeBounds(n int, start, stop int64) (from, to int, ok bool) {
	size := int64(n)
	if start < 0 {
		start += size
	}
	if stop < 0 {
		stop += size
	}
	if start < 0 {
		start = 0
	}
	if stop >= size {
		stop = size - 1
	}
	if start > stop || start >= size {
		return 0, 0, false
	}
	return int(start), int(stop) + 1, true
}
