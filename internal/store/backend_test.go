package store

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisTestBackend(t *testing.T) *RedisBackend {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisBackendFromClient(client)
}

func newSQLiteTestBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	b, err := NewSQLiteBackend(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

// newPostgresTestBackend connects to TEST_DATABASE_URL and empties the
// tables. It returns nil when the variable is unset.
func newPostgresTestBackend(t *testing.T) *PostgresBackend {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		return nil
	}
	ctx := context.Background()
	b, err := NewPostgresBackend(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })
	if _, err := b.pool.Exec(ctx, `TRUNCATE kv, list_items, set_members`); err != nil {
		t.Fatal(err)
	}
	return b
}

func testBackends(t *testing.T) map[string]Backend {
	backends := map[string]Backend{
		"memory": NewMemoryBackend(),
		"redis":  newRedisTestBackend(t),
		"sqlite": newSQLiteTestBackend(t),
	}
	if pg := newPostgresTestBackend(t); pg != nil {
		backends["postgres"] = pg
	}
	return backends
}

func TestBackendKeyValue(t *testing.T) {
	ctx := context.Background()
	for name, b := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := b.Get(ctx, "missing"); err != nil || ok {
				t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
			}
			if err := b.Set(ctx, "k", "v1"); err != nil {
				t.Fatal(err)
			}
			if err := b.Set(ctx, "k", "v2"); err != nil {
				t.Fatal(err)
			}
			v, ok, err := b.Get(ctx, "k")
			if err != nil || !ok || v != "v2" {
				t.Fatalf("expected v2, got %q ok=%v err=%v", v, ok, err)
			}

			set, err := b.SetNX(ctx, "k", "v3")
			if err != nil || set {
				t.Fatalf("SetNX on existing key: set=%v err=%v", set, err)
			}
			set, err = b.SetNX(ctx, "fresh", "x")
			if err != nil || !set {
				t.Fatalf("SetNX on new key: set=%v err=%v", set, err)
			}

			if err := b.Del(ctx, "k", "fresh"); err != nil {
				t.Fatal(err)
			}
			if _, ok, _ := b.Get(ctx, "k"); ok {
				t.Fatal("expected k deleted")
			}
		})
	}
}

func TestBackendIncr(t *testing.T) {
	ctx := context.Background()
	for name, b := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			for want := int64(1); want <= 3; want++ {
				got, err := b.Incr(ctx, "seq")
				if err != nil {
					t.Fatal(err)
				}
				if got != want {
					t.Fatalf("expected %d, got %d", want, got)
				}
			}
		})
	}
}

func TestBackendLists(t *testing.T) {
	ctx := context.Background()
	for name, b := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			if err := b.RPush(ctx, "l", "a", "b", "c", "d"); err != nil {
				t.Fatal(err)
			}

			cases := []struct {
				start, stop int64
				want        []string
			}{
				{0, -1, []string{"a", "b", "c", "d"}},
				{1, 2, []string{"b", "c"}},
				{-2, -1, []string{"c", "d"}},
				{-10, 1, []string{"a", "b"}},
				{3, 1, []string{}},
				{5, 10, []string{}},
			}
			for _, tc := range cases {
				got, err := b.LRange(ctx, "l", tc.start, tc.stop)
				if err != nil {
					t.Fatal(err)
				}
				if len(got) == 0 && len(tc.want) == 0 {
					continue
				}
				if !reflect.DeepEqual(got, tc.want) {
					t.Fatalf("LRange(%d, %d): expected %v, got %v", tc.start, tc.stop, tc.want, got)
				}
			}

			got, err := b.LRange(ctx, "nothing", 0, -1)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 0 {
				t.Fatalf("expected empty list, got %v", got)
			}
		})
	}
}

func TestBackendSets(t *testing.T) {
	ctx := context.Background()
	for name, b := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			if err := b.SAdd(ctx, "s", "b", "a", "b"); err != nil {
				t.Fatal(err)
			}
			if err := b.SAdd(ctx, "s", "c"); err != nil {
				t.Fatal(err)
			}
			if err := b.SRem(ctx, "s", "c"); err != nil {
				t.Fatal(err)
			}
			got, err := b.SMembers(ctx, "s")
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 {
				t.Fatalf("expected 2 members, got %v", got)
			}
			seen := map[string]bool{}
			for _, m := range got {
				seen[m] = true
			}
			if !seen["a"] || !seen["b"] {
				t.Fatalf("expected a and b, got %v", got)
			}
		})
	}
}

func TestRangeBounds(t *testing.T) {
	from, to, ok := rangeBounds(4, -3, -2)
	if !ok || from != 1 || to != 3 {
		t.Fatalf("expected [1:3], got [%d:%d] ok=%v", from, to, ok)
	}
	if _, _, ok := rangeBounds(0, 0, -1); ok {
		t.Fatal("expected empty range on empty list")
	}
}
