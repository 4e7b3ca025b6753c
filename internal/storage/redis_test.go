package storage

import (
	"context"
	"testing"

	"commerce-insights/internal/config"
	"commerce-insights/internal/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testKey = "dashboard:selection"

func newRedisStore(t *testing.T) (*RedisSelectionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisSelectionStore(client, testKey), mr
}

func TestRedisSelectionStore_Load(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		stored  string // raw value under the key; empty leaves it unset
		want    models.Filters
		wantOK  bool
		wantErr bool
	}{
		{name: "missing key", wantOK: false},
		{name: "saved selection", stored: `{"year":2017,"region":"SP","product":"p1"}`, want: models.Filters{Year: 2017, Region: "SP", Product: "p1"}, wantOK: true},
		{name: "wildcard selection", stored: `{}`, want: models.Filters{}, wantOK: true},
		{name: "corrupt value", stored: `{`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mr := newRedisStore(t)
			if tt.stored != "" {
				if err := mr.Set(testKey, tt.stored); err != nil {
					t.Fatal(err)
				}
			}

			got, ok, err := store.Load(ctx)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load err = %v, wantErr %v", err, tt.wantErr)
			}
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("Load = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRedisSelectionStore_SaveLoad(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		filters models.Filters
	}{
		{"full selection", models.Filters{Year: 2018, Region: "RJ", Category: "books", Product: "p2"}},
		{"wildcard persisted", models.Filters{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mr := newRedisStore(t)
			if err := store.Save(ctx, models.Filters{Region: "SP"}); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if err := store.Save(ctx, tt.filters); err != nil {
				t.Fatalf("Save: %v", err)
			}

			got, ok, err := store.Load(ctx)
			if err != nil || !ok {
				t.Fatalf("Load = ok %v, err %v", ok, err)
			}
			if got != tt.filters {
				t.Errorf("Load = %+v, want %+v", got, tt.filters)
			}
			if ttl := mr.TTL(testKey); ttl != 0 {
				t.Errorf("selection key has TTL %v, want none", ttl)
			}
		})
	}
}

func TestRedisSelectionStore_Unavailable(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	mr.Close()

	if _, _, err := store.Load(ctx); err == nil {
		t.Error("Load should fail when redis is down")
	}
	if err := store.Save(ctx, models.Filters{Year: 2017}); err == nil {
		t.Error("Save should fail when redis is down")
	}
}

func TestOpenRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	tests := []struct {
		name string
		url  string
	}{
		{"host port", mr.Addr()},
		{"redis url", "redis://" + mr.Addr() + "/0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Open(ctx, config.StoreConfig{RedisURL: tt.url, SelectionKey: testKey})
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if _, ok := store.(*RedisSelectionStore); !ok {
				t.Fatalf("Open returned %T, want *RedisSelectionStore", store)
			}

			if err := store.Save(ctx, models.Filters{Category: "toys"}); err != nil {
				t.Fatal(err)
			}
			if got, _ := mr.Get(testKey); got != `{"category":"toys"}` {
				t.Errorf("stored value = %q", got)
			}
			if err := store.Close(); err != nil {
				t.Errorf("Close: %v", err)
			}
		})
	}
}
