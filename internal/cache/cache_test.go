package cache

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
)

func openTest(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestKeyFormat(t *testing.T) {
	got := Key(40.123456, -105.654321, true, false)
	want := "40.123456,-105.654321|force_low_res=1|include_rivers=0"
	if got != want {
		t.Fatalf("Key() = %q, want %q", got, want)
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	c := openTest(t)
	key := Key(1, 2, false, false)
	e := Entry{
		CacheKey:  key,
		GaugeID:   "g1",
		Response:  []byte(`{"area_km2":12.5}`),
		CreatedAt: "2026-01-01T00:00:00Z",
		Lat:       1, Lng: 2, AreaKM2: 12.5,
	}
	if err := c.Put(e); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := c.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected hit")
	}
	if got.GaugeID != "g1" || got.AreaKM2 != 12.5 {
		t.Fatalf("unexpected entry: %+v", got)
	}

	if _, ok, err := c.Get("missing-key"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
}

func TestPutIsIdempotent(t *testing.T) {
	c := openTest(t)
	key := Key(1, 2, false, false)
	e := Entry{CacheKey: key, GaugeID: "g1", Response: []byte(`{}`), CreatedAt: "t1", AreaKM2: 1}
	if err := c.Put(e); err != nil {
		t.Fatalf("Put: %v", err)
	}
	e.AreaKM2 = 2
	e.CreatedAt = "t2"
	if err := c.Put(e); err != nil {
		t.Fatalf("Put (replace): %v", err)
	}

	got, ok, err := c.Get(key)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.AreaKM2 != 2 || got.CreatedAt != "t2" {
		t.Fatalf("expected replaced values, got %+v", got)
	}

	var count int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM watershed_cache`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row after idempotent put, got %d", count)
	}
}

func TestGetByGaugeIDAndDelete(t *testing.T) {
	c := openTest(t)
	if err := c.Put(Entry{CacheKey: "k1", GaugeID: "g1", Response: []byte(`{}`), CreatedAt: "t", AreaKM2: 1}); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(Entry{CacheKey: "k2", GaugeID: "g1", Response: []byte(`{}`), CreatedAt: "t", AreaKM2: 2}); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(Entry{CacheKey: "k3", GaugeID: "g2", Response: []byte(`{}`), CreatedAt: "t", AreaKM2: 3}); err != nil {
		t.Fatal(err)
	}

	entries, err := c.GetByGaugeID("g1")
	if err != nil {
		t.Fatalf("GetByGaugeID: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries for g1, got %d", len(entries))
	}

	n, err := c.DeleteByGaugeID("g1")
	if err != nil {
		t.Fatalf("DeleteByGaugeID: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows deleted, got %d", n)
	}

	stats, err := c.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.EntryCount != 1 {
		t.Fatalf("expected 1 remaining entry, got %d", stats.EntryCount)
	}
}

func TestGetOrLoadCallsLoadOnceConcurrently(t *testing.T) {
	c := openTest(t)
	key := Key(5, 6, false, false)

	var loadCount int64
	load := func() (Entry, error) {
		atomic.AddInt64(&loadCount, 1)
		return Entry{CacheKey: key, GaugeID: "g1", Response: []byte(`{}`), CreatedAt: "t", AreaKM2: 9}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetOrLoad(key, load); err != nil {
				t.Errorf("GetOrLoad: %v", err)
			}
		}()
	}
	wg.Wait()

	if loadCount != 1 {
		t.Fatalf("expected load to run exactly once, ran %d times", loadCount)
	}
}

func TestGetOrLoadReturnsCachedOnSecondCall(t *testing.T) {
	c := openTest(t)
	key := Key(7, 8, true, true)
	calls := 0
	load := func() (Entry, error) {
		calls++
		return Entry{CacheKey: key, GaugeID: "g1", Response: []byte(`{}`), CreatedAt: "t", AreaKM2: 3}, nil
	}
	if _, err := c.GetOrLoad(key, load); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetOrLoad(key, load); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("expected load called once across two sequential GetOrLoad calls, got %d", calls)
	}
}
