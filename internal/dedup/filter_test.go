package dedup

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func expectRepeat(t *testing.T, f *Filter, key, sig string, want bool) {
	t.Helper()
	got, err := f.IsRepeatAndRecord(context.Background(), key, sig)
	if err != nil {
		t.Fatalf("IsRepeatAndRecord(%q, %q): %v", key, sig, err)
	}
	if got != want {
		t.Fatalf("IsRepeatAndRecord(%q, %q) = %v, want %v", key, sig, got, want)
	}
}

func TestSignatureFormat(t *testing.T) {
	if got := Signature("Test Page", "10.0.0.42"); got != "Test Page:10.0.0.42" {
		t.Fatalf("Signature = %q", got)
	}
}

func TestFilterWindowIsOne(t *testing.T) {
	f := NewFilter(NewMemoryStore())

	expectRepeat(t, f, "enwiki", "A", false)
	expectRepeat(t, f, "enwiki", "A", true)
	expectRepeat(t, f, "enwiki", "B", false)
	expectRepeat(t, f, "enwiki", "A", false)
}

func TestFilterRecordsEvenOnRepeat(t *testing.T) {
	f := NewFilter(nil)

	expectRepeat(t, f, "enwiki", "A", false)
	expectRepeat(t, f, "enwiki", "A", true)
	expectRepeat(t, f, "enwiki", "A", true)
}

func TestFilterKeysAreIndependent(t *testing.T) {
	store := NewMemoryStore()
	f := NewFilter(store)

	expectRepeat(t, f, "enwiki", "A", false)
	expectRepeat(t, f, "dewiki", "A", false)
	expectRepeat(t, f, "enwiki", "A", true)

	if store.Len() != 2 {
		t.Fatalf("store has %d keys, want 2", store.Len())
	}
}

func TestFilterEmptySignatureIsNotARepeatOfNothing(t *testing.T) {
	f := NewFilter(NewMemoryStore())
	expectRepeat(t, f, "enwiki", "", false)
	expectRepeat(t, f, "enwiki", "", true)
}

func TestMemoryStoreConcurrentSwapsLoseNothing(t *testing.T) {
	store := NewMemoryStore()
	f := NewFilter(store)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		repeats int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			repeat, err := f.IsRepeatAndRecord(context.Background(), "enwiki", "same")
			if err != nil {
				t.Errorf("IsRepeatAndRecord: %v", err)
				return
			}
			if repeat {
				mu.Lock()
				repeats++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if repeats != 49 {
		t.Fatalf("repeats = %d, want 49", repeats)
	}
}

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, ""), mr
}

func TestRedisStoreWindowIsOne(t *testing.T) {
	store, mr := newTestRedisStore(t)
	f := NewFilter(store)

	expectRepeat(t, f, "enwiki", "Page:1.2.3.4", false)
	expectRepeat(t, f, "enwiki", "Page:1.2.3.4", true)
	expectRepeat(t, f, "enwiki", "Page:5.6.7.8", false)
	expectRepeat(t, f, "enwiki", "Page:1.2.3.4", false)

	got, err := mr.Get(DefaultRedisKeyPrefix + "enwiki")
	if err != nil {
		t.Fatalf("miniredis get: %v", err)
	}
	if got != "Page:1.2.3.4" {
		t.Fatalf("stored signature = %q", got)
	}
}

func TestRedisStoreSharedBetweenFilters(t *testing.T) {
	store, _ := newTestRedisStore(t)
	first := NewFilter(store)
	second := NewFilter(store)

	expectRepeat(t, first, "enwiki", "A", false)
	expectRepeat(t, second, "enwiki", "A", true)
}

func TestRedisStoreReportsTransportErrors(t *testing.T) {
	store, mr := newTestRedisStore(t)
	mr.Close()

	_, err := NewFilter(store).IsRepeatAndRecord(context.Background(), "enwiki", "A")
	if err == nil {
		t.Fatal("expected error when redis is unreachable")
	}
	if want := fmt.Sprintf("dedup: swap %q", "enwiki"); !strings.HasPrefix(err.Error(), want) {
		t.Fatalf("error = %q, want prefix %q", err, want)
	}
}
