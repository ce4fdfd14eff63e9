package timemap

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SlimIO/TimeMap/clock"
)

func TestEvents_OnSetOnDelete(t *testing.T) {
	var sets, deletes []string

	handlers := EventHandlers[string, string]{
		OnSet:    func(key, _ string) { sets = append(sets, key) },
		OnDelete: func(key, _ string) { deletes = append(deletes, key) },
	}

	tm, _ := New[string, string](Config{TimeLife: 5 * time.Minute},
		WithEventHandlers[string, string](handlers),
	)
	defer tm.Close()

	tm.Set("a", "1")
	tm.Set("b", "2")
	tm.Delete("a")

	if len(sets) != 2 || sets[0] != "a" || sets[1] != "b" {
		t.Fatalf("expected OnSet for a,b, got %v", sets)
	}
	if len(deletes) != 1 || deletes[0] != "a" {
		t.Fatalf("expected OnDelete for a, got %v", deletes)
	}
}

func TestExpiration_HandlerObservesEntry(t *testing.T) {
	mockClock := clock.NewMock(time.Now())

	var tm *TimeMap[string, string]
	var sawPresent bool
	var sawValue string

	handlers := EventHandlers[string, string]{
		OnExpiration: func(key, _ string) {
			// Delivery happens before the delete becomes observable.
			sawPresent = tm.Has(key)
			sawValue, _ = tm.Get(key)
		},
	}

	tm, _ = New[string, string](Config{TimeLife: 100 * time.Millisecond},
		WithClock[string, string](mockClock),
		WithEventHandlers[string, string](handlers),
	)
	defer tm.Close()

	tm.Set("foo", "bar")
	mockClock.Advance(150 * time.Millisecond)

	if !sawPresent {
		t.Fatal("handler should still observe the expiring entry")
	}
	if sawValue != "bar" {
		t.Fatalf("handler should read the expiring value, got %q", sawValue)
	}
	if tm.Has("foo") {
		t.Fatal("entry must be gone once delivery completes")
	}
}

func TestExpiration_HandlerDeleteIsSafe(t *testing.T) {
	mockClock := clock.NewMock(time.Now())
	expired := 0

	var tm *TimeMap[string, string]
	handlers := EventHandlers[string, string]{
		OnExpiration: func(key, _ string) {
			expired++
			tm.Delete(key)
		},
	}

	tm, _ = New[string, string](Config{TimeLife: 100 * time.Millisecond},
		WithClock[string, string](mockClock),
		WithEventHandlers[string, string](handlers),
	)
	defer tm.Close()

	tm.Set("foo", "bar")
	mockClock.Advance(150 * time.Millisecond)

	if expired != 1 {
		t.Fatalf("expected 1 expiration, got %d", expired)
	}
	if tm.Len() != 0 {
		t.Fatalf("expected empty map, got %d", tm.Len())
	}
}

func TestExpiration_AtMostOncePerKey(t *testing.T) {
	mockClock := clock.NewMock(time.Now())
	counts := map[string]int{}

	tm, _ := New[string, int](Config{TimeLife: 100 * time.Millisecond},
		WithClock[string, int](mockClock),
		WithEventHandlers[string, int](EventHandlers[string, int]{
			OnExpiration: func(key string, _ int) { counts[key]++ },
		}),
	)
	defer tm.Close()

	for i := 0; i < 10; i++ {
		tm.Set(fmt.Sprintf("key%d", i), i)
		mockClock.Advance(5 * time.Millisecond)
	}

	mockClock.Advance(500 * time.Millisecond)

	if len(counts) != 10 {
		t.Fatalf("expected 10 distinct expirations, got %d", len(counts))
	}
	for key, n := range counts {
		if n != 1 {
			t.Fatalf("expected exactly one expiration for %s, got %d", key, n)
		}
	}
}

func TestGetOrLoad_NoLoader(t *testing.T) {
	tm, _ := New[string, string](Config{TimeLife: 5 * time.Minute})
	defer tm.Close()

	if _, err := tm.GetOrLoad("missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestGetOrLoad_Basic(t *testing.T) {
	var loadCount atomic.Int32

	loader := LoaderFunc[string, string](func(key string) (string, error) {
		loadCount.Add(1)
		return "loaded-" + key, nil
	})

	tm, _ := New[string, string](Config{TimeLife: 5 * time.Minute},
		WithLoader[string, string](loader),
	)
	defer tm.Close()

	val, err := tm.GetOrLoad("key1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if val != "loaded-key1" {
		t.Fatalf("expected loaded-key1, got %s", val)
	}

	// Second call hits the map, not the loader.
	if _, err := tm.GetOrLoad("key1"); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if loadCount.Load() != 1 {
		t.Fatalf("expected 1 load, got %d", loadCount.Load())
	}
}

func TestGetOrLoad_LoaderError(t *testing.T) {
	wantErr := errors.New("backend down")
	loader := LoaderFunc[string, string](func(string) (string, error) {
		return "", wantErr
	})

	tm, _ := New[string, string](Config{TimeLife: 5 * time.Minute},
		WithLoader[string, string](loader),
	)
	defer tm.Close()

	if _, err := tm.GetOrLoad("key1"); !errors.Is(err, wantErr) {
		t.Fatalf("expected loader error, got %v", err)
	}
	if tm.Has("key1") {
		t.Fatal("failed load must not insert an entry")
	}
}

func TestGetOrLoad_Singleflight(t *testing.T) {
	var loadCount atomic.Int32

	loader := NewSuppressedLoader(LoaderFunc[string, string](func(key string) (string, error) {
		loadCount.Add(1)
		time.Sleep(50 * time.Millisecond)
		return "loaded-" + key, nil
	}))

	tm, _ := New[string, string](Config{TimeLife: 5 * time.Minute},
		WithLoader[string, string](loader),
	)
	defer tm.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			val, err := tm.GetOrLoad("hot")
			if err != nil || val != "loaded-hot" {
				t.Errorf("expected loaded-hot, got %q (%v)", val, err)
			}
		}()
	}
	wg.Wait()

	if loadCount.Load() != 1 {
		t.Fatalf("singleflight should collapse to 1 call, got %d", loadCount.Load())
	}
}

func TestTimeMap_Concurrent(t *testing.T) {
	tm, _ := New[string, int](Config{TimeLife: 5 * time.Minute})
	defer tm.Close()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			tm.Set(fmt.Sprintf("key%d", i), i)
		}(i)
		go func(i int) {
			defer wg.Done()
			tm.Has(fmt.Sprintf("key%d", i))
		}(i)
		go func(i int) {
			defer wg.Done()
			tm.Refresh(fmt.Sprintf("key%d", i))
		}(i)
	}
	wg.Wait()

	if tm.Len() != 100 {
		t.Fatalf("expected 100 entries, got %d", tm.Len())
	}
}

func TestTimeMap_RealClockExpiration(t *testing.T) {
	done := make(chan string, 1)

	tm, _ := New[string, string](Config{TimeLife: 50 * time.Millisecond},
		WithEventHandlers[string, string](EventHandlers[string, string]{
			OnExpiration: func(key, _ string) { done <- key },
		}),
	)
	defer tm.Close()

	tm.Set("foo", "bar")

	select {
	case key := <-done:
		if key != "foo" {
			t.Fatalf("expected foo to expire, got %s", key)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for expiration")
	}

	// Delivery precedes the delete; give the sweep a moment to finish.
	deadline := time.Now().Add(time.Second)
	for tm.Has("foo") {
		if time.Now().After(deadline) {
			t.Fatal("expected foo to be gone after expiration")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
