package events

import (
	"sync"
	"testing"
	"time"
)

func TestNopDiscardsSilently(t *testing.T) {
	var n Nop
	n.Notify(Event{Kind: KindFileStarted, Path: "/a"})
}

func TestFuncAdaptsPlainFunction(t *testing.T) {
	var got Event
	f := Func(func(e Event) { got = e })
	f.Notify(Event{Kind: KindFileFailed, Path: "/b"})
	if got.Kind != KindFileFailed || got.Path != "/b" {
		t.Fatalf("Func did not forward event: %+v", got)
	}
}

func TestSerializePreservesOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []int

	sink := Func(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, int(e.Bytes))
	})

	s := NewSerialize(sink, 16)
	for i := 0; i < 100; i++ {
		s.Notify(Event{Kind: KindChunkInserted, Bytes: uint64(i)})
	}
	s.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 100 {
		t.Fatalf("expected 100 events, got %d", len(seen))
	}
	for i, v := range seen {
		if v != i {
			t.Fatalf("events delivered out of order at index %d: got %d", i, v)
		}
	}
}

func TestSerializeCloseWaitsForDrain(t *testing.T) {
	var mu sync.Mutex
	count := 0

	sink := Func(func(e Event) {
		time.Sleep(time.Millisecond)
		mu.Lock()
		count++
		mu.Unlock()
	})

	s := NewSerialize(sink, 4)
	for i := 0; i < 10; i++ {
		s.Notify(Event{Kind: KindFileCompleted})
	}
	s.Close()

	mu.Lock()
	defer mu.Unlock()
	if count != 10 {
		t.Fatalf("Close returned before all events drained: count=%d", count)
	}
}

func TestSerializeFromMultipleGoroutines(t *testing.T) {
	var mu sync.Mutex
	count := 0
	sink := Func(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	s := NewSerialize(sink, 8)
	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				s.Notify(Event{Kind: KindChunkDeduped})
			}
		}()
	}
	wg.Wait()
	s.Close()

	mu.Lock()
	defer mu.Unlock()
	if count != 100 {
		t.Fatalf("expected 100 notifications, got %d", count)
	}
}
