package router

import (
	"sync"
	"testing"
	"time"
)

func TestQueue_PushPopOrder(t *testing.T) {
	q := NewQueue[int](10, 0)

	for i := 0; i < 5; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) returned false", i)
		}
	}
	if q.Len() != 5 {
		t.Errorf("Len() = %d, want 5", q.Len())
	}

	for i := 0; i < 5; i++ {
		v, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop() returned false for item %d", i)
		}
		if v != i {
			t.Errorf("popped %d, want %d", v, i)
		}
	}

	if _, ok := q.TryPop(); ok {
		t.Error("TryPop() on empty queue returned true")
	}
}

func TestQueue_GrowsAt70Percent(t *testing.T) {
	q := NewQueue[int](10, 0)

	for i := 0; i < 7; i++ {
		q.Push(i)
	}

	stats := q.Stats()
	if stats.Capacity != 20 {
		t.Errorf("Capacity = %d, want 20", stats.Capacity)
	}
	if stats.Resizes != 1 {
		t.Errorf("Resizes = %d, want 1", stats.Resizes)
	}
}

func TestQueue_LimitRejects(t *testing.T) {
	q := NewQueue[int](2, 4)

	for i := 0; i < 4; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) returned false below limit", i)
		}
	}
	if q.Push(99) {
		t.Error("Push() beyond limit returned true")
	}

	stats := q.Stats()
	if stats.Capacity != 4 {
		t.Errorf("Capacity = %d, want 4", stats.Capacity)
	}
	if stats.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", stats.Dropped)
	}

	for i := 0; i < 4; i++ {
		v, _ := q.TryPop()
		if v != i {
			t.Errorf("popped %d, want %d", v, i)
		}
	}
}

func TestQueue_WrapAroundThenGrow(t *testing.T) {
	q := NewQueue[int](8, 0)

	// Move head forward so the next grow copies a wrapped ring.
	for i := 0; i < 4; i++ {
		q.Push(i)
	}
	for i := 0; i < 4; i++ {
		q.TryPop()
	}

	for i := 0; i < 50; i++ {
		q.Push(i)
	}
	for i := 0; i < 50; i++ {
		v, ok := q.TryPop()
		if !ok || v != i {
			t.Fatalf("TryPop() = %d, %v, want %d, true", v, ok, i)
		}
	}
}

func TestQueue_BlockingPop(t *testing.T) {
	q := NewQueue[int](4, 0)
	got := make(chan int, 1)

	go func() {
		if v, ok := q.Pop(); ok {
			got <- v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(42)

	select {
	case v := <-got:
		if v != 42 {
			t.Errorf("popped %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for Pop")
	}
}

func TestQueue_CloseDrainsThenStops(t *testing.T) {
	q := NewQueue[int](4, 0)
	q.Push(1)
	q.Push(2)
	q.Close()

	if q.Push(3) {
		t.Error("Push() after Close returned true")
	}

	for _, want := range []int{1, 2} {
		v, ok := q.Pop()
		if !ok || v != want {
			t.Errorf("Pop() = %d, %v, want %d, true", v, ok, want)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop() on closed empty queue returned true")
	}
}

func TestQueue_CloseUnblocksPop(t *testing.T) {
	q := NewQueue[int](4, 0)
	done := make(chan bool, 1)

	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Pop() returned true after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock Pop")
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := NewQueue[int](4, 0)
	const producers, perProducer = 8, 250

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(i)
			}
		}()
	}

	received := 0
	done := make(chan struct{})
	go func() {
		for {
			if _, ok := q.Pop(); !ok {
				close(done)
				return
			}
			received++
		}
	}()

	wg.Wait()
	q.Close()
	<-done

	if received != producers*perProducer {
		t.Errorf("received %d, want %d", received, producers*perProducer)
	}
	stats := q.Stats()
	if stats.Pushed != stats.Popped {
		t.Errorf("Pushed = %d, Popped = %d", stats.Pushed, stats.Popped)
	}
}

func TestNewQueue_MinCapacity(t *testing.T) {
	q := NewQueue[int](0, 0)
	if q.Stats().Capacity != 1 {
		t.Errorf("Capacity = %d, want 1", q.Stats().Capacity)
	}
	if !q.Push(1) || !q.Push(2) {
		t.Error("Push() on minimal queue failed")
	}
}
