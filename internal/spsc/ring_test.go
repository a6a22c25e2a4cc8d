package spsc

import (
	"sync"
	"testing"
)

func TestNewRejectsBadCapacity(t *testing.T) {
	for _, c := range []int{0, -1, 3, 6, 100} {
		if _, err := New[int](c); err == nil {
			t.Errorf("New(%d) expected error", c)
		}
	}
	if _, err := New[int](8); err != nil {
		t.Fatalf("New(8) failed: %v", err)
	}
}

func TestPushPopFIFO(t *testing.T) {
	r, err := New[int](4)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := r.TryPop(); ok {
		t.Fatal("pop on empty ring should fail")
	}
	for i := 0; i < 4; i++ {
		if !r.TryPush(i) {
			t.Fatalf("push %d failed on non-full ring", i)
		}
	}
	if r.TryPush(99) {
		t.Fatal("push on full ring should fail")
	}
	if r.Len() != 4 {
		t.Fatalf("Len = %d, want 4", r.Len())
	}
	for i := 0; i < 4; i++ {
		v, ok := r.TryPop()
		if !ok || v != i {
			t.Fatalf("pop %d = (%d, %v), want (%d, true)", i, v, ok, i)
		}
	}
	if _, ok := r.TryPop(); ok {
		t.Fatal("pop on drained ring should fail")
	}
}

func TestWraparound(t *testing.T) {
	r, _ := New[int](4)
	for cycle := 0; cycle < 10; cycle++ {
		for i := 0; i < 3; i++ {
			if !r.TryPush(cycle*3 + i) {
				t.Fatalf("cycle %d push %d failed", cycle, i)
			}
		}
		for i := 0; i < 3; i++ {
			v, ok := r.TryPop()
			if !ok || v != cycle*3+i {
				t.Fatalf("cycle %d pop = (%d, %v), want %d", cycle, v, ok, cycle*3+i)
			}
		}
	}
}

// One producer, one consumer, every accepted item must come out exactly once
// and in order.
func TestConcurrentSPSC(t *testing.T) {
	const total = 200000
	r, _ := New[int](1024)

	var wg sync.WaitGroup
	accepted := make([]bool, total)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			for !r.TryPush(i) {
			}
			accepted[i] = true
		}
	}()

	var got []int
	wg.Add(1)
	go func() {
		defer wg.Done()
		for len(got) < total {
			if v, ok := r.TryPop(); ok {
				got = append(got, v)
			}
		}
	}()

	wg.Wait()

	if len(got) != total {
		t.Fatalf("received %d items, want %d", len(got), total)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("item %d = %d, FIFO order violated", i, v)
		}
		if !accepted[v] {
			t.Fatalf("item %d was never accepted by the producer", v)
		}
	}
}

func BenchmarkPushPop(b *testing.B) {
	r, _ := New[int](1024)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		r.TryPush(i)
		r.TryPop()
	}
}
