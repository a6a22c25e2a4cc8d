package events

import (
	"sync"
	"testing"

	"orderflow/models"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) Emit(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func TestMultiFansOut(t *testing.T) {
	a, b := &collector{}, &collector{}
	m := Multi{a, b}
	ev := Event{OrderID: "o1", Symbol: "X", Status: models.StatusRejected, Reason: "position limit", Timestamp: 7}
	m.Emit(ev)

	for i, c := range []*collector{a, b} {
		if len(c.events) != 1 || c.events[0] != ev {
			t.Fatalf("collector %d got %v, want %v", i, c.events, ev)
		}
	}
}

func TestLogEmitterDoesNotPanic(t *testing.T) {
	NewLogEmitter().Emit(Event{OrderID: "o1", Symbol: "X", Status: models.StatusFilled, Timestamp: 1})
}

func TestKafkaEmitterValidation(t *testing.T) {
	if _, err := NewKafkaEmitter(nil, "orders", 8); err == nil {
		t.Error("expected error for missing brokers")
	}
	if _, err := NewKafkaEmitter([]string{"localhost:9092"}, "", 8); err == nil {
		t.Error("expected error for empty topic")
	}
}

func TestKafkaEmitterDropsWhenNotRunning(t *testing.T) {
	ke, err := NewKafkaEmitter([]string{"localhost:9092"}, "orders", 8)
	if err != nil {
		t.Fatalf("NewKafkaEmitter failed: %v", err)
	}
	ke.Emit(Event{OrderID: "o1", Symbol: "X"})
	if ke.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", ke.Dropped())
	}
}

func TestKafkaEmitterDropsWhenBufferFull(t *testing.T) {
	ke, err := NewKafkaEmitter([]string{"localhost:9092"}, "orders", 2)
	if err != nil {
		t.Fatalf("NewKafkaEmitter failed: %v", err)
	}
	// Mark running without starting the writer goroutine so the buffer
	// fills and Emit has to drop rather than block.
	ke.mu.Lock()
	ke.running = true
	ke.mu.Unlock()

	for i := 0; i < 5; i++ {
		ke.Emit(Event{OrderID: "o1", Symbol: "X"})
	}
	if ke.Dropped() != 3 {
		t.Fatalf("dropped = %d, want 3", ke.Dropped())
	}
	if len(ke.buf) != 2 {
		t.Fatalf("buffered = %d, want 2", len(ke.buf))
	}
}
