package logger

import (
	"sync/atomic"
	"testing"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestChannelCounters(t *testing.T) {
	RecordChannelMessage("quotes")
	RecordChannelMessage("quotes")
	RecordChannelDrop("quotes")

	v, ok := channels.Load("quotes")
	if !ok {
		t.Fatal("channel stat not recorded")
	}
	cs := v.(*channelStat)
	if atomic.LoadInt64(&cs.messages) < 2 {
		t.Errorf("messages = %d, want >= 2", cs.messages)
	}
	if atomic.LoadInt64(&cs.dropped) < 1 {
		t.Errorf("dropped = %d, want >= 1", cs.dropped)
	}
}
