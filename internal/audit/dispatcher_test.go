package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

// collectSink gathers events under a mutex so tests can assert on them.
type collectSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *collectSink) Emit(_ context.Context, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *collectSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestDispatcherDeliversAndDrains(t *testing.T) {
	sink := &collectSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{EventType: "login", Success: true})
	}

	// Close drains the buffer before returning.
	d.Close()

	if got := len(sink.snapshot()); got != 5 {
		t.Fatalf("expected 5 events after drain, got %d", got)
	}
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &collectSink{})
	if d != nil {
		t.Fatal("disabled dispatcher must be nil")
	}

	// All methods must be safe on the nil dispatcher.
	d.Emit(context.Background(), Event{EventType: "login"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reports drops")
	}
}

func TestDropIfFullCountsDrops(t *testing.T) {
	// A sink that blocks until released, forcing the buffer to fill.
	release := make(chan struct{})
	blocking := sinkFunc(func(context.Context, Event) { <-release })

	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, blocking)
	defer func() {
		close(release)
		d.Close()
	}()

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "login"})
	}

	deadline := time.After(2 * time.Second)
	for d.Dropped() == 0 {
		select {
		case <-deadline:
			t.Fatal("expected dropped events with a saturated buffer")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

type sinkFunc func(context.Context, Event)

func (f sinkFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

func TestEmitAfterCloseIsNoOp(t *testing.T) {
	sink := &collectSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	d.Close()

	d.Emit(context.Background(), Event{EventType: "login"})
	d.Close()

	if got := len(sink.snapshot()); got != 0 {
		t.Fatalf("expected no events after close, got %d", got)
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{
		EventType: "login",
		UserID:    "u-1",
		Success:   true,
	})
	sink.Emit(context.Background(), Event{
		EventType: "revoke",
		SessionID: "s-1",
		Success:   true,
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSON lines, got %d", len(lines))
	}

	var decoded Event
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("decode first line: %v", err)
	}
	if decoded.EventType != "login" || decoded.UserID != "u-1" || !decoded.Success {
		t.Fatalf("unexpected event: %+v", decoded)
	}
}

func TestChannelSink(t *testing.T) {
	sink := NewChannelSink(4)

	sink.Emit(context.Background(), Event{EventType: "login"})

	select {
	case event := <-sink.Events():
		if event.EventType != "login" {
			t.Fatalf("unexpected event: %+v", event)
		}
	default:
		t.Fatal("expected a buffered event")
	}
}
