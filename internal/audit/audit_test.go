package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func entry(action string) Entry {
	return Entry{
		ID:        action,
		UserID:    "u1",
		Action:    action,
		Timestamp: time.Unix(1700000000, 0).UTC(),
	}
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	sink := NewChannelSink(16)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16, DropIfFull: true}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), entry(fmt.Sprintf("action-%d", i)))
	}
	d.Close()

	for i := 0; i < 5; i++ {
		select {
		case got := <-sink.Entries():
			want := fmt.Sprintf("action-%d", i)
			if got.Action != want {
				t.Fatalf("entry %d: expected %q, got %q", i, want, got.Action)
			}
		default:
			t.Fatalf("expected 5 entries, got %d", i)
		}
	}
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NewChannelSink(1))
	if d != nil {
		t.Fatal("disabled dispatcher must be nil")
	}
	// Nil dispatcher methods are safe no-ops.
	d.Emit(context.Background(), entry("x"))
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher cannot drop")
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	// A sink that never accepts forces the buffer to fill.
	blocked := make(chan struct{})
	sink := blockingSink{release: blocked}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)
	defer func() {
		close(blocked)
		d.Close()
	}()

	for i := 0; i < 20; i++ {
		d.Emit(context.Background(), entry("flood"))
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops under backpressure")
	}
}

type blockingSink struct {
	release chan struct{}
}

func (s blockingSink) Record(ctx context.Context, _ Entry) {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
}

func TestDispatcherCloseDrains(t *testing.T) {
	sink := NewChannelSink(64)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 64, DropIfFull: false}, sink)

	const n = 30
	for i := 0; i < n; i++ {
		d.Emit(context.Background(), entry("drain"))
	}
	d.Close()

	got := 0
	for {
		select {
		case <-sink.Entries():
			got++
		default:
			if got != n {
				t.Fatalf("expected %d drained entries, got %d", n, got)
			}
			return
		}
	}
}

func TestDispatcherEmitAfterClose(t *testing.T) {
	sink := NewChannelSink(4)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, DropIfFull: true}, sink)
	d.Close()

	d.Emit(context.Background(), entry("late"))
	select {
	case e := <-sink.Entries():
		t.Fatalf("unexpected delivery after close: %+v", e)
	default:
	}
}

func TestJSONWriterSinkLineFormat(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Record(context.Background(), Entry{
		ID:        "e1",
		UserID:    "u1",
		Action:    "Login Success",
		IP:        "203.0.113.9",
		Timestamp: time.Unix(1700000000, 0).UTC(),
	})
	sink.Record(context.Background(), Entry{Action: "Logout", Timestamp: time.Unix(1700000100, 0).UTC()})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var decoded Entry
	if err := json.Unmarshal(lines[0], &decoded); err != nil {
		t.Fatalf("line is not valid JSON: %v", err)
	}
	if decoded.Action != "Login Success" || decoded.IP != "203.0.113.9" {
		t.Fatalf("unexpected decoded entry: %+v", decoded)
	}
}
