// Package audit implements the append-only security audit trail.
//
// # Components
//
//   - [Entry] — immutable record of one security-relevant action.
//   - [Sink] — interface for entry consumers (channel, JSON writer, no-op,
//     or a database adapter supplied by the caller).
//   - [Dispatcher] — buffered async relay with drop-if-full / block-if-full
//     semantics.
//
// # Architecture boundaries
//
// This package owns entry buffering and sink delivery. It does NOT decide
// which actions to record — that responsibility belongs to the Engine. No
// component reads entries back as part of control flow; the trail is a side
// channel for compliance and reporting only.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Entry is one audit record. Entries are write-once: nothing in this module
// updates or deletes an entry after it has been handed to a sink.
type Entry struct {
	ID          string    `json:"id,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	UserName    string    `json:"user_name,omitempty"`
	Action      string    `json:"action"`
	Origin      string    `json:"origin,omitempty"`
	RequestPath string    `json:"request_path,omitempty"`
	IP          string    `json:"ip,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Sink receives dispatched audit entries.
type Sink interface {
	Record(ctx context.Context, entry Entry)
}

// NoOpSink drops audit entries.
type NoOpSink struct{}

func (NoOpSink) Record(context.Context, Entry) {}

// ChannelSink writes audit entries into a buffered channel.
type ChannelSink struct {
	entries chan Entry
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		entries: make(chan Entry, buffer),
	}
}

func (s *ChannelSink) Record(ctx context.Context, entry Entry) {
	select {
	case s.entries <- entry:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Entries() <-chan Entry {
	return s.entries
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Record(ctx context.Context, entry Entry) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Dispatcher asynchronously forwards audit entries to a sink. A nil
// Dispatcher is valid and discards everything, so callers never branch on
// whether auditing is enabled.
type Dispatcher struct {
	cfg       Config
	sink      Sink
	ch        chan Entry
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:  cfg,
		sink: sink,
		ch:   make(chan Entry, cfg.BufferSize),
		done: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case entry := <-d.ch:
			d.sink.Record(context.Background(), entry)
		case <-d.done:
			for {
				select {
				case entry := <-d.ch:
					d.sink.Record(context.Background(), entry)
				default:
					return
				}
			}
		}
	}
}

// Emit queues an entry for delivery. Emit never returns an error: a full
// buffer either drops the entry (DropIfFull) or blocks until ctx is done.
func (d *Dispatcher) Emit(ctx context.Context, entry Entry) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- entry:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- entry:
	case <-ctx.Done():
	case <-d.done:
	}
}

// Close drains buffered entries into the sink and stops the relay goroutine.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped reports how many entries were discarded because the buffer was
// full while DropIfFull was set.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
