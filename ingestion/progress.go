package ingestion

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/kbase/core"
)

// EventType classifies progress events.
type EventType string

const (
	// EventTransition is emitted when a run enters a new state.
	EventTransition EventType = "transition"
	// EventFileDone is emitted when a file finishes a stage.
	EventFileDone EventType = "file_done"
	// EventFileFailed is emitted when a file step fails.
	EventFileFailed EventType = "file_failed"
	// EventSummary is emitted once when a run reaches a terminal state.
	EventSummary EventType = "summary"
)

// Counts are running totals for a run.
type Counts struct {
	FilesTotal    int `json:"files_total"`
	FilesDone     int `json:"files_done"`
	FilesFailed   int `json:"files_failed"`
	Chunks        int `json:"chunks"`
	Entities      int `json:"entities"`
	Relationships int `json:"relationships"`
}

// Event is one progress notification.
type Event struct {
	RunID     string         `json:"run_id"`
	ProjectID core.ProjectID `json:"project_id"`
	Type      EventType      `json:"type"`
	Stage     State          `json:"stage"`
	File      string         `json:"file,omitempty"`
	Counts    Counts         `json:"counts"`
	Err       string         `json:"error,omitempty"`
	Time      time.Time      `json:"time"`
}

// Sink receives progress events. The coordinator calls Emit from a single
// dispatch goroutine, so a slow sink loses events instead of stalling runs.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f.
func (f SinkFunc) Emit(e Event) { f(e) }

type noopSink struct{}

func (noopSink) Emit(Event) {}

// MultiSink fans events out to several sinks in order.
type MultiSink []Sink

// Emit forwards e to every sink.
func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// ChannelSink delivers events on a buffered channel and drops them when the
// buffer is full.
type ChannelSink struct {
	ch      chan Event
	dropped int64
	mu      sync.Mutex
}

// NewChannelSink creates a ChannelSink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSink{ch: make(chan Event, buffer)}
}

// Emit queues e, or drops it if the consumer has fallen behind.
func (c *ChannelSink) Emit(e Event) {
	select {
	case c.ch <- e:
	default:
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
	}
}

// Events returns the receive side of the channel.
func (c *ChannelSink) Events() <-chan Event {
	return c.ch
}

// Dropped returns how many events were discarded.
func (c *ChannelSink) Dropped() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// WriterSink prints a single updating progress line per run to a writer,
// typically os.Stderr.
type WriterSink struct {
	writer    io.Writer
	mu        sync.Mutex
	startTime map[string]time.Time
}

// NewWriterSink creates a WriterSink.
func NewWriterSink(writer io.Writer) *WriterSink {
	return &WriterSink{writer: writer, startTime: make(map[string]time.Time)}
}

// Emit reports e.
func (w *WriterSink) Emit(e Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	start, ok := w.startTime[e.RunID]
	if !ok {
		start = e.Time
		w.startTime[e.RunID] = start
	}

	switch e.Type {
	case EventTransition:
		fmt.Fprintf(w.writer, "\r[%s] %s", e.ProjectID, e.Stage)
	case EventFileDone, EventFileFailed:
		w.report(e, start)
	case EventSummary:
		w.report(e, start)
		if e.Err != "" {
			fmt.Fprintf(w.writer, " - %s: %s", e.Stage, e.Err)
		} else {
			fmt.Fprintf(w.writer, " - %s", e.Stage)
		}
		fmt.Fprintln(w.writer)
		delete(w.startTime, e.RunID)
	}
}

// report prints the current progress. Must be called with lock held.
func (w *WriterSink) report(e Event, start time.Time) {
	elapsed := e.Time.Sub(start)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(e.Counts.Chunks) / elapsed.Seconds()
	}

	percentage := 0.0
	if e.Counts.FilesTotal > 0 {
		percentage = float64(e.Counts.FilesDone+e.Counts.FilesFailed) / float64(e.Counts.FilesTotal) * 100.0
	}

	fmt.Fprintf(w.writer, "\r[%s] %s: %d/%d files (%.1f%%) - %d chunks - %.1f chunks/s",
		e.ProjectID, e.Stage, e.Counts.FilesDone+e.Counts.FilesFailed, e.Counts.FilesTotal, percentage, e.Counts.Chunks, rate)
}

// LogSink writes events to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "ingestion-progress")}
}

// Emit logs e at Info, or Warn for failures.
func (l *LogSink) Emit(e Event) {
	attrs := []any{
		"run", e.RunID,
		"project", e.ProjectID,
		"stage", e.Stage,
		"files", e.Counts.FilesDone,
		"chunks", e.Counts.Chunks,
	}
	if e.File != "" {
		attrs = append(attrs, "file", e.File)
	}
	if e.Err != "" {
		l.logger.Warn(string(e.Type), append(attrs, "err", e.Err)...)
		return
	}
	l.logger.Info(string(e.Type), attrs...)
}

// dispatcher queues events for a sink and delivers them on its own goroutine.
// Emit never blocks; events that do not fit in the queue are dropped.
type dispatcher struct {
	sink   Sink
	events chan Event
	done   chan struct{}

	mu        sync.Mutex
	drained   *sync.Cond
	queued    int64
	delivered int64
	dropped   int64
	closed    bool
}

func newDispatcher(sink Sink, buffer int) *dispatcher {
	if buffer < 1 {
		buffer = 1
	}
	d := &dispatcher{
		sink:   sink,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	d.drained = sync.NewCond(&d.mu)
	go d.loop()
	return d
}

func (d *dispatcher) loop() {
	defer close(d.done)
	for e := range d.events {
		d.sink.Emit(e)
		d.mu.Lock()
		d.delivered++
		d.drained.Broadcast()
		d.mu.Unlock()
	}
}

// Emit queues e for delivery.
func (d *dispatcher) Emit(e Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.dropped++
		return
	}
	select {
	case d.events <- e:
		d.queued++
	default:
		d.dropped++
	}
}

// flush waits until every event queued before the call has been delivered.
func (d *dispatcher) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	target := d.queued
	for d.delivered < target {
		d.drained.Wait()
	}
}

// Dropped returns how many events were discarded.
func (d *dispatcher) Dropped() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// close stops accepting events and waits for the queue to drain.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()
	<-d.done
}
