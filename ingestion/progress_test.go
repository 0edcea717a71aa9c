package ingestion

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelSink_DropsWhenFull(t *testing.T) {
	sink := NewChannelSink(2)
	for i := range 5 {
		sink.Emit(Event{RunID: "r", Counts: Counts{FilesDone: i}})
	}

	assert.Equal(t, int64(3), sink.Dropped())
	first := <-sink.Events()
	assert.Equal(t, 0, first.Counts.FilesDone)
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf)
	start := time.Now()

	sink.Emit(Event{RunID: "r", ProjectID: "P1", Type: EventTransition, Stage: StateIndexing, Time: start})
	sink.Emit(Event{RunID: "r", ProjectID: "P1", Type: EventFileDone, Stage: StateIndexing, Time: start.Add(time.Second),
		Counts: Counts{FilesTotal: 2, FilesDone: 1, Chunks: 3}})
	sink.Emit(Event{RunID: "r", ProjectID: "P1", Type: EventSummary, Stage: StateDone, Time: start.Add(2 * time.Second),
		Counts: Counts{FilesTotal: 2, FilesDone: 2, Chunks: 4}})

	output := buf.String()
	assert.Contains(t, output, "[P1] Indexing")
	assert.Contains(t, output, "1/2 files (50.0%)")
	assert.Contains(t, output, "2/2 files (100.0%) - 4 chunks - 2.0 chunks/s - Done")
	assert.True(t, strings.HasSuffix(output, "\n"), "summary should end the line")
}

func TestWriterSink_Failure(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf)
	sink.Emit(Event{RunID: "r", ProjectID: "P1", Type: EventSummary, Stage: StateFailed, Err: "boom", Time: time.Now()})

	assert.Contains(t, buf.String(), "Failed: boom")
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))

	sink.Emit(Event{RunID: "r", ProjectID: "P1", Type: EventFileFailed, Stage: StateIndexing, File: "a.txt", Err: "boom"})

	output := buf.String()
	assert.Contains(t, output, "level=WARN")
	assert.Contains(t, output, "file=a.txt")
	assert.Contains(t, output, "err=boom")
}

func TestMultiSink(t *testing.T) {
	var got []EventType
	sink := MultiSink{
		SinkFunc(func(e Event) { got = append(got, e.Type) }),
		SinkFunc(func(e Event) { got = append(got, e.Type) }),
	}
	sink.Emit(Event{Type: EventSummary})
	assert.Equal(t, []EventType{EventSummary, EventSummary}, got)
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	rec := &recorder{}
	d := newDispatcher(rec, 8)
	defer d.close()

	for _, stage := range []State{StateChecking, StateReprocessing, StateChunking} {
		d.Emit(Event{RunID: "r", Type: EventTransition, Stage: stage})
	}
	d.flush()

	assert.Equal(t, []State{StateChecking, StateReprocessing, StateChunking}, rec.stages("r"))
	assert.Zero(t, d.Dropped())
}

func TestDispatcher_SlowSinkDropsInsteadOfBlocking(t *testing.T) {
	release := make(chan struct{})
	d := newDispatcher(SinkFunc(func(Event) { <-release }), 1)

	emitted := make(chan struct{})
	go func() {
		for range 5 {
			d.Emit(Event{RunID: "r"})
		}
		close(emitted)
	}()

	select {
	case <-emitted:
	case <-time.After(5 * time.Second):
		close(release)
		require.FailNow(t, "Emit blocked on a slow sink")
	}
	assert.GreaterOrEqual(t, d.Dropped(), int64(3))

	close(release)
	d.close()

	before := d.Dropped()
	d.Emit(Event{RunID: "r"})
	assert.Equal(t, before+1, d.Dropped(), "events after close are dropped")
}
