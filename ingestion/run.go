package ingestion

import (
	"context"
	"sync"
	"time"

	"github.com/poiesic/kbase/core"
)

// RunSummary describes a run. For a finished run it is final; for an active
// run it is a snapshot.
type RunSummary struct {
	RunID      string                 `json:"run_id"`
	ProjectID  core.ProjectID         `json:"project_id"`
	State      State                  `json:"state"`
	Counts     Counts                 `json:"counts"`
	Record     *core.ProcessingRecord `json:"record,omitempty"`
	Error      string                 `json:"error,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at,omitzero"`
}

// Run is one ingestion of a project's documents.
type Run struct {
	id      string
	project core.ProjectID
	files   []core.SourceDocument
	cancel  context.CancelFunc
	done    chan struct{}
	sink    Sink
	now     func() time.Time

	mu       sync.Mutex
	state    State
	counts   Counts
	err      error
	record   *core.ProcessingRecord
	started  time.Time
	finished time.Time
}

func newRun(id string, project core.ProjectID, files []core.SourceDocument, cancel context.CancelFunc, sink Sink, now func() time.Time) *Run {
	return &Run{
		id:      id,
		project: project,
		files:   files,
		cancel:  cancel,
		done:    make(chan struct{}),
		sink:    sink,
		now:     now,
		state:   StateIdle,
		counts:  Counts{FilesTotal: len(files)},
		started: now(),
	}
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// Project returns the project being ingested.
func (r *Run) Project() core.ProjectID { return r.project }

// State returns the current state.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the failure cause once the run has failed.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Done is closed when the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run finishes or ctx is done.
func (r *Run) Wait(ctx context.Context) (*RunSummary, error) {
	select {
	case <-r.done:
		return r.Summary(), r.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Summary returns a snapshot of the run.
func (r *Run) Summary() *RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &RunSummary{
		RunID:      r.id,
		ProjectID:  r.project,
		State:      r.state,
		Counts:     r.counts,
		Record:     r.record,
		StartedAt:  r.started,
		FinishedAt: r.finished,
	}
	if r.err != nil {
		s.Error = r.err.Error()
	}
	return s
}

// transition moves the run to state to and emits a transition event.
func (r *Run) transition(to State) error {
	r.mu.Lock()
	if err := checkTransition(r.state, to); err != nil {
		r.mu.Unlock()
		return err
	}
	r.state = to
	r.mu.Unlock()

	r.emit(EventTransition, "", nil)
	return nil
}

// finish moves the run to its terminal state and emits the summary.
// A non-nil err always ends the run in Failed.
func (r *Run) finish(to State, record *core.ProcessingRecord, err error) *RunSummary {
	r.mu.Lock()
	if r.state.Terminal() {
		r.mu.Unlock()
		return r.Summary()
	}
	if err != nil {
		to = StateFailed
	}
	r.state = to
	r.err = err
	r.record = record
	r.finished = r.now()
	r.mu.Unlock()

	if to == StateFailed {
		r.emit(EventTransition, "", err)
	}
	r.emit(EventSummary, "", err)
	close(r.done)
	return r.Summary()
}

func (r *Run) fileDone(file string, chunks, entities, relationships int, indexed bool) {
	r.mu.Lock()
	r.counts.Chunks += chunks
	r.counts.Entities += entities
	r.counts.Relationships += relationships
	if indexed {
		r.counts.FilesDone++
	}
	r.mu.Unlock()

	r.emit(EventFileDone, file, nil)
}

func (r *Run) fileFailed(file string, err error) {
	r.mu.Lock()
	r.counts.FilesFailed++
	r.mu.Unlock()

	r.emit(EventFileFailed, file, err)
}

func (r *Run) emit(typ EventType, file string, err error) {
	r.mu.Lock()
	e := Event{
		RunID:     r.id,
		ProjectID: r.project,
		Type:      typ,
		Stage:     r.state,
		File:      file,
		Counts:    r.counts,
		Time:      r.now(),
	}
	r.mu.Unlock()
	if err != nil {
		e.Err = err.Error()
	}
	r.sink.Emit(e)
}
