package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/poiesic/kbase/ai"
	"github.com/poiesic/kbase/core"
)

// fileJob carries one document through the per-file stages.
type fileJob struct {
	doc           core.SourceDocument
	chunks        []*core.Chunk
	entities      []*core.Entity
	relationships []*core.Relationship
	err           error
}

// execute drives run through its states. It always returns a terminal summary.
func (c *Coordinator) execute(ctx context.Context, run *Run) *RunSummary {
	project := run.Project()
	logger := c.logger.With("run", run.ID(), "project", project)

	unlock, err := c.locks.lock(ctx, project)
	if err != nil {
		return run.finish(StateFailed, nil, canceled(err))
	}
	defer unlock()

	fail := func(stage State, err error) *RunSummary {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ErrRunCanceled) {
			err = canceled(ctxErr)
		}
		logger.Error("ingestion failed", "stage", stage, "err", err)
		return run.finish(StateFailed, nil, err)
	}
	step := func(to State) error {
		if err := ctx.Err(); err != nil {
			return canceled(err)
		}
		return run.transition(to)
	}

	if err := step(StateChecking); err != nil {
		return fail(StateIdle, err)
	}
	record, err := c.stores.Ledger.LoadRecord(ctx, project)
	if err != nil {
		return fail(StateChecking, &RunError{Stage: StateChecking, Err: err})
	}
	if !ShouldReprocess(record, run.files) {
		if err := run.transition(StateSkipped); err != nil {
			return fail(StateChecking, err)
		}
		logger.Info("documents unchanged, skipping")
		return run.finish(StateSkipped, record, nil)
	}

	if err := step(StateReprocessing); err != nil {
		return fail(StateChecking, err)
	}
	if err := c.deleteData(ctx, project); err != nil {
		return fail(StateReprocessing, &RunError{Stage: StateReprocessing, Err: fmt.Errorf("%w: %w", ErrReprocessDelete, err)})
	}
	// the old generation is gone; drop its record before writing the new one
	if err := c.retry(ctx, func() error { return c.stores.Ledger.DeleteRecord(ctx, project) }); err != nil {
		return fail(StateReprocessing, &RunError{Stage: StateReprocessing, Err: fmt.Errorf("%w: ledger: %w", ErrReprocessDelete, err)})
	}

	if err := step(StateChunking); err != nil {
		return fail(StateReprocessing, err)
	}
	jobs := c.chunkFiles(run)

	if err := step(StateExtracting); err != nil {
		return fail(StateChunking, err)
	}
	c.forEachFile(ctx, run, jobs, StateExtracting, c.extractFile)

	if err := step(StateIndexing); err != nil {
		return fail(StateExtracting, err)
	}
	c.forEachFile(ctx, run, jobs, StateIndexing, c.indexFile)

	if err := ctx.Err(); err != nil {
		return fail(StateIndexing, canceled(err))
	}
	var fileErrs []error
	embeddings := 0
	for _, job := range jobs {
		if job.err != nil {
			fileErrs = append(fileErrs, job.err)
			continue
		}
		embeddings += len(job.chunks)
	}
	if len(fileErrs) > 0 {
		return fail(StateIndexing, errors.Join(append([]error{ErrFilesFailed}, fileErrs...)...))
	}

	if err := step(StateLedgerUpdate); err != nil {
		return fail(StateIndexing, err)
	}
	var entities, relationships int
	err = c.retry(ctx, func() error {
		var err error
		if entities, err = c.stores.Graph.CountEntities(ctx, project); err != nil {
			return err
		}
		relationships, err = c.stores.Graph.CountRelationships(ctx, project)
		return err
	})
	if err != nil {
		return fail(StateLedgerUpdate, &RunError{Stage: StateLedgerUpdate, Err: err})
	}
	record = newRecord(project, run.files, embeddings, entities, relationships, c.now())
	if err := c.retry(ctx, func() error { return c.stores.Ledger.SaveRecord(ctx, record) }); err != nil {
		return fail(StateLedgerUpdate, &RunError{Stage: StateLedgerUpdate, Err: err})
	}

	if err := run.transition(StateDone); err != nil {
		return fail(StateLedgerUpdate, err)
	}
	logger.Info("ingestion complete",
		"files", record.FileCount,
		"embeddings", record.EmbeddingsCount,
		"entities", record.EntitiesCount,
		"relationships", record.RelationshipsCount)
	return run.finish(StateDone, record, nil)
}

// chunkFiles splits every document into chunks. Empty documents yield no
// chunks and are still counted as processed.
func (c *Coordinator) chunkFiles(run *Run) []*fileJob {
	jobs := make([]*fileJob, len(run.files))
	for i, doc := range run.files {
		texts := c.chunker.Chunk(doc.Text)
		job := &fileJob{doc: doc, chunks: make([]*core.Chunk, len(texts))}
		for ord, text := range texts {
			job.chunks[ord] = &core.Chunk{
				ID:        core.ChunkID(run.Project(), doc.Filename, ord),
				ProjectID: run.Project(),
				Filename:  doc.Filename,
				Ordinal:   ord,
				Content:   text,
			}
		}
		jobs[i] = job
		run.fileDone(doc.Filename, 0, 0, 0, false)
	}
	return jobs
}

// forEachFile runs fn for every job that has not failed yet on the worker
// pool and waits for all of them. No new file is started once ctx is done.
func (c *Coordinator) forEachFile(ctx context.Context, run *Run, jobs []*fileJob, stage State, fn func(context.Context, core.ProjectID, *fileJob) error) {
	var wg sync.WaitGroup
	for _, job := range jobs {
		if job.err != nil {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		submitErr := c.pool.Submit(func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				job.err = canceled(err)
				return
			}
			if err := fn(ctx, run.Project(), job); err != nil {
				job.err = &RunError{Stage: stage, File: job.doc.Filename, Err: err}
				c.logger.Warn("file step failed", "run", run.ID(), "stage", stage, "file", job.doc.Filename, "err", err)
				run.fileFailed(job.doc.Filename, job.err)
				return
			}
			if stage == StateIndexing {
				run.fileDone(job.doc.Filename, len(job.chunks), 0, 0, true)
			} else {
				run.fileDone(job.doc.Filename, 0, len(job.entities), len(job.relationships), false)
			}
		})
		if submitErr != nil {
			wg.Done()
			job.err = &RunError{Stage: stage, File: job.doc.Filename, Err: submitErr}
			run.fileFailed(job.doc.Filename, job.err)
		}
	}
	wg.Wait()
}

// extractFile collects entities and relationships from every chunk of a file.
// Chunks the extractor rejects are logged and skipped.
func (c *Coordinator) extractFile(ctx context.Context, project core.ProjectID, job *fileJob) error {
	entities := make(map[core.ID]*core.Entity)
	rels := make(map[core.ID]*core.Relationship)

	for _, chunk := range job.chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := c.extractor.Extract(chunk.Content)
		if err != nil {
			c.logger.Warn("skipping chunk", "project", project, "file", job.doc.Filename, "ordinal", chunk.Ordinal, "err", err)
			continue
		}
		ents, rs := res.Scope(project)
		for _, e := range ents {
			if existing, ok := entities[e.ID]; ok {
				existing.Merge(e.Attributes)
				continue
			}
			entities[e.ID] = e
			job.entities = append(job.entities, e)
		}
		for _, r := range rs {
			if _, ok := rels[r.ID]; ok {
				continue
			}
			rels[r.ID] = r
			job.relationships = append(job.relationships, r)
		}
	}
	return nil
}

// indexFile embeds and stores a file's chunks, then writes its graph.
func (c *Coordinator) indexFile(ctx context.Context, project core.ProjectID, job *fileJob) error {
	if err := c.embedAndIndex(ctx, project, job.chunks, true); err != nil {
		return err
	}
	if err := c.retry(ctx, func() error { return c.stores.Graph.UpsertEntities(ctx, job.entities...) }); err != nil {
		return fmt.Errorf("upsert entities: %w", err)
	}
	if err := c.retry(ctx, func() error { return c.stores.Graph.UpsertRelationships(ctx, job.relationships...) }); err != nil {
		return fmt.Errorf("upsert relationships: %w", err)
	}
	return nil
}

// embedAndIndex embeds chunks in batches and upserts them into the vector
// index, and into the chunk store when keepText is set. Cancellation is
// checked between batches.
func (c *Coordinator) embedAndIndex(ctx context.Context, project core.ProjectID, chunks []*core.Chunk, keepText bool) error {
	for start := 0; start < len(chunks); start += c.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := chunks[start:min(start+c.batchSize, len(chunks))]
		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Content
		}

		var vectors [][]float32
		err := c.retry(ctx, func() error {
			v, err := c.embedder.EmbedTexts(ctx, texts)
			if errors.Is(err, ai.ErrEmbeddingDimension) {
				return Permanent(fmt.Errorf("%w: %w", ErrEmbeddingMismatch, err))
			}
			if err != nil {
				return err
			}
			if len(v) != len(texts) {
				return Permanent(fmt.Errorf("%w: expected %d, received %d", ErrEmbeddingMismatch, len(texts), len(v)))
			}
			vectors = v
			return nil
		})
		if err != nil {
			return fmt.Errorf("embed: %w", err)
		}
		for i, ch := range batch {
			ch.Embedding = NormalizeVector(vectors[i])
		}

		if err := c.retry(ctx, func() error { return c.stores.Vectors.Upsert(ctx, project, batch...) }); err != nil {
			return fmt.Errorf("vector upsert: %w", err)
		}
		if keepText {
			if err := c.retry(ctx, func() error { return c.stores.Chunks.PutChunks(ctx, batch...) }); err != nil {
				return fmt.Errorf("store chunks: %w", err)
			}
		}
	}
	return nil
}
