package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/ingestion"
)

var (
	heading = color.New(color.FgCyan, color.Bold)
	faint   = color.New(color.Faint)
	success = color.New(color.FgGreen, color.Bold)
	failure = color.New(color.FgRed, color.Bold)
	warning = color.New(color.FgYellow)
)

func okLabel() string {
	return success.Sprint("ok")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSummary(w io.Writer, s *ingestion.RunSummary) {
	state := success.Sprint(s.State)
	if s.State == ingestion.StateFailed {
		state = failure.Sprint(s.State)
	}
	fmt.Fprintf(w, "%s %s (run %s)\n", heading.Sprint(s.ProjectID), state, faint.Sprint(s.RunID))
	fmt.Fprintf(w, "  files: %d done, %d failed of %d\n", s.Counts.FilesDone, s.Counts.FilesFailed, s.Counts.FilesTotal)
	fmt.Fprintf(w, "  chunks: %d  entities: %d  relationships: %d\n", s.Counts.Chunks, s.Counts.Entities, s.Counts.Relationships)
	if !s.FinishedAt.IsZero() {
		fmt.Fprintf(w, "  took: %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	}
	if s.Error != "" {
		fmt.Fprintf(w, "  %s %s\n", failure.Sprint("error:"), s.Error)
	}
}

func printRecord(w io.Writer, project core.ProjectID, r *core.ProcessingRecord) {
	if r == nil {
		fmt.Fprintf(w, "%s %s\n", heading.Sprint(project), warning.Sprint("not processed"))
		return
	}
	fmt.Fprintf(w, "%s processed %s\n", heading.Sprint(project), r.ProcessedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "  files: %d  embeddings: %d  entities: %d  relationships: %d\n",
		r.FileCount, r.EmbeddingsCount, r.EntitiesCount, r.RelationshipsCount)
	for _, f := range r.Files {
		fmt.Fprintf(w, "  - %s %s\n", f.Filename, faint.Sprint(f.UploadedAt.Format(time.RFC3339)))
	}
}

func printResult(w io.Writer, r *core.RetrievalResult) {
	fmt.Fprintln(w, r.AnswerText)
	if r.Degraded {
		fmt.Fprintln(w, warning.Sprint("(synthesis unavailable, showing passages)"))
	}
	if len(r.Passages) == 0 {
		return
	}

	fmt.Fprintf(w, "\n%s %s\n", heading.Sprint("Sources"), faint.Sprintf("(%s)", r.Kind))
	for i, p := range r.Passages {
		fmt.Fprintf(w, "  [%d] %s %s\n", i+1, p.Filename, faint.Sprintf("%.3f", p.Score))
	}

	if r.Graph.Empty() {
		return
	}
	fmt.Fprintf(w, "\n%s\n", heading.Sprint("Entities"))
	for _, e := range r.Graph.Entities {
		fmt.Fprintf(w, "  %s %s\n", e.Name, faint.Sprintf("(%s)", e.Type))
	}
	for _, rel := range r.Graph.Relationships {
		fmt.Fprintf(w, "  %s %s %s\n", rel.SourceName, warning.Sprint(rel.Type), rel.TargetName)
	}
}
