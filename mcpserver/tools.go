package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/ingestion"
	"github.com/poiesic/kbase/retrieval"
)

var errMissingUploadedAt = errors.New("uploaded_at is required")

// Tools holds the handlers behind each MCP tool.
type Tools struct {
	kb     KnowledgeBase
	logger *slog.Logger
}

// --- Input types ---

type DocumentInput struct {
	Filename   string `json:"filename" jsonschema:"File name, unique within the project"`
	Text       string `json:"text" jsonschema:"Extracted plain text of the document"`
	UploadedAt string `json:"uploaded_at,omitempty" jsonschema:"Required. Upload time in RFC 3339 format; an unchanged time lets re-ingestion skip the project"`
}

type IngestDocumentsInput struct {
	ProjectID string          `json:"project_id" jsonschema:"Project to ingest into"`
	Documents []DocumentInput `json:"documents" jsonschema:"The project's complete current document set"`
	Wait      bool            `json:"wait,omitempty" jsonschema:"Block until the run finishes and return its summary"`
}

type RunInput struct {
	RunID string `json:"run_id" jsonschema:"Run ID returned by ingest_documents"`
}

type ProjectInput struct {
	ProjectID string `json:"project_id" jsonschema:"Project ID"`
}

type QueryInput struct {
	ProjectID string `json:"project_id" jsonschema:"Project to search"`
	Question  string `json:"question" jsonschema:"Natural-language question"`
	K         int    `json:"k,omitempty" jsonschema:"Maximum number of passages; defaults to the server setting"`
	Graph     bool   `json:"graph,omitempty" jsonschema:"Include related infrastructure entities and relationships"`
}

// --- Output types ---

type runStarted struct {
	RunID     string `json:"run_id"`
	ProjectID string `json:"project_id"`
}

type processingStatus struct {
	ProjectID string                 `json:"project_id"`
	Processed bool                   `json:"processed"`
	Record    *core.ProcessingRecord `json:"record,omitempty"`
}

// --- Handlers ---

func (t *Tools) IngestDocuments(ctx context.Context, _ *mcp.CallToolRequest, input IngestDocumentsInput) (*mcp.CallToolResult, any, error) {
	project := core.ProjectID(input.ProjectID)
	docs, err := toDocuments(input.Documents)
	if err != nil {
		return toolError("Invalid documents: %v", err), nil, nil
	}

	if input.Wait {
		summary, err := t.kb.Process(ctx, project, docs)
		if summary == nil {
			return toolError("Ingestion failed: %v", err), nil, nil
		}
		if err != nil {
			t.logger.Warn("ingestion run failed", "project", project, "run_id", summary.RunID, "err", err)
		}
		return toolJSON(summary)
	}

	runID, err := t.kb.Ingest(ctx, project, docs)
	if err != nil {
		return toolError("Failed to start ingestion: %v", err), nil, nil
	}
	return toolJSON(runStarted{RunID: runID, ProjectID: input.ProjectID})
}

func (t *Tools) GetRun(_ context.Context, _ *mcp.CallToolRequest, input RunInput) (*mcp.CallToolResult, any, error) {
	run, err := t.kb.Run(input.RunID)
	if err != nil {
		return toolError("Run %q: %v", input.RunID, err), nil, nil
	}
	return toolJSON(run.Summary())
}

func (t *Tools) CancelRun(_ context.Context, _ *mcp.CallToolRequest, input RunInput) (*mcp.CallToolResult, any, error) {
	if err := t.kb.Cancel(input.RunID); err != nil {
		return toolError("Run %q: %v", input.RunID, err), nil, nil
	}
	return toolText(fmt.Sprintf("Run %s canceled", input.RunID)), nil, nil
}

func (t *Tools) GetProcessingStatus(ctx context.Context, _ *mcp.CallToolRequest, input ProjectInput) (*mcp.CallToolResult, any, error) {
	record, err := t.kb.ProcessingStatus(ctx, core.ProjectID(input.ProjectID))
	if err != nil {
		return toolError("Failed to read processing status: %v", err), nil, nil
	}
	return toolJSON(processingStatus{
		ProjectID: input.ProjectID,
		Processed: record != nil,
		Record:    record,
	})
}

func (t *Tools) QueryKnowledge(ctx context.Context, _ *mcp.CallToolRequest, input QueryInput) (*mcp.CallToolResult, any, error) {
	var opts []retrieval.QueryOption
	if input.K > 0 {
		opts = append(opts, retrieval.WithK(input.K))
	}
	if input.Graph {
		opts = append(opts, retrieval.WithGraphContext())
	}
	result, err := t.kb.Query(ctx, core.ProjectID(input.ProjectID), input.Question, opts...)
	if err != nil {
		return toolError("Query failed: %v", err), nil, nil
	}
	return toolJSON(result)
}

func (t *Tools) ClearProject(ctx context.Context, _ *mcp.CallToolRequest, input ProjectInput) (*mcp.CallToolResult, any, error) {
	if err := t.kb.ClearProject(ctx, core.ProjectID(input.ProjectID)); err != nil {
		return toolError("Failed to clear project: %v", err), nil, nil
	}
	return toolText(fmt.Sprintf("Project %s cleared", input.ProjectID)), nil, nil
}

func (t *Tools) ReindexProject(ctx context.Context, _ *mcp.CallToolRequest, input ProjectInput) (*mcp.CallToolResult, any, error) {
	record, err := t.kb.Reindex(ctx, core.ProjectID(input.ProjectID))
	if errors.Is(err, ingestion.ErrNotProcessed) {
		return toolError("Project %s has not been processed", input.ProjectID), nil, nil
	}
	if err != nil {
		return toolError("Failed to reindex project: %v", err), nil, nil
	}
	return toolJSON(record)
}

// --- Helpers ---

func toDocuments(in []DocumentInput) ([]core.SourceDocument, error) {
	docs := make([]core.SourceDocument, len(in))
	for i, d := range in {
		if d.UploadedAt == "" {
			return nil, fmt.Errorf("%s: %w", d.Filename, errMissingUploadedAt)
		}
		uploaded, err := time.Parse(time.RFC3339, d.UploadedAt)
		if err != nil {
			return nil, fmt.Errorf("%s: uploaded_at: %w", d.Filename, err)
		}
		docs[i] = core.SourceDocument{Filename: d.Filename, Text: d.Text, UploadedAt: uploaded}
	}
	return docs, nil
}

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
