package mcpserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/kbase"
	"github.com/poiesic/kbase/ai/mock"
	"github.com/poiesic/kbase/config"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/ingestion"
	"github.com/poiesic/kbase/retrieval"
)

const infraText = "Server srv-app-01 (IP 10.0.0.5, RHEL 8) hosts the PayrollApp application."

// setup creates an MCP server over an in-memory knowledge base and returns a
// connected client session.
func setup(t *testing.T) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	cfg := config.Default()
	cfg.InMemory = true
	kb, err := kbase.New(ctx, cfg, kbase.WithProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	t.Cleanup(func() { kb.Close() })

	srv := New(kb, nil)
	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	_, err = srv.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

// call invokes a tool and returns its text and error flag.
func call(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err, "CallTool(%s)", name)
	require.NotEmpty(t, result.Content, "CallTool(%s): empty content", name)
	tc, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	return tc.Text, result.IsError
}

// callOK invokes a tool that must succeed.
func callOK(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) string {
	t.Helper()
	text, isErr := call(t, session, name, args)
	require.False(t, isErr, "CallTool(%s) returned error: %s", name, text)
	return text
}

func ingestArgs(project string, wait bool) map[string]any {
	return map[string]any{
		"project_id": project,
		"wait":       wait,
		"documents": []map[string]any{{
			"filename":    "infra.txt",
			"text":        infraText,
			"uploaded_at": "2025-01-01T00:00:00Z",
		}},
	}
}

func TestListTools(t *testing.T) {
	session := setup(t)
	result, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"ingest_documents", "get_run", "cancel_run", "get_processing_status",
		"query_knowledge", "clear_project", "reindex_project",
	}, names)
}

func TestIngestAndQuery(t *testing.T) {
	session := setup(t)

	text := callOK(t, session, "ingest_documents", ingestArgs("P1", true))
	var summary ingestion.RunSummary
	require.NoError(t, json.Unmarshal([]byte(text), &summary))
	assert.Equal(t, ingestion.StateDone, summary.State)
	require.NotNil(t, summary.Record)
	assert.Equal(t, 1, summary.Record.EmbeddingsCount)

	text = callOK(t, session, "get_processing_status", map[string]any{"project_id": "P1"})
	var status processingStatus
	require.NoError(t, json.Unmarshal([]byte(text), &status))
	assert.True(t, status.Processed)
	assert.Equal(t, 1, status.Record.FileCount)

	text = callOK(t, session, "query_knowledge", map[string]any{
		"project_id": "P1",
		"question":   "What server hosts PayrollApp?",
		"graph":      true,
	})
	var result core.RetrievalResult
	require.NoError(t, json.Unmarshal([]byte(text), &result))
	assert.Equal(t, core.ResultVector, result.Kind)
	require.Len(t, result.Passages, 1)
	assert.Equal(t, "infra.txt", result.Passages[0].Filename)
	require.NotNil(t, result.Graph)
	assert.NotEmpty(t, result.Graph.Entities)
}

func TestIngestUnchangedIsSkipped(t *testing.T) {
	session := setup(t)

	var first, second ingestion.RunSummary
	text := callOK(t, session, "ingest_documents", ingestArgs("P1", true))
	require.NoError(t, json.Unmarshal([]byte(text), &first))
	require.Equal(t, ingestion.StateDone, first.State)

	text = callOK(t, session, "ingest_documents", ingestArgs("P1", true))
	require.NoError(t, json.Unmarshal([]byte(text), &second))
	assert.Equal(t, ingestion.StateSkipped, second.State)
	require.NotNil(t, second.Record)
	assert.Equal(t, first.Record.EmbeddingsCount, second.Record.EmbeddingsCount)
}

func TestIngestAsync(t *testing.T) {
	session := setup(t)

	text := callOK(t, session, "ingest_documents", ingestArgs("P1", false))
	var started runStarted
	require.NoError(t, json.Unmarshal([]byte(text), &started))
	require.NotEmpty(t, started.RunID)

	assert.Eventually(t, func() bool {
		text := callOK(t, session, "get_run", map[string]any{"run_id": started.RunID})
		var summary ingestion.RunSummary
		if err := json.Unmarshal([]byte(text), &summary); err != nil {
			return false
		}
		return summary.State == ingestion.StateDone
	}, 10*time.Second, 20*time.Millisecond)
}

func TestToolErrors(t *testing.T) {
	session := setup(t)

	tests := []struct {
		name string
		tool string
		args map[string]any
	}{
		{"unknown run", "get_run", map[string]any{"run_id": "nope"}},
		{"cancel unknown run", "cancel_run", map[string]any{"run_id": "nope"}},
		{"empty question", "query_knowledge", map[string]any{"project_id": "P1", "question": "  "}},
		{"empty project", "get_processing_status", map[string]any{"project_id": ""}},
		{"no documents", "ingest_documents", map[string]any{"project_id": "P1", "documents": []map[string]any{}}},
		{"bad timestamp", "ingest_documents", map[string]any{
			"project_id": "P1",
			"documents":  []map[string]any{{"filename": "a.txt", "text": "x", "uploaded_at": "yesterday"}},
		}},
		{"missing uploaded_at", "ingest_documents", map[string]any{
			"project_id": "P1",
			"documents":  []map[string]any{{"filename": "a.txt", "text": "x"}},
		}},
		{"reindex unprocessed", "reindex_project", map[string]any{"project_id": "P1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, isErr := call(t, session, tt.tool, tt.args)
			assert.True(t, isErr, "expected error, got %s", text)
		})
	}
}

func TestClearProject(t *testing.T) {
	session := setup(t)
	callOK(t, session, "ingest_documents", ingestArgs("P1", true))

	text := callOK(t, session, "clear_project", map[string]any{"project_id": "P1"})
	assert.Contains(t, text, "cleared")

	text = callOK(t, session, "get_processing_status", map[string]any{"project_id": "P1"})
	var status processingStatus
	require.NoError(t, json.Unmarshal([]byte(text), &status))
	assert.False(t, status.Processed)

	text = callOK(t, session, "query_knowledge", map[string]any{"project_id": "P1", "question": "PayrollApp"})
	var result core.RetrievalResult
	require.NoError(t, json.Unmarshal([]byte(text), &result))
	assert.Equal(t, core.ResultNone, result.Kind)
	assert.Equal(t, retrieval.NoRelevantContent, result.AnswerText)
}

func TestReindexProject(t *testing.T) {
	session := setup(t)
	callOK(t, session, "ingest_documents", ingestArgs("P1", true))

	text := callOK(t, session, "reindex_project", map[string]any{"project_id": "P1"})
	var record core.ProcessingRecord
	require.NoError(t, json.Unmarshal([]byte(text), &record))
	assert.Equal(t, 1, record.EmbeddingsCount)
}

func TestServe_UnknownTransport(t *testing.T) {
	srv := New(nil, nil)
	err := Serve(context.Background(), srv, "carrier-pigeon", "", nil)
	assert.Error(t, err)
}

func TestToDocuments(t *testing.T) {
	t.Run("parses uploaded_at", func(t *testing.T) {
		docs, err := toDocuments([]DocumentInput{
			{Filename: "a.txt", Text: "alpha", UploadedAt: "2025-01-01T00:00:00Z"},
		})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), docs[0].UploadedAt.UTC())
	})

	t.Run("requires uploaded_at", func(t *testing.T) {
		_, err := toDocuments([]DocumentInput{
			{Filename: "a.txt", Text: "alpha", UploadedAt: "2025-01-01T00:00:00Z"},
			{Filename: "b.txt", Text: "beta"},
		})
		assert.ErrorIs(t, err, errMissingUploadedAt)
		assert.Contains(t, err.Error(), "b.txt")
	})
}
