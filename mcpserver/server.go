package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/ingestion"
	"github.com/poiesic/kbase/retrieval"
)

const (
	serverName = "kbase"

	// TransportStdio serves over stdin/stdout.
	TransportStdio = "stdio"
	// TransportHTTP serves the streamable HTTP transport.
	TransportHTTP = "http"

	shutdownTimeout = 10 * time.Second
)

// Version is reported to MCP clients.
var Version = "0.1.0"

// KnowledgeBase is the set of operations exposed as tools.
type KnowledgeBase interface {
	Ingest(ctx context.Context, project core.ProjectID, files []core.SourceDocument) (string, error)
	Process(ctx context.Context, project core.ProjectID, files []core.SourceDocument) (*ingestion.RunSummary, error)
	Run(runID string) (*ingestion.Run, error)
	Cancel(runID string) error
	ProcessingStatus(ctx context.Context, project core.ProjectID) (*core.ProcessingRecord, error)
	Query(ctx context.Context, project core.ProjectID, question string, opts ...retrieval.QueryOption) (*core.RetrievalResult, error)
	ClearProject(ctx context.Context, project core.ProjectID) error
	Reindex(ctx context.Context, project core.ProjectID) (*core.ProcessingRecord, error)
}

// New creates an MCP server with every knowledge tool registered.
func New(kb KnowledgeBase, logger *slog.Logger) *mcp.Server {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tools{kb: kb, logger: logger.With("component", "mcp")}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: Version,
	}, nil)

	// Ingestion
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "ingest_documents",
		Description: "Ingest parsed documents into a project's knowledge base. Returns a run ID; set wait to block until the run finishes",
	}, t.IngestDocuments)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_run",
		Description: "Get the state and counters of an ingestion run",
	}, t.GetRun)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "cancel_run",
		Description: "Cancel an in-flight ingestion run",
	}, t.CancelRun)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_processing_status",
		Description: "Get the processing record of a project, or report that it has not been processed",
	}, t.GetProcessingStatus)

	// Retrieval
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "query_knowledge",
		Description: "Answer a question from a project's documents using vector search with keyword fallback",
	}, t.QueryKnowledge)

	// Maintenance
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "clear_project",
		Description: "Permanently delete every chunk, vector, graph entry and ledger record of a project (irreversible)",
	}, t.ClearProject)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "reindex_project",
		Description: "Rebuild a project's vectors from its stored chunk text",
	}, t.ReindexProject)

	return srv
}

// Serve runs srv on the named transport until ctx is canceled.
func Serve(ctx context.Context, srv *mcp.Server, transport, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	switch transport {
	case TransportStdio:
		logger.Info("MCP server starting", "transport", transport)
		return srv.Run(ctx, &mcp.StdioTransport{})
	case TransportHTTP:
		handler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
			return srv
		}, nil)
		httpSrv := &http.Server{Addr: addr, Handler: handler}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("MCP server listening", "transport", transport, "addr", addr)
			errCh <- httpSrv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}
	default:
		return fmt.Errorf("unknown transport: %s (use stdio or http)", transport)
	}
}
