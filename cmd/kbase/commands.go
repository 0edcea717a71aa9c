package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/poiesic/kbase"
	"github.com/poiesic/kbase/config"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/ingestion"
	"github.com/poiesic/kbase/mcpserver"
	"github.com/poiesic/kbase/retrieval"
	"github.com/urfave/cli/v2"
)

// loadConfig reads the .env file, the YAML config and global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if err := config.LoadEnvFile(c.String("env-file")); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dir := c.String("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	return cfg, nil
}

func openKB(c *cli.Context, cfg *config.Config, opts ...kbase.Option) (*kbase.KnowledgeBase, error) {
	kb, err := kbase.New(c.Context, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge base: %w", err)
	}
	return kb, nil
}

func serveCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if t := c.String("transport"); t != "" {
		cfg.Server.Transport = t
	}
	if a := c.String("addr"); a != "" {
		cfg.Server.Addr = a
	}

	kb, err := openKB(c, cfg, kbase.WithSink(ingestion.NewLogSink(nil)))
	if err != nil {
		return err
	}
	defer kb.Close()

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := mcpserver.New(kb, nil)
	if err := mcpserver.Serve(ctx, srv, cfg.Server.Transport, cfg.Server.Addr, nil); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// readDocuments loads each path as an already-extracted text document.
func readDocuments(paths []string) ([]core.SourceDocument, error) {
	docs := make([]core.SourceDocument, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		docs = append(docs, core.SourceDocument{
			Filename:   filepath.Base(path),
			Text:       string(data),
			UploadedAt: info.ModTime().UTC(),
		})
	}
	return docs, nil
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one file is required")
	}
	docs, err := readDocuments(c.Args().Slice())
	if err != nil {
		return fmt.Errorf("failed to read documents: %w", err)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	var opts []kbase.Option
	if !c.Bool("quiet") {
		opts = append(opts, kbase.WithSink(ingestion.NewWriterSink(os.Stderr)))
	}
	kb, err := openKB(c, cfg, opts...)
	if err != nil {
		return err
	}
	defer kb.Close()

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	project := core.ProjectID(c.String("project"))
	summary, err := kb.Process(ctx, project, docs)
	if summary != nil {
		printSummary(c.App.Writer, summary)
	}
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	return nil
}

func queryCommand(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return errors.New("a question is required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	kb, err := openKB(c, cfg)
	if err != nil {
		return err
	}
	defer kb.Close()

	var opts []retrieval.QueryOption
	if k := c.Int("k"); k > 0 {
		opts = append(opts, retrieval.WithK(k))
	}
	if c.Bool("graph") {
		opts = append(opts, retrieval.WithGraphContext())
	}

	result, err := kb.Query(c.Context, core.ProjectID(c.String("project")), question, opts...)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	if c.Bool("json") {
		return printJSON(c.App.Writer, result)
	}
	printResult(c.App.Writer, result)
	return nil
}

func statusCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	kb, err := openKB(c, cfg)
	if err != nil {
		return err
	}
	defer kb.Close()

	project := core.ProjectID(c.String("project"))
	record, err := kb.ProcessingStatus(c.Context, project)
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}
	printRecord(c.App.Writer, project, record)
	return nil
}

func clearCommand(c *cli.Context) error {
	project := c.String("project")
	if !c.Bool("yes") {
		return fmt.Errorf("refusing to clear project %s without --yes", project)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	kb, err := openKB(c, cfg)
	if err != nil {
		return err
	}
	defer kb.Close()

	if err := kb.ClearProject(c.Context, core.ProjectID(project)); err != nil {
		return fmt.Errorf("failed to clear project: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "%s project %s cleared\n", okLabel(), project)
	return nil
}

func reindexCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	kb, err := openKB(c, cfg, kbase.WithSink(ingestion.NewLogSink(nil)))
	if err != nil {
		return err
	}
	defer kb.Close()

	project := core.ProjectID(c.String("project"))
	record, err := kb.Reindex(c.Context, project)
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	printRecord(c.App.Writer, project, record)
	return nil
}
