package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/ingestion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func findCommand(t *testing.T, app *cli.App, name string) *cli.Command {
	t.Helper()
	for _, cmd := range app.Commands {
		if cmd.Name == name {
			return cmd
		}
	}
	t.Fatalf("command %q not found", name)
	return nil
}

// runApp runs the CLI against a fresh data directory and returns stdout.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &out
	full := append([]string{
		"kbase",
		"--no-color",
		"--config", filepath.Join(dir, "missing.yaml"),
		"--env-file", filepath.Join(dir, "missing.env"),
		"--data-dir", filepath.Join(dir, "data"),
	}, args...)
	err := app.Run(full)
	return out.String(), err
}

func TestCommands(t *testing.T) {
	app := newApp()

	for _, name := range []string{"serve", "ingest", "query", "status", "clear", "reindex"} {
		t.Run(name+" exists", func(t *testing.T) {
			assert.NotNil(t, findCommand(t, app, name))
		})
	}

	t.Run("project is required", func(t *testing.T) {
		for _, name := range []string{"ingest", "query", "status", "clear", "reindex"} {
			cmd := findCommand(t, app, name)
			var projectFlag *cli.StringFlag
			for _, flag := range cmd.Flags {
				if f, ok := flag.(*cli.StringFlag); ok && f.Name == "project" {
					projectFlag = f
					break
				}
			}
			require.NotNil(t, projectFlag, name)
			assert.True(t, projectFlag.Required, name)
		}
	})

	t.Run("missing project flag fails", func(t *testing.T) {
		_, err := runApp(t, "status")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "project")
	})
}

func TestCommandValidation(t *testing.T) {
	t.Run("ingest needs files", func(t *testing.T) {
		_, err := runApp(t, "ingest", "-p", "P1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "file")
	})

	t.Run("ingest rejects missing file", func(t *testing.T) {
		_, err := runApp(t, "ingest", "-p", "P1", filepath.Join(t.TempDir(), "nope.txt"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read documents")
	})

	t.Run("query needs a question", func(t *testing.T) {
		_, err := runApp(t, "query", "-p", "P1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "question")
	})

	t.Run("clear needs confirmation", func(t *testing.T) {
		_, err := runApp(t, "clear", "-p", "P1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--yes")
	})

	t.Run("serve rejects unknown transport", func(t *testing.T) {
		_, err := runApp(t, "serve", "--transport", "carrier-pigeon")
		require.Error(t, err)
	})
}

func TestStatusCommand(t *testing.T) {
	out, err := runApp(t, "status", "-p", "P1")
	require.NoError(t, err)
	assert.Contains(t, out, "P1 not processed")
}

func TestClearCommand(t *testing.T) {
	out, err := runApp(t, "clear", "-p", "P1", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "project P1 cleared")
}

func TestReadDocuments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "infra.txt")
	require.NoError(t, os.WriteFile(path, []byte("Server srv-app-01 hosts PayrollApp."), 0644))
	mtime := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	docs, err := readDocuments([]string{path})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "infra.txt", docs[0].Filename)
	assert.Equal(t, "Server srv-app-01 hosts PayrollApp.", docs[0].Text)
	assert.True(t, mtime.Equal(docs[0].UploadedAt))

	_, err = readDocuments([]string{dir})
	assert.Error(t, err)
}

func TestOutput(t *testing.T) {
	color.NoColor = true

	t.Run("summary", func(t *testing.T) {
		var buf bytes.Buffer
		start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		printSummary(&buf, &ingestion.RunSummary{
			RunID:      "run-1",
			ProjectID:  "P1",
			State:      ingestion.StateFailed,
			Counts:     ingestion.Counts{FilesTotal: 2, FilesDone: 1, FilesFailed: 1, Chunks: 3},
			Error:      "boom",
			StartedAt:  start,
			FinishedAt: start.Add(1500 * time.Millisecond),
		})
		out := buf.String()
		assert.Contains(t, out, "P1 Failed (run run-1)")
		assert.Contains(t, out, "files: 1 done, 1 failed of 2")
		assert.Contains(t, out, "took: 1.5s")
		assert.Contains(t, out, "error: boom")
	})

	t.Run("result with graph", func(t *testing.T) {
		var buf bytes.Buffer
		printResult(&buf, &core.RetrievalResult{
			AnswerText: "srv-app-01 hosts PayrollApp.",
			Kind:       core.ResultKeyword,
			Degraded:   true,
			Passages:   []core.Passage{{Filename: "infra.txt", Score: 0.5}},
			Graph: &core.GraphContext{
				Entities: []*core.Entity{{Name: "srv-app-01", Type: core.EntityServer}},
				Relationships: []*core.Relationship{{
					SourceName: "srv-app-01", Type: core.RelationHosts, TargetName: "PayrollApp",
				}},
			},
		})
		out := buf.String()
		assert.Contains(t, out, "srv-app-01 hosts PayrollApp.")
		assert.Contains(t, out, "synthesis unavailable")
		assert.Contains(t, out, "Sources (keyword)")
		assert.Contains(t, out, "[1] infra.txt 0.500")
		assert.Contains(t, out, "srv-app-01 (Server)")
		assert.Contains(t, out, "srv-app-01 HOSTS PayrollApp")
	})

	t.Run("unprocessed record", func(t *testing.T) {
		var buf bytes.Buffer
		printRecord(&buf, "P9", nil)
		assert.Equal(t, "P9 not processed\n", buf.String())
	})
}

func TestSetupLogger(t *testing.T) {
	t.Run("valid log levels", func(t *testing.T) {
		testCases := []struct {
			input    string
			expected slog.Level
		}{
			{"debug", slog.LevelDebug},
			{"info", slog.LevelInfo},
			{"warn", slog.LevelWarn},
			{"error", slog.LevelError},
			{"DEBUG", slog.LevelDebug},
			{"WaRn", slog.LevelWarn},
		}

		for _, tc := range testCases {
			t.Run(tc.input, func(t *testing.T) {
				level, err := parseLevel(tc.input)
				require.NoError(t, err)
				assert.Equal(t, tc.expected, level)

				app := &cli.App{
					Name: "test",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:  "log-level",
							Value: "info",
						},
					},
					Before: setupLogger,
					Action: func(c *cli.Context) error {
						return nil
					},
				}
				require.NoError(t, app.Run([]string{"test", "--log-level", tc.input}))
				assert.True(t, slog.Default().Enabled(t.Context(), tc.expected))
			})
		}
	})

	t.Run("invalid log level returns error", func(t *testing.T) {
		app := &cli.App{
			Name: "test",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "log-level",
					Value: "info",
				},
			},
			Before: setupLogger,
			Action: func(c *cli.Context) error {
				return nil
			},
		}

		err := app.Run([]string{"test", "--log-level", "invalid"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("log-level flag has alias -l", func(t *testing.T) {
		app := newApp()
		app.Commands = nil
		app.Action = func(c *cli.Context) error {
			assert.Equal(t, "debug", c.String("log-level"))
			return nil
		}
		require.NoError(t, app.Run([]string{"kbase", "-l", "debug"}))
	})
}
