// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/poiesic/kbase/config"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func projectFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "project",
		Aliases:  []string{"p"},
		Usage:    "Project ID",
		Required: true,
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "kbase",
		Usage: "Knowledge ingestion and hybrid retrieval over project documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				Value:   config.DefaultPath,
				EnvVars: []string{"KBASE_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Path to a .env file loaded before the config",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:  "data-dir",
				Usage: "Override the BadgerDB data directory",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
		},
		Before: before,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the knowledge base as MCP tools",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "transport",
						Usage: "Transport mode: stdio or http (defaults to config)",
					},
					&cli.StringFlag{
						Name:  "addr",
						Usage: "HTTP listen address (defaults to config)",
					},
				},
			},
			{
				Name:      "ingest",
				Usage:     "Ingest a project's complete document set",
				ArgsUsage: "FILE...",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					projectFlag(),
					&cli.BoolFlag{
						Name:    "quiet",
						Aliases: []string{"q"},
						Usage:   "Suppress progress output",
					},
				},
			},
			{
				Name:      "query",
				Usage:     "Ask a question about a project's documents",
				ArgsUsage: "QUESTION...",
				Action:    queryCommand,
				Flags: []cli.Flag{
					projectFlag(),
					&cli.IntFlag{
						Name:  "k",
						Usage: "Maximum number of passages (defaults to config)",
					},
					&cli.BoolFlag{
						Name:  "graph",
						Usage: "Include related infrastructure entities",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the raw result as JSON",
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Show a project's processing record",
				Action: statusCommand,
				Flags:  []cli.Flag{projectFlag()},
			},
			{
				Name:   "clear",
				Usage:  "Delete everything stored for a project",
				Action: clearCommand,
				Flags: []cli.Flag{
					projectFlag(),
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Confirm the irreversible deletion",
					},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Rebuild a project's vectors from stored chunk text",
				Action: reindexCommand,
				Flags:  []cli.Flag{projectFlag()},
			},
		},
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", strings.ToLower(s))
	}
}

func before(c *cli.Context) error {
	if c.Bool("no-color") {
		color.NoColor = true
	}
	return setupLogger(c)
}

func setupLogger(c *cli.Context) error {
	level, err := parseLevel(c.String("log-level"))
	if err != nil {
		return err
	}

	// stdout carries MCP stdio traffic, so logs always go to stderr
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
