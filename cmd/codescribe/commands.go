// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/AleutianAI/codescribe/cmd/codescribe/config"
	"github.com/AleutianAI/codescribe/pkg/logging"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	outputDir     string
	corpus        string
	templatePath  string
	factPairs     []string
	taskQuery     string
	threshold     int
	maxIterations int
	logLevel      string

	appLogger *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "codescribe",
		Short: "A cli that writes repository documentation from an embedded code corpus",
		Long: `Codescribe generates documentation by retrieving relevant code
chunks from a seeded corpus and refining drafts through a
writer/reviewer loop until they pass an acceptance gate.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := config.Global.Logging.Level
			if logLevel != "" {
				level = logLevel
			}
			appLogger = logging.Setup(logging.Config{
				Level:   logging.ParseLevel(level),
				LogDir:  config.Global.Logging.Dir,
				Service: "codescribe",
				JSON:    config.Global.Logging.JSON,
			})
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if appLogger != nil {
				appLogger.Close()
			}
		},
	}

	generateCmd = &cobra.Command{
		Use:   "generate [task]...",
		Short: "Generate a document per task through the refinement loop",
		Long: `Generate runs each quoted task argument through the write/review
refinement loop and writes the resulting documents. Multiple tasks run
concurrently under the configured workflow.concurrency bound.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runGenerate, // Defined in cmd_generate.go
	}

	seedCmd = &cobra.Command{
		Use:   "seed [directory]",
		Short: "Split, embed, and store a repository's files as the retrieval corpus",
		Args:  cobra.ExactArgs(1),
		RunE:  runSeed, // Defined in cmd_seed.go
	}

	statusCmd = &cobra.Command{
		Use:   "status [task_id]",
		Short: "Show past refinement runs, or one run's full history",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runStatus, // Defined in cmd_status.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug/info/warn/error)")
	rootCmd.PersistentFlags().StringVar(&corpus, "corpus", "", "Override the configured corpus name")

	generateCmd.Flags().StringVarP(&outputDir, "out", "o", "", "Output directory (default from config)")
	generateCmd.Flags().StringVar(&templatePath, "template", "", "Document template file (default built-in)")
	generateCmd.Flags().StringVar(&taskQuery, "query", "", "Retrieval query (default: the task text)")
	generateCmd.Flags().StringArrayVar(&factPairs, "fact", nil, "Known project fact as key=value (repeatable)")
	generateCmd.Flags().IntVar(&threshold, "threshold", 0, "Acceptance score threshold (default from config)")
	generateCmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "Refinement cycle bound (default from config)")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(statusCmd)
}
