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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/codescribe/cmd/codescribe/config"
	"github.com/AleutianAI/codescribe/services/docgen/assembler"
	"github.com/AleutianAI/codescribe/services/docgen/chunkstore"
	"github.com/AleutianAI/codescribe/services/docgen/embed"
	"github.com/AleutianAI/codescribe/services/docgen/llm"
	"github.com/AleutianAI/codescribe/services/docgen/reviewer"
	"github.com/AleutianAI/codescribe/services/docgen/template"
	"github.com/AleutianAI/codescribe/services/docgen/workflow"
	"github.com/AleutianAI/codescribe/services/docgen/writer"
	"github.com/spf13/cobra"
)

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg := config.Global

	corpusName := cfg.Weaviate.Corpus
	if corpus != "" {
		corpusName = corpus
	}
	store, err := chunkstore.NewWeaviateStore(cfg.Weaviate.URL, corpusName)
	if err != nil {
		return fmt.Errorf("connect to chunk store: %w", err)
	}

	embedder, err := embed.NewOllamaEmbedder(cfg.Backend.BaseURL, cfg.Models.Embed)
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}

	asm, err := assembler.NewAssembler(store)
	if err != nil {
		return err
	}

	writerGen, err := newGenerator(cfg.Backend, cfg.Models.Writer)
	if err != nil {
		return fmt.Errorf("create writer backend: %w", err)
	}
	reviewerGen, err := newGenerator(cfg.Backend, cfg.Models.Reviewer)
	if err != nil {
		return fmt.Errorf("create reviewer backend: %w", err)
	}

	writerPrompt, err := template.Load(cfg.Templates.WriterPrompt, template.DefaultWriterPrompt)
	if err != nil {
		return err
	}
	reviewerPrompt, err := template.Load(cfg.Templates.ReviewerPrompt, template.DefaultReviewerPrompt)
	if err != nil {
		return err
	}
	docTemplatePath := cfg.Templates.DocTemplate
	if templatePath != "" {
		docTemplatePath = templatePath
	}
	docTemplate, err := template.Load(docTemplatePath, template.DefaultDocTemplate)
	if err != nil {
		return err
	}

	w, err := writer.New(writerGen, writerPrompt)
	if err != nil {
		return err
	}
	r, err := reviewer.New(reviewerGen, reviewerPrompt)
	if err != nil {
		return err
	}

	wcfg := workflow.Config{
		Threshold:     cfg.Workflow.Threshold,
		MaxIterations: cfg.Workflow.MaxIterations,
		Budget: assembler.ContextBudget{
			MaxTokens:            cfg.Workflow.Budget.MaxTokens,
			ReservedInstructions: cfg.Workflow.Budget.ReservedInstructions,
			ReservedResponse:     cfg.Workflow.Budget.ReservedResponse,
		},
	}
	if threshold > 0 {
		wcfg.Threshold = threshold
	}
	if maxIterations > 0 {
		wcfg.MaxIterations = maxIterations
	}

	opts := []workflow.Option{workflow.WithMetrics(workflow.NewMetrics())}
	if cfg.Output.RunStore != "" {
		runStore, err := workflow.OpenRunStore(expandHome(cfg.Output.RunStore))
		if err != nil {
			return fmt.Errorf("open run store: %w", err)
		}
		defer runStore.Close()
		opts = append(opts, workflow.WithRunStore(runStore))
	}

	controller, err := workflow.NewController(embedder, asm, w, r, wcfg, opts...)
	if err != nil {
		return err
	}

	requests, err := buildRequests(args, taskQuery, docTemplate, parseFacts(factPairs))
	if err != nil {
		return err
	}

	runner, err := workflow.NewRunner(controller, cfg.Workflow.Concurrency)
	if err != nil {
		return err
	}
	results, runErr := runner.RunAll(cmd.Context(), requests)

	dir := cfg.Output.Dir
	if outputDir != "" {
		dir = outputDir
	}
	failed := 0
	for i, result := range results {
		switch {
		case result == nil:
			failed++
			continue
		case result.Final != nil:
			req := requests[i]
			req.TaskID = result.TaskID
			docPath, writeErr := workflow.WriteArtifact(expandHome(dir), req, result)
			if writeErr != nil {
				return writeErr
			}
			fmt.Printf("Wrote %s (status: %s, score: %d, cycles: %d)\n",
				docPath, result.Status, result.FinalScore, result.Cycles)
		}
		switch result.Status {
		case workflow.StatusAccepted:
		case workflow.StatusExhausted:
			fmt.Fprintf(os.Stderr, "Warning: %s\n", result.Reason)
		default:
			failed++
			fmt.Fprintf(os.Stderr, "Failed: %s: %s\n", requests[i].Task, result.Reason)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed: %w", failed, len(requests), runErr)
	}
	return nil
}

// buildRequests maps each task argument to one generation request. The
// query override only makes sense when there is exactly one task; with
// several, each task is its own retrieval query.
func buildRequests(tasks []string, query string, docTemplate template.Template, facts writer.ProjectFacts) ([]workflow.Request, error) {
	if query != "" && len(tasks) > 1 {
		return nil, fmt.Errorf("--query cannot be combined with multiple tasks")
	}
	requests := make([]workflow.Request, len(tasks))
	for i, task := range tasks {
		requests[i] = workflow.Request{
			Task:        task,
			Query:       query,
			DocTemplate: docTemplate,
			Facts:       facts,
		}
	}
	return requests, nil
}

// newGenerator builds the configured generation backend for a model.
func newGenerator(backend config.BackendConfig, model string) (llm.Generator, error) {
	switch backend.Type {
	case "openai":
		return llm.NewOpenAIClient(model)
	default:
		return llm.NewOllamaClient(backend.BaseURL, model)
	}
}

// parseFacts converts repeated key=value flags into project facts.
func parseFacts(pairs []string) writer.ProjectFacts {
	if len(pairs) == 0 {
		return nil
	}
	facts := make(writer.ProjectFacts, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			continue
		}
		facts[key] = value
	}
	return facts
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
