// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package writer produces documentation drafts from assembled context.
//
// The writer is one half of the refinement loop: it renders the writer
// prompt template with the retrieved context, any prior draft, and the
// reviewer's feedback, then calls the generation backend. It runs at
// low temperature so revision cycles converge instead of wandering.
package writer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/codescribe/services/docgen/assembler"
	"github.com/AleutianAI/codescribe/services/docgen/llm"
	"github.com/AleutianAI/codescribe/services/docgen/template"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("codescribe.docgen.writer")

// DefaultTemperature keeps drafting nearly deterministic. Higher values
// make successive revisions drift instead of converge.
const DefaultTemperature = float32(0.1)

// Draft is one writer output within a refinement run. Drafts are
// immutable; each revision cycle produces a new one.
type Draft struct {
	// Content is the generated Markdown document.
	Content string

	// Cycle is the 1-based refinement cycle that produced this draft.
	Cycle int

	// Prompt is the fully rendered prompt that produced this draft,
	// kept for the run record.
	Prompt string

	// CreatedAt is when generation finished.
	CreatedAt time.Time
}

// Feedback carries the reviewer's findings back into the next draft.
type Feedback struct {
	// CriticalIssues are defects that block acceptance regardless of
	// score, placed first in the prompt.
	CriticalIssues []string

	// Improvements are non-blocking suggestions.
	Improvements []string
}

// Empty reports whether there is nothing to feed back.
func (f Feedback) Empty() bool {
	return len(f.CriticalIssues) == 0 && len(f.Improvements) == 0
}

// ProjectFacts are known concrete values the writer substitutes for
// placeholders the corpus cannot answer (project name, repo URL).
type ProjectFacts map[string]string

// Format renders facts as stable "key: value" lines for the prompt.
func (p ProjectFacts) Format() string {
	if len(p) == 0 {
		return "(none provided)"
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s: %s\n", k, p[k])
	}
	return sb.String()
}

// Request is everything a single drafting call needs.
type Request struct {
	// Task describes the document to produce.
	Task string

	// Context is the assembled corpus selection.
	Context *assembler.AssembledContext

	// DocTemplate is the document structure to follow.
	DocTemplate template.Template

	// Facts are known project values for placeholder repair.
	Facts ProjectFacts

	// Prior is the previous cycle's draft, nil on the first cycle.
	Prior *Draft

	// Feedback is the reviewer's output on Prior, empty on the first cycle.
	Feedback Feedback

	// Cycle is the 1-based cycle number being drafted.
	Cycle int
}

// Writer drives a generation backend with the writer prompt template.
//
// Thread Safety:
//
//	Writer is safe for concurrent use after construction.
type Writer struct {
	gen      llm.Generator
	prompt   template.Template
	retry    llm.RetryConfig
	temp     float32
	maxToken int
}

// Option customizes the writer.
type Option func(*Writer)

// WithRetryConfig overrides the default retry policy.
func WithRetryConfig(rc llm.RetryConfig) Option {
	return func(w *Writer) { w.retry = rc }
}

// WithTemperature overrides the default drafting temperature.
func WithTemperature(t float32) Option {
	return func(w *Writer) { w.temp = t }
}

// WithMaxTokens caps the generated draft length.
func WithMaxTokens(n int) Option {
	return func(w *Writer) { w.maxToken = n }
}

// New creates a writer over the given generator and prompt template.
func New(gen llm.Generator, prompt template.Template, opts ...Option) (*Writer, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator must not be nil")
	}
	w := &Writer{
		gen:    gen,
		prompt: prompt,
		retry:  llm.DefaultRetryConfig(),
		temp:   DefaultTemperature,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Draft produces one document draft.
//
// Description:
//
//	Renders the writer prompt with the assembled context, prior draft,
//	and feedback, calls the backend with bounded retry, then repairs
//	any placeholder the project facts can answer directly.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	req - The drafting request. Context must be non-nil.
//
// Outputs:
//
//	*Draft - The generated draft for req.Cycle.
//	error - Wrapped llm errors after retries are exhausted.
func (w *Writer) Draft(ctx context.Context, req Request) (*Draft, error) {
	ctx, span := tracer.Start(ctx, "Writer.Draft")
	defer span.End()
	span.SetAttributes(attribute.Int("writer.cycle", req.Cycle))

	if req.Context == nil {
		return nil, fmt.Errorf("draft request has no assembled context")
	}

	prompt := w.prompt.Fill(map[string]string{
		template.MarkerTask:         req.Task,
		template.MarkerContext:      req.Context.Format(),
		template.MarkerProjectFacts: req.Facts.Format(),
		template.MarkerTemplate:     req.DocTemplate.Text(),
		template.MarkerPriorDraft:   formatPrior(req.Prior),
		template.MarkerFeedback:     formatFeedback(req.Feedback),
	})
	span.SetAttributes(attribute.Int("writer.prompt_chars", len(prompt)))

	params := llm.GenerationParams{Temperature: llm.Float32(w.temp)}
	if w.maxToken > 0 {
		params.MaxTokens = llm.Int(w.maxToken)
	}

	var content string
	result, err := llm.Retry(ctx, w.retry, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			slog.Debug("Retrying draft generation", "cycle", req.Cycle, "attempt", attempt)
		}
		out, genErr := w.gen.Generate(ctx, prompt, params)
		if genErr != nil {
			return genErr
		}
		content = out
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("draft cycle %d failed after %d attempts: %w", req.Cycle, result.Attempts, err)
	}

	content = repairPlaceholders(content, req.Facts)
	slog.Info("Draft produced", "cycle", req.Cycle, "chars", len(content), "attempts", result.Attempts)
	return &Draft{
		Content:   content,
		Cycle:     req.Cycle,
		Prompt:    prompt,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// formatPrior renders the prior-draft prompt section. Empty on cycle 1
// so the first prompt carries no revision framing.
func formatPrior(prior *Draft) string {
	if prior == nil {
		return ""
	}
	return "Previous draft to revise:\n\n" + prior.Content
}

// formatFeedback renders feedback with critical issues first so the
// model addresses blockers before polish.
func formatFeedback(f Feedback) string {
	if f.Empty() {
		return ""
	}
	var sb strings.Builder
	if len(f.CriticalIssues) > 0 {
		sb.WriteString("Fix these critical issues first:\n")
		for _, issue := range f.CriticalIssues {
			sb.WriteString("- " + issue + "\n")
		}
	}
	if len(f.Improvements) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("Then address these improvements:\n")
		for _, imp := range f.Improvements {
			sb.WriteString("- " + imp + "\n")
		}
	}
	return sb.String()
}
