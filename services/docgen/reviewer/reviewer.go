// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reviewer scores documentation drafts and extracts feedback.
//
// Review has two layers. The model layer asks a separate LLM to score
// the draft against a rubric and list issues. The deterministic layer
// scans the draft for unresolved placeholders independently, so a
// defective document can never be accepted on the strength of a
// generous model score. The reviewer runs at temperature 0 to keep
// scoring consistent across cycles.
package reviewer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/codescribe/services/docgen/assembler"
	"github.com/AleutianAI/codescribe/services/docgen/llm"
	"github.com/AleutianAI/codescribe/services/docgen/template"
	"github.com/AleutianAI/codescribe/services/docgen/writer"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("codescribe.docgen.reviewer")

// Review is the outcome of evaluating one draft.
type Review struct {
	// Score is the model's 0-100 rubric score.
	Score int

	// CriticalFailure is true when unresolved placeholders or other
	// blocking defects are present. A critical failure blocks
	// acceptance regardless of Score.
	CriticalFailure bool

	// CriticalIssues are the blocking defects, from both the model and
	// the deterministic placeholder scan.
	CriticalIssues []string

	// Improvements are non-blocking suggestions from the model.
	Improvements []string

	// CategoryScores holds per-category rubric points when the model
	// reports them. Informational only; never feeds the gate.
	CategoryScores map[string]int

	// Raw is the model's full output, kept for the run record.
	Raw string

	// Cycle is the refinement cycle this review belongs to.
	Cycle int
}

// Feedback converts the review into the writer's input shape.
func (r *Review) Feedback() writer.Feedback {
	return writer.Feedback{
		CriticalIssues: r.CriticalIssues,
		Improvements:   r.Improvements,
	}
}

// Request describes one review call.
type Request struct {
	// Draft is the document under review.
	Draft *writer.Draft

	// Context is the assembled corpus excerpt the draft was written
	// from.
	Context *assembler.AssembledContext

	// Task describes the document the draft is supposed to be.
	Task string

	// Facts are known project values; the prompt carries them so the
	// model can spot echoed placeholders.
	Facts writer.ProjectFacts
}

// Reviewer drives a generation backend with the reviewer prompt.
//
// Thread Safety:
//
//	Reviewer is safe for concurrent use after construction.
type Reviewer struct {
	gen    llm.Generator
	prompt template.Template
	retry  llm.RetryConfig
}

// Option customizes the reviewer.
type Option func(*Reviewer)

// WithRetryConfig overrides the default retry policy.
func WithRetryConfig(rc llm.RetryConfig) Option {
	return func(r *Reviewer) { r.retry = rc }
}

// New creates a reviewer over the given generator and prompt template.
func New(gen llm.Generator, prompt template.Template, opts ...Option) (*Reviewer, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator must not be nil")
	}
	r := &Reviewer{
		gen:    gen,
		prompt: prompt,
		retry:  llm.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Review evaluates a draft against the assembled context.
//
// Description:
//
//	Renders the reviewer prompt with the task, project facts, context,
//	and draft, calls the backend at temperature 0 with bounded retry,
//	parses the score and issue lists, then merges the deterministic
//	placeholder scan. Placeholder findings force CriticalFailure even
//	when the model missed them.
//
// Outputs:
//
//	*Review - The evaluation for req.Draft.Cycle.
//	error - ErrUnparsableScore when no score can be extracted, or
//	wrapped llm errors after retries are exhausted.
func (r *Reviewer) Review(ctx context.Context, req Request) (*Review, error) {
	ctx, span := tracer.Start(ctx, "Reviewer.Review")
	defer span.End()
	draft := req.Draft
	span.SetAttributes(attribute.Int("reviewer.cycle", draft.Cycle))

	prompt := r.prompt.Fill(map[string]string{
		template.MarkerTask:         req.Task,
		template.MarkerProjectFacts: req.Facts.Format(),
		template.MarkerContext:      req.Context.Format(),
		template.MarkerPriorDraft:   draft.Content,
	})

	params := llm.GenerationParams{Temperature: llm.Float32(0.0)}
	var raw string
	result, err := llm.Retry(ctx, r.retry, func(ctx context.Context, attempt int) error {
		out, genErr := r.gen.Generate(ctx, prompt, params)
		if genErr != nil {
			return genErr
		}
		raw = out
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("review cycle %d failed after %d attempts: %w", draft.Cycle, result.Attempts, err)
	}

	score, err := ParseScore(raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("Review output had no parsable score", "cycle", draft.Cycle)
		return nil, fmt.Errorf("review cycle %d: %w", draft.Cycle, err)
	}

	review := &Review{
		Score:          score,
		Raw:            raw,
		Cycle:          draft.Cycle,
		Improvements:   parseSection(raw, "IMPROVEMENTS:"),
		CategoryScores: ParseCategoryScores(raw),
	}
	review.CriticalIssues = parseSection(raw, "CRITICAL ISSUES:")

	// The deterministic scan overrides the model: placeholders block
	// acceptance even at a perfect score.
	if findings := ScanPlaceholders(draft.Content); len(findings) > 0 {
		review.CriticalFailure = true
		review.CriticalIssues = append(review.CriticalIssues, findings...)
	}
	if len(review.CriticalIssues) > 0 {
		review.CriticalFailure = true
	}

	span.SetAttributes(
		attribute.Int("reviewer.score", review.Score),
		attribute.Bool("reviewer.critical_failure", review.CriticalFailure),
	)
	slog.Info("Draft reviewed", "cycle", draft.Cycle, "score", review.Score,
		"critical_failure", review.CriticalFailure, "critical_issues", len(review.CriticalIssues))
	return review, nil
}

// parseSection extracts the bulleted lines under a heading, stopping at
// the next all-caps heading or end of text. A single "none" bullet
// yields an empty list.
func parseSection(raw, heading string) []string {
	idx := strings.Index(raw, heading)
	if idx < 0 {
		return nil
	}
	var items []string
	lines := strings.Split(raw[idx+len(heading):], "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "-") && !strings.HasPrefix(trimmed, "*") {
			break
		}
		item := strings.TrimSpace(strings.TrimLeft(trimmed, "-* "))
		if item == "" || strings.EqualFold(item, "none") {
			continue
		}
		items = append(items, item)
	}
	return items
}
