// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workflow runs the bounded write/review refinement loop.
//
// A run assembles context once, then alternates drafting and review
// for at most a configured number of cycles. Acceptance requires both
// a score at or above the threshold and the absence of critical
// failures; neither alone is sufficient. Every run ends in exactly one
// of three terminal states: Accepted, Exhausted, or Failed.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/codescribe/services/docgen/assembler"
	"github.com/AleutianAI/codescribe/services/docgen/embed"
	"github.com/AleutianAI/codescribe/services/docgen/reviewer"
	"github.com/AleutianAI/codescribe/services/docgen/template"
	"github.com/AleutianAI/codescribe/services/docgen/writer"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("codescribe.docgen.workflow")

// Defaults for the acceptance gate and iteration bound.
const (
	DefaultThreshold     = 85
	DefaultMaxIterations = 3
)

// reviewRetryLimit caps re-reviews of the same draft when the model's
// output has no parsable score. One retry is enough to paper over a
// truncated response; repeated failures mean the model cannot follow
// the review format at all.
const reviewRetryLimit = 1

// Config bounds a refinement run.
type Config struct {
	// Threshold is the minimum accepted review score (0-100).
	Threshold int `yaml:"threshold" validate:"gte=0,lte=100"`

	// MaxIterations is the hard cycle bound. The loop never runs more
	// draft/review cycles than this.
	MaxIterations int `yaml:"max_iterations" validate:"gte=1"`

	// Budget is the context budget for assembly.
	Budget assembler.ContextBudget `yaml:"budget"`
}

// DefaultConfig returns the standard gate: threshold 85, 3 cycles.
func DefaultConfig() Config {
	return Config{
		Threshold:     DefaultThreshold,
		MaxIterations: DefaultMaxIterations,
	}
}

// Validate checks the config bounds.
func (c Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 100 {
		return fmt.Errorf("threshold %d outside 0-100", c.Threshold)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1")
	}
	return c.Budget.Validate()
}

// Request describes one document to generate.
type Request struct {
	// TaskID identifies the run. Assigned a UUID when empty.
	TaskID string

	// Task describes the document to produce.
	Task string

	// Query is the retrieval query text. Defaults to Task when empty.
	Query string

	// DocTemplate is the document structure to follow.
	DocTemplate template.Template

	// Facts are known project values.
	Facts writer.ProjectFacts
}

// Controller orchestrates one refinement run at a time.
//
// Thread Safety:
//
//	Controller is safe for concurrent use; each Run call is
//	independent.
type Controller struct {
	embedder embed.Embedder
	asm      *assembler.Assembler
	writer   *writer.Writer
	reviewer *reviewer.Reviewer
	cfg      Config
	store    *RunStore
	metrics  *Metrics
}

// Option customizes the controller.
type Option func(*Controller)

// WithRunStore persists run records to the given store.
func WithRunStore(s *RunStore) Option {
	return func(c *Controller) { c.store = s }
}

// WithMetrics records run outcomes to the given metrics set.
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// NewController wires the refinement loop together.
func NewController(embedder embed.Embedder, asm *assembler.Assembler, w *writer.Writer, r *reviewer.Reviewer, cfg Config, opts ...Option) (*Controller, error) {
	if embedder == nil || asm == nil || w == nil || r == nil {
		return nil, fmt.Errorf("all controller components must be non-nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("workflow config: %w", err)
	}
	c := &Controller{
		embedder: embedder,
		asm:      asm,
		writer:   w,
		reviewer: r,
		cfg:      cfg,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Run executes one refinement run to a terminal state.
//
// Description:
//
//	Embeds the query, assembles context once, then alternates draft
//	and review cycles. The same assembled context is reused across
//	cycles so score movement reflects the draft, not the retrieval.
//	Acceptance requires score >= threshold AND no critical failure.
//	Cancellation between cycles ends the run as Failed; a completed
//	cycle's record is kept.
//
// Outputs:
//
//	*Result - Always non-nil with a terminal Status, also on error.
//	error - Non-nil only for StatusFailed, describing the cause.
func (c *Controller) Run(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Controller.Run")
	defer span.End()

	if req.TaskID == "" {
		req.TaskID = uuid.NewString()
	}
	if req.Query == "" {
		req.Query = req.Task
	}
	span.SetAttributes(attribute.String("workflow.task_id", req.TaskID))
	start := time.Now()

	result, err := c.run(ctx, req)
	result.TaskID = req.TaskID
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		attribute.String("workflow.status", string(result.Status)),
		attribute.Int("workflow.cycles", result.Cycles),
	)

	if c.metrics != nil {
		c.metrics.ObserveRun(result, time.Since(start))
	}
	if c.store != nil {
		if saveErr := c.store.SaveRun(ctx, NewRunRecord(req, result)); saveErr != nil {
			slog.Error("Failed to persist run record", "task_id", req.TaskID, "error", saveErr)
		}
	}
	slog.Info("Refinement run finished", "task_id", req.TaskID,
		"status", result.Status, "cycles", result.Cycles, "score", result.FinalScore,
		"duration", time.Since(start))
	return result, err
}

func (c *Controller) run(ctx context.Context, req Request) (*Result, error) {
	result := &Result{Status: StatusRunning}

	queryEmbedding, err := c.embedder.Embed(ctx, req.Query)
	if err != nil {
		return fail(result, fmt.Errorf("embed query: %w", err))
	}

	assembled, err := c.asm.Assemble(ctx, queryEmbedding, c.cfg.Budget, nil)
	if err != nil {
		// Includes ErrBudgetTooSmall: no draft is ever produced when
		// the context cannot be assembled.
		return fail(result, fmt.Errorf("assemble context: %w", err))
	}

	var prior *writer.Draft
	var feedback writer.Feedback

	for cycle := 1; cycle <= c.cfg.MaxIterations; cycle++ {
		if err := ctx.Err(); err != nil {
			return fail(result, fmt.Errorf("run cancelled before cycle %d: %w", cycle, err))
		}

		draft, err := c.writer.Draft(ctx, writer.Request{
			Task:        req.Task,
			Context:     assembled,
			DocTemplate: req.DocTemplate,
			Facts:       req.Facts,
			Prior:       prior,
			Feedback:    feedback,
			Cycle:       cycle,
		})
		if err != nil {
			return fail(result, fmt.Errorf("cycle %d draft: %w", cycle, err))
		}

		review, err := c.review(ctx, reviewer.Request{
			Draft:   draft,
			Context: assembled,
			Task:    req.Task,
			Facts:   req.Facts,
		})
		if err != nil {
			// An invented score would corrupt the gate, so after the
			// re-review cap the run fails rather than guess.
			return fail(result, fmt.Errorf("cycle %d review: %w", cycle, err))
		}

		result.History = append(result.History, CycleRecord{Draft: draft, Review: review})
		result.Cycles = cycle

		if c.metrics != nil {
			c.metrics.ObserveCycle(review)
		}

		if review.Score >= c.cfg.Threshold && !review.CriticalFailure {
			result.Status = StatusAccepted
			result.Final = draft
			result.FinalScore = review.Score
			return result, nil
		}
		slog.Debug("Draft not accepted", "cycle", cycle, "score", review.Score,
			"threshold", c.cfg.Threshold, "critical_failure", review.CriticalFailure)

		prior = draft
		feedback = review.Feedback()
	}

	result.Status = StatusExhausted
	if best := bestCycle(result.History); best != nil {
		result.Final = best.Draft
		result.FinalScore = best.Review.Score
		result.Reason = fmt.Sprintf("no draft reached threshold %d in %d cycles; best score %d from cycle %d",
			c.cfg.Threshold, c.cfg.MaxIterations, best.Review.Score, best.Draft.Cycle)
	} else {
		result.Reason = fmt.Sprintf("no reviewable draft in %d cycles", c.cfg.MaxIterations)
	}
	return result, nil
}

// review evaluates a draft, re-reviewing on an unparsable score up to
// reviewRetryLimit. Transport failures are already retried inside the
// reviewer; only format failures are retried here.
func (c *Controller) review(ctx context.Context, req reviewer.Request) (*reviewer.Review, error) {
	var lastErr error
	for attempt := 0; attempt <= reviewRetryLimit; attempt++ {
		review, err := c.reviewer.Review(ctx, req)
		if err == nil {
			return review, nil
		}
		lastErr = err
		if !errors.Is(err, reviewer.ErrUnparsableScore) {
			return nil, err
		}
		slog.Warn("Review output unparsable", "cycle", req.Draft.Cycle, "attempt", attempt+1)
	}
	return nil, lastErr
}

// fail marks the result terminal-failed and returns the error.
func fail(result *Result, err error) (*Result, error) {
	result.Status = StatusFailed
	result.Reason = err.Error()
	return result, err
}
