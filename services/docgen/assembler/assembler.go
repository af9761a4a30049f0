// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assembler selects and packs corpus chunks into a bounded-size
// context for LLM prompts.
//
// The assembler retrieves a candidate pool of nearest-neighbor chunks,
// then greedily packs them in descending similarity order until the next
// candidate would exceed the usable budget. Selection is deterministic:
// equal similarities are broken by ascending source reference, then chunk
// ID, so repeated calls with identical inputs produce identical contexts.
//
// Thread Safety:
//
//	Assembler is safe for concurrent use after construction.
package assembler

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/codescribe/services/docgen/chunkstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("codescribe.docgen.assembler")

// Default configuration.
const (
	// CharsPerToken approximates characters per token, used only when a
	// chunk record carries no token count.
	CharsPerToken = 4

	// DefaultPoolFactor is how many times the expected budget-fill count
	// of chunks to retrieve as candidates.
	DefaultPoolFactor = 8

	// DefaultChunkTokens is the assumed average chunk size when sizing
	// the candidate pool.
	DefaultChunkTokens = 256

	// MinPoolSize and MaxPoolSize bound the candidate pool.
	MinPoolSize = 16
	MaxPoolSize = 512
)

// ContextBudget bounds the token cost of an assembled context.
//
// Invariant: MaxTokens >= ReservedInstructions + ReservedResponse + 1,
// leaving room for at least one chunk.
type ContextBudget struct {
	// MaxTokens is the hard ceiling for the whole prompt window.
	MaxTokens int `yaml:"max_tokens" validate:"gt=0"`

	// ReservedInstructions is the token allowance held back for the
	// template and instruction text.
	ReservedInstructions int `yaml:"reserved_instructions" validate:"gte=0"`

	// ReservedResponse is the token allowance held back for the model's
	// response.
	ReservedResponse int `yaml:"reserved_response" validate:"gte=0"`
}

// Usable returns the token budget available for chunks.
func (b ContextBudget) Usable() int {
	return b.MaxTokens - b.ReservedInstructions - b.ReservedResponse
}

// Validate checks the budget invariant.
func (b ContextBudget) Validate() error {
	if b.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive", ErrInvalidBudget)
	}
	if b.ReservedInstructions < 0 || b.ReservedResponse < 0 {
		return fmt.Errorf("%w: reservations must be non-negative", ErrInvalidBudget)
	}
	if b.Usable() < 1 {
		return fmt.Errorf("%w: max_tokens %d leaves no room for chunks after reservations (%d instructions, %d response)",
			ErrInvalidBudget, b.MaxTokens, b.ReservedInstructions, b.ReservedResponse)
	}
	return nil
}

// AssembledContext is an ordered chunk selection that fits a budget.
//
// Chunks are ordered by descending similarity with ascending SourceRef
// tie-break. TotalTokens never exceeds the budget's Usable() value.
type AssembledContext struct {
	Chunks      []chunkstore.ScoredChunk
	TotalTokens int

	// PoolSize is how many candidates were considered, kept for audit.
	PoolSize int
}

// ChunkIDs returns the IDs of the selected chunks in order.
func (a *AssembledContext) ChunkIDs() []string {
	ids := make([]string, len(a.Chunks))
	for i, c := range a.Chunks {
		ids[i] = c.ID
	}
	return ids
}

// Format renders the context as prompt text.
//
// Each chunk becomes a "[Source N: ref]" block, matching the shape the
// writer template's {{CONTEXT}} slot expects.
func (a *AssembledContext) Format() string {
	var sb strings.Builder
	for i, c := range a.Chunks {
		fmt.Fprintf(&sb, "[Source %d: %s]\n%s\n\n", i+1, c.SourceRef, c.Text)
	}
	return sb.String()
}

// Option customizes the assembler.
type Option func(*Assembler)

// WithPoolSize fixes the candidate pool size instead of deriving it from
// the budget.
func WithPoolSize(n int) Option {
	return func(a *Assembler) {
		a.poolSize = n
	}
}

// Assembler packs nearest-neighbor chunks into a token budget.
type Assembler struct {
	store    chunkstore.Store
	poolSize int
}

// NewAssembler creates an assembler over the given store.
func NewAssembler(store chunkstore.Store, opts ...Option) (*Assembler, error) {
	if store == nil {
		return nil, fmt.Errorf("store must not be nil")
	}
	a := &Assembler{store: store}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

// Assemble selects chunks for a query embedding within a budget.
//
// Description:
//
//	Retrieves a candidate pool from the store, removes excluded and
//	duplicate IDs, orders candidates deterministically, and greedily
//	accumulates chunks until the next one would exceed the usable
//	budget. A single oversized candidate is skipped, not fatal.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	queryEmbedding - Vector for nearest-neighbor retrieval.
//	budget - Token budget. Must satisfy the ContextBudget invariant.
//	exclude - Chunk IDs to omit (nil allowed). Used by callers that
//	rotate context across revision cycles.
//
// Outputs:
//
//	*AssembledContext - Non-empty ordered selection within budget.
//	error - ErrInvalidBudget, ErrEmptyEmbedding, ErrNoCandidates, or
//	ErrBudgetTooSmall when not even the smallest candidate fits. An
//	empty context is never returned as success.
func (a *Assembler) Assemble(ctx context.Context, queryEmbedding []float32, budget ContextBudget, exclude map[string]struct{}) (*AssembledContext, error) {
	ctx, span := tracer.Start(ctx, "Assembler.Assemble")
	defer span.End()

	if err := budget.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(queryEmbedding) == 0 {
		return nil, ErrEmptyEmbedding
	}

	usable := budget.Usable()
	pool := a.poolSizeFor(usable)
	span.SetAttributes(
		attribute.Int("assembler.usable_tokens", usable),
		attribute.Int("assembler.pool_size", pool),
	)

	candidates, err := a.store.Nearest(ctx, queryEmbedding, pool)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("retrieve candidates: %w", err)
	}

	candidates = dedupe(candidates, exclude)
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	// Stable order: similarity desc, then SourceRef asc, then ID asc.
	// The store already orders by similarity, but the tie-break must be
	// explicit for reproducibility.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		if candidates[i].SourceRef != candidates[j].SourceRef {
			return candidates[i].SourceRef < candidates[j].SourceRef
		}
		return candidates[i].ID < candidates[j].ID
	})

	assembled := &AssembledContext{PoolSize: len(candidates)}
	for _, c := range candidates {
		cost := chunkTokens(c.Chunk)
		if assembled.TotalTokens+cost > usable {
			// Skip this one; a smaller candidate later may still fit.
			continue
		}
		assembled.Chunks = append(assembled.Chunks, c)
		assembled.TotalTokens += cost
	}

	if len(assembled.Chunks) == 0 {
		smallest := chunkTokens(candidates[0].Chunk)
		for _, c := range candidates[1:] {
			if t := chunkTokens(c.Chunk); t < smallest {
				smallest = t
			}
		}
		return nil, fmt.Errorf("%w: usable budget %d, smallest candidate %d tokens",
			ErrBudgetTooSmall, usable, smallest)
	}

	span.SetAttributes(
		attribute.Int("assembler.selected", len(assembled.Chunks)),
		attribute.Int("assembler.total_tokens", assembled.TotalTokens),
	)
	return assembled, nil
}

// poolSizeFor derives the candidate pool size from the usable budget.
func (a *Assembler) poolSizeFor(usable int) int {
	if a.poolSize > 0 {
		return a.poolSize
	}
	expected := usable / DefaultChunkTokens
	if expected < 1 {
		expected = 1
	}
	pool := expected * DefaultPoolFactor
	if pool < MinPoolSize {
		pool = MinPoolSize
	}
	if pool > MaxPoolSize {
		pool = MaxPoolSize
	}
	return pool
}

// dedupe drops excluded IDs and duplicate IDs, keeping first occurrence.
// The result is a fresh slice: the candidate slice belongs to the store
// and must not be rewritten.
func dedupe(candidates []chunkstore.ScoredChunk, exclude map[string]struct{}) []chunkstore.ScoredChunk {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]chunkstore.ScoredChunk, 0, len(candidates))
	for _, c := range candidates {
		if _, skip := exclude[c.ID]; skip {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}

// chunkTokens returns the token cost of a chunk, estimating from text
// length when the stored count is missing.
func chunkTokens(c chunkstore.Chunk) int {
	if c.TokenCount > 0 {
		return c.TokenCount
	}
	return (len(c.Text) + CharsPerToken - 1) / CharsPerToken
}
