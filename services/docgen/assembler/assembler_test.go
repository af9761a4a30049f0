// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assembler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/AleutianAI/codescribe/services/docgen/chunkstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore returns a fixed candidate list regardless of the query.
type fakeStore struct {
	chunks []chunkstore.ScoredChunk
	err    error
	calls  int
}

func (s *fakeStore) Nearest(ctx context.Context, embedding []float32, k int) ([]chunkstore.ScoredChunk, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if k < len(s.chunks) {
		return s.chunks[:k], nil
	}
	return s.chunks, nil
}

func (s *fakeStore) Get(ctx context.Context, id string) (*chunkstore.Chunk, error) {
	for _, c := range s.chunks {
		if c.ID == id {
			chunk := c.Chunk
			return &chunk, nil
		}
	}
	return nil, chunkstore.ErrNotFound
}

func scored(id, ref string, tokens int, sim float64) chunkstore.ScoredChunk {
	return chunkstore.ScoredChunk{
		Chunk: chunkstore.Chunk{
			ID:         id,
			Text:       fmt.Sprintf("content of %s", id),
			SourceRef:  ref,
			TokenCount: tokens,
			Corpus:     "test",
		},
		Similarity: sim,
	}
}

func testBudget(maxTokens int) ContextBudget {
	return ContextBudget{MaxTokens: maxTokens, ReservedInstructions: 0, ReservedResponse: 0}
}

var testEmbedding = []float32{0.1, 0.2, 0.3}

func TestContextBudget_Validate(t *testing.T) {
	tests := []struct {
		name    string
		budget  ContextBudget
		wantErr bool
	}{
		{"valid", ContextBudget{MaxTokens: 1000, ReservedInstructions: 100, ReservedResponse: 100}, false},
		{"zero max", ContextBudget{MaxTokens: 0}, true},
		{"negative reservation", ContextBudget{MaxTokens: 100, ReservedInstructions: -1}, true},
		{"reservations consume everything", ContextBudget{MaxTokens: 100, ReservedInstructions: 60, ReservedResponse: 40}, true},
		{"one token usable", ContextBudget{MaxTokens: 101, ReservedInstructions: 60, ReservedResponse: 40}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.budget.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidBudget)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAssemble_PacksWithinBudget(t *testing.T) {
	store := &fakeStore{chunks: []chunkstore.ScoredChunk{
		scored("a", "src/a.go#1", 100, 0.95),
		scored("b", "src/b.go#1", 100, 0.90),
		scored("c", "src/c.go#1", 100, 0.85),
		scored("d", "src/d.go#1", 100, 0.80),
	}}
	a, err := NewAssembler(store)
	require.NoError(t, err)

	got, err := a.Assemble(context.Background(), testEmbedding, testBudget(250), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, got.ChunkIDs())
	assert.Equal(t, 200, got.TotalTokens)
	assert.LessOrEqual(t, got.TotalTokens, 250)
}

func TestAssemble_SkipsOversizedCandidate(t *testing.T) {
	store := &fakeStore{chunks: []chunkstore.ScoredChunk{
		scored("big", "src/big.go#1", 400, 0.99),
		scored("small", "src/small.go#1", 50, 0.80),
	}}
	a, err := NewAssembler(store)
	require.NoError(t, err)

	got, err := a.Assemble(context.Background(), testEmbedding, testBudget(100), nil)
	require.NoError(t, err)

	// The top candidate doesn't fit; the smaller one still gets packed.
	assert.Equal(t, []string{"small"}, got.ChunkIDs())
}

func TestAssemble_Deterministic(t *testing.T) {
	// Equal similarities must tie-break on SourceRef, then ID.
	store := &fakeStore{chunks: []chunkstore.ScoredChunk{
		scored("z", "src/z.go#1", 50, 0.9),
		scored("a", "src/a.go#1", 50, 0.9),
		scored("m2", "src/m.go#1", 50, 0.9),
		scored("m1", "src/m.go#1", 50, 0.9),
	}}
	a, err := NewAssembler(store)
	require.NoError(t, err)

	first, err := a.Assemble(context.Background(), testEmbedding, testBudget(200), nil)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := a.Assemble(context.Background(), testEmbedding, testBudget(200), nil)
		require.NoError(t, err)
		assert.Equal(t, first.ChunkIDs(), again.ChunkIDs())
	}
	assert.Equal(t, []string{"a", "m1", "m2", "z"}, first.ChunkIDs())
}

func TestAssemble_BudgetTooSmall(t *testing.T) {
	store := &fakeStore{chunks: []chunkstore.ScoredChunk{
		scored("a", "src/a.go#1", 500, 0.95),
		scored("b", "src/b.go#1", 300, 0.90),
	}}
	a, err := NewAssembler(store)
	require.NoError(t, err)

	_, err = a.Assemble(context.Background(), testEmbedding, testBudget(100), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBudgetTooSmall)
	// The error names the smallest candidate so the fix is obvious.
	assert.Contains(t, err.Error(), "300")
}

func TestAssemble_ExcludesAndDedupes(t *testing.T) {
	store := &fakeStore{chunks: []chunkstore.ScoredChunk{
		scored("a", "src/a.go#1", 50, 0.95),
		scored("a", "src/a.go#1", 50, 0.95), // duplicate ID
		scored("b", "src/b.go#1", 50, 0.90),
	}}
	a, err := NewAssembler(store)
	require.NoError(t, err)

	got, err := a.Assemble(context.Background(), testEmbedding, testBudget(500),
		map[string]struct{}{"b": {}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got.ChunkIDs())
}

func TestAssemble_DoesNotMutateStoreSlice(t *testing.T) {
	// A store may serve the same backing slice to every caller; the
	// exclusion pass must not compact it in place.
	chunks := []chunkstore.ScoredChunk{
		scored("a", "src/a.go#1", 50, 0.95),
		scored("b", "src/b.go#1", 50, 0.90),
		scored("c", "src/c.go#1", 50, 0.85),
	}
	store := &fakeStore{chunks: chunks}
	a, err := NewAssembler(store)
	require.NoError(t, err)

	got, err := a.Assemble(context.Background(), testEmbedding, testBudget(500),
		map[string]struct{}{"a": {}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, got.ChunkIDs())

	assert.Equal(t, "a", chunks[0].ID)
	assert.Equal(t, "b", chunks[1].ID)
	assert.Equal(t, "c", chunks[2].ID)
}

func TestAssemble_EmptyEmbedding(t *testing.T) {
	a, err := NewAssembler(&fakeStore{})
	require.NoError(t, err)

	_, err = a.Assemble(context.Background(), nil, testBudget(100), nil)
	assert.ErrorIs(t, err, ErrEmptyEmbedding)
}

func TestAssemble_NoCandidates(t *testing.T) {
	a, err := NewAssembler(&fakeStore{})
	require.NoError(t, err)

	_, err = a.Assemble(context.Background(), testEmbedding, testBudget(100), nil)
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestAssemble_StoreError(t *testing.T) {
	storeErr := errors.New("connection refused")
	a, err := NewAssembler(&fakeStore{err: storeErr})
	require.NoError(t, err)

	_, err = a.Assemble(context.Background(), testEmbedding, testBudget(100), nil)
	assert.ErrorIs(t, err, storeErr)
}

func TestAssemble_TokenEstimateFallback(t *testing.T) {
	chunk := scored("a", "src/a.go#1", 0, 0.9)
	chunk.Text = "xxxxxxxxxxxxxxxxxxxx" // 20 chars -> 5 estimated tokens
	store := &fakeStore{chunks: []chunkstore.ScoredChunk{chunk}}
	a, err := NewAssembler(store)
	require.NoError(t, err)

	got, err := a.Assemble(context.Background(), testEmbedding, testBudget(10), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, got.TotalTokens)
}

func TestAssembledContext_Format(t *testing.T) {
	ac := &AssembledContext{Chunks: []chunkstore.ScoredChunk{
		scored("a", "src/a.go#1", 10, 0.9),
		scored("b", "src/b.go#2", 10, 0.8),
	}}
	text := ac.Format()
	assert.Contains(t, text, "[Source 1: src/a.go#1]")
	assert.Contains(t, text, "[Source 2: src/b.go#2]")
	assert.Contains(t, text, "content of a")
}

func TestPoolSizeFor_Bounds(t *testing.T) {
	a, err := NewAssembler(&fakeStore{})
	require.NoError(t, err)

	assert.Equal(t, MinPoolSize, a.poolSizeFor(1))
	assert.Equal(t, MaxPoolSize, a.poolSizeFor(1_000_000))

	fixed, err := NewAssembler(&fakeStore{}, WithPoolSize(42))
	require.NoError(t, err)
	assert.Equal(t, 42, fixed.poolSizeFor(1_000_000))
}
