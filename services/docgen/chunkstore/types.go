// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package chunkstore provides access to the embedded chunk corpus.
//
// A chunk is a bounded span of source text with a precomputed embedding
// vector. Chunks are written once at ingest time and are immutable
// afterwards; the refinement loop only reads from the store.
//
// Thread Safety:
//
//	Store implementations must be safe for concurrent use.
package chunkstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a chunk ID does not exist in the store.
	ErrNotFound = errors.New("chunk not found")

	// ErrStoreUnavailable is returned when the backing store cannot be reached.
	ErrStoreUnavailable = errors.New("chunk store is not available")
)

// Chunk is an immutable span of source text with its embedding.
type Chunk struct {
	// ID uniquely identifies the chunk (format: "<doc_uuid>:<content_hash>").
	ID string

	// Text is the chunk content.
	Text string

	// Embedding is the precomputed vector for Text. All chunks in a corpus
	// share the same dimension.
	Embedding []float32

	// SourceRef identifies where the chunk came from,
	// e.g. "src/workflow/orchestration.py#3".
	SourceRef string

	// TokenCount is the token cost of including this chunk in a prompt,
	// computed at ingest time.
	TokenCount int

	// Corpus is the isolation key for the repository this chunk belongs to.
	Corpus string
}

// ScoredChunk is a chunk paired with its retrieval similarity.
type ScoredChunk struct {
	Chunk

	// Similarity is the cosine certainty reported by the store (0-1,
	// higher is more similar).
	Similarity float64
}

// Store is the retrieval contract the assembler depends on.
//
// Nearest returns up to k chunks ordered by descending similarity to the
// given embedding. Get returns a single chunk by ID, or ErrNotFound.
type Store interface {
	Nearest(ctx context.Context, embedding []float32, k int) ([]ScoredChunk, error)
	Get(ctx context.Context, id string) (*Chunk, error)
}

// Writer is the ingest-side contract. Only the seeder uses it; the
// refinement loop never writes.
type Writer interface {
	Put(ctx context.Context, chunks []Chunk) error
}
