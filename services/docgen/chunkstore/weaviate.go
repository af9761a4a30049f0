// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chunkstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("codescribe.docgen.chunkstore")

// ChunkClassName is the Weaviate class holding chunk records.
const ChunkClassName = "CodeChunk"

// WeaviateStore is a Store backed by a Weaviate instance.
//
// Vectors are supplied by the caller ("vectorizer: none"); Weaviate only
// indexes them. The corpus field isolates repositories that share one
// Weaviate class.
//
// Thread Safety: safe for concurrent use.
type WeaviateStore struct {
	client *weaviate.Client
	corpus string
	logger *slog.Logger
}

// NewWeaviateStore creates a store for one corpus.
//
// Description:
//
//	Builds a Weaviate client for the given URL and scopes all queries to
//	the corpus isolation key.
//
// Inputs:
//
//	url - Weaviate server URL (e.g. "http://localhost:8080").
//	corpus - Isolation key for the repository. Must not be empty.
//
// Outputs:
//
//	*WeaviateStore - The configured store.
//	error - Non-nil if the URL is empty, the corpus is empty, or the
//	client cannot be constructed.
func NewWeaviateStore(url, corpus string) (*WeaviateStore, error) {
	if url == "" {
		return nil, fmt.Errorf("url must not be empty")
	}
	if corpus == "" {
		return nil, fmt.Errorf("corpus must not be empty")
	}

	cfg := weaviate.Config{
		Host:   url,
		Scheme: "http",
	}
	if strings.HasPrefix(url, "https://") {
		cfg.Scheme = "https"
		cfg.Host = strings.TrimPrefix(url, "https://")
	} else if strings.HasPrefix(url, "http://") {
		cfg.Host = strings.TrimPrefix(url, "http://")
	}

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	return &WeaviateStore{
		client: client,
		corpus: corpus,
		logger: slog.Default().With(slog.String("component", "chunk_store")),
	}, nil
}

// chunkSchema returns the CodeChunk class definition.
func chunkSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       ChunkClassName,
		Description: "A chunk of repository source text with a caller-supplied embedding.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "chunkId",
				DataType:        []string{"text"},
				Description:     "Unique chunk identifier (<doc_uuid>:<content_hash>).",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "text",
				DataType:     []string{"text"},
				Description:  "The chunk content.",
				Tokenization: "word",
			},
			{
				Name:            "sourceRef",
				DataType:        []string{"text"},
				Description:     "Origin of the chunk (file path plus chunk ordinal).",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "tokenCount",
				DataType:        []string{"int"},
				Description:     "Prompt token cost of the chunk, computed at ingest.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "corpus",
				DataType:        []string{"text"},
				Description:     "Isolation key for the repository this chunk belongs to.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
		},
	}
}

// EnsureSchema creates the CodeChunk class if it does not exist.
func (s *WeaviateStore) EnsureSchema(ctx context.Context) error {
	class := chunkSchema()
	_, err := s.client.Schema().ClassGetter().WithClassName(class.Class).Do(ctx)
	if err == nil {
		return nil
	}
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("create class %s: %w", class.Class, err)
	}
	s.logger.Info("Created chunk class", "class", class.Class)
	return nil
}

// Nearest returns up to k chunks ordered by descending similarity.
//
// Description:
//
//	Runs a nearVector query scoped to this store's corpus. Results carry
//	the certainty reported by Weaviate; ordering is Weaviate's similarity
//	ordering.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	embedding - Query vector. Must match the corpus dimension.
//	k - Maximum number of results. Must be positive.
//
// Outputs:
//
//	[]ScoredChunk - Chunks in descending similarity order.
//	error - ErrStoreUnavailable (wrapped) if the query fails.
func (s *WeaviateStore) Nearest(ctx context.Context, embedding []float32, k int) ([]ScoredChunk, error) {
	ctx, span := tracer.Start(ctx, "WeaviateStore.Nearest")
	defer span.End()
	span.SetAttributes(
		attribute.Int("store.k", k),
		attribute.Int("store.dim", len(embedding)),
	)

	if len(embedding) == 0 {
		return nil, fmt.Errorf("embedding must not be empty")
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(embedding)

	where := filters.Where().
		WithPath([]string{"corpus"}).
		WithOperator(filters.Equal).
		WithValueString(s.corpus)

	result, err := s.client.GraphQL().Get().
		WithClassName(ChunkClassName).
		WithFields(chunkFields()...).
		WithWhere(where).
		WithNearVector(nearVector).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: nearest query: %v", ErrStoreUnavailable, err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("%w: nearest query: %s", ErrStoreUnavailable, result.Errors[0].Message)
	}

	chunks := parseChunkResults(result, s.corpus)
	span.SetAttributes(attribute.Int("store.results", len(chunks)))
	return chunks, nil
}

// Get returns a single chunk by ID.
//
// Outputs ErrNotFound if no chunk with the ID exists in this corpus.
func (s *WeaviateStore) Get(ctx context.Context, id string) (*Chunk, error) {
	ctx, span := tracer.Start(ctx, "WeaviateStore.Get")
	defer span.End()

	where := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			filters.Where().
				WithPath([]string{"chunkId"}).
				WithOperator(filters.Equal).
				WithValueString(id),
			filters.Where().
				WithPath([]string{"corpus"}).
				WithOperator(filters.Equal).
				WithValueString(s.corpus),
		})

	result, err := s.client.GraphQL().Get().
		WithClassName(ChunkClassName).
		WithFields(chunkFields()...).
		WithWhere(where).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: get query: %v", ErrStoreUnavailable, err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("%w: get query: %s", ErrStoreUnavailable, result.Errors[0].Message)
	}

	chunks := parseChunkResults(result, s.corpus)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c := chunks[0].Chunk
	return &c, nil
}

// Put writes chunks with their vectors. Used by the seeder only.
func (s *WeaviateStore) Put(ctx context.Context, chunks []Chunk) error {
	ctx, span := tracer.Start(ctx, "WeaviateStore.Put")
	defer span.End()
	span.SetAttributes(attribute.Int("store.chunks", len(chunks)))

	for _, c := range chunks {
		properties := map[string]interface{}{
			"chunkId":    c.ID,
			"text":       c.Text,
			"sourceRef":  c.SourceRef,
			"tokenCount": c.TokenCount,
			"corpus":     s.corpus,
		}
		_, err := s.client.Data().Creator().
			WithClassName(ChunkClassName).
			WithProperties(properties).
			WithVector(c.Embedding).
			Do(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("%w: put chunk %s: %v", ErrStoreUnavailable, c.ID, err)
		}
	}

	s.logger.Debug("Wrote chunks", "count", len(chunks), "corpus", s.corpus)
	return nil
}

// Count returns the number of chunks stored for this corpus.
func (s *WeaviateStore) Count(ctx context.Context) (int, error) {
	where := filters.Where().
		WithPath([]string{"corpus"}).
		WithOperator(filters.Equal).
		WithValueString(s.corpus)

	result, err := s.client.GraphQL().Aggregate().
		WithClassName(ChunkClassName).
		WithWhere(where).
		WithFields(graphql.Field{
			Name:   "meta",
			Fields: []graphql.Field{{Name: "count"}},
		}).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: aggregate query: %v", ErrStoreUnavailable, err)
	}
	if len(result.Errors) > 0 {
		return 0, fmt.Errorf("%w: aggregate query: %s", ErrStoreUnavailable, result.Errors[0].Message)
	}

	data, ok := result.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	objects, ok := data[ChunkClassName].([]interface{})
	if !ok || len(objects) == 0 {
		return 0, nil
	}
	obj, ok := objects[0].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	meta, ok := obj["meta"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	count, _ := meta["count"].(float64)
	return int(count), nil
}

func chunkFields() []graphql.Field {
	return []graphql.Field{
		{Name: "chunkId"},
		{Name: "text"},
		{Name: "sourceRef"},
		{Name: "tokenCount"},
		{Name: "corpus"},
		{Name: "_additional { certainty distance vector }"},
	}
}

// parseChunkResults converts a GraphQL response into scored chunks.
//
// Malformed objects are skipped rather than failing the whole batch; the
// assembler re-validates token counts anyway.
func parseChunkResults(result *models.GraphQLResponse, corpus string) []ScoredChunk {
	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	objects, ok := data[ChunkClassName].([]interface{})
	if !ok {
		return nil
	}

	chunks := make([]ScoredChunk, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}

		sc := ScoredChunk{
			Chunk: Chunk{
				ID:         getString(m, "chunkId"),
				Text:       getString(m, "text"),
				SourceRef:  getString(m, "sourceRef"),
				TokenCount: getInt(m, "tokenCount"),
				Corpus:     corpus,
			},
		}
		if sc.ID == "" {
			continue
		}

		if additional, ok := m["_additional"].(map[string]interface{}); ok {
			if certainty, ok := additional["certainty"].(float64); ok {
				sc.Similarity = certainty
			}
			if raw, ok := additional["vector"].([]interface{}); ok {
				vec := make([]float32, 0, len(raw))
				for _, v := range raw {
					if f, ok := v.(float64); ok {
						vec = append(vec, float32(f))
					}
				}
				sc.Embedding = vec
			}
		}

		chunks = append(chunks, sc)
	}
	return chunks
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getInt(m map[string]interface{}, key string) int {
	if v, ok := m[key].(float64); ok {
		return int(v)
	}
	return 0
}
