// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func embedServer(t *testing.T, vector []float64) (*httptest.Server, *ollamaEmbedRequest) {
	t.Helper()
	var got ollamaEmbedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: vector})
	}))
	t.Cleanup(server.Close)
	return server, &got
}

func TestNewOllamaEmbedder_Defaults(t *testing.T) {
	_, err := NewOllamaEmbedder("", "")
	assert.Error(t, err)

	e, err := NewOllamaEmbedder("http://localhost:11434/", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultDimensions, e.Dimensions())
	assert.Equal(t, "nomic-embed-text", e.model)
}

func TestEmbed(t *testing.T) {
	server, got := embedServer(t, []float64{0.1, 0.2, 0.3})

	e, err := NewOllamaEmbedder(server.URL, "nomic-embed-text")
	require.NoError(t, err)
	e = e.WithDimensions(3)

	vec, err := e.Embed(context.Background(), "func main() {}")
	require.NoError(t, err)

	require.Len(t, vec, 3)
	assert.InDelta(t, 0.1, vec[0], 0.0001)
	assert.InDelta(t, 0.3, vec[2], 0.0001)
	assert.Equal(t, "nomic-embed-text", got.Model)
	assert.Equal(t, "func main() {}", got.Prompt)
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	server, _ := embedServer(t, []float64{0.1, 0.2, 0.3})

	e, err := NewOllamaEmbedder(server.URL, "nomic-embed-text")
	require.NoError(t, err)

	// Default expectation is 768; a 3-dim vector means the wrong model answered.
	_, err = e.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension mismatch")
}

func TestEmbed_EmptyText(t *testing.T) {
	e, err := NewOllamaEmbedder("http://localhost:11434", "")
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEmbed_EmptyVector(t *testing.T) {
	server, _ := embedServer(t, nil)

	e, err := NewOllamaEmbedder(server.URL, "nomic-embed-text")
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no vector")
}

func TestEmbed_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	e, err := NewOllamaEmbedder(server.URL, "nomic-embed-text")
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	e, err := NewOllamaEmbedder(server.URL, "")
	require.NoError(t, err)
	assert.NoError(t, e.Health(context.Background()))
}

func TestHealth_Unreachable(t *testing.T) {
	e, err := NewOllamaEmbedder("http://127.0.0.1:1", "")
	require.NoError(t, err)
	assert.Error(t, e.Health(context.Background()))
}
