// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package embed turns text into dense vectors for retrieval.
//
// The same embedder must be used at ingest time and at query time;
// mixing models produces vectors in different spaces and retrieval
// silently degrades. The default model is nomic-embed-text (768 dims).
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "nomic-embed-text"

// DefaultDimensions is the vector size DefaultModel produces.
const DefaultDimensions = 768

// DefaultEmbedTimeout is the default timeout for embedding requests.
const DefaultEmbedTimeout = 30 * time.Second

// ErrInvalidInput is returned for nil context or empty text.
var ErrInvalidInput = errors.New("invalid embedding input")

// Embedder converts text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the size of vectors this embedder produces.
	Dimensions() int
}

// OllamaEmbedder computes embeddings through a local Ollama server's
// /api/embeddings endpoint.
//
// # Thread Safety
//
// OllamaEmbedder is safe for concurrent use.
type OllamaEmbedder struct {
	baseURL    string
	model      string
	dimensions int
	httpClient *http.Client
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewOllamaEmbedder creates an embedder for the given server and model.
// Empty model defaults to DefaultModel.
func NewOllamaEmbedder(baseURL, model string) (*OllamaEmbedder, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("embedder base URL must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	return &OllamaEmbedder{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		dimensions: DefaultDimensions,
		httpClient: &http.Client{Timeout: DefaultEmbedTimeout},
	}, nil
}

// WithDimensions overrides the expected vector size for non-default models.
func (e *OllamaEmbedder) WithDimensions(dims int) *OllamaEmbedder {
	e.dimensions = dims
	return e
}

// Dimensions returns the expected vector size.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dimensions
}

// Embed computes a vector embedding for the given text.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - text: The text to embed. Must not be empty.
//
// # Outputs
//
//   - []float32: The embedding vector, Dimensions() long.
//   - error: Non-nil if the service fails or returns the wrong dimension.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if ctx == nil {
		return nil, ErrInvalidInput
	}
	if text == "" {
		return nil, fmt.Errorf("%w: text is empty", ErrInvalidInput)
	}

	bodyBytes, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := e.baseURL + "/api/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(body))
	}

	var embResp ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(embResp.Embedding) == 0 {
		return nil, fmt.Errorf("embedding service returned no vector")
	}
	if e.dimensions > 0 && len(embResp.Embedding) != e.dimensions {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(embResp.Embedding), e.dimensions)
	}

	vector := make([]float32, len(embResp.Embedding))
	for i, v := range embResp.Embedding {
		vector[i] = float32(v)
	}
	return vector, nil
}

// Health checks that the Ollama server is reachable.
func (e *OllamaEmbedder) Health(ctx context.Context) error {
	if ctx == nil {
		return ErrInvalidInput
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("embedding service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
