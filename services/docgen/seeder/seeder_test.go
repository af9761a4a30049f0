// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package seeder

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AleutianAI/codescribe/services/docgen/chunkstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder returns a fixed vector for any text.
type fakeEmbedder struct {
	calls int
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	return []float32{0.1, 0.2, 0.3}, nil
}

func (e *fakeEmbedder) Dimensions() int { return 3 }

// captureWriter records every chunk written across batches.
type captureWriter struct {
	chunks []chunkstore.Chunk
	puts   int
}

func (w *captureWriter) Put(ctx context.Context, chunks []chunkstore.Chunk) error {
	w.puts++
	w.chunks = append(w.chunks, chunks...)
	return nil
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0640))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, &captureWriter{}, "corpus")
	assert.Error(t, err)

	_, err = New(&fakeEmbedder{}, nil, "corpus")
	assert.Error(t, err)

	_, err = New(&fakeEmbedder{}, &captureWriter{}, "")
	assert.Error(t, err)
}

func TestSeedDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package main\n\nfunc main() {}\n")
	writeFile(t, dir, "README.md", "# Project\n\nUsage notes.\n")
	writeFile(t, dir, "logo.png", "binary-ish bytes")

	store := &captureWriter{}
	s, err := New(&fakeEmbedder{}, store, "testcorpus")
	require.NoError(t, err)

	stats, err := s.SeedDirectory(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.FilesSeen)
	assert.Equal(t, 1, stats.FilesSkipped)
	assert.Equal(t, stats.Chunks, len(store.chunks))
	require.NotEmpty(t, store.chunks)

	for _, c := range store.chunks {
		assert.NotEmpty(t, c.ID)
		assert.NotEmpty(t, c.Text)
		assert.Equal(t, "testcorpus", c.Corpus)
		assert.Len(t, c.Embedding, 3)
		assert.Positive(t, c.TokenCount)
		assert.Contains(t, c.SourceRef, "#")
	}
}

func TestSeedDirectory_SkipsIgnoredDirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/app.go", "package app\n")
	writeFile(t, dir, ".git/config.go", "not really go\n")
	writeFile(t, dir, "node_modules/lib/index.js", "module.exports = {}\n")

	store := &captureWriter{}
	s, err := New(&fakeEmbedder{}, store, "c")
	require.NoError(t, err)

	stats, err := s.SeedDirectory(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FilesSeen)
	for _, c := range store.chunks {
		assert.True(t, strings.HasPrefix(c.SourceRef, filepath.Join("src", "app.go")))
	}
}

func TestSeedDirectory_StableIDs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "doc.md", "# Title\n\nSome body text.\n")

	first := &captureWriter{}
	s, err := New(&fakeEmbedder{}, first, "c")
	require.NoError(t, err)
	_, err = s.SeedDirectory(context.Background(), dir)
	require.NoError(t, err)

	second := &captureWriter{}
	s2, err := New(&fakeEmbedder{}, second, "c")
	require.NoError(t, err)
	_, err = s2.SeedDirectory(context.Background(), dir)
	require.NoError(t, err)

	require.Equal(t, len(first.chunks), len(second.chunks))
	for i := range first.chunks {
		assert.Equal(t, first.chunks[i].ID, second.chunks[i].ID)
	}
}

func TestSeedDirectory_IDFormat(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.txt", "some plain text content here")

	store := &captureWriter{}
	s, err := New(&fakeEmbedder{}, store, "c")
	require.NoError(t, err)
	_, err = s.SeedDirectory(context.Background(), dir)
	require.NoError(t, err)

	require.NotEmpty(t, store.chunks)
	// <doc_uuid>:<hex8 content hash>
	parts := strings.Split(store.chunks[0].ID, ":")
	require.Len(t, parts, 2)
	assert.Len(t, parts[0], 36)
	assert.Len(t, parts[1], 16)
}

func TestSeedDirectory_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty.go", "")

	store := &captureWriter{}
	s, err := New(&fakeEmbedder{}, store, "c")
	require.NoError(t, err)

	stats, err := s.SeedDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Chunks)
	assert.Zero(t, store.puts)
}

func TestSeedDirectory_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package main\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := New(&fakeEmbedder{}, &captureWriter{}, "c")
	require.NoError(t, err)

	_, err = s.SeedDirectory(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSplitterForFile_LargeMarkdown(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString("## Section\n\n")
		sb.WriteString(strings.Repeat("word ", 60))
		sb.WriteString("\n\n")
	}

	pieces, err := splitterForFile("doc.md").SplitText(sb.String())
	require.NoError(t, err)
	assert.Greater(t, len(pieces), 1)
	for _, p := range pieces {
		assert.LessOrEqual(t, len(p), chunkSize+chunkOverlap)
	}
}
