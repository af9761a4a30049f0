// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package seeder ingests a repository into the chunk corpus.
//
// Seeding walks a source tree, splits each file with a
// language-appropriate splitter, embeds every chunk, and writes the
// results to the chunk store. The refinement loop never writes to the
// corpus; seeding is the only ingest path.
package seeder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/codescribe/services/docgen/chunkstore"
	"github.com/AleutianAI/codescribe/services/docgen/embed"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("codescribe.docgen.seeder")

var (
	chunkSize         = 1000
	chunkOverlap      = chunkSize / 10
	defaultSeparators = []string{"\n\n", "\n", " ", ""}
	pythonSeparators  = []string{"\nclass ", "\ndef ", "\n\t", "\n", " "}
	cStyleSeparators  = []string{
		"\nfunction ", "\nclass ", "\ninterface ",
		"\npublic ", "\nprivate ", "\nprotected ",
		"\nfunc", "\ntype",
		"\n\n", "\n", " ", "",
	}
	markdownSeparators = []string{
		"\n# ", "\n## ", "\n### ", "\n#### ", "\n##### ", "\n###### ",
		"\n\n", "\n", " ", "",
	}
)

// sourceExtensions are the file types worth ingesting. Everything else
// (binaries, lockfiles, images) is skipped.
var sourceExtensions = map[string]struct{}{
	".md": {}, ".txt": {}, ".rst": {},
	".py": {}, ".go": {}, ".js": {}, ".ts": {}, ".java": {},
	".c": {}, ".cpp": {}, ".h": {}, ".hpp": {}, ".rs": {},
	".yaml": {}, ".yml": {}, ".toml": {}, ".json": {},
	".sh": {}, ".sql": {},
}

// skipDirs are directories never descended into.
var skipDirs = map[string]struct{}{
	".git": {}, "node_modules": {}, "vendor": {}, "__pycache__": {},
	".venv": {}, "venv": {}, "dist": {}, "build": {},
}

// Stats summarizes one seeding pass.
type Stats struct {
	FilesSeen    int
	FilesSkipped int
	Chunks       int
}

// Seeder splits, embeds, and stores repository files.
//
// Thread Safety:
//
//	Seeder is safe for concurrent use, though a single corpus should
//	only be seeded by one pass at a time.
type Seeder struct {
	embedder  embed.Embedder
	store     chunkstore.Writer
	corpus    string
	batchSize int
}

// New creates a seeder writing to the given corpus.
func New(embedder embed.Embedder, store chunkstore.Writer, corpus string) (*Seeder, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store must not be nil")
	}
	if corpus == "" {
		return nil, fmt.Errorf("corpus must not be empty")
	}
	return &Seeder{
		embedder:  embedder,
		store:     store,
		corpus:    corpus,
		batchSize: 64,
	}, nil
}

// SeedDirectory ingests every recognized file under root.
//
// Description:
//
//	Walks root, splitting each source file with a splitter matched to
//	its extension, embedding each chunk, and writing batches to the
//	store. A file that fails to read or embed is logged and skipped;
//	the pass continues.
//
// Outputs:
//
//	Stats - Counts for the pass.
//	error - Non-nil when the walk itself or a store write fails.
func (s *Seeder) SeedDirectory(ctx context.Context, root string) (Stats, error) {
	ctx, span := tracer.Start(ctx, "Seeder.SeedDirectory")
	defer span.End()
	span.SetAttributes(attribute.String("seeder.root", root), attribute.String("seeder.corpus", s.corpus))

	var stats Stats
	var batch []chunkstore.Chunk

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if _, skip := skipDirs[d.Name()]; skip {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if _, ok := sourceExtensions[strings.ToLower(filepath.Ext(path))]; !ok {
			stats.FilesSkipped++
			return nil
		}
		stats.FilesSeen++

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		chunks, fileErr := s.chunkFile(ctx, path, rel)
		if fileErr != nil {
			slog.Warn("Skipping file", "path", rel, "error", fileErr)
			stats.FilesSkipped++
			return nil
		}
		batch = append(batch, chunks...)
		stats.Chunks += len(chunks)

		if len(batch) >= s.batchSize {
			if putErr := s.store.Put(ctx, batch); putErr != nil {
				return fmt.Errorf("store batch: %w", putErr)
			}
			batch = batch[:0]
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return stats, fmt.Errorf("seed %s: %w", root, err)
	}

	if len(batch) > 0 {
		if err := s.store.Put(ctx, batch); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return stats, fmt.Errorf("store final batch: %w", err)
		}
	}

	span.SetAttributes(attribute.Int("seeder.chunks", stats.Chunks))
	slog.Info("Seeding complete", "root", root, "corpus", s.corpus,
		"files", stats.FilesSeen, "skipped", stats.FilesSkipped, "chunks", stats.Chunks)
	return stats, nil
}

// chunkFile splits and embeds one file.
func (s *Seeder) chunkFile(ctx context.Context, path, rel string) ([]chunkstore.Chunk, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if len(content) == 0 {
		return nil, nil
	}

	pieces, err := splitterForFile(rel).SplitText(string(content))
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}

	// Stable per-file document ID so re-seeding produces the same IDs.
	fileHash := sha256.Sum256([]byte(rel))
	docUUID, _ := uuid.FromBytes(fileHash[:16])

	chunks := make([]chunkstore.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		if strings.TrimSpace(piece) == "" {
			continue
		}
		vector, err := s.embedder.Embed(ctx, piece)
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d: %w", i, err)
		}
		contentHash := sha256.Sum256([]byte(piece))
		chunks = append(chunks, chunkstore.Chunk{
			ID:         fmt.Sprintf("%s:%s", docUUID.String(), hex.EncodeToString(contentHash[:8])),
			Text:       piece,
			Embedding:  vector,
			SourceRef:  fmt.Sprintf("%s#%d", rel, i+1),
			TokenCount: (len(piece) + 3) / 4,
			Corpus:     s.corpus,
		})
	}
	return chunks, nil
}

func splitterForFile(filename string) textsplitter.TextSplitter {
	switch filepath.Ext(filename) {
	case ".md", ".rst":
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(markdownSeparators),
		)
	case ".py":
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(pythonSeparators),
		)
	case ".js", ".ts", ".java", ".c", ".cpp", ".h", ".hpp", ".rs", ".go":
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(cStyleSeparators),
		)
	default:
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(defaultSeparators),
		)
	}
}
