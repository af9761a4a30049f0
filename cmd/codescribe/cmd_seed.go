// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/AleutianAI/codescribe/cmd/codescribe/config"
	"github.com/AleutianAI/codescribe/services/docgen/chunkstore"
	"github.com/AleutianAI/codescribe/services/docgen/embed"
	"github.com/AleutianAI/codescribe/services/docgen/seeder"
	"github.com/spf13/cobra"
)

func runSeed(cmd *cobra.Command, args []string) error {
	cfg := config.Global
	root := args[0]

	corpusName := cfg.Weaviate.Corpus
	if corpus != "" {
		corpusName = corpus
	}
	store, err := chunkstore.NewWeaviateStore(cfg.Weaviate.URL, corpusName)
	if err != nil {
		return fmt.Errorf("connect to chunk store: %w", err)
	}
	if err := store.EnsureSchema(cmd.Context()); err != nil {
		return fmt.Errorf("ensure corpus schema: %w", err)
	}

	embedder, err := embed.NewOllamaEmbedder(cfg.Backend.BaseURL, cfg.Models.Embed)
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}
	if err := embedder.Health(cmd.Context()); err != nil {
		return fmt.Errorf("embedding service not reachable: %w", err)
	}

	s, err := seeder.New(embedder, store, corpusName)
	if err != nil {
		return err
	}
	stats, err := s.SeedDirectory(cmd.Context(), root)
	if err != nil {
		return err
	}
	fmt.Printf("Seeded corpus %q: %d files, %d chunks (%d skipped)\n",
		corpusName, stats.FilesSeen, stats.Chunks, stats.FilesSkipped)
	return nil
}
