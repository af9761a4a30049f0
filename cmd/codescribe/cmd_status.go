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
	"sort"

	"github.com/AleutianAI/codescribe/cmd/codescribe/config"
	"github.com/AleutianAI/codescribe/services/docgen/chunkstore"
	"github.com/AleutianAI/codescribe/services/docgen/workflow"
	"github.com/spf13/cobra"
)

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Global
	if cfg.Output.RunStore == "" {
		return fmt.Errorf("no run store configured; set output.run_store in the config")
	}
	store, err := workflow.OpenRunStore(expandHome(cfg.Output.RunStore))
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	defer store.Close()

	if len(args) == 1 {
		return printRun(cmd, store, args[0])
	}

	printCorpus(cmd)

	records, err := store.ListRuns(cmd.Context())
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	for _, rec := range records {
		fmt.Printf("%s  %-9s  score %3d  cycles %d  %s\n",
			rec.CreatedAt.Format("2006-01-02 15:04"), rec.Status, rec.FinalScore, rec.Cycles, rec.TaskID)
	}
	return nil
}

// printCorpus reports the chunk count for the configured corpus. The
// store being down is not an error for status: runs are still listed.
func printCorpus(cmd *cobra.Command) {
	cfg := config.Global
	corpusName := cfg.Weaviate.Corpus
	if corpus != "" {
		corpusName = corpus
	}
	store, err := chunkstore.NewWeaviateStore(cfg.Weaviate.URL, corpusName)
	if err != nil {
		return
	}
	count, err := store.Count(cmd.Context())
	if err != nil {
		fmt.Printf("Corpus %q: unavailable (%v)\n", corpusName, err)
		return
	}
	fmt.Printf("Corpus %q: %d chunks\n", corpusName, count)
}

func printRun(cmd *cobra.Command, store *workflow.RunStore, taskID string) error {
	rec, err := store.GetRun(cmd.Context(), taskID)
	if err != nil {
		return err
	}
	fmt.Printf("Task:    %s\n", rec.Task)
	fmt.Printf("Status:  %s\n", rec.Status)
	fmt.Printf("Score:   %d\n", rec.FinalScore)
	fmt.Printf("Cycles:  %d\n", rec.Cycles)
	if rec.Reason != "" {
		fmt.Printf("Reason:  %s\n", rec.Reason)
	}
	for _, review := range rec.Reviews {
		fmt.Printf("  cycle %d: score %d", review.Cycle, review.Score)
		if review.CriticalFailure {
			fmt.Printf(" (critical failure)")
		}
		fmt.Println()
		for _, issue := range review.CriticalIssues {
			fmt.Printf("    - %s\n", issue)
		}
	}
	return nil
}
