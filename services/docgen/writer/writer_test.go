// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package writer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/codescribe/services/docgen/assembler"
	"github.com/AleutianAI/codescribe/services/docgen/chunkstore"
	"github.com/AleutianAI/codescribe/services/docgen/llm"
	"github.com/AleutianAI/codescribe/services/docgen/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGenerator returns canned responses in order and records calls.
type fakeGenerator struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
	params    []llm.GenerationParams
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	idx := g.calls
	g.calls++
	g.prompts = append(g.prompts, prompt)
	g.params = append(g.params, params)
	if idx < len(g.errs) && g.errs[idx] != nil {
		return "", g.errs[idx]
	}
	if idx < len(g.responses) {
		return g.responses[idx], nil
	}
	return g.responses[len(g.responses)-1], nil
}

func testContext() *assembler.AssembledContext {
	return &assembler.AssembledContext{
		Chunks: []chunkstore.ScoredChunk{{
			Chunk: chunkstore.Chunk{ID: "a", Text: "package main", SourceRef: "main.go#1", TokenCount: 5},
		}},
		TotalTokens: 5,
	}
}

func fastRetry() llm.RetryConfig {
	return llm.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func TestDraft_FirstCycle(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"# Docs\nGenerated content."}}
	w, err := New(gen, template.New(template.DefaultWriterPrompt))
	require.NoError(t, err)

	draft, err := w.Draft(context.Background(), Request{
		Task:        "document the build system",
		Context:     testContext(),
		DocTemplate: template.New("# {{PROJECT_NAME}}"),
		Cycle:       1,
	})
	require.NoError(t, err)

	assert.Equal(t, "# Docs\nGenerated content.", draft.Content)
	assert.Equal(t, 1, draft.Cycle)
	assert.Contains(t, draft.Prompt, "document the build system")
	assert.False(t, draft.CreatedAt.IsZero())

	require.Len(t, gen.prompts, 1)
	prompt := gen.prompts[0]
	assert.Contains(t, prompt, "document the build system")
	assert.Contains(t, prompt, "package main")
	// First cycle: no revision framing.
	assert.NotContains(t, prompt, "Previous draft to revise")
	assert.NotContains(t, prompt, "critical issues first")
}

func TestDraft_RevisionCarriesPriorAndFeedback(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"revised"}}
	w, err := New(gen, template.New(template.DefaultWriterPrompt))
	require.NoError(t, err)

	_, err = w.Draft(context.Background(), Request{
		Task:    "docs",
		Context: testContext(),
		Prior:   &Draft{Content: "OLD DRAFT TEXT", Cycle: 1},
		Feedback: Feedback{
			CriticalIssues: []string{"unresolved placeholder {{X}}"},
			Improvements:   []string{"add examples"},
		},
		Cycle: 2,
	})
	require.NoError(t, err)

	prompt := gen.prompts[0]
	assert.Contains(t, prompt, "OLD DRAFT TEXT")
	// Critical issues must come before improvements.
	criticalIdx := strings.Index(prompt, "unresolved placeholder {{X}}")
	improveIdx := strings.Index(prompt, "add examples")
	require.Greater(t, criticalIdx, -1)
	require.Greater(t, improveIdx, -1)
	assert.Less(t, criticalIdx, improveIdx)
}

func TestDraft_UsesLowTemperature(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"out"}}
	w, err := New(gen, template.New("{{TASK}}"))
	require.NoError(t, err)

	_, err = w.Draft(context.Background(), Request{Task: "t", Context: testContext(), Cycle: 1})
	require.NoError(t, err)

	require.NotNil(t, gen.params[0].Temperature)
	assert.InDelta(t, DefaultTemperature, *gen.params[0].Temperature, 0.001)
}

func TestDraft_RetriesTransientFailure(t *testing.T) {
	gen := &fakeGenerator{
		responses: []string{"", "recovered"},
		errs:      []error{llm.ErrTimeout, nil},
	}
	w, err := New(gen, template.New("{{TASK}}"), WithRetryConfig(fastRetry()))
	require.NoError(t, err)

	draft, err := w.Draft(context.Background(), Request{Task: "t", Context: testContext(), Cycle: 1})
	require.NoError(t, err)
	assert.Equal(t, "recovered", draft.Content)
	assert.Equal(t, 2, gen.calls)
}

func TestDraft_GivesUpAfterRetries(t *testing.T) {
	failure := errors.Join(llm.ErrTimeout, errors.New("deadline"))
	gen := &fakeGenerator{
		responses: []string{"", "", ""},
		errs:      []error{failure, failure, failure},
	}
	w, err := New(gen, template.New("{{TASK}}"), WithRetryConfig(fastRetry()))
	require.NoError(t, err)

	_, err = w.Draft(context.Background(), Request{Task: "t", Context: testContext(), Cycle: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrTimeout)
	assert.Equal(t, 3, gen.calls)
}

func TestDraft_RepairsKnownPlaceholders(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"Clone {{REPOSITORY_URL}} into {{PROJECT_NAME}}."}}
	w, err := New(gen, template.New("{{TASK}}"))
	require.NoError(t, err)

	draft, err := w.Draft(context.Background(), Request{
		Task:    "t",
		Context: testContext(),
		Facts: ProjectFacts{
			"REPOSITORY_URL": "https://example.com/repo.git",
			"PROJECT_NAME":   "myproject",
		},
		Cycle: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "Clone https://example.com/repo.git into myproject.", draft.Content)
}

func TestProjectFacts_FormatStable(t *testing.T) {
	facts := ProjectFacts{"b_key": "2", "a_key": "1"}
	first := facts.Format()
	assert.Equal(t, "a_key: 1\nb_key: 2\n", first)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, facts.Format())
	}
	assert.Equal(t, "(none provided)", ProjectFacts{}.Format())
}

func TestRepairPlaceholders_HyphenatedEcho(t *testing.T) {
	out := repairPlaceholders("See {{repository-url}} for source.",
		ProjectFacts{"REPOSITORY_URL": "https://example.com/r.git"})
	assert.Equal(t, "See https://example.com/r.git for source.", out)
}

func TestRepairPlaceholders_UnknownLeftAlone(t *testing.T) {
	out := repairPlaceholders("Value: {{UNKNOWN}}", ProjectFacts{"KNOWN": "v"})
	assert.Equal(t, "Value: {{UNKNOWN}}", out)
}
