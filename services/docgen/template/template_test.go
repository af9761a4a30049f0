// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFill(t *testing.T) {
	tmpl := New("Task: {{TASK}}\nContext:\n{{CONTEXT}}\nUnknown: {{SOMETHING_ELSE}}")
	out := tmpl.Fill(map[string]string{
		MarkerTask:    "write docs",
		MarkerContext: "some code",
	})
	assert.Contains(t, out, "Task: write docs")
	assert.Contains(t, out, "Context:\nsome code")
	// Unknown markers stay, so the reviewer can flag them.
	assert.Contains(t, out, "{{SOMETHING_ELSE}}")
}

func TestFill_NoValues(t *testing.T) {
	tmpl := New("unchanged {{TASK}}")
	assert.Equal(t, "unchanged {{TASK}}", tmpl.Fill(nil))
}

func TestMarkers(t *testing.T) {
	tmpl := New("{{TASK}} then {{CONTEXT}} then {{TASK}} again")
	assert.Equal(t, []string{"{{TASK}}", "{{CONTEXT}}"}, tmpl.Markers())
}

func TestFindUnresolved(t *testing.T) {
	assert.Empty(t, FindUnresolved("clean text"))
	assert.Equal(t, []string{"{{A}}", "{{B C}}"}, FindUnresolved("x {{A}} y {{B C}} z"))
	// Nested braces don't match; only simple markers count.
	assert.Empty(t, FindUnresolved("if x { y := map[string]int{} }"))
}

func TestLoad_Fallback(t *testing.T) {
	tmpl, err := Load("", "fallback content")
	require.NoError(t, err)
	assert.Equal(t, "fallback content", tmpl.Text())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.md")
	require.NoError(t, os.WriteFile(path, []byte("custom {{TASK}}"), 0640))

	tmpl, err := Load(path, "fallback")
	require.NoError(t, err)
	assert.Equal(t, "custom {{TASK}}", tmpl.Text())
}

func TestLoad_MissingFileIsError(t *testing.T) {
	_, err := Load("/nonexistent/prompt.md", "fallback")
	assert.Error(t, err)
}

func TestDefaultTemplates_CarryExpectedMarkers(t *testing.T) {
	writerMarkers := New(DefaultWriterPrompt).Markers()
	assert.Contains(t, writerMarkers, MarkerTask)
	assert.Contains(t, writerMarkers, MarkerContext)
	assert.Contains(t, writerMarkers, MarkerProjectFacts)
	assert.Contains(t, writerMarkers, MarkerTemplate)
	assert.Contains(t, writerMarkers, MarkerPriorDraft)
	assert.Contains(t, writerMarkers, MarkerFeedback)

	reviewerMarkers := New(DefaultReviewerPrompt).Markers()
	assert.Contains(t, reviewerMarkers, MarkerTask)
	assert.Contains(t, reviewerMarkers, MarkerProjectFacts)
	assert.Contains(t, reviewerMarkers, MarkerContext)
	assert.Contains(t, reviewerMarkers, MarkerPriorDraft)
}
