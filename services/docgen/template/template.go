// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package template holds the prompt and document templates the
// refinement loop fills in.
//
// Templates are opaque text: the system substitutes named markers and
// never interprets the surrounding content. Markers it does not know
// are left untouched so the reviewer can flag them as unresolved
// placeholders.
package template

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Named markers the system substitutes. Anything else of the form
// {{...}} is content the model must fill in.
const (
	MarkerContext      = "{{CONTEXT}}"
	MarkerPriorDraft   = "{{PRIOR_DRAFT}}"
	MarkerFeedback     = "{{FEEDBACK}}"
	MarkerProjectFacts = "{{PROJECT_FACTS}}"
	MarkerTask         = "{{TASK}}"
	MarkerTemplate     = "{{TEMPLATE}}"
)

// DefaultWriterPrompt is the built-in writer prompt, baked into the
// binary so a bare install works without a template directory.
//
//go:embed defaults/writer_prompt.md
var DefaultWriterPrompt string

// DefaultReviewerPrompt is the built-in reviewer prompt.
//
//go:embed defaults/reviewer_prompt.md
var DefaultReviewerPrompt string

// DefaultDocTemplate is the built-in document structure.
//
//go:embed defaults/doc_template.md
var DefaultDocTemplate string

var markerPattern = regexp.MustCompile(`\{\{[^{}]+\}\}`)

// Template is opaque prompt or document text with {{...}} markers.
type Template struct {
	text string
}

// New wraps raw template text.
func New(text string) Template {
	return Template{text: text}
}

// Load reads a template from path, falling back to fallback when path
// is empty. A non-empty path that cannot be read is an error, not a
// silent fallback.
func Load(path, fallback string) (Template, error) {
	if path == "" {
		return New(fallback), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("read template %s: %w", path, err)
	}
	return New(string(data)), nil
}

// Text returns the raw template text.
func (t Template) Text() string { return t.text }

// Fill substitutes the given marker values. Markers absent from the
// values map stay in the output.
func (t Template) Fill(values map[string]string) string {
	if len(values) == 0 {
		return t.text
	}
	pairs := make([]string, 0, len(values)*2)
	for marker, value := range values {
		pairs = append(pairs, marker, value)
	}
	return strings.NewReplacer(pairs...).Replace(t.text)
}

// Markers returns every {{...}} marker present in the template, in
// order of first appearance, without duplicates.
func (t Template) Markers() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range markerPattern.FindAllString(t.text, -1) {
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// FindUnresolved returns every {{...}} marker remaining in rendered
// output. Used by the reviewer's independent placeholder scan.
func FindUnresolved(text string) []string {
	return markerPattern.FindAllString(text, -1)
}
