// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reviewer

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/codescribe/services/docgen/template"
)

// fillerPhrases are template scaffolding that survives drafting when
// the model paraphrases a placeholder instead of filling it. Matched
// case-sensitively: these are the literal strings the stock templates
// use, and lowercasing would catch legitimate prose.
var fillerPhrases = []string{
	"Describe the",
	"Explain the",
	"repository-url",
	"project-directory",
	"Programming language and version",
	"Framework used",
	"Database system",
}

// ScanPlaceholders detects unresolved placeholders in a draft.
//
// Description:
//
//	This scan is independent of the reviewer model: a document with
//	{{...}} markers or known filler phrases is defective no matter
//	what score the model assigned. Findings force CriticalFailure on
//	the review.
//
// Outputs:
//
//	[]string - One finding per placeholder or phrase, empty when clean.
func ScanPlaceholders(content string) []string {
	var findings []string
	for _, marker := range template.FindUnresolved(content) {
		findings = append(findings, fmt.Sprintf("unresolved placeholder %s", marker))
	}
	for _, phrase := range fillerPhrases {
		if strings.Contains(content, phrase) {
			findings = append(findings, fmt.Sprintf("template filler text %q", phrase))
		}
	}
	return findings
}
