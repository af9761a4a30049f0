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

import "strings"

// repairPlaceholders substitutes placeholders the project facts can
// answer directly. Models sometimes echo a template marker verbatim
// even when told not to; when the value is known there is no reason to
// spend a revision cycle on it.
//
// Both the {{KEY}} marker form and the bare fact key are repaired. A
// placeholder with no matching fact is left alone for the reviewer to
// flag.
func repairPlaceholders(content string, facts ProjectFacts) string {
	if len(facts) == 0 {
		return content
	}
	var pairs []string
	for key, value := range facts {
		if value == "" {
			continue
		}
		pairs = append(pairs, "{{"+key+"}}", value)
		// Common lowercase-hyphenated echo, e.g. "repository-url".
		hyphenated := strings.ToLower(strings.ReplaceAll(key, "_", "-"))
		if hyphenated != key {
			pairs = append(pairs, "{{"+hyphenated+"}}", value)
		}
	}
	if len(pairs) == 0 {
		return content
	}
	return strings.NewReplacer(pairs...).Replace(content)
}
