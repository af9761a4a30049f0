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
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrUnparsableScore is returned when no score can be extracted from
// the reviewer model's output. Callers must treat this as a failed
// review cycle, never substitute a default score: an invented number
// would silently corrupt the acceptance decision.
var ErrUnparsableScore = errors.New("no score found in review output")

// scorePatterns are tried in order. The first match wins. Models asked
// for "SCORE: N" drift into these variants under revision pressure.
var scorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`SCORE:\s*(\d+)`),
	regexp.MustCompile(`Score:\s*(\d+)`),
	regexp.MustCompile(`score:\s*(\d+)`),
	regexp.MustCompile(`(\d+)/100`),
	regexp.MustCompile(`(\d+)%`),
}

// ParseScore extracts a 0-100 score from raw review output.
//
// Outputs:
//
//	int - The parsed score.
//	error - ErrUnparsableScore when no pattern matches or the matched
//	number is outside 0-100.
func ParseScore(raw string) (int, error) {
	for _, pattern := range scorePatterns {
		m := pattern.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n < 0 || n > 100 {
			return 0, fmt.Errorf("%w: matched %d, outside 0-100", ErrUnparsableScore, n)
		}
		return n, nil
	}
	return 0, ErrUnparsableScore
}

// categoryPattern matches per-category rubric lines like
// "Placeholder Elimination: 25/30". The denominator is the category's
// weight and is discarded; only the earned points are kept.
var categoryPattern = regexp.MustCompile(`(?m)^\s*[-*]?\s*([A-Za-z][A-Za-z ]*[A-Za-z]):\s*(\d+)\s*/\s*\d+\s*$`)

// ParseCategoryScores extracts per-category rubric scores from raw
// review output. Categories are informational only; the acceptance
// decision uses the overall score and the critical-failure flag. A
// review with no category lines yields an empty map, not an error.
func ParseCategoryScores(raw string) map[string]int {
	matches := categoryPattern.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return nil
	}
	scores := make(map[string]int, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		scores[m[1]] = n
	}
	return scores
}
