// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assembler

import "errors"

var (
	// ErrBudgetTooSmall is returned when the usable budget cannot fit even
	// the smallest candidate chunk. This is a configuration error: an empty
	// context would silently degrade output quality, so it is surfaced
	// instead of truncated away.
	ErrBudgetTooSmall = errors.New("context budget too small for any chunk")

	// ErrInvalidBudget is returned when the budget invariant
	// MaxTokens >= ReservedInstructions + ReservedResponse + 1 is violated.
	ErrInvalidBudget = errors.New("invalid context budget")

	// ErrEmptyEmbedding is returned when the query embedding is empty.
	ErrEmptyEmbedding = errors.New("query embedding must not be empty")

	// ErrNoCandidates is returned when the store has no chunks for the
	// corpus at all (distinct from a budget that fits none of them).
	ErrNoCandidates = errors.New("no candidate chunks in store")
)
