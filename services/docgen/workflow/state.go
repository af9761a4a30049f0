// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workflow

import (
	"github.com/AleutianAI/codescribe/services/docgen/reviewer"
	"github.com/AleutianAI/codescribe/services/docgen/writer"
)

// Status is the state of a refinement run. A run is Running until it
// reaches exactly one of the three terminal states.
type Status string

const (
	// StatusRunning means refinement cycles are still in progress.
	StatusRunning Status = "running"

	// StatusAccepted means a draft met the acceptance gate: score at or
	// above the threshold with no critical failure.
	StatusAccepted Status = "accepted"

	// StatusExhausted means no draft was accepted within the iteration
	// bound. The best draft so far is returned with this status.
	StatusExhausted Status = "exhausted"

	// StatusFailed means the run could not complete: context assembly
	// failed, generation or review failed terminally, or the run was
	// cancelled.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status is one of the three end states.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusExhausted || s == StatusFailed
}

// CycleRecord pairs a draft with its review for the run history.
type CycleRecord struct {
	Draft  *writer.Draft
	Review *reviewer.Review
}

// Result is the outcome of a refinement run.
type Result struct {
	// TaskID identifies the run, generated when the request had none.
	TaskID string

	// Status is the terminal state. Never StatusRunning on return.
	Status Status

	// Final is the delivered draft: the accepted one for
	// StatusAccepted, the best-scoring one for StatusExhausted, nil
	// for StatusFailed.
	Final *writer.Draft

	// FinalScore is Final's review score, 0 when Final is nil.
	FinalScore int

	// Cycles is the number of completed draft/review cycles.
	Cycles int

	// History holds every completed cycle in order.
	History []CycleRecord

	// Reason explains StatusFailed and StatusExhausted outcomes.
	Reason string
}

// bestCycle picks the delivered draft for an exhausted run: highest
// score, earliest cycle on ties. Earliest wins because later cycles
// that failed to raise the score added nothing.
func bestCycle(history []CycleRecord) *CycleRecord {
	var best *CycleRecord
	for i := range history {
		rec := &history[i]
		if rec.Review == nil {
			continue
		}
		if best == nil || rec.Review.Score > best.Review.Score {
			best = rec
		}
	}
	return best
}
