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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// maxFilenameLen caps sanitized filenames so deep task titles stay
// inside filesystem limits.
const maxFilenameLen = 50

// ArtifactMetadata is the sidecar written next to each document.
type ArtifactMetadata struct {
	TaskID     string    `json:"task_id"`
	Task       string    `json:"task"`
	Status     Status    `json:"status"`
	FinalScore int       `json:"final_score"`
	Cycles     int       `json:"cycles"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// WriteArtifact writes the delivered document and its metadata sidecar.
//
// Description:
//
//	Writes <dir>/<sanitized-task>.md plus a .metadata.json sidecar
//	carrying the run outcome, so consumers can distinguish an accepted
//	document from a best-effort exhausted one without a database.
//
// Outputs:
//
//	string - Path of the written document.
//	error - Non-nil when the run has no final draft or a write fails.
func WriteArtifact(dir string, req Request, result *Result) (string, error) {
	if result.Final == nil {
		return "", fmt.Errorf("run %s has no document to write (status %s)", req.TaskID, result.Status)
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create output directory %s: %w", dir, err)
	}

	name := SanitizeFilename(req.Task)
	docPath := filepath.Join(dir, name+".md")
	if err := os.WriteFile(docPath, []byte(result.Final.Content), 0640); err != nil {
		return "", fmt.Errorf("write document %s: %w", docPath, err)
	}

	meta := ArtifactMetadata{
		TaskID:     req.TaskID,
		Task:       req.Task,
		Status:     result.Status,
		FinalScore: result.FinalScore,
		Cycles:     result.Cycles,
		Reason:     result.Reason,
		CreatedAt:  time.Now().UTC(),
	}
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	metaPath := filepath.Join(dir, name+".metadata.json")
	if err := os.WriteFile(metaPath, metaBytes, 0640); err != nil {
		return "", fmt.Errorf("write metadata %s: %w", metaPath, err)
	}
	return docPath, nil
}

// filenameSanitizer replaces characters that are unsafe on common
// filesystems.
var filenameSanitizer = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", "\"", "_",
	"/", "_", "\\", "_", "|", "_", "?", "_", "*", "_",
	" ", "_",
)

// SanitizeFilename turns a task title into a safe filename, capped at
// maxFilenameLen characters.
func SanitizeFilename(title string) string {
	name := filenameSanitizer.Replace(strings.TrimSpace(title))
	if name == "" {
		name = "document"
	}
	if len(name) > maxFilenameLen {
		name = name[:maxFilenameLen]
	}
	return strings.Trim(name, "._")
}
