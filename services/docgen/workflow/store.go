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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrRunNotFound is returned when no run record exists for a task ID.
var ErrRunNotFound = errors.New("run record not found")

// runKeyPrefix namespaces run records in the shared database.
const runKeyPrefix = "run:"

// ReviewRecord is the persisted summary of one review.
type ReviewRecord struct {
	Cycle           int      `json:"cycle"`
	Score           int      `json:"score"`
	CriticalFailure bool     `json:"critical_failure"`
	CriticalIssues  []string `json:"critical_issues,omitempty"`
}

// RunRecord is the persisted outcome of a refinement run.
type RunRecord struct {
	TaskID     string         `json:"task_id"`
	Task       string         `json:"task"`
	Status     Status         `json:"status"`
	FinalScore int            `json:"final_score"`
	Cycles     int            `json:"cycles"`
	Reason     string         `json:"reason,omitempty"`
	Final      string         `json:"final,omitempty"`
	Reviews    []ReviewRecord `json:"reviews"`
	CreatedAt  time.Time      `json:"created_at"`
}

// NewRunRecord flattens a run result for persistence.
func NewRunRecord(req Request, result *Result) RunRecord {
	rec := RunRecord{
		TaskID:     req.TaskID,
		Task:       req.Task,
		Status:     result.Status,
		FinalScore: result.FinalScore,
		Cycles:     result.Cycles,
		Reason:     result.Reason,
		CreatedAt:  time.Now().UTC(),
	}
	if result.Final != nil {
		rec.Final = result.Final.Content
	}
	for _, cycle := range result.History {
		if cycle.Review == nil {
			continue
		}
		rec.Reviews = append(rec.Reviews, ReviewRecord{
			Cycle:           cycle.Review.Cycle,
			Score:           cycle.Review.Score,
			CriticalFailure: cycle.Review.CriticalFailure,
			CriticalIssues:  cycle.Review.CriticalIssues,
		})
	}
	return rec
}

// RunStore persists run records in an embedded BadgerDB.
//
// Thread Safety:
//
//	RunStore is safe for concurrent use.
type RunStore struct {
	db *badger.DB
}

// badgerLogger adapts slog to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenRunStore opens a persistent run store at the given directory.
func OpenRunStore(path string) (*RunStore, error) {
	if path == "" {
		return nil, errors.New("run store path must not be empty")
	}
	if err := os.MkdirAll(path, 0750); err != nil {
		return nil, fmt.Errorf("create run store directory %s: %w", path, err)
	}
	opts := badger.DefaultOptions(path).
		WithSyncWrites(true).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: slog.Default()})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	return &RunStore{db: db}, nil
}

// OpenInMemoryRunStore opens a non-persistent store for tests.
func OpenInMemoryRunStore() (*RunStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory run store: %w", err)
	}
	return &RunStore{db: db}, nil
}

// Close closes the underlying database.
func (s *RunStore) Close() error {
	return s.db.Close()
}

// SaveRun persists one run record, overwriting any prior record for
// the same task ID.
func (s *RunStore) SaveRun(ctx context.Context, rec RunRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if rec.TaskID == "" {
		return errors.New("run record has no task ID")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(runKeyPrefix+rec.TaskID), data)
	})
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.TaskID, err)
	}
	return nil
}

// GetRun fetches the record for a task ID, or ErrRunNotFound.
func (s *RunStore) GetRun(ctx context.Context, taskID string) (*RunRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	var rec RunRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(runKeyPrefix + taskID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrRunNotFound, taskID)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRuns returns every persisted run record, unordered.
func (s *RunStore) ListRuns(ctx context.Context) ([]RunRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	var records []RunRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(runKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec RunRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return records, nil
}
