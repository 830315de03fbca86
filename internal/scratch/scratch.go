// Package scratch manages the per-task working directories that converted
// documents and their ZIP archive are written into. Every task's scratch
// state lives under <base>/<task-id>/. The Store builds these paths,
// creates the directories on request and removes a task's tree; it does
// not read or write the files inside them.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zhoukaigo/docling-serve/internal/logger"
)

// Store roots every task's scratch directory under a single base directory.
type Store struct {
	dir string
}

// New creates (if needed) and returns a Store rooted at dir.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("scratch: create base dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// TaskDir returns dir/<taskID>, creating it if it does not already exist.
func (s *Store) TaskDir(taskID string) (string, error) {
	path := filepath.Join(s.dir, taskID)
	if err := os.MkdirAll(path, 0o700); err != nil {
		return "", fmt.Errorf("scratch: create task dir: %w", err)
	}
	return path, nil
}

// InputsDir returns the directory a task's fetched/decoded sources are
// written into before conversion, creating it if needed.
func (s *Store) InputsDir(taskID string) (string, error) {
	path := filepath.Join(s.dir, taskID, "inputs")
	if err := os.MkdirAll(path, 0o700); err != nil {
		return "", fmt.Errorf("scratch: create inputs dir: %w", err)
	}
	return path, nil
}

// OutputsDir returns the directory converted documents are written into,
// creating it if needed. Its contents are archived into the file at
// ZipPath, which is what handlers serve as the file-response download.
func (s *Store) OutputsDir(taskID string) (string, error) {
	path := filepath.Join(s.dir, taskID, "outputs")
	if err := os.MkdirAll(path, 0o700); err != nil {
		return "", fmt.Errorf("scratch: create outputs dir: %w", err)
	}
	return path, nil
}

// ZipPath returns the path the assembled converted_docs.zip is written to
// for a task, without creating anything (OutputsDir's MkdirAll covers it).
func (s *Store) ZipPath(taskID string) string {
	return filepath.Join(s.dir, taskID, "converted_docs.zip")
}

// Remove deletes a task's entire scratch tree. Safe to call on a task whose
// directory was never created (e.g. it failed before writing anything).
func (s *Store) Remove(taskID string) error {
	path := filepath.Join(s.dir, taskID)
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("scratch: remove task dir: %w", err)
	}
	logger.Scratch.Debug("removed scratch dir", "task_id", taskID)
	return nil
}
