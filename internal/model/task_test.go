package model

import (
	"testing"
	"time"
)

func TestNewTaskStartsPending(t *testing.T) {
	task := NewTask("t1", nil, Options{})
	if task.Status != StatusPending {
		t.Fatalf("Status = %q, want pending", task.Status)
	}
	if task.CreatedAt.IsZero() || task.LastUpdateAt.IsZero() {
		t.Fatal("CreatedAt/LastUpdateAt should be stamped on creation")
	}
	if task.Options.ToFormats[0] != DefaultToFormat {
		t.Fatal("Options should be normalized on creation")
	}
}

func TestTransitionHappyPath(t *testing.T) {
	task := NewTask("t1", nil, Options{})

	if err := task.Transition(StatusStarted); err != nil {
		t.Fatalf("pending->started: %v", err)
	}
	if task.StartedAt.IsZero() {
		t.Fatal("StartedAt should be stamped on transition to started")
	}

	if err := task.Transition(StatusSuccess); err != nil {
		t.Fatalf("started->success: %v", err)
	}
	if task.FinishedAt.IsZero() {
		t.Fatal("FinishedAt should be stamped on terminal transition")
	}
}

func TestTransitionRejectsResurrection(t *testing.T) {
	task := NewTask("t1", nil, Options{})
	if err := task.Transition(StatusStarted); err != nil {
		t.Fatalf("pending->started: %v", err)
	}
	if err := task.Transition(StatusSuccess); err != nil {
		t.Fatalf("started->success: %v", err)
	}

	if err := task.Transition(StatusStarted); err == nil {
		t.Fatal("terminal Task should reject transition back to started")
	}
	if task.Status != StatusSuccess {
		t.Fatal("rejected transition must not mutate Status")
	}
}

func TestTransitionSameStatusIsNoop(t *testing.T) {
	task := NewTask("t1", nil, Options{})
	before := task.LastUpdateAt
	if err := task.Transition(StatusPending); err != nil {
		t.Fatalf("no-op transition: %v", err)
	}
	if !task.LastUpdateAt.Equal(before) {
		t.Fatal("no-op transition should not bump LastUpdateAt")
	}
}

func TestFailRecordsReason(t *testing.T) {
	task := NewTask("t1", nil, Options{})
	if err := task.Fail("engine unavailable"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if task.Status != StatusFailure {
		t.Fatalf("Status = %q, want failure", task.Status)
	}
	if task.FailureReason != "engine unavailable" {
		t.Fatalf("FailureReason = %q", task.FailureReason)
	}
}

func TestProcessingMetaDone(t *testing.T) {
	m := ProcessingMeta{NumDocs: 2, NumProcessed: 1}
	if m.Done() {
		t.Fatal("should not be done with 1/2 processed")
	}
	m.NumProcessed = 2
	if !m.Done() {
		t.Fatal("should be done with 2/2 processed")
	}
	if (ProcessingMeta{}).Done() {
		t.Fatal("zero-value ProcessingMeta should not report done")
	}
}

func TestTaskClockIndirection(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	old := taskClock
	taskClock = func() time.Time { return fixed }
	defer func() { taskClock = old }()

	task := NewTask("t1", nil, Options{})
	if !task.CreatedAt.Equal(fixed) {
		t.Fatal("NewTask should use the indirected clock")
	}
}
