// Package orchestrator owns the Task Registry, Subscriber Registry, and
// FIFO Queue, and defines the interface that the Local and Remote
// backends both implement.
package orchestrator

import (
	"context"
	"time"

	"github.com/zhoukaigo/docling-serve/internal/model"
)

// Orchestrator is the polymorphic surface every backend implements.
// Local and Remote are selected at startup by ENG_KIND.
type Orchestrator interface {
	Enqueue(ctx context.Context, sources []model.Source, opts model.Options) (model.Task, error)
	QueueSize() int
	GetQueuePosition(id string) (int, bool)
	TaskStatus(ctx context.Context, id string, wait time.Duration) (model.Task, error)
	// TaskResult returns the Task's Result. A nil Result with a nil error
	// means the task exists but has not completed yet.
	TaskResult(ctx context.Context, id string) (*model.Result, error)
	DeleteTask(id string) error
	ClearResults(olderThan time.Duration)
	Subscribe(id string) (int, <-chan StatusMessage, error)
	Unsubscribe(id string, subID int)
	NotifyTaskSubscribers(id string)
	NotifyQueuePositions()
	ReceiveTaskProgress(ctx context.Context, p ProgressPayload) error
	ProcessQueue(ctx context.Context)
	WarmUpCaches(ctx context.Context) error
}

// ProgressPayload is the discriminated callback body the Remote
// Orchestrator accepts. RunName resolves to a task-id
// before delivery; Local rejects every progress payload with an error
// (ProcessingMeta is "only populated under the remote backend").
type ProgressPayload struct {
	Kind string `json:"kind"`

	RunName string `json:"run_name"`

	NumDocs int `json:"num_docs,omitempty"`

	NumProcessed int      `json:"num_processed,omitempty"`
	NumSucceeded int      `json:"num_succeeded,omitempty"`
	NumFailed    int      `json:"num_failed,omitempty"`
	DocsSuccess  []string `json:"docs_succeeded,omitempty"`
	DocsFailed   []string `json:"docs_failed,omitempty"`
}

const (
	ProgressSetNumDocs      = "set_num_docs"
	ProgressUpdateProcessed = "update_processed"
)
