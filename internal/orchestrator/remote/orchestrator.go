package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zhoukaigo/docling-serve/internal/logger"
	"github.com/zhoukaigo/docling-serve/internal/model"
	"github.com/zhoukaigo/docling-serve/internal/orchestrator"
)

// Orchestrator offloads execution to an external workflow engine.
// It shares orchestrator.Base for registry/subscriber/
// deferred-deletion bookkeeping but has no local queue or worker pool:
// progress arrives as HTTP callbacks rather than from an in-process loop.
type Orchestrator struct {
	*orchestrator.Base
	client *Client
}

// New builds a remote Orchestrator.
func New(base *orchestrator.Base, client *Client) *Orchestrator {
	o := &Orchestrator{Base: base, client: client}
	o.Base.PositionOf = o.pendingPosition
	return o
}

// Enqueue filters sources to the HTTP variant only (file sources are not
// supported by this backend) and submits a pipeline run
// named docling-job-<uuid>. The engine's run-id becomes the task-id.
func (o *Orchestrator) Enqueue(ctx context.Context, sources []model.Source, opts model.Options) (model.Task, error) {
	httpSources := model.FilterHTTP(sources)
	if len(httpSources) == 0 {
		return model.Task{}, fmt.Errorf("remote orchestrator: at least one http source is required")
	}

	runName := "docling-job-" + uuid.New().String()
	payload := make([]any, len(httpSources))
	for i, s := range httpSources {
		payload[i] = map[string]any{"url": s.HTTP.URL, "headers": s.HTTP.Headers}
	}

	runID, err := o.client.SubmitRun(ctx, runName, payload, opts.Normalize())
	if err != nil {
		return model.Task{}, err
	}

	task := model.NewTask(runID, httpSources, opts)
	o.Registry.Put(task)
	return *task, nil
}

// TaskStatus reconciles the task's status from the engine once, mapping
// SUCCEEDED→SUCCESS, PENDING→PENDING, RUNNING→STARTED, and anything else
// to FAILURE, then defers to Base's long-poll for wait: any
// further change observed during the wait window comes from an inbound
// ReceiveTaskProgress callback rather than another engine query.
func (o *Orchestrator) TaskStatus(ctx context.Context, id string, wait time.Duration) (model.Task, error) {
	if _, err := o.Registry.Get(id); err != nil {
		return model.Task{}, err
	}
	o.reconcile(ctx, id)
	return o.Base.TaskStatus(ctx, id, wait)
}

func (o *Orchestrator) reconcile(ctx context.Context, id string) {
	state, err := o.client.RunStatus(ctx, id)
	if err != nil {
		logger.Remote.Warn("run status query failed", "task_id", id, "error", err)
		return
	}
	target := mapRunState(state)
	o.Registry.Mutate(id, func(t *model.Task) error {
		if t.Status.Terminal() || t.Status == target {
			return nil
		}
		// The engine can report SUCCEEDED before any progress callback
		// moved the task off PENDING; pass through STARTED so the
		// started_at stamp is still set exactly once.
		if target == model.StatusSuccess && t.Status == model.StatusPending {
			if err := t.Transition(model.StatusStarted); err != nil {
				return err
			}
		}
		return t.Transition(target)
	})
}

func mapRunState(state RunState) model.Status {
	switch state {
	case RunSucceeded:
		return model.StatusSuccess
	case RunPending:
		return model.StatusPending
	case RunRunning:
		return model.StatusStarted
	default:
		return model.StatusFailure
	}
}

// GetQueuePosition pages the engine's pending-runs filter and returns the
// 1-based index of a matching run-id.
func (o *Orchestrator) GetQueuePosition(id string) (int, bool) {
	return o.pendingPosition(id)
}

func (o *Orchestrator) pendingPosition(id string) (int, bool) {
	runs, err := o.client.ListPendingRuns(context.Background())
	if err != nil {
		logger.Remote.Warn("list pending runs failed", "error", err)
		return 0, false
	}
	for i, r := range runs {
		if r.RunID == id {
			return i + 1, true
		}
	}
	return 0, false
}

// ReceiveTaskProgress translates an inbound callback's run-name to a
// task-id and applies it.
func (o *Orchestrator) ReceiveTaskProgress(ctx context.Context, p orchestrator.ProgressPayload) error {
	taskID, err := o.client.ResolveRunByName(ctx, p.RunName)
	if err != nil {
		logger.Remote.Warn("run name resolution failed", "run_name", p.RunName, "error", err)
		return orchestrator.ErrTaskNotFound
	}

	switch p.Kind {
	case orchestrator.ProgressSetNumDocs:
		if _, err := o.Registry.Mutate(taskID, func(t *model.Task) error {
			t.Processing = &model.ProcessingMeta{NumDocs: p.NumDocs}
			return t.Transition(model.StatusStarted)
		}); err != nil {
			return err
		}
	case orchestrator.ProgressUpdateProcessed:
		if _, err := o.Registry.Mutate(taskID, func(t *model.Task) error {
			if t.Processing == nil {
				return orchestrator.ErrProgressInvalid
			}
			// Copy-on-write: Task snapshots handed out by the Registry
			// share this pointer, so counters are never mutated in place.
			meta := *t.Processing
			meta.NumProcessed += p.NumProcessed
			meta.NumSucceeded += p.NumSucceeded
			meta.NumFailed += p.NumFailed
			t.Processing = &meta
			t.Touch()
			return nil
		}); err != nil {
			return err
		}
	default:
		return fmt.Errorf("remote orchestrator: unknown progress kind %q", p.Kind)
	}

	o.NotifyTaskSubscribers(taskID)
	return nil
}

// ProcessQueue has no in-process work to run for the remote backend:
// execution happens inside the external engine, and state flows in via
// TaskStatus polls and ReceiveTaskProgress callbacks. It simply blocks
// until cancelled so callers can treat every backend uniformly.
func (o *Orchestrator) ProcessQueue(ctx context.Context) {
	<-ctx.Done()
}

// WarmUpCaches is a no-op: the remote backend has no local converter
// cache to warm.
func (o *Orchestrator) WarmUpCaches(ctx context.Context) error {
	return nil
}

// QueueSize is approximated by the length of the engine's pending-runs
// page; callers needing an exact count should prefer GetQueuePosition on
// a specific id.
func (o *Orchestrator) QueueSize() int {
	runs, err := o.client.ListPendingRuns(context.Background())
	if err != nil {
		return 0
	}
	return len(runs)
}
