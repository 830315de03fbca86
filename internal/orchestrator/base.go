package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/zhoukaigo/docling-serve/internal/logger"
	"github.com/zhoukaigo/docling-serve/internal/model"
	"github.com/zhoukaigo/docling-serve/internal/scratch"
)

// Base holds the state every backend shares (Task Registry, Subscriber
// Registry, Scratch Store, deletion policy) and implements the
// operations that do not depend on how a task actually
// gets executed. Local and Remote embed *Base and add Enqueue,
// ProcessQueue, WarmUpCaches, and ReceiveTaskProgress.
type Base struct {
	Registry    *Registry
	Subscribers *Subscribers
	Scratch     *scratch.Store

	SingleUseResults   bool
	ResultRemovalDelay time.Duration

	// PositionOf resolves a task's current 1-based queue position. Set by
	// the embedding backend after construction (Local wires its Queue's
	// Position method; Remote wires a pending-runs page lookup).
	PositionOf func(id string) (int, bool)

	timersMu sync.Mutex
	timers   map[string]*time.Timer
}

// NewBase wires the shared collaborators.
func NewBase(registry *Registry, subs *Subscribers, store *scratch.Store, singleUse bool, removalDelay time.Duration) *Base {
	return &Base{
		Registry:           registry,
		Subscribers:        subs,
		Scratch:            store,
		SingleUseResults:   singleUse,
		ResultRemovalDelay: removalDelay,
		timers:             make(map[string]*time.Timer),
	}
}

// QueueSize is overridden by backends that have a real queue; Base has
// none of its own (Remote's "queue" is the external engine's pending-runs
// list, Local's is the orchestrator.Queue it embeds alongside Base).
func (b *Base) QueueSize() int { return 0 }

// GetQueuePosition delegates to PositionOf, which the embedding backend
// wires after construction.
func (b *Base) GetQueuePosition(id string) (int, bool) {
	if b.PositionOf == nil {
		return 0, false
	}
	return b.PositionOf(id)
}

// TaskStatus returns a snapshot of the task, optionally long-polling up to
// wait for it to reach a terminal status.
func (b *Base) TaskStatus(ctx context.Context, id string, wait time.Duration) (model.Task, error) {
	task, err := b.Registry.Get(id)
	if err != nil {
		return model.Task{}, err
	}
	if wait <= 0 || task.Status.Terminal() {
		return task, nil
	}

	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return task, nil
		case <-deadline.C:
			return task, nil
		case <-ticker.C:
			task, err = b.Registry.Get(id)
			if err != nil {
				return model.Task{}, err
			}
			if task.Status.Terminal() {
				return task, nil
			}
		}
	}
}

// TaskResult returns the Task's Result, arming the deferred-deletion timer
// on the first successful read of a single-use result.
func (b *Base) TaskResult(ctx context.Context, id string) (*model.Result, error) {
	task, err := b.Registry.Get(id)
	if err != nil {
		return nil, err
	}
	if task.Result == nil {
		return nil, nil
	}

	if b.SingleUseResults {
		b.armDeferredDeletion(id)
	}
	return task.Result, nil
}

// armDeferredDeletion schedules id for deletion after ResultRemovalDelay,
// unless a timer for it is already running (the "first successful read"
// rule: a second read within the window is a no-op here).
func (b *Base) armDeferredDeletion(id string) {
	b.timersMu.Lock()
	defer b.timersMu.Unlock()
	if _, armed := b.timers[id]; armed {
		return
	}
	b.timers[id] = time.AfterFunc(b.ResultRemovalDelay, func() {
		b.timersMu.Lock()
		delete(b.timers, id)
		b.timersMu.Unlock()
		if err := b.DeleteTask(id); err != nil {
			logger.Orchestrator.Warn("deferred deletion failed", "task_id", id, "error", err)
		}
	})
}

// DeleteTask removes a task from the Registry, closes its subscribers, and
// recursively removes its scratch directory. Subscribers are closed before
// the registry entry is removed so a reader mid-lookup either observes the
// task (then a subsequent TaskNotFound) or never sees it at all, never a
// half-deleted state.
func (b *Base) DeleteTask(id string) error {
	if !b.Registry.Exists(id) {
		return ErrTaskNotFound
	}

	b.cancelDeferredDeletion(id)
	b.Subscribers.Close(id)
	b.Registry.Delete(id)
	if b.Scratch != nil {
		if err := b.Scratch.Remove(id); err != nil {
			logger.Orchestrator.Warn("scratch cleanup failed", "task_id", id, "error", err)
		}
	}
	return nil
}

func (b *Base) cancelDeferredDeletion(id string) {
	b.timersMu.Lock()
	defer b.timersMu.Unlock()
	if t, ok := b.timers[id]; ok {
		t.Stop()
		delete(b.timers, id)
	}
}

// ClearResults deletes every completed task whose FinishedAt is older than
// now-olderThan. Best-effort: a task deleted concurrently by its own
// deferred timer is simply absent from the next lookup.
func (b *Base) ClearResults(olderThan time.Duration) {
	cutoff := time.Now().Add(-olderThan).UnixNano()
	for _, id := range b.Registry.FinishedBefore(cutoff) {
		if err := b.DeleteTask(id); err != nil {
			logger.Orchestrator.Debug("clear_results: task already gone", "task_id", id)
		}
	}
}

// Subscribe registers a push channel for id, failing if the task is
// unknown.
func (b *Base) Subscribe(id string) (int, <-chan StatusMessage, error) {
	if !b.Registry.Exists(id) {
		return 0, nil, ErrTaskNotFound
	}
	subID, ch := b.Subscribers.Subscribe(id)
	return subID, ch, nil
}

// Unsubscribe removes a subscriber registered via Subscribe.
func (b *Base) Unsubscribe(id string, subID int) {
	b.Subscribers.Unsubscribe(id, subID)
}

// NotifyTaskSubscribers pushes the current status of id to its
// subscribers, closing them afterward if the task just completed.
func (b *Base) NotifyTaskSubscribers(id string) {
	task, err := b.Registry.Get(id)
	if err != nil {
		return
	}
	var position *int
	if task.Status == model.StatusPending && b.PositionOf != nil {
		if pos, ok := b.PositionOf(id); ok {
			position = &pos
		}
	}
	b.Subscribers.Notify(id, StatusMessage{
		TaskID:       id,
		TaskStatus:   task.Status,
		TaskPosition: position,
		TaskMeta:     task.Processing,
	})
	if task.Status.Terminal() {
		b.Subscribers.Close(id)
	}
}

// NotifyQueuePositions refreshes every subscribed PENDING task with its
// current queue position; workers call it on every dequeue so waiting
// clients observe updated positions.
func (b *Base) NotifyQueuePositions() {
	for _, id := range b.Subscribers.TaskIDs() {
		task, err := b.Registry.Get(id)
		if err != nil || task.Status != model.StatusPending {
			continue
		}
		b.NotifyTaskSubscribers(id)
	}
}
