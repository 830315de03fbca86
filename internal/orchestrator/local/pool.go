// Package local implements the default, in-process Orchestrator backend: a
// fixed-size worker pool pulling from orchestrator.Queue and invoking the
// conversion engine synchronously off the request path.
package local

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zhoukaigo/docling-serve/internal/convert"
	"github.com/zhoukaigo/docling-serve/internal/logger"
	"github.com/zhoukaigo/docling-serve/internal/model"
	"github.com/zhoukaigo/docling-serve/internal/orchestrator"
	"github.com/zhoukaigo/docling-serve/internal/scratch"
	"github.com/zhoukaigo/docling-serve/internal/telemetry"
)

// Orchestrator is the local, in-process backend: orchestrator.Base plus a
// FIFO Queue and a fixed-size worker pool.
type Orchestrator struct {
	*orchestrator.Base
	queue   *orchestrator.Queue
	cache   *convert.Cache
	scratch *scratch.Store
	telem   *telemetry.Provider

	numWorkers int
	wg         sync.WaitGroup
}

// New builds a local Orchestrator with numWorkers fixed workers
// (ENG_LOC_NUM_WORKERS), bounded by at least 1.
func New(base *orchestrator.Base, queue *orchestrator.Queue, cache *convert.Cache, store *scratch.Store, telem *telemetry.Provider, numWorkers int) *Orchestrator {
	if numWorkers < 1 {
		numWorkers = 1
	}
	o := &Orchestrator{
		Base:       base,
		queue:      queue,
		cache:      cache,
		scratch:    store,
		telem:      telem,
		numWorkers: numWorkers,
	}
	o.Base.PositionOf = queue.Position
	return o
}

// QueueSize reports how many tasks are waiting to start.
func (o *Orchestrator) QueueSize() int { return o.queue.Size() }

// GetQueuePosition reports a PENDING task's 1-based position.
func (o *Orchestrator) GetQueuePosition(id string) (int, bool) { return o.queue.Position(id) }

// Enqueue creates a new PENDING task and appends it to the queue.
func (o *Orchestrator) Enqueue(ctx context.Context, sources []model.Source, opts model.Options) (model.Task, error) {
	id := newTaskID()
	task := model.NewTask(id, sources, opts)
	o.Registry.Put(task)
	o.queue.Enqueue(id)
	return *task, nil
}

// ReceiveTaskProgress is not supported by the local backend: ProcessingMeta
// is only populated under the remote backend.
func (o *Orchestrator) ReceiveTaskProgress(ctx context.Context, p orchestrator.ProgressPayload) error {
	return fmt.Errorf("local orchestrator: progress callbacks are not accepted")
}

// WarmUpCaches builds a converter for the default Options so the first
// real request does not pay model-load latency.
func (o *Orchestrator) WarmUpCaches(ctx context.Context) error {
	_, _, err := o.cache.GetConverter(ctx, model.Options{})
	return err
}

// ProcessQueue runs the worker pool until ctx is cancelled. In-flight
// workers finish their current task before exiting; tasks still queued at
// shutdown remain PENDING.
func (o *Orchestrator) ProcessQueue(ctx context.Context) {
	for i := 0; i < o.numWorkers; i++ {
		o.wg.Add(1)
		go o.runWorker(ctx, i)
	}
	<-ctx.Done()
	o.wg.Wait()
}

func (o *Orchestrator) runWorker(ctx context.Context, idx int) {
	defer o.wg.Done()
	for {
		id, ok := o.queue.Dequeue(ctx)
		if !ok {
			return
		}
		o.runTask(ctx, idx, id)
	}
}

// runTask executes a single dequeued task. The guard defer forces the task
// to FAILURE if the body returns without an explicit terminal transition
// (panic or early error).
func (o *Orchestrator) runTask(ctx context.Context, workerIdx int, id string) {
	terminal := false
	defer func() {
		if p := recover(); p != nil {
			logger.Worker.Error("task panicked", "worker", workerIdx, "task_id", id, "panic", p)
		}
		if !terminal {
			o.Registry.Mutate(id, func(t *model.Task) error { return t.Fail("internal error") })
			o.telemetryRecord(ctx, id, model.StatusFailure)
		}
		o.NotifyTaskSubscribers(id)
	}()

	if _, err := o.Registry.Mutate(id, func(t *model.Task) error { return t.Transition(model.StatusStarted) }); err != nil {
		logger.Worker.Error("task missing from registry on dequeue", "task_id", id)
		return
	}
	o.NotifyTaskSubscribers(id)
	o.NotifyQueuePositions()

	ctx, end := o.telem.StartSpan(ctx, "run_task", telemetry.String("task.id", id))
	defer end()

	task, err := o.Registry.Get(id)
	if err != nil {
		logger.Worker.Error("task disappeared mid-run", "task_id", id)
		return
	}

	sources := flattenSources(task.Sources)
	converter, lock, err := o.cache.GetConverter(ctx, task.Options)
	if err != nil {
		logger.Worker.Warn("converter unavailable", "task_id", id, "error", err)
		o.Registry.Mutate(id, func(t *model.Task) error { return t.Fail(err.Error()) })
		terminal = true
		o.telemetryRecord(ctx, id, model.StatusFailure)
		return
	}

	if lock != nil {
		lock.Lock()
		defer lock.Unlock()
	}

	started := time.Now()
	docs, err := converter.Convert(ctx, sources)
	if err != nil {
		logger.Worker.Warn("conversion failed", "task_id", id, "error", err)
		o.Registry.Mutate(id, func(t *model.Task) error { return t.Fail(err.Error()) })
		terminal = true
		o.telemetryRecord(ctx, id, model.StatusFailure)
		return
	}

	result, err := convert.Assemble(o.scratch, id, docs, task.Options, started)
	if err != nil {
		logger.Worker.Warn("assembly failed", "task_id", id, "error", err)
		var skipped *convert.ErrDocumentSkipped
		o.Registry.Mutate(id, func(t *model.Task) error {
			t.FailureSkipped = errors.As(err, &skipped)
			return t.Fail(err.Error())
		})
		terminal = true
		o.telemetryRecord(ctx, id, model.StatusFailure)
		return
	}

	o.Registry.Mutate(id, func(t *model.Task) error {
		t.Result = result
		if result.Kind == model.ResultFile {
			dir, _ := o.scratch.TaskDir(id)
			t.ScratchPath = dir
		}
		t.Sources = nil
		return t.Transition(model.StatusSuccess)
	})
	terminal = true
	o.telemetryRecord(ctx, id, model.StatusSuccess)
}

func (o *Orchestrator) telemetryRecord(ctx context.Context, id string, status model.Status) {
	o.telem.RecordTerminal(ctx, string(status))
}

// flattenSources decodes FileSource base64 blobs into DocumentStreams so
// the engine always receives in-memory byte sources, and merges per-source
// HTTP headers: the first populated header map in the batch applies to
// every HTTP source. Per-source headers would arguably be more correct;
// flagged for review.
func flattenSources(sources []model.Source) []model.Source {
	headers := mergeHeaders(sources)
	out := make([]model.Source, len(sources))
	for i, s := range sources {
		switch {
		case s.IsHTTP():
			out[i] = model.NewHTTPSource(s.HTTP.URL, headers)
		case s.Kind == model.SourceFile && s.File != nil:
			data, err := base64.StdEncoding.DecodeString(s.File.Base64)
			if err != nil {
				logger.Worker.Warn("file source base64 decode failed", "filename", s.File.Filename, "error", err)
				data = nil
			}
			out[i] = model.NewStreamSource(s.File.Filename, data)
		default:
			out[i] = s
		}
	}
	return out
}

// mergeHeaders returns the first non-empty header map found among the
// batch's HTTP sources, or nil if none carry headers.
func mergeHeaders(sources []model.Source) map[string]string {
	for _, s := range sources {
		if s.IsHTTP() && len(s.HTTP.Headers) > 0 {
			return s.HTTP.Headers
		}
	}
	return nil
}
