package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/zhoukaigo/docling-serve/internal/model"
	"github.com/zhoukaigo/docling-serve/internal/scratch"
)

func newTestBase(t *testing.T, singleUse bool, delay time.Duration) *Base {
	t.Helper()
	store, err := scratch.New(t.TempDir())
	if err != nil {
		t.Fatalf("scratch.New: %v", err)
	}
	return NewBase(NewRegistry(), NewSubscribers(), store, singleUse, delay)
}

func TestTaskStatusNoWaitReturnsImmediately(t *testing.T) {
	b := newTestBase(t, false, 0)
	b.Registry.Put(model.NewTask("t1", nil, model.Options{}))

	got, err := b.TaskStatus(context.Background(), "t1", 0)
	if err != nil {
		t.Fatalf("TaskStatus: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Fatalf("Status = %q", got.Status)
	}
}

func TestTaskStatusLongPollsUntilTerminal(t *testing.T) {
	b := newTestBase(t, false, 0)
	task := model.NewTask("t1", nil, model.Options{})
	b.Registry.Put(task)

	go func() {
		time.Sleep(250 * time.Millisecond)
		b.Registry.Mutate("t1", func(t *model.Task) error { return t.Transition(model.StatusStarted) })
		b.Registry.Mutate("t1", func(t *model.Task) error { return t.Transition(model.StatusSuccess) })
	}()

	got, err := b.TaskStatus(context.Background(), "t1", 2*time.Second)
	if err != nil {
		t.Fatalf("TaskStatus: %v", err)
	}
	if got.Status != model.StatusSuccess {
		t.Fatalf("Status = %q, want success", got.Status)
	}
}

func TestTaskStatusLongPollTimesOutStillPending(t *testing.T) {
	b := newTestBase(t, false, 0)
	b.Registry.Put(model.NewTask("t1", nil, model.Options{}))

	got, err := b.TaskStatus(context.Background(), "t1", 100*time.Millisecond)
	if err != nil {
		t.Fatalf("TaskStatus: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Fatalf("Status = %q, want pending after timeout", got.Status)
	}
}

func TestTaskResultSingleUseSchedulesDeletion(t *testing.T) {
	b := newTestBase(t, true, 100*time.Millisecond)
	task := model.NewTask("t1", nil, model.Options{})
	b.Registry.Put(task)
	b.Registry.Mutate("t1", func(t *model.Task) error {
		if err := t.Transition(model.StatusStarted); err != nil {
			return err
		}
		t.Result = &model.Result{Kind: model.ResultInline}
		return t.Transition(model.StatusSuccess)
	})

	res1, err := b.TaskResult(context.Background(), "t1")
	if err != nil || res1 == nil {
		t.Fatalf("first TaskResult: res=%v err=%v", res1, err)
	}
	res2, err := b.TaskResult(context.Background(), "t1")
	if err != nil || res2 == nil {
		t.Fatalf("second TaskResult within window: res=%v err=%v", res2, err)
	}

	time.Sleep(300 * time.Millisecond)
	if _, err := b.TaskResult(context.Background(), "t1"); err != ErrTaskNotFound {
		t.Fatalf("err = %v, want ErrTaskNotFound after removal delay", err)
	}
}

func TestTaskResultNotTerminalIsAbsent(t *testing.T) {
	b := newTestBase(t, true, time.Second)
	b.Registry.Put(model.NewTask("t1", nil, model.Options{}))

	res, err := b.TaskResult(context.Background(), "t1")
	if err != nil {
		t.Fatalf("TaskResult: %v", err)
	}
	if res != nil {
		t.Fatal("expected nil Result for a non-terminal task")
	}
}

func TestDeleteTaskClosesSubscribersAndRemovesScratch(t *testing.T) {
	b := newTestBase(t, false, 0)
	b.Registry.Put(model.NewTask("t1", nil, model.Options{}))
	_, ch, err := b.Subscribe("t1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := b.DeleteTask("t1"); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Fatal("subscriber channel should be closed after delete")
	}
	if _, err := b.Registry.Get("t1"); err != ErrTaskNotFound {
		t.Fatal("task should be gone after delete")
	}
}

func TestDeleteTaskMissingIsNotFound(t *testing.T) {
	b := newTestBase(t, false, 0)
	if err := b.DeleteTask("missing"); err != ErrTaskNotFound {
		t.Fatalf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestClearResultsDeletesOldCompletedTasks(t *testing.T) {
	b := newTestBase(t, false, 0)
	task := model.NewTask("t1", nil, model.Options{})
	b.Registry.Put(task)
	b.Registry.Mutate("t1", func(t *model.Task) error {
		if err := t.Transition(model.StatusStarted); err != nil {
			return err
		}
		return t.Transition(model.StatusSuccess)
	})
	b.Registry.Mutate("t1", func(t *model.Task) error {
		t.FinishedAt = time.Now().Add(-time.Hour)
		return nil
	})

	b.ClearResults(time.Second)
	if _, err := b.Registry.Get("t1"); err != ErrTaskNotFound {
		t.Fatal("old completed task should be cleared")
	}
}

func TestSubscribeUnknownTaskIsNotFound(t *testing.T) {
	b := newTestBase(t, false, 0)
	if _, _, err := b.Subscribe("missing"); err != ErrTaskNotFound {
		t.Fatalf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestNotifyTaskSubscribersIncludesPosition(t *testing.T) {
	b := newTestBase(t, false, 0)
	b.Registry.Put(model.NewTask("t1", nil, model.Options{}))
	b.PositionOf = func(id string) (int, bool) { return 3, true }

	_, ch, err := b.Subscribe("t1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	b.NotifyTaskSubscribers("t1")

	select {
	case msg := <-ch:
		if msg.TaskPosition == nil || *msg.TaskPosition != 3 {
			t.Fatalf("TaskPosition = %v, want 3", msg.TaskPosition)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a status message")
	}
}

func TestNotifyTaskSubscribersClosesOnTerminal(t *testing.T) {
	b := newTestBase(t, false, 0)
	task := model.NewTask("t1", nil, model.Options{})
	b.Registry.Put(task)
	b.Registry.Mutate("t1", func(t *model.Task) error { return t.Transition(model.StatusFailure) })

	_, ch, err := b.Subscribe("t1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	b.NotifyTaskSubscribers("t1")

	<-ch
	if _, ok := <-ch; ok {
		t.Fatal("subscriber should be closed after a terminal notification")
	}
}
