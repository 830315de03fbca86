package orchestrator

import "errors"

// ErrTaskNotFound is returned by any operation keyed on a task-id that does
// not exist in the Task Registry (including one that has been deleted).
var ErrTaskNotFound = errors.New("orchestrator: task not found")

// ErrProgressInvalid is returned by ReceiveTaskProgress when an
// update_processed payload arrives before a set_num_docs payload for the
// same task.
var ErrProgressInvalid = errors.New("orchestrator: progress payload invalid for task state")
