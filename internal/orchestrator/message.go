package orchestrator

import "github.com/zhoukaigo/docling-serve/internal/model"

// StatusMessage is what a subscriber receives on every task transition and
// on every PENDING-list position refresh.
type StatusMessage struct {
	TaskID       string               `json:"task_id"`
	TaskStatus   model.Status         `json:"task_status"`
	TaskPosition *int                 `json:"task_position,omitempty"`
	TaskMeta     *model.ProcessingMeta `json:"task_meta,omitempty"`
}
