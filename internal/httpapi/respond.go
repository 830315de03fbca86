package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/zhoukaigo/docling-serve/internal/convert"
	"github.com/zhoukaigo/docling-serve/internal/logger"
	"github.com/zhoukaigo/docling-serve/internal/model"
	"github.com/zhoukaigo/docling-serve/internal/orchestrator"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Handler.Error("write json", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// translateError maps an orchestrator/convert error to its HTTP status
// code.
func translateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, orchestrator.ErrProgressInvalid):
		writeError(w, http.StatusBadRequest, "update_processed received before set_num_docs")
	case errors.Is(err, convert.ErrUnavailableEngine):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		var skipped *convert.ErrDocumentSkipped
		var failed *convert.ErrDocumentFailed
		switch {
		case errors.As(err, &skipped):
			writeError(w, http.StatusBadRequest, skipped.Error())
		case errors.As(err, &failed):
			writeError(w, http.StatusInternalServerError, failed.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
	}
}

// writeResult serializes a completed Task's Result: inline JSON or the
// on-disk ZIP.
func writeResult(w http.ResponseWriter, result *model.Result) {
	switch result.Kind {
	case model.ResultInline:
		writeJSON(w, http.StatusOK, result.Inline)
	case model.ResultFile:
		f, err := os.Open(result.FilePath)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "result file missing")
			return
		}
		defer f.Close()
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", `attachment; filename="`+result.FileName+`"`)
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, f); err != nil {
			logger.Handler.Warn("write zip response", "error", err)
		}
	}
}

// taskStatusView is the wire shape returned for poll/ws/async-enqueue
// responses.
type taskStatusView struct {
	TaskID        string                `json:"task_id"`
	TaskStatus    model.Status          `json:"task_status"`
	TaskPosition  *int                  `json:"task_position,omitempty"`
	TaskMeta      *model.ProcessingMeta `json:"task_meta,omitempty"`
	FailureReason string                `json:"failure_reason,omitempty"`
}

func toTaskStatusView(task model.Task, position *int) taskStatusView {
	return taskStatusView{
		TaskID:        task.ID,
		TaskStatus:    task.Status,
		TaskPosition:  position,
		TaskMeta:      task.Processing,
		FailureReason: task.FailureReason,
	}
}
