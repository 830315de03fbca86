package httpapi

import (
	"context"
	"net/http"

	"github.com/zhoukaigo/docling-serve/internal/model"
)

func (s *Server) handleConvertSource(w http.ResponseWriter, r *http.Request) {
	req, err := decodeConvertRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.runSync(w, r, req.sources(), req.options())
}

func (s *Server) handleConvertFile(w http.ResponseWriter, r *http.Request) {
	sources, opts, err := multipartSources(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.runSync(w, r, sources, opts)
}

func (s *Server) handleConvertSourceAsync(w http.ResponseWriter, r *http.Request) {
	req, err := decodeConvertRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.enqueueAndRespond(w, r, req.sources(), req.options())
}

func (s *Server) handleConvertFileAsync(w http.ResponseWriter, r *http.Request) {
	sources, opts, err := multipartSources(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.enqueueAndRespond(w, r, sources, opts)
}

func (s *Server) enqueueAndRespond(w http.ResponseWriter, r *http.Request, sources []model.Source, opts model.Options) {
	opts.DocumentTimeout = s.settings.ClampDocumentTimeout(opts.DocumentTimeout)
	task, err := s.orch.Enqueue(r.Context(), sources, opts)
	if err != nil {
		translateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskStatusView(task, s.queuePosition(task.ID)))
}

// runSync implements the synchronous convenience path: enqueue, then
// long-poll up to MAX_SYNC_WAIT for a terminal status; a timeout returns
// 504 with the task left running.
func (s *Server) runSync(w http.ResponseWriter, r *http.Request, sources []model.Source, opts model.Options) {
	opts.DocumentTimeout = s.settings.ClampDocumentTimeout(opts.DocumentTimeout)
	task, err := s.orch.Enqueue(r.Context(), sources, opts)
	if err != nil {
		translateError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.settings.MaxSyncWait)
	defer cancel()

	task, err = s.orch.TaskStatus(ctx, task.ID, s.settings.MaxSyncWait)
	if err != nil {
		translateError(w, err)
		return
	}
	if !task.Status.Terminal() {
		// TODO: abort the underlying task here once the engine exposes a
		// cancellation hook; today it keeps running to completion.
		writeError(w, http.StatusGatewayTimeout, "synchronous wait exceeded")
		return
	}
	if task.Status == model.StatusFailure {
		if task.FailureSkipped {
			writeError(w, http.StatusBadRequest, task.FailureReason)
			return
		}
		writeError(w, http.StatusInternalServerError, task.FailureReason)
		return
	}

	result, err := s.orch.TaskResult(r.Context(), task.ID)
	if err != nil {
		translateError(w, err)
		return
	}
	if result == nil {
		writeError(w, http.StatusInternalServerError, "task completed without a result")
		return
	}
	writeResult(w, result)
}
