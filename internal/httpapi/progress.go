package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/zhoukaigo/docling-serve/internal/orchestrator"
)

// handleProgressCallback implements POST /v1alpha/callback/task/progress,
// the Remote Orchestrator's only inbound surface. The
// payload's run_name is resolved to a task-id before the update is
// applied; a malformed kind or an update_processed arriving before
// set_num_docs both surface as errors the orchestrator maps to status
// codes via translateError.
func (s *Server) handleProgressCallback(w http.ResponseWriter, r *http.Request) {
	var payload orchestrator.ProgressPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if payload.RunName == "" {
		writeError(w, http.StatusBadRequest, "run_name is required")
		return
	}

	if err := s.orch.ReceiveTaskProgress(r.Context(), payload); err != nil {
		translateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ack"})
}
