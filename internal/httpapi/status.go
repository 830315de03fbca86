package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/zhoukaigo/docling-serve/internal/logger"
)

// handleStatusPoll implements GET /v1alpha/status/poll/{id}?wait=: an
// optional long-poll of up to wait seconds for the task to reach a
// terminal status.
func (s *Server) handleStatusPoll(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	wait := parseWaitSeconds(r.URL.Query().Get("wait"))
	task, err := s.orch.TaskStatus(r.Context(), id, wait)
	if err != nil {
		translateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskStatusView(task, s.queuePosition(id)))
}

// queuePosition returns the task's 1-based queue position, or nil once it
// has left the queue.
func (s *Server) queuePosition(id string) *int {
	if pos, ok := s.orch.GetQueuePosition(id); ok {
		return &pos
	}
	return nil
}

func parseWaitSeconds(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// upgrader accepts any origin: the CORS_* allow-lists already gate which
// browsers will attempt the handshake, and the service carries no
// authentication to enforce here.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStatusWS implements WS /v1alpha/status/ws/{id}:
// the first frame sent is the task's current status; every subsequent
// inbound frame from the client triggers a fresh status send. The
// connection is closed once a terminal status has been delivered.
func (s *Server) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	subID, ch, err := s.orch.Subscribe(id)
	if err != nil {
		translateError(w, err)
		return
	}
	defer s.orch.Unsubscribe(id, subID)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Handler.Warn("websocket upgrade failed", "task_id", id, "error", err)
		return
	}
	defer conn.Close()

	task, err := s.orch.TaskStatus(r.Context(), id, 0)
	if err != nil {
		return
	}
	if err := writeWSUpdate(conn, "connection", toTaskStatusView(task, s.queuePosition(id))); err != nil {
		return
	}
	if task.Status.Terminal() {
		return
	}

	// A reader goroutine turns inbound client frames (ping, keepalive,
	// anything) into wakeups; subscriber notifications arrive on ch. Either
	// one triggers a fresh status push, and the connection closes once a
	// terminal update has been written. The deferred conn.Close unblocks
	// the reader when this handler returns first.
	frames := make(chan struct{})
	go func() {
		defer close(frames)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			select {
			case frames <- struct{}{}:
			default:
			}
		}
	}()

	for {
		position := s.queuePosition(id)
		select {
		case _, ok := <-frames:
			if !ok {
				return
			}
		case msg, ok := <-ch:
			if !ok {
				// Closed on task completion or deletion; send one final
				// update below, then stop selecting on it.
				ch = nil
			} else if msg.TaskPosition != nil {
				position = msg.TaskPosition
			}
		}
		task, err := s.orch.TaskStatus(r.Context(), id, 0)
		if err != nil {
			return
		}
		if err := writeWSUpdate(conn, "update", toTaskStatusView(task, position)); err != nil {
			return
		}
		if task.Status.Terminal() {
			return
		}
	}
}

func writeWSUpdate(conn *websocket.Conn, message string, task taskStatusView) error {
	return conn.WriteJSON(map[string]any{"message": message, "task": task})
}

// handleResult implements GET /v1alpha/result/{id}: returns the completed
// Task's inline JSON or ZIP file response.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	result, err := s.orch.TaskResult(r.Context(), id)
	if err != nil {
		translateError(w, err)
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, "task has not completed")
		return
	}
	writeResult(w, result)
}
