package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(Config{EndpointURL: srv.URL, BatchSize: 4})
	return srv, client
}

func TestSubmitRunReturnsRunID(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/runs" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body RunSubmission
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.RunName == "" {
			t.Fatal("expected a non-empty run_name")
		}
		json.NewEncoder(w).Encode(runSubmissionResponse{RunID: "run-123"})
	})

	runID, err := client.SubmitRun(context.Background(), "docling-job-abc", nil, map[string]any{})
	if err != nil {
		t.Fatalf("SubmitRun: %v", err)
	}
	if runID != "run-123" {
		t.Fatalf("runID = %q, want run-123", runID)
	}
}

func TestRunStatus(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(runStatusResponse{State: RunRunning})
	})

	state, err := client.RunStatus(context.Background(), "run-123")
	if err != nil {
		t.Fatalf("RunStatus: %v", err)
	}
	if state != RunRunning {
		t.Fatalf("state = %q, want RUNNING", state)
	}
}

func TestListPendingRuns(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != string(RunPending) {
			t.Fatalf("expected state=PENDING filter, got %q", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(listRunsResponse{Runs: []RunSummary{{RunID: "a"}, {RunID: "b"}}})
	})

	runs, err := client.ListPendingRuns(context.Background())
	if err != nil {
		t.Fatalf("ListPendingRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
}

func TestResolveRunByNameUnique(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(listRunsResponse{Runs: []RunSummary{{RunID: "run-1", RunName: "docling-job-x"}}})
	})

	id, err := client.ResolveRunByName(context.Background(), "docling-job-x")
	if err != nil {
		t.Fatalf("ResolveRunByName: %v", err)
	}
	if id != "run-1" {
		t.Fatalf("id = %q, want run-1", id)
	}
}

func TestResolveRunByNameAmbiguousErrors(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(listRunsResponse{Runs: []RunSummary{{RunID: "run-1"}, {RunID: "run-2"}}})
	})

	if _, err := client.ResolveRunByName(context.Background(), "docling-job-x"); err == nil {
		t.Fatal("expected an error on an ambiguous run_name match")
	}
}

func TestResolveRunByNameNoMatchErrors(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(listRunsResponse{Runs: nil})
	})

	if _, err := client.ResolveRunByName(context.Background(), "docling-job-missing"); err == nil {
		t.Fatal("expected an error when no run matches")
	}
}
