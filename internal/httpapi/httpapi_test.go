package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhoukaigo/docling-serve/internal/config"
	"github.com/zhoukaigo/docling-serve/internal/convert"
	"github.com/zhoukaigo/docling-serve/internal/model"
	"github.com/zhoukaigo/docling-serve/internal/orchestrator"
	"github.com/zhoukaigo/docling-serve/internal/orchestrator/local"
	"github.com/zhoukaigo/docling-serve/internal/scratch"
)

type fakeConverter struct {
	fail bool
	skip bool
}

func (f *fakeConverter) Convert(ctx context.Context, sources []model.Source) ([]model.Document, error) {
	if f.fail {
		return nil, errFake
	}
	docs := make([]model.Document, len(sources))
	for i := range sources {
		if f.skip {
			docs[i] = model.Document{Stem: "doc", Status: model.DocSkipped, Errors: []string{"unsupported file type"}}
			continue
		}
		docs[i] = model.Document{
			Stem:    "doc",
			Status:  model.DocSuccess,
			Formats: map[string][]byte{"md": []byte("# hello")},
		}
	}
	return docs, nil
}
func (f *fakeConverter) Close() error { return nil }

type fakeFactory struct {
	fail bool
	skip bool
}

func (f *fakeFactory) Build(ctx context.Context, opts model.Options) (convert.Converter, error) {
	return &fakeConverter{fail: f.fail, skip: f.skip}, nil
}

var errFake = &fakeErr{"conversion exploded"}

type fakeErr struct{ msg string }

func (e *fakeErr) Error() string { return e.msg }

func newTestServer(t *testing.T, fail bool) (*httptest.Server, context.CancelFunc) {
	return newTestServerWithFactory(t, &fakeFactory{fail: fail})
}

func newTestServerWithFactory(t *testing.T, factory *fakeFactory) (*httptest.Server, context.CancelFunc) {
	t.Helper()
	store, err := scratch.New(t.TempDir())
	if err != nil {
		t.Fatalf("scratch.New: %v", err)
	}
	cache, err := convert.NewCache(factory, 2)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	base := orchestrator.NewBase(orchestrator.NewRegistry(), orchestrator.NewSubscribers(), store, false, 0)
	queue := orchestrator.NewQueue()
	orch := local.New(base, queue, cache, store, nil, 2)

	ctx, cancel := context.WithCancel(context.Background())
	go orch.ProcessQueue(ctx)

	cfg := config.Settings{
		MaxSyncWait: 2 * time.Second,
		CORSOrigins: []string{"*"},
		CORSMethods: []string{"*"},
		CORSHeaders: []string{"*"},
	}
	srv := NewServer(orch, cache, cfg)
	return httptest.NewServer(srv.Handler()), cancel
}

func TestHealthEndpoint(t *testing.T) {
	ts, cancel := newTestServer(t, false)
	defer ts.Close()
	defer cancel()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestConvertSourceSyncInline(t *testing.T) {
	ts, cancel := newTestServer(t, false)
	defer ts.Close()
	defer cancel()

	body := bytes.NewBufferString(`{"http_sources":[{"url":"https://example.com/a.pdf"}]}`)
	resp, err := http.Post(ts.URL+"/v1alpha/convert/source", "application/json", body)
	if err != nil {
		t.Fatalf("POST convert/source: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["status"] != "success" {
		t.Fatalf("status field = %v, want success", out["status"])
	}
}

func TestConvertSourceAsyncThenPollThenResult(t *testing.T) {
	ts, cancel := newTestServer(t, false)
	defer ts.Close()
	defer cancel()

	body := bytes.NewBufferString(`{"http_sources":[{"url":"https://example.com/a.pdf"},{"url":"https://example.com/b.pdf"}]}`)
	resp, err := http.Post(ts.URL+"/v1alpha/convert/source/async", "application/json", body)
	if err != nil {
		t.Fatalf("POST convert/source/async: %v", err)
	}
	defer resp.Body.Close()
	var enq map[string]any
	json.NewDecoder(resp.Body).Decode(&enq)
	id, _ := enq["task_id"].(string)
	if id == "" {
		t.Fatalf("no task_id in response: %v", enq)
	}

	var status string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r, err := http.Get(ts.URL + "/v1alpha/status/poll/" + id)
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		var sv map[string]any
		json.NewDecoder(r.Body).Decode(&sv)
		r.Body.Close()
		status, _ = sv["task_status"].(string)
		if status == "success" || status == "failure" {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if status != "success" {
		t.Fatalf("final status = %q, want success", status)
	}

	r, err := http.Get(ts.URL + "/v1alpha/result/" + id)
	if err != nil {
		t.Fatalf("GET result: %v", err)
	}
	defer r.Body.Close()
	if r.Header.Get("Content-Type") != "application/zip" {
		t.Fatalf("Content-Type = %q, want application/zip for a 2-document batch", r.Header.Get("Content-Type"))
	}
}

func TestConvertSourceSyncSkippedDocumentIs400(t *testing.T) {
	ts, cancel := newTestServerWithFactory(t, &fakeFactory{skip: true})
	defer ts.Close()
	defer cancel()

	body := bytes.NewBufferString(`{"http_sources":[{"url":"https://example.com/a.xyz"}]}`)
	resp, err := http.Post(ts.URL+"/v1alpha/convert/source", "application/json", body)
	if err != nil {
		t.Fatalf("POST convert/source: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a skipped document", resp.StatusCode)
	}
}

func TestConvertSourceSyncConversionFailureIs500(t *testing.T) {
	ts, cancel := newTestServer(t, true)
	defer ts.Close()
	defer cancel()

	body := bytes.NewBufferString(`{"http_sources":[{"url":"https://example.com/a.pdf"}]}`)
	resp, err := http.Post(ts.URL+"/v1alpha/convert/source", "application/json", body)
	if err != nil {
		t.Fatalf("POST convert/source: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 for an engine failure", resp.StatusCode)
	}
}

func TestStatusPollUnknownTaskIs404(t *testing.T) {
	ts, cancel := newTestServer(t, false)
	defer ts.Close()
	defer cancel()

	resp, err := http.Get(ts.URL + "/v1alpha/status/poll/does-not-exist")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestClearConvertersEvictsCache(t *testing.T) {
	ts, cancel := newTestServer(t, false)
	defer ts.Close()
	defer cancel()

	resp, err := http.Get(ts.URL + "/v1alpha/clear/converters")
	if err != nil {
		t.Fatalf("clear/converters: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestClearResultsRejectsNegativeOlderThen(t *testing.T) {
	ts, cancel := newTestServer(t, false)
	defer ts.Close()
	defer cancel()

	resp, err := http.Get(ts.URL + "/v1alpha/clear/results?older_then=-5")
	if err != nil {
		t.Fatalf("clear/results: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestStatusWSConnectionAndUpdateFrames(t *testing.T) {
	store, err := scratch.New(t.TempDir())
	if err != nil {
		t.Fatalf("scratch.New: %v", err)
	}
	cache, err := convert.NewCache(&fakeFactory{}, 2)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	base := orchestrator.NewBase(orchestrator.NewRegistry(), orchestrator.NewSubscribers(), store, false, 0)
	orch := local.New(base, orchestrator.NewQueue(), cache, store, nil, 1)
	// The queue processor is intentionally not started so the task stays
	// pending for the duration of the socket exchange.
	srv := NewServer(orch, cache, config.Settings{CORSOrigins: []string{"*"}})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	task, err := orch.Enqueue(context.Background(), []model.Source{model.NewHTTPSource("https://example.com/a.pdf", nil)}, model.Options{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1alpha/status/ws/" + task.ID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close()

	var first map[string]any
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first frame: %v", err)
	}
	if first["message"] != "connection" {
		t.Fatalf("first frame message = %v, want connection", first["message"])
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	var update map[string]any
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("read update frame: %v", err)
	}
	if update["message"] != "update" {
		t.Fatalf("frame message = %v, want update", update["message"])
	}
	taskView, ok := update["task"].(map[string]any)
	if !ok || taskView["task_status"] != "pending" {
		t.Fatalf("task view = %v, want pending status", update["task"])
	}
	if taskView["task_position"] != float64(1) {
		t.Fatalf("task_position = %v, want 1", taskView["task_position"])
	}
}

func TestStatusWSUnknownTaskFailsHandshake(t *testing.T) {
	ts, cancel := newTestServer(t, false)
	defer ts.Close()
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1alpha/status/ws/missing"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected the handshake to fail for an unknown task")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("handshake response = %+v, want 404", resp)
	}
}

func TestProgressCallbackOnLocalBackendIsRejected(t *testing.T) {
	ts, cancel := newTestServer(t, false)
	defer ts.Close()
	defer cancel()

	body := bytes.NewBufferString(`{"kind":"set_num_docs","run_name":"docling-job-x","num_docs":2}`)
	resp, err := http.Post(ts.URL+"/v1alpha/callback/task/progress", "application/json", body)
	if err != nil {
		t.Fatalf("progress callback: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Fatal("local orchestrator should not accept progress callbacks")
	}
}
