package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptify-labs/worker-cli/internal/model"
	"github.com/scriptify-labs/worker-cli/internal/registry"
	"github.com/scriptify-labs/worker-cli/internal/runner"
	"github.com/scriptify-labs/worker-cli/internal/store"
)

// echoPipeline runs under the product_analyze job type so the built-in
// registry accepts submissions for it.
type echoPipeline struct{}

func (echoPipeline) Name() string { return "product_analyze" }

func (echoPipeline) Run(ctx context.Context, rc *runner.RunContext) (json.RawMessage, error) {
	rc.Log.Info("echo ran")
	return json.RawMessage(`{"echoed":true}`), nil
}

func newTestServer(t *testing.T) (*apiServer, store.Store) {
	t.Helper()

	dir := t.TempDir()
	st, err := store.Open(context.Background(), "sqlite", filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	r := runner.New(st, runner.Config{
		LogDir:    filepath.Join(dir, "logs"),
		ResultDir: filepath.Join(dir, "results"),
	})
	r.Register(echoPipeline{})

	reg, err := registry.Load("")
	require.NoError(t, err)

	return &apiServer{
		env:     &env{Store: st, Runner: r, Registry: reg},
		baseCtx: context.Background(),
	}, st
}

func doRequest(api *apiServer, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	api.routes().ServeHTTP(rec, req)
	return rec
}

func TestServe_Health(t *testing.T) {
	api, _ := newTestServer(t)

	rec := doRequest(api, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestServe_Jobs(t *testing.T) {
	api, _ := newTestServer(t)

	rec := doRequest(api, http.MethodGet, "/jobs", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "marketplace_scrape")
	assert.Contains(t, rec.Body.String(), "product_analyze")
}

func TestServe_SubmitAndExecute(t *testing.T) {
	api, st := newTestServer(t)

	rec := doRequest(api, http.MethodPost, "/runs", `{"job_type":"product_analyze","input":{}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var run model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	require.NotEmpty(t, run.ID)

	// Execution is asynchronous; wait for the terminal state.
	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := st.GetRun(context.Background(), run.ID)
		require.NoError(t, err)
		if got.Status.Terminal() {
			assert.Equal(t, model.RunStatusSuccess, got.Status)
			assert.JSONEq(t, `{"echoed":true}`, string(got.Result))
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run %s never finished, status %s", run.ID, got.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestServe_SubmitRejectsUnknownJob(t *testing.T) {
	api, _ := newTestServer(t)

	rec := doRequest(api, http.MethodPost, "/runs", `{"job_type":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(api, http.MethodPost, "/runs", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(api, http.MethodPost, "/runs", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServe_ShowAndList(t *testing.T) {
	api, _ := newTestServer(t)

	run, err := api.env.Runner.Submit(context.Background(), "product_analyze", nil)
	require.NoError(t, err)

	rec := doRequest(api, http.MethodGet, "/runs/"+run.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), run.ID)

	rec = doRequest(api, http.MethodGet, "/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(api, http.MethodGet, "/runs?status=PENDING", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), run.ID)
}

func TestServe_AbortPendingRun(t *testing.T) {
	api, st := newTestServer(t)

	run, err := api.env.Runner.Submit(context.Background(), "product_analyze", nil)
	require.NoError(t, err)

	rec := doRequest(api, http.MethodPost, "/runs/"+run.ID+"/abort", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	got, err := st.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRevoked, got.Status)

	// A second abort hits a terminal run.
	rec = doRequest(api, http.MethodPost, "/runs/"+run.ID+"/abort", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServe_Logs(t *testing.T) {
	api, _ := newTestServer(t)

	run, err := api.env.Runner.Submit(context.Background(), "product_analyze", nil)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Dir(run.LogPath), 0o755))
	require.NoError(t, os.WriteFile(run.LogPath, []byte("line one\n"), 0o644))

	rec := doRequest(api, http.MethodGet, "/runs/"+run.ID+"/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data     string `json:"data"`
		Offset   int64  `json:"offset"`
		Finished bool   `json:"finished"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "line one\n", resp.Data)
	assert.Equal(t, int64(len("line one\n")), resp.Offset)
	assert.False(t, resp.Finished)
}

func TestWriteSSEData(t *testing.T) {
	var buf strings.Builder
	writeSSEData(&buf, []byte("line one\nline two\nline three\n"))

	want := "data: line one\ndata: line two\ndata: line three\n\n"
	assert.Equal(t, want, buf.String())

	buf.Reset()
	writeSSEData(&buf, []byte("single"))
	assert.Equal(t, "data: single\n\n", buf.String())
}

func TestServe_LogStreamFramesEveryLine(t *testing.T) {
	api, st := newTestServer(t)

	run, err := api.env.Runner.Submit(context.Background(), "product_analyze", nil)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Dir(run.LogPath), 0o755))
	require.NoError(t, os.WriteFile(run.LogPath, []byte("first line\nsecond line\n"), 0o644))
	require.NoError(t, st.FinishRun(context.Background(), run.ID, model.RunStatusSuccess, nil, "", time.Now().UTC()))

	rec := doRequest(api, http.MethodGet, "/runs/"+run.ID+"/logs/stream", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "data: first line\n")
	assert.Contains(t, body, "data: second line\n")
	assert.Contains(t, body, "event: done\n")
	// Every payload line must carry the data: prefix.
	for _, line := range strings.Split(strings.TrimRight(body, "\n"), "\n") {
		if line == "" {
			continue
		}
		assert.Regexp(t, "^(data|event): ", line)
	}
}

func TestServe_ResultMissing(t *testing.T) {
	api, _ := newTestServer(t)

	run, err := api.env.Runner.Submit(context.Background(), "product_analyze", nil)
	require.NoError(t, err)

	rec := doRequest(api, http.MethodGet, "/runs/"+run.ID+"/result", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
