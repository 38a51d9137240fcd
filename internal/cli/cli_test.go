package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/requests", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("status") != "ready" {
			t.Errorf("expected status filter, got %q", r.URL.RawQuery)
		}
		w.Write([]byte(`{"data":[{"id":1,"guid":"abc","status":"ready","size":1073741824,"size_human":"1.0 GiB","details":"restore done"}],"total":1}`))
	})
	mux.HandleFunc("GET /api/v1/requests/{guid}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"request not found"}}`))
	})
	mux.HandleFunc("GET /api/v1/requests/{guid}/downloads", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"remote_filename":"b0.fits","status":"failed","size_human":"1.0 GiB","attempts":3,"details":"size mismatch"}],"total":1}`))
	})
	mux.HandleFunc("GET /api/v1/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"requests":{"waiting":2,"finished":5},"downloads":{"downloaded":7}}}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, srv *httptest.Server, jsonMode bool, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	clientFn := func() *Client { return NewClient(srv.URL) }
	outputFn := func() *Output { return NewOutputTo(&stdout, &stderr, jsonMode) }

	var cmd = NewRequestsCmd(clientFn, outputFn)
	switch args[0] {
	case "downloads":
		cmd = NewDownloadsCmd(clientFn, outputFn)
		args = args[1:]
	case "stats":
		cmd = NewStatsCmd(clientFn, outputFn)
		args = args[1:]
	}
	cmd.SetArgs(args)
	cmd.SetOut(&stderr)
	cmd.SetErr(&stderr)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	err := cmd.Execute()
	return stdout.String(), err
}

func TestRequestsList(t *testing.T) {
	srv := newTestAPI(t)

	out, err := run(t, srv, false, "list", "--status", "ready")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "GUID") || !strings.Contains(out, "abc") || !strings.Contains(out, "1.0 GiB") {
		t.Errorf("unexpected table:\n%s", out)
	}

	out, err = run(t, srv, true, "list", "--status", "ready")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var reqs []RequestResponse
	if err := json.Unmarshal([]byte(out), &reqs); err != nil {
		t.Fatalf("json output: %v\n%s", err, out)
	}
	if len(reqs) != 1 || *reqs[0].Size != 1<<30 {
		t.Errorf("unexpected json %+v", reqs)
	}
}

func TestRequestsShow_APIError(t *testing.T) {
	srv := newTestAPI(t)

	_, err := run(t, srv, false, "show", "missing")
	if err == nil || !strings.Contains(err.Error(), "request not found") {
		t.Errorf("expected API error, got %v", err)
	}
}

func TestDownloads(t *testing.T) {
	srv := newTestAPI(t)

	out, err := run(t, srv, false, "downloads", "abc")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "b0.fits") || !strings.Contains(out, "size mismatch") {
		t.Errorf("unexpected table:\n%s", out)
	}
}

func TestStats(t *testing.T) {
	srv := newTestAPI(t)

	out, err := run(t, srv, false, "stats")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	// заголовок, разделитель, 3 строки
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[2], "requests") || !strings.Contains(lines[2], "finished") {
		t.Errorf("counts should be sorted by status: %q", lines[2])
	}
}
