package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shaiso/Surveyor/internal/domain"
	"github.com/shaiso/Surveyor/internal/orchestrator"
	"github.com/shaiso/Surveyor/internal/repo"
)

type fakeActive []orchestrator.RestoreStats

func (f fakeActive) Status() []orchestrator.RestoreStats { return f }

func newTestServer(t *testing.T, active ActiveLister) (*httptest.Server, *repo.RequestRepo, *repo.DownloadRepo) {
	t.Helper()

	store, err := repo.Open(context.Background(), repo.Config{
		DSN:          filepath.Join(t.TempDir(), "tracker.db"),
		RetryBackoff: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	requests := repo.NewRequestRepo(store)
	downloads := repo.NewDownloadRepo(store)

	mux := http.NewServeMux()
	NewHandler(Config{RequestRepo: requests, DownloadRepo: downloads, Active: active}).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, requests, downloads
}

func getJSON(t *testing.T, url string, wantStatus int, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s: expected %d, got %d", url, wantStatus, resp.StatusCode)
	}
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
}

func TestRequests(t *testing.T) {
	srv, requests, downloads := newTestServer(t, nil)
	ctx := context.Background()

	first, err := requests.Create(ctx, "guid-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := requests.Create(ctx, "guid-2", ""); err != nil {
		t.Fatal(err)
	}
	if err := requests.Transition(ctx, "guid-1", domain.RequestStatusReady, "restore done"); err != nil {
		t.Fatal(err)
	}
	if err := requests.SetSize(ctx, "guid-1", 3<<30); err != nil {
		t.Fatal(err)
	}
	err = downloads.CreateMissing(ctx, first.ID, t.TempDir(), []domain.RemoteFile{
		{Name: "b0.fits", Size: 1 << 30},
		{Name: "b1.fits", Size: 2 << 30},
	})
	if err != nil {
		t.Fatal(err)
	}

	var list struct {
		Data  []RequestResponse `json:"data"`
		Total int               `json:"total"`
	}
	getJSON(t, srv.URL+"/api/v1/requests", http.StatusOK, &list)
	if list.Total != 2 || list.Data[0].GUID != "guid-2" {
		t.Errorf("expected 2 requests newest first, got %+v", list)
	}

	getJSON(t, srv.URL+"/api/v1/requests?status=ready", http.StatusOK, &list)
	if list.Total != 1 || list.Data[0].GUID != "guid-1" {
		t.Errorf("status filter: got %+v", list)
	}

	var one struct {
		Data RequestResponse `json:"data"`
	}
	getJSON(t, srv.URL+"/api/v1/requests/guid-1", http.StatusOK, &one)
	if one.Data.Status != domain.RequestStatusReady || one.Data.SizeHuman != "3.0 GiB" {
		t.Errorf("unexpected request %+v", one.Data)
	}

	var dl struct {
		Data  []DownloadResponse `json:"data"`
		Total int                `json:"total"`
	}
	getJSON(t, srv.URL+"/api/v1/requests/guid-1/downloads", http.StatusOK, &dl)
	if dl.Total != 2 || dl.Data[0].Status != domain.DownloadStatusNew {
		t.Errorf("unexpected downloads %+v", dl)
	}

	var notFound struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	getJSON(t, srv.URL+"/api/v1/requests/missing", http.StatusNotFound, &notFound)
	if notFound.Error.Code != "NOT_FOUND" || notFound.Error.Message != "request not found" {
		t.Errorf("unexpected error body %+v", notFound.Error)
	}
	getJSON(t, srv.URL+"/api/v1/requests?status=bogus", http.StatusBadRequest, nil)
	getJSON(t, srv.URL+"/api/v1/requests?limit=-1", http.StatusBadRequest, nil)
}

func TestStats(t *testing.T) {
	srv, requests, _ := newTestServer(t, nil)
	ctx := context.Background()

	for _, guid := range []string{"a", "b", "c"} {
		if _, err := requests.Create(ctx, guid, ""); err != nil {
			t.Fatal(err)
		}
	}
	if err := requests.Transition(ctx, "c", domain.RequestStatusFailed, "request directory not found"); err != nil {
		t.Fatal(err)
	}

	var stats struct {
		Data StatsResponse `json:"data"`
	}
	getJSON(t, srv.URL+"/api/v1/stats", http.StatusOK, &stats)
	if stats.Data.Requests["waiting"] != 2 || stats.Data.Requests["failed"] != 1 {
		t.Errorf("unexpected stats %+v", stats.Data)
	}
}

func TestActive(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	getJSON(t, srv.URL+"/api/v1/active", http.StatusNotFound, nil)

	srv, _, _ = newTestServer(t, fakeActive{{GUID: "g", Status: domain.RequestStatusReady, LiveWorkers: 2, InFlightBytes: 1536}})
	var list struct {
		Data []ActiveResponse `json:"data"`
	}
	getJSON(t, srv.URL+"/api/v1/active", http.StatusOK, &list)
	if len(list.Data) != 1 || list.Data[0].InFlight != "1.5 KiB" || list.Data[0].LiveWorkers != 2 {
		t.Errorf("unexpected active %+v", list.Data)
	}
}
