package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"transcript-cleaner/internal/runstore"
)

type fakeTarget struct {
	running bool
	paused  bool
}

func (f *fakeTarget) Pause() bool {
	if !f.running {
		return false
	}
	f.paused = true
	return true
}

func (f *fakeTarget) Processing() bool { return f.running }
func (f *fakeTarget) Session() string  { return "sess-1" }

func newServer(t *testing.T, target *fakeTarget) (*httptest.Server, *runstore.Store) {
	t.Helper()
	store, err := runstore.Open(t.TempDir(), runstore.Options{LockTimeout: time.Second})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	srv := httptest.NewServer(Server{Target: target, Store: store}.Router())
	t.Cleanup(srv.Close)
	return srv, store
}

func TestHealthz(t *testing.T) {
	srv, _ := newServer(t, &fakeTarget{})
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestPause_ConflictWithoutActiveRun(t *testing.T) {
	target := &fakeTarget{}
	srv, _ := newServer(t, target)

	resp, err := http.Post(srv.URL+"/v1/job/pause", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	target.running = true
	resp, err = http.Post(srv.URL+"/v1/job/pause", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted || !target.paused {
		t.Fatalf("expected accepted pause, got %d paused=%v", resp.StatusCode, target.paused)
	}
}

func TestGetJob(t *testing.T) {
	target := &fakeTarget{running: true}
	srv, store := newServer(t, target)

	resp, err := http.Get(srv.URL + "/v1/job")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 without state, got %d", resp.StatusCode)
	}

	st := runstore.CreateNew(runstore.NewJobOptions{SourceName: "talk.srt", SourceSize: 10, TotalUnits: 4})
	if err := store.Write(context.Background(), st); err != nil {
		t.Fatalf("write state: %v", err)
	}

	resp, err = http.Get(srv.URL + "/v1/job")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var body jobResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Processing || body.SessionID != "sess-1" || body.Job == nil || body.Job.Total != 4 {
		t.Fatalf("unexpected body: %+v", body)
	}
}
