package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mveselov-dev/songsmith/planner"
	"github.com/mveselov-dev/songsmith/state"
)

type runnerFunc func(context.Context, planner.GenerationRequest) (SongMetadata, error)

func (f runnerFunc) Run(ctx context.Context, req planner.GenerationRequest) (SongMetadata, error) {
	return f(ctx, req)
}

func TestHTTPSubmitAcceptsRun(t *testing.T) {
	ran := make(chan string, 1)
	sup := NewSupervisor(context.Background(), runnerFunc(func(ctx context.Context, req planner.GenerationRequest) (SongMetadata, error) {
		ran <- req.RunID
		return SongMetadata{}, nil
	}), nil, 2)
	handler := NewHTTPHandler(sup, state.NewMemStore(), nil)

	body := strings.NewReader(`{"run_id": "run-http", "title": "Neon Rain"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["run_id"] != "run-http" || resp["status"] != "accepted" {
		t.Fatalf("response = %v", resp)
	}

	select {
	case id := <-ran:
		if id != "run-http" {
			t.Fatalf("runner saw %q", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run never reached the runner")
	}
	if err := sup.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestHTTPSubmitMintsRunID(t *testing.T) {
	sup := NewSupervisor(context.Background(), runnerFunc(func(ctx context.Context, req planner.GenerationRequest) (SongMetadata, error) {
		return SongMetadata{}, nil
	}), nil, 2)
	handler := NewHTTPHandler(sup, state.NewMemStore(), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(`{"title": "Untitled"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["run_id"] == "" {
		t.Fatal("no run id minted for the submission")
	}
	if err := sup.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestHTTPSubmitConflictsOnActiveRun(t *testing.T) {
	runner := newBlockingRunner()
	sup := NewSupervisor(context.Background(), runner, nil, 2)
	handler := NewHTTPHandler(sup, state.NewMemStore(), nil)

	first := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(`{"run_id": "run-busy"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first submit status = %d", rec.Code)
	}
	waitForStart(t, runner)

	second := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(`{"run_id": "run-busy"}`))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate submit status = %d, want 409", rec.Code)
	}

	close(runner.release)
	if err := sup.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestHTTPSubmitRejectsBadJSON(t *testing.T) {
	sup := NewSupervisor(context.Background(), runnerFunc(func(ctx context.Context, req planner.GenerationRequest) (SongMetadata, error) {
		return SongMetadata{}, nil
	}), nil, 2)
	handler := NewHTTPHandler(sup, state.NewMemStore(), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(`{"unknown_field": true}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHTTPRunStatus(t *testing.T) {
	store := state.NewMemStore()
	record := state.NewRunRecord("run-status", []planner.Action{
		{Kind: planner.KindNavigate, Value: "/create"},
	}, time.Now())
	record.LastCompletedStep = 0
	record.Status = state.StatusCompleted
	record.FinalOutput = map[string]string{"status": "ok", "content_id": "song-5"}
	if err := store.Save(context.Background(), "run-status", record); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	sup := NewSupervisor(context.Background(), runnerFunc(func(ctx context.Context, req planner.GenerationRequest) (SongMetadata, error) {
		return SongMetadata{}, nil
	}), nil, 2)
	handler := NewHTTPHandler(sup, store, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var got state.RunRecord
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if got.Status != state.StatusCompleted || got.FinalOutput["content_id"] != "song-5" {
		t.Fatalf("record = %+v", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-missing", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing run status = %d, want 404", rec.Code)
	}
}

func TestHTTPHealthz(t *testing.T) {
	sup := NewSupervisor(context.Background(), runnerFunc(func(ctx context.Context, req planner.GenerationRequest) (SongMetadata, error) {
		return SongMetadata{}, nil
	}), nil, 2)
	handler := NewHTTPHandler(sup, state.NewMemStore(), nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET on the collection = %d, want 405", rec.Code)
	}
}
