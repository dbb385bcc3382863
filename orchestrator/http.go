package orchestrator

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mveselov-dev/songsmith/internal/observability"
	"github.com/mveselov-dev/songsmith/planner"
	"github.com/mveselov-dev/songsmith/state"
)

// NewHTTPHandler wires the run submission and inspection endpoints plus
// health and metrics.
func NewHTTPHandler(supervisor *Supervisor, store state.Store, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = observability.NewLogger("orchestrator.http")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/api/v1/runs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req planner.GenerationRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.RunID == "" {
			req.RunID = uuid.NewString()
		}
		if err := supervisor.Submit(req); err != nil {
			switch {
			case errors.Is(err, ErrRunActive):
				writeError(w, http.StatusConflict, err)
			case errors.Is(err, ErrAtCapacity):
				writeError(w, http.StatusServiceUnavailable, err)
			default:
				writeError(w, http.StatusBadRequest, err)
			}
			return
		}
		logger.Info("run accepted", "event", "run_accepted", "run_id", req.RunID)
		writeJSON(w, http.StatusAccepted, map[string]string{
			"run_id": req.RunID,
			"status": "accepted",
		})
	})

	mux.HandleFunc("/api/v1/runs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		runID := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
		if runID == "" || strings.Contains(runID, "/") {
			writeError(w, http.StatusNotFound, errors.New("run not found"))
			return
		}
		record, found, err := store.Load(r.Context(), runID)
		if err != nil {
			logger.Error("load run failed", "event", "load_run_failed", "run_id", runID, "error", err.Error())
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if !found {
			writeError(w, http.StatusNotFound, errors.New("run not found"))
			return
		}
		writeJSON(w, http.StatusOK, record)
	})

	return mux
}

func decodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
