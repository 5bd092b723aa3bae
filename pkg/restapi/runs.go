package restapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/lodthe/registry-gc/internal/gcrun"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"
)

type runsHandler struct {
	runs RunStorage
}

func newRunsHandler(runs RunStorage) *runsHandler {
	return &runsHandler{
		runs: runs,
	}
}

func (h *runsHandler) handle(r chi.Router) {
	r.Get("/runs", h.listRuns)
	r.Get("/runs/{id}", h.getRun)
}

type RunOutput struct {
	ID         string       `json:"id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Elapsed    string       `json:"elapsed"`
	OK         bool         `json:"ok"`
	FailedStep string       `json:"failed_step,omitempty"`
	ExitCode   int          `json:"exit_code"`
	Error      string       `json:"error,omitempty"`
	Steps      []gcrun.Step `json:"steps"`
}

func newRunOutput(run *gcrun.Run) RunOutput {
	return RunOutput{
		ID:         run.ID,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Elapsed:    run.Elapsed().Round(time.Millisecond).String(),
		OK:         run.OK,
		FailedStep: run.FailedStep,
		ExitCode:   run.ExitCode,
		Error:      run.Error,
		Steps:      run.Steps,
	}
}

type ListRunsOutput struct {
	Runs []RunOutput `json:"runs"`
}

func (h *runsHandler) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := gcrun.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	runs, err := h.runs.List(r.Context(), limit)
	if err != nil {
		zlog.Error().Err(err).Int("limit", limit).Msg("failed to list runs")
		writeError(w, "internal error", http.StatusInternalServerError)

		return
	}

	resp := ListRunsOutput{
		Runs: make([]RunOutput, 0, len(runs)),
	}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, newRunOutput(run))
	}

	writeResult(w, resp)
}

func (h *runsHandler) getRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, "missed id", http.StatusBadRequest)
		return
	}

	run, err := h.runs.Get(r.Context(), id)
	if errors.Is(err, gcrun.ErrNotFound) {
		writeError(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		zlog.Error().Err(err).Str("id", id).Msg("failed to find a run")
		writeError(w, "internal error", http.StatusInternalServerError)

		return
	}

	writeResult(w, newRunOutput(run))
}
