package restapi

import (
	"net/http"

	"github.com/lodthe/registry-gc/internal/gctrigger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"
)

// SuccessBody is sent when the gc sequence has completed.
const SuccessBody = "gc cmd exec ok"

type triggerHandler struct {
	gc GCTrigger
}

func newTriggerHandler(gc GCTrigger) *triggerHandler {
	return &triggerHandler{
		gc: gc,
	}
}

func (h *triggerHandler) handle(r chi.Router) {
	r.Get("/*", h.triggerGC)
}

// triggerGC runs the gc sequence regardless of the path and the query.
// Failures are reported with an empty body.
func (h *triggerHandler) triggerGC(w http.ResponseWriter, r *http.Request) {
	logger := zlog.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()

	out, err := h.gc.TriggerGC(r.Context())
	if errors.Is(err, gctrigger.ErrBusy) {
		w.WriteHeader(http.StatusConflict)
		return
	}
	if err != nil {
		logger.Warn().Err(err).Msg("gc trigger has been abandoned")
		w.WriteHeader(http.StatusInternalServerError)

		return
	}

	if !out.OK {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	logger.Debug().Str("run_id", out.RunID).Bool("shared", out.Shared).Msg("gc trigger succeeded")

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(SuccessBody))
}
