package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"forgehq/loom/pkg/api/types"
	"forgehq/loom/pkg/queue"
	"forgehq/loom/pkg/store"
)

// writeJSON writes v as the response body with the given status. An
// encoding failure can no longer change the response; it is only
// logged.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError writes the envelope with the status its code maps to.
func writeError(w http.ResponseWriter, resp *types.ErrorResponse) {
	writeJSON(w, resp.Error.HTTPStatusCode(), resp)
}

// handleError maps store and queue failures onto the wire taxonomy.
// Validation and lifecycle errors carry their message to the client;
// anything unclassified is logged and returned as an opaque 500 so
// backend details never leak.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		storeValidation *store.ValidationError
		storeNotFound   *store.NotFoundError
		storeConflict   *store.ConflictError
		queueValidation *queue.ValidationError
		queueNotFound   *queue.NotFoundError
	)

	switch {
	case errors.As(err, &storeValidation):
		writeError(w, types.NewValidationError(storeValidation.Error()))
	case errors.As(err, &queueValidation):
		writeError(w, types.NewValidationError(queueValidation.Error()))
	case errors.As(err, &storeNotFound):
		writeError(w, types.NewNotFoundError(storeNotFound.Error()))
	case errors.As(err, &queueNotFound):
		writeError(w, types.NewNotFoundError(queueNotFound.Error()))
	case errors.As(err, &storeConflict):
		writeError(w, types.NewErrorResponse(types.CodeConflict, storeConflict.Error()))
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
		)
		writeError(w, types.NewServerError("An internal error occurred"))
	}
}
