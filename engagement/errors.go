package engagement

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"marketplace-engine/engagement/domain"
)

type errorBody struct {
	Error string `json:"error"`
	Class string `json:"class,omitempty"`
	Limit int    `json:"limit,omitempty"`
	Count int64  `json:"count,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor traduz a taxonomia do domínio para status HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrDependencyUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}

	var le *domain.LimitError
	if errors.As(err, &le) {
		body.Class = string(le.Class)
		body.Limit = le.Limit
		body.Count = le.Count
	}

	log := h.logger().With("method", r.Method, "path", r.URL.Path, "status", status, "request_id", RequestIDFrom(r.Context()))
	switch {
	case status >= 500 && status != http.StatusServiceUnavailable:
		log.Error("request failed", "error", err)
		// detalhes internos não vazam
		body.Error = http.StatusText(status)
	case status == http.StatusServiceUnavailable:
		log.Warn("dependency unavailable", "error", err)
	default:
		log.Debug("request rejected", "error", err)
	}
	writeJSON(w, status, body)
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return h.Logger
}
