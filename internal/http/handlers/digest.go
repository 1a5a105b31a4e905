package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/dailygrain/server/internal/digest"
)

// DigestHandler exposes the digest run to the external scheduler.
type DigestHandler struct {
	dispatcher *digest.Dispatcher
	cronSecret string
	logger     *zap.Logger
}

// NewDigestHandler creates a digest handler.
func NewDigestHandler(dispatcher *digest.Dispatcher, cronSecret string, logger *zap.Logger) *DigestHandler {
	return &DigestHandler{
		dispatcher: dispatcher,
		cronSecret: cronSecret,
		logger:     logger,
	}
}

// HandleRun handles POST /internal/digest/run. The caller (a cron job)
// authenticates with the shared X-Cron-Secret header. Re-invocation is
// safe: a duplicate run only re-sends messages, it never corrupts data.
func (h *DigestHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	secret := r.Header.Get("X-Cron-Secret")
	if h.cronSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.cronSecret)) != 1 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
		return
	}

	summary, err := h.dispatcher.Run(r.Context())
	if err != nil {
		h.logger.Error("digest run failed", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "digest run failed"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(summary)
}
