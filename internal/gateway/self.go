package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bibekaryal86/gateway-service/internal/gwerrors"
	"github.com/bibekaryal86/gateway-service/internal/logging"
	"github.com/bibekaryal86/gateway-service/internal/metrics"
)

// selfHandler answers requests addressed to the gateway's own route
// name. These never touch breakers, limiters, or auth.
type selfHandler struct {
	selfName string
	reset    func(ctx context.Context)
	metrics  http.Handler
}

func newSelfHandler(selfName string, reset func(ctx context.Context)) *selfHandler {
	return &selfHandler{
		selfName: selfName,
		reset:    reset,
		metrics:  metrics.Handler(),
	}
}

func (h *selfHandler) serve(w http.ResponseWriter, r *http.Request, details *requestDetails) int {
	rest := strings.TrimPrefix(r.URL.Path, "/"+h.selfName)

	switch {
	case rest == "", rest == "/", rest == "/tests/ping":
		writeJSON(w, http.StatusOK, `{"ping":"successful"}`)

	case rest == "/tests/reset":
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()
		h.reset(ctx)
		logging.Info("gateway state reset", zap.String("requestId", details.ID))
		writeJSON(w, http.StatusOK, `{"reset":"successful"}`)

	case rest == "/tests/logs":
		old, current := logging.SetLevel(r.URL.Query().Get("level"))
		logging.Info("log level changed",
			zap.String("requestId", details.ID),
			zap.String("oldLevel", old),
			zap.String("newLevel", current))
		writeJSON(w, http.StatusOK,
			`{"oldLogLevel":"`+old+`","newLogLevel":"`+current+`"}`)

	case rest == "/metrics":
		h.metrics.ServeHTTP(w, r)

	default:
		gwerrors.ErrBadRequest.WithRequestID(details.ID).WriteJSON(w)
		return http.StatusBadRequest
	}
	return http.StatusOK
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
