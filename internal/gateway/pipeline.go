package gateway

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/bibekaryal86/gateway-service/internal/auth"
	"github.com/bibekaryal86/gateway-service/internal/circuitbreaker"
	"github.com/bibekaryal86/gateway-service/internal/config"
	"github.com/bibekaryal86/gateway-service/internal/gwerrors"
	"github.com/bibekaryal86/gateway-service/internal/logging"
	"github.com/bibekaryal86/gateway-service/internal/metrics"
	"github.com/bibekaryal86/gateway-service/internal/proxy"
	"github.com/bibekaryal86/gateway-service/internal/ratelimit"
	"github.com/bibekaryal86/gateway-service/internal/routes"
)

// Gateway runs the admission-and-forwarding pipeline. Stages execute
// in a fixed order and any stage may end the request with an error
// response; nothing runs after an early exit.
type Gateway struct {
	selfName  string
	store     *routes.Store
	breakers  *circuitbreaker.BreakerByRoute
	limiters  *ratelimit.LimiterByClient
	authStage *auth.Stage
	forwarder *proxy.Forwarder
	self      *selfHandler
}

// Deps bundles the pipeline's collaborators.
type Deps struct {
	Store     *routes.Store
	AuthStage *auth.Stage
	Forwarder *proxy.Forwarder
	// Refresh forces an immediate snapshot refresh for the reset
	// endpoint. May be nil in tests.
	Refresh func(ctx context.Context) error
}

// New assembles the pipeline.
func New(cfg *config.Config, deps Deps) *Gateway {
	g := &Gateway{
		selfName:  cfg.Gateway.SelfName,
		store:     deps.Store,
		breakers:  circuitbreaker.NewBreakerByRoute(cfg.CircuitBreaker),
		limiters:  ratelimit.NewLimiterByClient(cfg.RateLimit),
		authStage: deps.AuthStage,
		forwarder: deps.Forwarder,
	}
	g.self = newSelfHandler(cfg.Gateway.SelfName, func(ctx context.Context) {
		if deps.Refresh != nil {
			_ = deps.Refresh(ctx)
		}
		g.breakers.Reset()
		g.limiters.Reset()
	})
	return g
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	details := newRequestDetails(r, g.selfName)

	logging.Info("request received",
		zap.String("requestId", details.ID),
		zap.String("method", details.Method),
		zap.String("uri", details.URI),
		zap.String("route", details.RouteName),
		zap.String("client", details.ClientID),
		zap.Int64("contentLength", r.ContentLength))

	defer func() {
		if rec := recover(); rec != nil {
			logging.Error("pipeline panic",
				zap.String("requestId", details.ID),
				zap.String("route", details.RouteName),
				zap.Any("panic", rec))
			// A panic mid-pipeline counts against the route like any
			// other failure; the gateway's own endpoints have no breaker.
			if details.RouteName != g.selfName {
				g.breakers.Get(details.RouteName).MarkFailure()
			}
			g.finish(w, details, gwerrors.ErrInternal.WithRequestID(details.ID))
		}
	}()

	if details.RouteName == g.selfName {
		status := g.self.serve(w, r, details)
		g.logCompleted(details, status)
		return
	}

	snap := g.store.Load()
	baseURL, ok := snap.TargetBaseURL(details.RouteName)
	if !ok {
		metrics.ObserveRejection(details.RouteName, metrics.ReasonBadRoute)
		g.finish(w, details, gwerrors.ErrRouteNotFound.WithRequestID(details.ID).
			WithDetails("no backend configured for "+details.RouteName))
		return
	}

	breaker := g.breakers.Get(details.RouteName)
	if !breaker.Allow() {
		metrics.ObserveRejection(details.RouteName, metrics.ReasonCircuitOpen)
		g.finish(w, details, gwerrors.ErrCircuitOpen.WithRequestID(details.ID))
		return
	}

	if !g.limiters.Get(details.ClientID).Allow() {
		metrics.ObserveRejection(details.RouteName, metrics.ReasonRateLimit)
		g.finish(w, details, gwerrors.ErrRateLimited.WithRequestID(details.ID))
		return
	}

	// Auth failures are the client's fault and never count against the
	// backend's breaker.
	decision, gwErr := g.authStage.Authorize(r.Context(), r, details.RouteName, snap)
	if gwErr != nil {
		metrics.ObserveRejection(details.RouteName, metrics.ReasonAuth)
		g.finish(w, details, gwErr.WithRequestID(details.ID))
		return
	}

	start := time.Now()
	status, gwErr := g.forwarder.Forward(r.Context(), w, r, baseURL, snap, decision.Headers, details.ID)
	metrics.ObserveUpstream(details.RouteName, time.Since(start))
	if gwErr != nil {
		breaker.MarkFailure()
		g.finish(w, details, gwErr)
		return
	}

	if status >= 200 && status < 300 {
		breaker.MarkSuccess()
	} else {
		breaker.MarkFailure()
	}
	g.logCompleted(details, status)
}

// finish writes an error response and records the request.
func (g *Gateway) finish(w http.ResponseWriter, details *requestDetails, gwErr *gwerrors.GatewayError) {
	gwErr.WriteJSON(w)
	g.logCompleted(details, gwErr.Code)
}

func (g *Gateway) logCompleted(details *requestDetails, status int) {
	metrics.ObserveRequest(details.RouteName, status)
	logging.Info("request completed",
		zap.String("requestId", details.ID),
		zap.String("route", details.RouteName),
		zap.Int("status", status),
		zap.Duration("duration", time.Since(details.Received)))
}
