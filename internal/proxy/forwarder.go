package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bibekaryal86/gateway-service/internal/config"
	"github.com/bibekaryal86/gateway-service/internal/gwerrors"
	"github.com/bibekaryal86/gateway-service/internal/logging"
	"github.com/bibekaryal86/gateway-service/internal/routes"
)

// HeaderRequestID carries the gateway correlation id on every
// outbound request, regardless of the forwarding allow-list.
const HeaderRequestID = "X-Request-Id"

// Forwarder sends requests to backends over a shared pooled transport
// and relays the responses. Transport failures are classified into the
// gateway's status contract; backend responses are relayed verbatim.
type Forwarder struct {
	client *http.Client
}

// NewForwarder builds the shared outbound client. The dial timeout is
// separate from the response timeout so a dead host fails fast while a
// slow backend still gets its full budget.
func NewForwarder(cfg config.ProxyConfig) *Forwarder {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConns,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		ResponseHeaderTimeout: cfg.ResponseTimeout,
	}
	return &Forwarder{
		client: &http.Client{
			Transport: transport,
			// Redirects are the client's to follow, not the gateway's.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Forward sends the request to baseURL + the original URI and relays
// the backend's answer. Returns the relayed status on success, or a
// classified gateway error when the backend could not answer at all.
func (f *Forwarder) Forward(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	baseURL string,
	snap *routes.Snapshot,
	headers map[string]string,
	requestID string,
) (int, *gwerrors.GatewayError) {
	outURL := baseURL + r.URL.RequestURI()

	out, err := http.NewRequestWithContext(ctx, r.Method, outURL, r.Body)
	if err != nil {
		return 0, gwerrors.ErrBadRequest.WithRequestID(requestID)
	}
	out.ContentLength = r.ContentLength

	// Default-deny: only allow-listed inbound headers cross over.
	for name, values := range r.Header {
		if !snap.ForwardsHeader(name) {
			continue
		}
		for _, v := range values {
			out.Header.Add(name, v)
		}
	}
	for name, v := range headers {
		out.Header.Set(name, v)
	}
	out.Header.Set(HeaderRequestID, requestID)

	start := time.Now()
	res, err := f.client.Do(out)
	if err != nil {
		gwErr := classify(err).WithRequestID(requestID)
		logging.Warn("upstream call failed",
			zap.String("requestId", requestID),
			zap.String("url", outURL),
			zap.Int("mappedStatus", gwErr.Code),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return 0, gwErr
	}
	defer res.Body.Close()

	relayHeaders(w.Header(), res.Header)
	w.WriteHeader(res.StatusCode)
	if _, err := io.Copy(w, res.Body); err != nil {
		logging.Warn("response relay truncated",
			zap.String("requestId", requestID), zap.Error(err))
	}
	return res.StatusCode, nil
}

func relayHeaders(dst, src http.Header) {
	for name, values := range src {
		for _, v := range values {
			dst.Add(name, v)
		}
	}
	if dst.Get("Content-Type") == "" {
		dst.Set("Content-Type", "application/json")
	}
}

// classify maps a transport error onto the status contract. The dial
// phase decides first: a connect timeout is 504, any other failure to
// reach the host is 503. Everything that broke after the connection
// was made, including a timeout waiting on response headers, is 502.
func classify(err error) *gwerrors.GatewayError {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		if opErr.Timeout() {
			return gwerrors.ErrGatewayTimeout
		}
		return gwerrors.ErrServiceUnavailable
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return gwerrors.ErrServiceUnavailable
	}
	return gwerrors.ErrBadGateway
}
