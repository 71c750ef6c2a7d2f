package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bibekaryal86/gateway-service/internal/config"
	"github.com/bibekaryal86/gateway-service/internal/gwerrors"
	"github.com/bibekaryal86/gateway-service/internal/logging"
	"github.com/bibekaryal86/gateway-service/internal/routes"
)

// Outbound header names set by the auth stage.
const (
	HeaderAuthOriginal = "X-Auth-Header"
	HeaderAuthToken    = "X-Auth-Token"

	bearerPrefix = "Bearer "

	// identityTTL bounds how long a forwarded identity assertion stays
	// verifiable; backends re-validate on the next request anyway.
	identityTTL = 5 * time.Minute
)

// Decision is what the auth stage hands the forwarder: headers to set
// on the outbound request and, when a token was validated, the
// identity it proved.
type Decision struct {
	Headers  map[string]string
	Identity *AuthToken
}

// Stage applies the gateway's authorization rules to one request.
// Failures here are the client's problem, never the backend's: the
// circuit breaker does not see them.
type Stage struct {
	validator       Validator
	secretKey       string
	appIDHeader     string
	authServiceName string
	matcher         *regexp.Regexp
}

// NewStage builds the auth stage from configuration. An invalid
// permissions matcher is reported and treated as absent.
func NewStage(cfg config.AuthConfig, authServiceName string, validator Validator) *Stage {
	s := &Stage{
		validator:       validator,
		secretKey:       cfg.SecretKey,
		appIDHeader:     cfg.AppIDHeader,
		authServiceName: authServiceName,
	}
	if cfg.CheckPermissionsMatcher != "" {
		matcher, err := regexp.Compile(cfg.CheckPermissionsMatcher)
		if err != nil {
			logging.Error("invalid check_permissions_matcher, ignoring",
				zap.String("pattern", cfg.CheckPermissionsMatcher), zap.Error(err))
		} else {
			s.matcher = matcher
		}
	}
	return s
}

// Authorize runs the decision sequence for one request. A nil error
// means proceed; the returned Decision carries any credential rewrite.
//
// Order matters: the skip checks come first, so excluded paths never
// pay for a validation round trip.
func (s *Stage) Authorize(ctx context.Context, r *http.Request, routeName string, snap *routes.Snapshot) (*Decision, *gwerrors.GatewayError) {
	pathLessRoute := strings.TrimPrefix(r.URL.Path, "/"+routeName)

	if snap.IsAuthExcluded(pathLessRoute) {
		return &Decision{}, nil
	}
	if snap.IsBasicAuthOnly(r.URL.RequestURI()) {
		return &Decision{}, nil
	}
	if s.matcher != nil && s.matcher.MatchString(r.URL.Path) {
		return &Decision{}, nil
	}

	appID := r.Header.Get(s.appIDHeader)
	if !isPositiveInt(appID) {
		return nil, gwerrors.ErrUnauthorized.WithDetails(
			fmt.Sprintf("header %s missing or not a positive integer", s.appIDHeader))
	}

	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, bearerPrefix) || len(authz) == len(bearerPrefix) {
		return nil, gwerrors.ErrUnauthorized.WithDetails("missing or malformed bearer token")
	}

	token, err := s.validator.Validate(ctx, appID, authz)
	if err != nil {
		logging.Debug("token validation failed",
			zap.String("route", routeName), zap.String("appId", appID), zap.Error(err))
		return nil, gwerrors.ErrUnauthorized.WithDetails("token validation failed")
	}

	// The auth service gets the client's own bearer back; it issued it.
	if routeName == s.authServiceName {
		return &Decision{
			Headers:  map[string]string{"Authorization": authz},
			Identity: token,
		}, nil
	}

	cred, ok := snap.Credentials(routeName)
	if !ok {
		return nil, gwerrors.ErrAuthConfigMissing.WithDetails(
			fmt.Sprintf("no credentials configured for route %s", routeName))
	}

	signed, err := SignIdentity(token, appID, s.secretKey, identityTTL)
	if err != nil {
		logging.Error("identity signing failed", zap.String("route", routeName), zap.Error(err))
		return nil, gwerrors.ErrInternal
	}

	basic := base64.StdEncoding.EncodeToString([]byte(cred.Username + ":" + cred.Password))
	return &Decision{
		Headers: map[string]string{
			"Authorization":    "Basic " + basic,
			HeaderAuthOriginal: authz,
			HeaderAuthToken:    signed,
		},
		Identity: token,
	}, nil
}

func isPositiveInt(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n > 0
}
