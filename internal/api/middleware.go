package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// RoundTripFunc executes a single HTTP request.
type RoundTripFunc func(*http.Request) (*http.Response, error)

// Middleware wraps a RoundTripFunc with additional behavior. Middlewares
// form an explicit pipeline rather than hidden interceptor chains on a
// shared client object.
type Middleware func(next RoundTripFunc) RoundTripFunc

// TokenSource supplies bearer tokens for outgoing requests. ValidToken may
// refresh behind the scenes; ForceRefresh always exchanges the refresh
// token for a new pair and is used for the single retry after a 401.
type TokenSource interface {
	ValidToken(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// publicEndpoints are served without an Authorization header. Everything
// else gets a bearer token from the token source.
var publicEndpoints = []string{
	"/auth/login",
	"/auth/googlelogin",
	"/auth/register",
	"/auth/refresh",
	"/auth/forgot-password",
	"/auth/reset-password",
}

func isPublicEndpoint(path string) bool {
	for _, p := range publicEndpoints {
		if strings.HasSuffix(path, p) {
			return true
		}
	}
	return false
}

// BearerAuth returns a middleware that attaches "Authorization: Bearer
// <token>" from the token source to every request outside the public
// allow-list. On a 401 response it forces one token refresh and re-issues
// the original request exactly once; a second 401 is returned to the
// caller as-is. When no token is available the request is sent without a
// header and the backend's rejection speaks for itself.
func BearerAuth(ts TokenSource, log *slog.Logger) Middleware {
	return func(next RoundTripFunc) RoundTripFunc {
		return func(req *http.Request) (*http.Response, error) {
			if ts == nil || isPublicEndpoint(req.URL.Path) {
				return next(req)
			}

			ctx := req.Context()
			if token, err := ts.ValidToken(ctx); err == nil && token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			} else if err != nil {
				log.DebugContext(ctx, "No valid token for request", "path", req.URL.Path, "error", err)
			}

			resp, err := next(req)
			if err != nil || resp.StatusCode != http.StatusUnauthorized {
				return resp, err
			}

			// Single retry with a freshly refreshed token. GetBody is set
			// on every request the client builds, so the body can be
			// replayed safely.
			token, refreshErr := ts.ForceRefresh(ctx)
			if refreshErr != nil || token == "" {
				log.WarnContext(ctx, "Token refresh after 401 failed", "path", req.URL.Path, "error", refreshErr)
				return resp, nil
			}
			drainAndClose(resp)

			retry := req.Clone(ctx)
			if req.GetBody != nil {
				body, bodyErr := req.GetBody()
				if bodyErr != nil {
					return nil, bodyErr
				}
				retry.Body = body
			}
			retry.Header.Set("Authorization", "Bearer "+token)

			log.DebugContext(ctx, "Retrying request with refreshed token", "path", req.URL.Path)
			return next(retry)
		}
	}
}

// Logging returns a middleware that logs each request with its status and
// duration at debug level, and failures at warn level.
func Logging(log *slog.Logger) Middleware {
	return func(next RoundTripFunc) RoundTripFunc {
		return func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next(req)
			duration := time.Since(start)

			if err != nil {
				log.WarnContext(req.Context(), "Request failed",
					"method", req.Method,
					"path", req.URL.Path,
					"duration", duration,
					"error", err)
				return nil, err
			}

			log.DebugContext(req.Context(), "Request completed",
				"method", req.Method,
				"path", req.URL.Path,
				"status", resp.StatusCode,
				"duration", duration)
			return resp, nil
		}
	}
}
