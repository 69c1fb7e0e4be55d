package api

import (
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oneone404/One-Shield-sub000/internal/apperror"
	"github.com/oneone404/One-Shield-sub000/internal/auth"
	"github.com/oneone404/One-Shield-sub000/internal/crypto"
	"github.com/oneone404/One-Shield-sub000/internal/logging"
	"github.com/oneone404/One-Shield-sub000/internal/metrics"
	"github.com/oneone404/One-Shield-sub000/internal/models"
)

// responseWriter wraps http.ResponseWriter to capture status codes.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.ResponseWriter.WriteHeader(code)
		rw.written = true
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// requests is the outermost middleware: request IDs, panic recovery,
// request metrics, and failure logging.
func (rt *Router) requests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		incomingID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		ctxWithID, requestID := logging.WithRequestID(r.Context(), incomingID)
		r = r.WithContext(ctxWithID)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		rw.Header().Set("X-Request-ID", requestID)

		start := time.Now()
		route := normalizeRoute(r.URL.Path)

		defer func() {
			metrics.RecordHTTPRequest(r.Method, route, rw.statusCode, time.Since(start).Seconds())
		}()

		defer func() {
			if err := recover(); err != nil {
				log.Error().
					Interface("error", err).
					Str("path", r.URL.Path).
					Str("method", r.Method).
					Str("request_id", requestID).
					Bytes("stack", debug.Stack()).
					Msg("Panic recovered in API handler")
				writeError(rw, r, apperror.Internal(nil))
			}
		}()

		next.ServeHTTP(rw, r)

		if rw.statusCode >= 400 {
			log.Warn().
				Str("path", r.URL.Path).
				Str("method", r.Method).
				Int("status", rw.statusCode).
				Str("request_id", requestID).
				Msg("Request failed")
		}
	})
}

// requireUser authenticates the dashboard JWT and stores the principal on
// the request context. The org claim is the tenant key for every
// downstream query.
func (rt *Router) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			metrics.RecordAuthFailure("jwt")
			writeError(w, r, apperror.Unauthorized())
			return
		}
		claims, err := rt.jwt.Verify(token)
		if err != nil {
			metrics.RecordAuthFailure("jwt")
			writeError(w, r, err)
			return
		}
		role, err := models.ParseRole(claims.Role)
		if err != nil {
			metrics.RecordAuthFailure("jwt")
			writeError(w, r, apperror.TokenInvalid())
			return
		}
		p := &auth.Principal{UserID: claims.Subject, OrgID: claims.OrgID, Role: role}
		next(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	}
}

// requireAgent authenticates an agent bearer token by its SHA-256 hash and
// stores the endpoint on the request context.
func (rt *Router) requireAgent(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			metrics.RecordAuthFailure("agent_token")
			writeError(w, r, apperror.Unauthorized())
			return
		}
		hash := crypto.HashToken(token)
		endpoint, err := rt.store.GetEndpointByTokenHash(r.Context(), hash)
		if err != nil {
			writeError(w, r, storeErr(err))
			return
		}
		// The final equality runs in constant time even though the lookup
		// was by index.
		if endpoint == nil || !crypto.HashEqual(endpoint.TokenHash, hash) {
			metrics.RecordAuthFailure("agent_token")
			writeError(w, r, apperror.TokenInvalid())
			return
		}
		next(w, r.WithContext(auth.WithEndpoint(r.Context(), endpoint)))
	}
}

// requireAdmin is the explicit in-handler RBAC check. Denials are audit
// logged with the route that was refused.
func (rt *Router) requireAdmin(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, r, apperror.Unauthorized())
		return nil, false
	}
	if !p.IsAdmin() {
		rt.audit(r, p.OrgID, p.UserID, "rbac.denied", "route", r.Pattern, nil)
		writeError(w, r, apperror.Forbidden())
		return nil, false
	}
	return p, true
}

// principal returns the authenticated user or answers 401.
func principal(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, r, apperror.Unauthorized())
		return nil, false
	}
	return p, true
}

// endpointFrom returns the authenticated agent's endpoint or answers 401.
func endpointFrom(w http.ResponseWriter, r *http.Request) (*models.Endpoint, bool) {
	e, ok := auth.EndpointFrom(r.Context())
	if !ok {
		writeError(w, r, apperror.Unauthorized())
		return nil, false
	}
	return e, true
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// clientIP extracts the caller address, honoring the first X-Forwarded-For
// hop when present.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func normalizeRoute(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}

	segments := strings.Split(path, "/")
	normSegments := make([]string, 0, len(segments))
	count := 0
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		count++
		if count > 6 {
			break
		}
		normSegments = append(normSegments, normalizeSegment(seg))
	}
	if len(normSegments) == 0 {
		return "/"
	}
	return "/" + strings.Join(normSegments, "/")
}

func normalizeSegment(seg string) string {
	if isNumeric(seg) {
		return ":id"
	}
	if looksLikeUUID(seg) {
		return ":uuid"
	}
	if len(seg) > 32 {
		return ":token"
	}
	return seg
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func looksLikeUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i, r := range s {
		switch {
		case r == '-':
			if i != 8 && i != 13 && i != 18 && i != 23 {
				return false
			}
		case (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F'):
			continue
		default:
			return false
		}
	}
	return true
}
