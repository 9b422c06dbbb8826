package app

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/diptrack/diptrack/internal/observability"
	"github.com/diptrack/diptrack/internal/rbac"
	"github.com/diptrack/diptrack/internal/shared"
)

// requestsPerMinute is the per-IP budget for the whole router.
const requestsPerMinute = 120

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Metrics        *observability.Metrics
	// CSRFExempt lists exact paths that accept unauthenticated JSON posts.
	CSRFExempt []string
}

// MiddlewareStack returns the global chain in the order it must run.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	stack := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		accessLog(cfg.Logger),
		sessionMiddleware(cfg.Logger, cfg.SessionManager),
		middleware.Recoverer,
		middleware.Timeout(timeout),
		secureHeaders(cfg.Logger, cfg.Config),
		middleware.Compress(5),
		httprate.Limit(requestsPerMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
		csrfMiddleware(cfg.Logger, cfg.CSRFManager, cfg.CSRFExempt),
	}
	if cfg.Metrics != nil {
		stack = append(stack, cfg.Metrics.Middleware)
	}
	return stack
}

// accessLog writes one structured line per request once the response is done.
// It reads the principal after the handler ran, so authenticated requests
// carry the user id.
func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			holder := &principalHolder{}
			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), principalHolderKey{}, holder)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("elapsed", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			}
			if holder.userID != 0 {
				attrs = append(attrs, slog.Int64("user_id", holder.userID))
			}
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.LogAttrs(r.Context(), level, "http request", attrs...)
		})
	}
}

type principalHolderKey struct{}

type principalHolder struct{ userID int64 }

// notePrincipal records the authenticated user for the access log line.
func notePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if holder, ok := r.Context().Value(principalHolderKey{}).(*principalHolder); ok {
			if p := rbac.PrincipalFromContext(r.Context()); p != nil {
				holder.userID = p.UserID
			}
		}
		next.ServeHTTP(w, r)
	})
}

// sessionMiddleware loads the cookie session for browser requests and commits
// it just before the first byte of the response. Bearer requests skip it.
func sessionMiddleware(logger *slog.Logger, manager *shared.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hasBearerToken(r) || manager == nil {
				next.ServeHTTP(w, r)
				return
			}
			sess, err := manager.Load(r.Context(), r)
			if err != nil {
				logger.Error("load session", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			ctx := shared.ContextWithSession(r.Context(), sess)
			r = r.WithContext(ctx)
			cw := &committingWriter{ResponseWriter: w, commit: func(w http.ResponseWriter) {
				if err := manager.Commit(ctx, w, r, sess); err != nil {
					logger.Error("commit session", slog.Any("error", err))
				}
			}}
			next.ServeHTTP(cw, r)
			cw.ensureCommitted()
		})
	}
}

// committingWriter runs commit once, before headers leave the process.
type committingWriter struct {
	http.ResponseWriter
	commit    func(http.ResponseWriter)
	committed bool
}

func (w *committingWriter) ensureCommitted() {
	if !w.committed {
		w.committed = true
		w.commit(w.ResponseWriter)
	}
}

func (w *committingWriter) WriteHeader(status int) {
	w.ensureCommitted()
	w.ResponseWriter.WriteHeader(status)
}

func (w *committingWriter) Write(b []byte) (int, error) {
	w.ensureCommitted()
	return w.ResponseWriter.Write(b)
}

func (w *committingWriter) Flush() {
	w.ensureCommitted()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *committingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func secureHeaders(logger *slog.Logger, cfg *Config) func(http.Handler) http.Handler {
	production := cfg != nil && cfg.IsProduction()
	sec := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'",
		SSLRedirect:           production,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		STSSeconds:            stsSeconds(production),
		IsDevelopment:         !production,
	})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := sec.Process(w, r); err != nil {
				logger.Warn("secure headers blocked request", slog.Any("error", err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func stsSeconds(production bool) int64 {
	if production {
		return int64((180 * 24 * time.Hour).Seconds())
	}
	return 0
}

// csrfMiddleware checks the synchronizer token on unsafe cookie-authenticated
// requests. The header wins over the form field so JSON clients need no body.
// Anonymous API calls pass through so the route's permission check rejects
// them as unauthenticated. Anonymous form posts such as login stay guarded.
func csrfMiddleware(logger *slog.Logger, manager *shared.CSRFManager, exemptPaths []string) func(http.Handler) http.Handler {
	exempt := make(map[string]struct{}, len(exemptPaths))
	for _, p := range exemptPaths {
		exempt[p] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) || hasBearerToken(r) {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := exempt[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			sess := shared.SessionFromContext(r.Context())
			if isAPIPath(r.URL.Path) && !signedIn(sess) {
				// Nothing to forge; authorization answers 401.
				next.ServeHTTP(w, r)
				return
			}
			token := r.Header.Get(shared.CSRFHeader)
			if token == "" {
				token = r.PostFormValue(shared.CSRFFormField)
			}
			if err := manager.VerifyToken(r.Context(), sess, token); err != nil {
				logger.Warn("csrf validation failed", slog.String("path", r.URL.Path), slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func isAPIPath(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}

func signedIn(sess *shared.Session) bool {
	_, ok := sess.Identity()
	return ok
}

func hasBearerToken(r *http.Request) bool {
	scheme, _, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	return ok && strings.EqualFold(scheme, "Bearer")
}
