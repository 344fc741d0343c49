// Package httpapi exposes the two-factor lifecycle over JSON/HTTP.
//
// Every response uses one envelope: {"ok":true,"data":...} on success and
// {"ok":false,"reason":"..."} on failure, where reason is one of the
// twofactor reasons or UNAUTHENTICATED.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lessonmart/authcore/pkg/clientip"
	"github.com/lessonmart/authcore/pkg/logger"
	"github.com/lessonmart/authcore/pkg/qrcode"
	"github.com/lessonmart/authcore/pkg/ratelimit"
	"github.com/lessonmart/authcore/pkg/requestid"
	"github.com/lessonmart/authcore/pkg/twofactor"
)

// API serves the /2fa routes.
type API struct {
	svc       *twofactor.Service
	limiter   *ratelimit.Limiter
	resolver  *clientip.Resolver
	identity  IdentityFunc
	challenge IdentityFunc
	logger    *slog.Logger
	qrSize    int
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithChallengeIdentity resolves the user of a sign-in challenge: someone
// whose password was verified but who holds no full session yet. It defaults
// to the main IdentityFunc.
func WithChallengeIdentity(fn IdentityFunc) Option {
	return func(a *API) {
		if fn != nil {
			a.challenge = fn
		}
	}
}

// WithQRCodeSize sets the enrollment QR image edge in pixels.
func WithQRCodeSize(px int) Option {
	return func(a *API) {
		if px > 0 {
			a.qrSize = px
		}
	}
}

// New creates the API. All arguments are required.
func New(svc *twofactor.Service, limiter *ratelimit.Limiter, resolver *clientip.Resolver, identity IdentityFunc, opts ...Option) *API {
	if svc == nil || limiter == nil || resolver == nil || identity == nil {
		panic("httpapi.New: service, limiter, resolver and identity are required")
	}
	a := &API{
		svc:       svc,
		limiter:   limiter,
		resolver:  resolver,
		identity:  identity,
		challenge: identity,
		logger:    logger.Discard(),
		qrSize:    qrcode.DefaultSize,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Routes mounts the /2fa endpoints on r.
func (a *API) Routes(r chi.Router) {
	r.Route("/2fa", func(r chi.Router) {
		r.Use(a.resolver.Middleware)

		r.Post("/setup", a.setup)
		r.Post("/verify", a.verify)
		r.Post("/disable", a.disable)
		r.Post("/backup-codes", a.regenerate)
		r.Post("/challenge", a.signIn)

		r.With(ratelimit.Middleware(a.limiter, ratelimit.PolicyAccountRead, a.userIPKey,
			ratelimit.WithOnLimitReached(func(w http.ResponseWriter, _ *http.Request, res ratelimit.Result) {
				writeRateLimited(w, res)
			}),
			ratelimit.WithSkipFunc(a.anonymous),
		)).Get("/status", a.status)
	})
}

// Handler returns a standalone router with request ids, panic recovery and
// access logging.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(a.accessLog)
	a.Routes(r)
	return r
}

func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.InfoContext(r.Context(), "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("took", time.Since(start)),
			logger.Component("httpapi"))
	})
}

// anonymous requests skip the read limiter and are rejected by the handler.
func (a *API) anonymous(r *http.Request) bool {
	_, ok := a.identity(r)
	return !ok
}

func (a *API) userIPKey(r *http.Request) string {
	id, ok := a.identity(r)
	if !ok {
		return ""
	}
	return ratelimit.UserIPKey(id.UserID.String(), clientip.FromContext(r.Context()))
}

func (a *API) caller(r *http.Request, resolve IdentityFunc) (twofactor.Caller, bool) {
	id, ok := resolve(r)
	if !ok {
		return twofactor.Caller{}, false
	}
	return twofactor.Caller{
		UserID:  id.UserID,
		Account: id.Account,
		IP:      clientip.FromContext(r.Context()),
	}, true
}
