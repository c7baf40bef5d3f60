package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	goIdentity "github.com/MrEthical07/goIdentity"
	identitymw "github.com/MrEthical07/goIdentity/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Engine is the subset of *goIdentity.Engine the handlers call.
type Engine interface {
	Login(ctx context.Context, req goIdentity.LoginRequest) (*goIdentity.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*goIdentity.LoginResult, error)
	identitymw.Verifier
}

// Documents serves the raw well-known documents.
type Documents interface {
	JWKSDocument(ctx context.Context) ([]byte, error)
	OpenIDDocument(ctx context.Context) ([]byte, error)
}

// Deps groups what NewRouter wires together.
type Deps struct {
	Engine    Engine
	Documents Documents
	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler
	Logger  *slog.Logger
}

// NewRouter returns the public identity API.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{engine: deps.Engine, docs: deps.Documents, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(newLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	r.Post("/login/{provider}", h.login)
	r.Post("/refresh", h.refresh)

	r.Route("/.well-known", func(r chi.Router) {
		r.Get("/jwks.json", h.jwks)
		r.Get("/openid-configuration", h.openIDConfiguration)
	})

	r.With(identitymw.Guard(deps.Engine)).Get("/userinfo", h.userInfo)

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	return r
}
