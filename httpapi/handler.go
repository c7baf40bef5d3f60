package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/keys/redisring"
	identitymw "github.com/MrEthical07/goIdentity/middleware"
	"github.com/MrEthical07/goIdentity/provider"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Request fields with a meaning outside any single provider.
const (
	FieldLinkingToken = "auth_token"
	FieldLinkFlag     = "link_to_existing_user"
	FieldRefreshToken = "refresh_token"
)

const maxBodyBytes = 64 << 10

var errBadRequest = errors.New("bad request")

type handler struct {
	engine Engine
	docs   Documents
	logger *slog.Logger
}

type errorBody struct {
	Error string `json:"error"`
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	fields, err := requestFields(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest)
		return
	}

	req, err := loginRequest(provider.Provider(chi.URLParam(r, "provider")), fields)
	if err != nil {
		writeError(w, http.StatusBadRequest)
		return
	}

	res, err := h.engine.Login(requestContext(r), req)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginBody(res))
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	fields, err := requestFields(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest)
		return
	}
	token := strings.TrimSpace(fields[FieldRefreshToken])
	if token == "" {
		writeError(w, http.StatusBadRequest)
		return
	}

	res, err := h.engine.Refresh(requestContext(r), token)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginBody(res))
}

func (h *handler) jwks(w http.ResponseWriter, r *http.Request) {
	h.serveDocument(w, r, Documents.JWKSDocument)
}

func (h *handler) openIDConfiguration(w http.ResponseWriter, r *http.Request) {
	h.serveDocument(w, r, Documents.OpenIDDocument)
}

func (h *handler) serveDocument(w http.ResponseWriter, r *http.Request, load func(Documents, context.Context) ([]byte, error)) {
	if h.docs == nil {
		writeError(w, http.StatusNotFound)
		return
	}
	raw, err := load(h.docs, r.Context())
	if errors.Is(err, redisring.ErrNotPublished) {
		writeError(w, http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "load well-known document",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (h *handler) userInfo(w http.ResponseWriter, r *http.Request) {
	claims, ok := identitymw.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": claims.UserID(),
		"scope":   claims.Scope,
		"exp":     claims.ExpiresAtUnix(),
	})
}

func (h *handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := goIdentity.StatusCode(err)
	if status >= 500 {
		h.logger.ErrorContext(r.Context(), "identity request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	writeError(w, status)
}

// loginRequest splits the linking fields off the provider credential.
func loginRequest(p provider.Provider, fields map[string]string) (goIdentity.LoginRequest, error) {
	link := strings.TrimSpace(fields[FieldLinkFlag])
	token := strings.TrimSpace(fields[FieldLinkingToken])
	delete(fields, FieldLinkFlag)
	delete(fields, FieldLinkingToken)

	req := goIdentity.LoginRequest{Provider: p, Credential: provider.Credential(fields)}
	if linkRequested(link) {
		if token == "" {
			return goIdentity.LoginRequest{}, errBadRequest
		}
		req.LinkingToken = token
	}
	return req, nil
}

func linkRequested(v string) bool {
	return strings.EqualFold(v, "yes") || strings.EqualFold(v, "true")
}

func loginBody(res *goIdentity.LoginResult) map[string]any {
	body := map[string]any{
		"user_id":                  res.UserID,
		"auth_token":               res.AccessToken,
		"refresh_token":            res.RefreshToken,
		"auth_token_expires_in":    res.AccessExpiresIn,
		"refresh_token_expires_in": res.RefreshExpiresIn,
	}
	if res.ProviderSubject != "" && res.Provider != provider.Guest {
		body[string(res.Provider)+"_id"] = res.ProviderSubject
	}
	for k, v := range res.Issued {
		body[k] = v
	}
	return body
}

// requestFields merges query parameters with a JSON object body. Body
// fields win.
func requestFields(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	fields := make(map[string]string)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}

	if r.Body == nil {
		return fields, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var body map[string]any
	err := json.NewDecoder(r.Body).Decode(&body)
	if errors.Is(err, io.EOF) {
		return fields, nil
	}
	if err != nil {
		return nil, err
	}

	for k, v := range body {
		switch val := v.(type) {
		case string:
			fields[k] = val
		case bool:
			fields[k] = strconv.FormatBool(val)
		case float64:
			fields[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case nil:
		default:
			return nil, errBadRequest
		}
	}
	return fields, nil
}

func requestContext(r *http.Request) context.Context {
	ctx := r.Context()

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ctx = goIdentity.WithClientIP(ctx, host)
	if id := middleware.GetReqID(ctx); id != "" {
		ctx = goIdentity.WithRequestID(ctx, id)
	}
	return ctx
}

func writeError(w http.ResponseWriter, status int) {
	writeJSON(w, status, errorBody{Error: strings.ToLower(http.StatusText(status))})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
