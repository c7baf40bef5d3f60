package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/directory/redisstore"
	"github.com/MrEthical07/goIdentity/internal/retry"
	"github.com/MrEthical07/goIdentity/keys"
	"github.com/MrEthical07/goIdentity/keys/redisring"
	"github.com/MrEthical07/goIdentity/metrics/export/prometheus"
	"github.com/MrEthical07/goIdentity/provider"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testIssuer = "https://id.example.test"

type steamStub struct{}

func (steamStub) Authenticate(_ context.Context, ticket string) (string, error) {
	return "steam-" + ticket, nil
}

type apiEnv struct {
	server *httptest.Server
	ring   *redisring.Ring
	kid    string
}

func newAPI(t *testing.T) *apiEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	ring := redisring.New(rdb, "gi")
	rot := keys.Rotator{Secrets: ring, Publisher: ring, Algorithm: keys.AlgorithmEdDSA, Issuer: testIssuer}
	kid, err := rot.Rotate(context.Background())
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}

	steam, err := provider.NewTicketValidator(provider.Steam, provider.FieldSteamTicket, steamStub{}, retry.Policy{MaxAttempts: 1})
	if err != nil {
		t.Fatalf("ticket validator: %v", err)
	}

	cfg := goIdentity.DefaultConfig()
	cfg.Token.Issuer = testIssuer
	cfg.Identity.GuestSecret.Memory = 8 * 1024
	cfg.Identity.GuestSecret.Time = 1

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := goIdentity.New().
		WithConfig(cfg).
		WithDirectory(redisstore.New(rdb, "gi")).
		WithKeys(ring, ring).
		WithProviders(provider.NewRegistry(steam)).
		WithLogger(logger).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	srv := httptest.NewServer(NewRouter(Deps{
		Engine:    engine,
		Documents: ring,
		Metrics:   prometheus.NewPrometheusExporter(engine).Handler(),
		Logger:    logger,
	}))
	t.Cleanup(srv.Close)

	return &apiEnv{server: srv, ring: ring, kid: kid}
}

func (env *apiEnv) do(t *testing.T, method, path string, body any, header http.Header) (int, map[string]any) {
	t.Helper()

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = strings.NewReader(string(raw))
	}
	req, err := http.NewRequest(method, env.server.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s: %v (%s)", path, err, raw)
		}
	}
	return resp.StatusCode, out
}

func (env *apiEnv) get(t *testing.T, path string, header http.Header) (int, string) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, env.server.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(raw)
}

func str(t *testing.T, body map[string]any, key string) string {
	t.Helper()
	v, ok := body[key].(string)
	if !ok || v == "" {
		t.Fatalf("expected %s in response, got %v", key, body)
	}
	return v
}

func TestGuestLoginAndReplay(t *testing.T) {
	env := newAPI(t)

	status, first := env.do(t, http.MethodPost, "/login/guest", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, first)
	}
	userID := str(t, first, "user_id")
	secret := str(t, first, "guest_secret")
	str(t, first, "auth_token")
	str(t, first, "refresh_token")
	if first["auth_token_expires_in"] != float64(900) {
		t.Fatalf("unexpected access expiry %v", first["auth_token_expires_in"])
	}
	if first["refresh_token_expires_in"] != float64(518400) {
		t.Fatalf("unexpected refresh expiry %v", first["refresh_token_expires_in"])
	}
	if _, ok := first["guest_id"]; ok {
		t.Fatal("guest login must not echo a provider id")
	}

	status, replay := env.do(t, http.MethodPost, "/login/guest", map[string]string{
		"user_id":      userID,
		"guest_secret": secret,
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("replay expected 200, got %d", status)
	}
	if str(t, replay, "user_id") != userID {
		t.Fatal("replay resolved a different user")
	}
	if _, ok := replay["guest_secret"]; ok {
		t.Fatal("replay must not mint a new secret")
	}

	q := url.Values{"user_id": {userID}, "guest_secret": {"wrong"}}
	status, body := env.do(t, http.MethodPost, "/login/guest?"+q.Encode(), nil, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
	if body["error"] != "unauthorized" {
		t.Fatalf("expected generic error body, got %v", body)
	}

	status, body = env.do(t, http.MethodPost, "/login/guest", map[string]string{"user_id": userID}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("user_id without guest_secret expected 400, got %d: %v", status, body)
	}

	status, fresh := env.do(t, http.MethodPost, "/login/guest", map[string]string{"guest_secret": secret}, nil)
	if status != http.StatusOK {
		t.Fatalf("guest_secret alone expected 200, got %d: %v", status, fresh)
	}
	if str(t, fresh, "user_id") == userID || str(t, fresh, "guest_secret") == secret {
		t.Fatal("guest_secret alone must mint a new guest")
	}
}

func TestProviderLoginEchoesProviderID(t *testing.T) {
	env := newAPI(t)

	q := url.Values{provider.FieldSteamTicket: {"abc"}}
	status, body := env.do(t, http.MethodPost, "/login/steam?"+q.Encode(), nil, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}
	if body["steam_id"] != "steam-abc" {
		t.Fatalf("expected steam_id echo, got %v", body)
	}
}

func TestLinkingOverHTTP(t *testing.T) {
	env := newAPI(t)

	_, guest := env.do(t, http.MethodPost, "/login/guest", nil, nil)
	userID := str(t, guest, "user_id")

	status, linked := env.do(t, http.MethodPost, "/login/steam", map[string]any{
		provider.FieldSteamTicket: "link-me",
		FieldLinkingToken:         str(t, guest, "auth_token"),
		FieldLinkFlag:             "Yes",
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, linked)
	}
	if str(t, linked, "user_id") != userID {
		t.Fatal("linked login must resolve to the guest user")
	}

	status, _ = env.do(t, http.MethodPost, "/login/steam", map[string]any{
		provider.FieldSteamTicket: "other",
		FieldLinkFlag:             true,
	}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("link without token expected 400, got %d", status)
	}

	status, body := env.do(t, http.MethodPost, "/login/steam", map[string]any{
		provider.FieldSteamTicket: "third",
		FieldLinkingToken:         "not-a-token",
		FieldLinkFlag:             "yes",
	}, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("invalid linking token expected 401, got %d", status)
	}
	if len(body) != 1 {
		t.Fatalf("error body must only carry the generic message, got %v", body)
	}
}

func TestLoginRejectsBadInput(t *testing.T) {
	env := newAPI(t)

	if status, _ := env.do(t, http.MethodPost, "/login/myspace", nil, nil); status != http.StatusNotFound {
		t.Fatalf("unknown provider expected 404, got %d", status)
	}

	req, _ := http.NewRequest(http.MethodPost, env.server.URL+"/login/guest", strings.NewReader("{not json"))
	resp, err := env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body expected 400, got %d", resp.StatusCode)
	}

	if status, _ := env.do(t, http.MethodPost, "/login/guest", map[string]any{"user_id": []string{"x"}}, nil); status != http.StatusBadRequest {
		t.Fatalf("non-scalar field expected 400, got %d", status)
	}
}

func TestRefreshOverHTTP(t *testing.T) {
	env := newAPI(t)

	_, login := env.do(t, http.MethodPost, "/login/guest", nil, nil)

	status, refreshed := env.do(t, http.MethodPost, "/refresh", map[string]string{
		FieldRefreshToken: str(t, login, "refresh_token"),
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, refreshed)
	}
	if str(t, refreshed, "user_id") != str(t, login, "user_id") {
		t.Fatal("refresh changed the user")
	}

	if status, _ := env.do(t, http.MethodPost, "/refresh", nil, nil); status != http.StatusBadRequest {
		t.Fatalf("missing refresh token expected 400, got %d", status)
	}

	q := url.Values{FieldRefreshToken: {str(t, login, "auth_token")}}
	if status, _ := env.do(t, http.MethodPost, "/refresh?"+q.Encode(), nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("access token as refresh expected 401, got %d", status)
	}
}

func TestWellKnownDocuments(t *testing.T) {
	env := newAPI(t)

	status, jwks := env.get(t, "/.well-known/jwks.json", nil)
	if status != http.StatusOK {
		t.Fatalf("jwks expected 200, got %d", status)
	}
	if !strings.Contains(jwks, env.kid) {
		t.Fatalf("jwks missing current kid %s: %s", env.kid, jwks)
	}
	if strings.Contains(jwks, `"d"`) {
		t.Fatal("jwks must not expose private material")
	}

	status, doc := env.get(t, "/.well-known/openid-configuration", nil)
	if status != http.StatusOK {
		t.Fatalf("openid-configuration expected 200, got %d", status)
	}
	if !strings.Contains(doc, testIssuer+"/.well-known/jwks.json") {
		t.Fatalf("unexpected discovery document: %s", doc)
	}
}

func TestWellKnownNotPublished(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	srv := httptest.NewServer(NewRouter(Deps{Documents: redisring.New(rdb, "gi")}))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/.well-known/jwks.json")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestUserInfoRequiresAccessToken(t *testing.T) {
	env := newAPI(t)

	if status, _ := env.get(t, "/userinfo", nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}

	_, login := env.do(t, http.MethodPost, "/login/guest", nil, nil)

	status, body := env.get(t, "/userinfo", http.Header{
		"Authorization": {"Bearer " + str(t, login, "refresh_token")},
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("refresh token must not pass the guard, got %d", status)
	}

	status, body = env.get(t, "/userinfo", http.Header{
		"Authorization": {"Bearer " + str(t, login, "auth_token")},
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	if !strings.Contains(body, str(t, login, "user_id")) || !strings.Contains(body, `"scope":"guest"`) {
		t.Fatalf("unexpected userinfo body: %s", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newAPI(t)

	env.do(t, http.MethodPost, "/login/guest", nil, nil)

	status, body := env.get(t, "/metrics", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if !strings.Contains(body, "goidentity_login_success_total 1") {
		t.Fatalf("login counter missing from scrape:\n%s", body)
	}
}
