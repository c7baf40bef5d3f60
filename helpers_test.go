package goIdentity

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/directory/redisstore"
	"github.com/MrEthical07/goIdentity/internal/retry"
	"github.com/MrEthical07/goIdentity/keys"
	"github.com/MrEthical07/goIdentity/keys/redisring"
	"github.com/MrEthical07/goIdentity/provider"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testIssuer = "https://id.example.test"

type authorityFunc func(ctx context.Context, ticket string) (string, error)

func (f authorityFunc) Authenticate(ctx context.Context, ticket string) (string, error) {
	return f(ctx, ticket)
}

// echoAuthority accepts any ticket as its own subject, except tickets
// starting with "banned".
func echoAuthority(_ context.Context, ticket string) (string, error) {
	if strings.HasPrefix(ticket, "banned") {
		return "", fmt.Errorf("%w: vac banned", provider.ErrBanned)
	}
	return "steam-" + ticket, nil
}

type testEnv struct {
	mr    *miniredis.Miniredis
	rdb   *redis.Client
	store *redisstore.Store
	ring  *redisring.Ring
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
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
	return mr, rdb
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.Issuer = testIssuer
	cfg.Identity.GuestSecret.Memory = 8 * 1024
	cfg.Identity.GuestSecret.Time = 1
	return cfg
}

func steamValidator(t *testing.T, authority provider.TicketAuthority, policy retry.Policy) provider.Validator {
	t.Helper()
	if policy.MaxAttempts == 0 {
		policy = retry.Policy{MaxAttempts: 1}
	}
	v, err := provider.NewTicketValidator(provider.Steam, provider.FieldSteamTicket, authority, policy)
	if err != nil {
		t.Fatalf("ticket validator: %v", err)
	}
	return v
}

func rotateKey(t *testing.T, env *testEnv) string {
	t.Helper()
	r := keys.Rotator{
		Secrets:   env.ring,
		Publisher: env.ring,
		Algorithm: keys.AlgorithmEdDSA,
		Issuer:    testIssuer,
	}
	kid, err := r.Rotate(context.Background())
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	return kid
}

// newTestEngine builds an engine over miniredis with one rotated key, the
// guest validator and a Steam validator backed by echoAuthority.
func newTestEngine(t *testing.T, mutate func(*Builder)) (*Engine, *testEnv) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	env := &testEnv{
		mr:    mr,
		rdb:   rdb,
		store: redisstore.New(rdb, "gi"),
		ring:  redisring.New(rdb, "gi"),
	}
	rotateKey(t, env)

	b := New().
		WithConfig(testConfig()).
		WithDirectory(env.store).
		WithKeys(env.ring, env.ring).
		WithProviders(provider.NewRegistry(steamValidator(t, authorityFunc(echoAuthority), retry.Policy{}))).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if mutate != nil {
		mutate(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, env
}

func (env *testEnv) userCount() int {
	n := 0
	for _, k := range env.mr.Keys() {
		if strings.HasPrefix(k, "{gi}:user:") {
			n++
		}
	}
	return n
}

func steamLogin(ticket, linkingToken string) LoginRequest {
	return LoginRequest{
		Provider:     provider.Steam,
		Credential:   provider.Credential{provider.FieldSteamTicket: ticket},
		LinkingToken: linkingToken,
	}
}

func waitEvent(t *testing.T, sink *ChannelSink) AuditEvent {
	t.Helper()
	select {
	case ev := <-sink.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("expected audit event")
		return AuditEvent{}
	}
}
