package goIdentity_test

import (
	"context"
	"errors"
	"net/http"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/directory/redisstore"
	"github.com/MrEthical07/goIdentity/keys/redisring"
	"github.com/MrEthical07/goIdentity/provider"
	"github.com/redis/go-redis/v9"
)

// ExampleNew builds an Engine over Redis with keys published by
// identity-rotate.
func ExampleNew() {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	ring := redisring.New(rdb, "gi")

	cfg := goIdentity.DefaultConfig()
	cfg.Token.Issuer = "https://id.example.com"

	engine, err := goIdentity.New().
		WithConfig(cfg).
		WithDirectory(redisstore.New(rdb, "gi")).
		WithKeys(ring, ring).
		Build()
	if err != nil {
		return
	}
	defer engine.Close()
}

// ExampleEngine_Login logs a returning guest in and maps failures to HTTP
// status codes.
func ExampleEngine_Login() {
	var engine *goIdentity.Engine

	res, err := engine.Login(context.Background(), goIdentity.LoginRequest{
		Provider: provider.Guest,
		Credential: provider.Credential{
			provider.FieldUserID:      "0b6c3c1e-9a43-4f57-8f0b-7f5f0a3b2d11",
			provider.FieldGuestSecret: "stored-guest-secret",
		},
	})
	if err != nil {
		if goIdentity.StatusCode(err) == http.StatusUnauthorized {
			_ = errors.Is(err, goIdentity.ErrAuthenticationFailed)
		}
		return
	}
	_ = res.AccessToken
}

// ExampleEngine_MetricsSnapshot reads the in-process counters.
func ExampleEngine_MetricsSnapshot() {
	var engine *goIdentity.Engine
	snapshot := engine.MetricsSnapshot()
	_ = snapshot.Counters[goIdentity.MetricLoginSuccess]
}
