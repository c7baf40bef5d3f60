// Command identity-rotate performs one signing key rotation.
//
// It generates a new key pair, publishes a key set holding the new key and
// the previous one, stores the new private key and refreshes the
// openid-configuration document. Running identityd instances pick the new
// key up on their next key refresh.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/keys"
	"github.com/MrEthical07/goIdentity/keys/redisring"
	"github.com/MrEthical07/goIdentity/provider"
	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
)

type rotateConfig struct {
	Issuer        string        `env:"ISSUER_URL,required,notEmpty"`
	Algorithm     string        `env:"IDENTITY_KEY_ALGORITHM" envDefault:"RS256"`
	RedisAddr     string        `env:"REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB"       envDefault:"0"`
	KeyPrefix     string        `env:"IDENTITY_REDIS_PREFIX" envDefault:"gi"`
	Timeout       time.Duration `env:"IDENTITY_ROTATE_TIMEOUT" envDefault:"30s"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	var cfg rotateConfig
	if err := env.Parse(&cfg); err != nil {
		logger.Error("parse env", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	kid, err := rotate(ctx, redisring.New(rdb, cfg.KeyPrefix), cfg)
	if err != nil {
		logger.Error("key rotation failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("key rotated",
		slog.String("kid", kid),
		slog.String("algorithm", cfg.Algorithm),
		slog.String("issuer", cfg.Issuer),
	)
}

func rotate(ctx context.Context, ring *redisring.Ring, cfg rotateConfig) (string, error) {
	alg := strings.TrimSpace(cfg.Algorithm)
	switch alg {
	case keys.AlgorithmRS256, keys.AlgorithmEdDSA:
	default:
		return "", fmt.Errorf("unsupported key algorithm %q", alg)
	}

	r := keys.Rotator{
		Secrets:   ring,
		Publisher: ring,
		Algorithm: alg,
		Issuer:    cfg.Issuer,
		Scopes:    []string{provider.ScopeGuest, provider.ScopeAuthenticated},
	}
	return r.Rotate(ctx)
}
