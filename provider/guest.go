package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goIdentity/directory"
	"github.com/MrEthical07/goIdentity/internal/secret"
	"github.com/google/uuid"
)

// Guest credential fields.
const (
	FieldUserID      = "user_id"
	FieldGuestSecret = "guest_secret"
)

// IssuedGuestSecret is the Identity.Issued key holding a newly minted secret.
const IssuedGuestSecret = "guest_secret"

// UserLoader loads users for guest replay.
type UserLoader interface {
	GetUser(ctx context.Context, userID string) (*directory.User, error)
}

// GuestValidator authenticates anonymous players with a backend-minted
// secret. The secret itself is never stored; only its argon2id hash is.
type GuestValidator struct {
	users  UserLoader
	hasher *secret.Argon2
}

// NewGuestValidator returns a validator that replays guests from users.
func NewGuestValidator(users UserLoader, cfg secret.Config) (*GuestValidator, error) {
	if users == nil {
		return nil, errors.New("provider: guest validator requires a user loader")
	}
	h, err := secret.NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	return &GuestValidator{users: users, hasher: h}, nil
}

// Provider implements Validator.
func (g *GuestValidator) Provider() Provider { return Guest }

// Validate replays an existing guest when user_id is present and mints a new
// guest otherwise. A guest_secret sent without user_id is ignored; a user_id
// without guest_secret fails with ErrIncompleteCredential.
func (g *GuestValidator) Validate(ctx context.Context, cred Credential) (Identity, error) {
	userID, guestSecret := cred.Get(FieldUserID), cred.Get(FieldGuestSecret)

	switch {
	case userID == "":
		return g.mint()
	case guestSecret == "":
		return Identity{}, rejectf("%w: %s without %s", ErrIncompleteCredential, FieldUserID, FieldGuestSecret)
	}

	user, err := g.users.GetUser(ctx, userID)
	if errors.Is(err, directory.ErrNotFound) {
		return Identity{}, rejectf("guest %s not found", userID)
	}
	if err != nil {
		return Identity{}, fmt.Errorf("load guest: %w", err)
	}
	if user.GuestSecretHash == "" {
		return Identity{}, rejectf("user %s is not a guest", userID)
	}

	ok, err := g.hasher.Verify(guestSecret, user.GuestSecretHash)
	if err != nil {
		return Identity{}, reject(err)
	}
	if !ok {
		return Identity{}, rejectf("guest secret mismatch")
	}

	return Identity{Provider: Guest, Subject: user.UserID, Canonical: true, Scope: ScopeGuest}, nil
}

func (g *GuestValidator) mint() (Identity, error) {
	raw := uuid.NewString() + "-" + uuid.NewString()
	hash, err := g.hasher.Hash(raw)
	if err != nil {
		return Identity{}, fmt.Errorf("hash guest secret: %w", err)
	}
	return Identity{
		Provider:        Guest,
		Scope:           ScopeGuest,
		GuestSecretHash: hash,
		Issued:          map[string]string{IssuedGuestSecret: raw},
	}, nil
}
