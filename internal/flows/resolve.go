package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goIdentity/directory"
	"github.com/MrEthical07/goIdentity/provider"
)

// ResolveFailureKind classifies resolution failures for root-level mapping.
type ResolveFailureKind int

const (
	ResolveFailureNone ResolveFailureKind = iota
	ResolveFailureLinkToken
	ResolveFailureLinkTarget
	ResolveFailureLinkConflict
	ResolveFailureCreateExhausted
	ResolveFailureStore
)

// ResolveOutcome says how the user was found.
type ResolveOutcome int

const (
	ResolvedExisting ResolveOutcome = iota
	ResolvedLinked
	ResolvedCreated
)

func (o ResolveOutcome) String() string {
	switch o {
	case ResolvedLinked:
		return "linked"
	case ResolvedCreated:
		return "created"
	default:
		return "existing"
	}
}

// DefaultMaxCreateAttempts bounds user id collisions during creation.
const DefaultMaxCreateAttempts = 10

// ResolveResult carries either the canonical user id or failure metadata.
type ResolveResult struct {
	Failure ResolveFailureKind
	Err     error
	UserID  string
	Outcome ResolveOutcome
	// Collisions counts candidate user ids that were already taken.
	Collisions int
}

// ResolveDeps captures identity resolution dependencies.
type ResolveDeps struct {
	Store directory.Store
	// VerifyLinkingToken checks an access token presented for linking and
	// returns its subject.
	VerifyLinkingToken func(ctx context.Context, token string) (string, error)
	NewUserID          func() string
	Now                func() time.Time
	MaxCreateAttempts  int
	Warn               func(string, ...any)
}

// RunResolve maps a verified identity to exactly one canonical user id.
//
// An existing index entry always wins, even over a linking request. Without
// one, a linking token attaches the identity to the token's user; otherwise
// a new user is created.
func RunResolve(ctx context.Context, id provider.Identity, linkingToken string, deps ResolveDeps) ResolveResult {
	if id.Canonical {
		return ResolveResult{UserID: id.Subject, Outcome: ResolvedExisting}
	}

	indexed := id.Subject != ""
	link := directory.Link{Provider: string(id.Provider), Subject: id.Subject}

	if indexed {
		owner, err := deps.Store.LookupIdentity(ctx, link)
		if err == nil {
			return ResolveResult{UserID: owner, Outcome: ResolvedExisting}
		}
		if !errors.Is(err, directory.ErrNotFound) {
			return ResolveResult{Failure: ResolveFailureStore, Err: err}
		}
	}

	if indexed && linkingToken != "" {
		return runLink(ctx, link, linkingToken, deps)
	}
	return runCreate(ctx, id, link, indexed, deps)
}

func runLink(ctx context.Context, link directory.Link, token string, deps ResolveDeps) ResolveResult {
	target, err := deps.VerifyLinkingToken(ctx, token)
	if err != nil {
		return ResolveResult{Failure: ResolveFailureLinkToken, Err: err}
	}

	err = deps.Store.UpdateUserIfExists(ctx, target, link)
	switch {
	case err == nil:
	case errors.Is(err, directory.ErrNotFound):
		return ResolveResult{Failure: ResolveFailureLinkTarget, Err: err}
	case errors.Is(err, directory.ErrLinkConflict):
		return ResolveResult{Failure: ResolveFailureLinkConflict, Err: err}
	case errors.Is(err, directory.ErrIdentityTaken):
		// A concurrent login indexed the identity first.
		return resolveOwner(ctx, link, deps)
	default:
		return ResolveResult{Failure: ResolveFailureStore, Err: err}
	}

	if err := deps.Store.InsertIdentityIfAbsent(ctx, link, target); err != nil {
		if errors.Is(err, directory.ErrIdentityTaken) {
			return resolveOwner(ctx, link, deps)
		}
		warn(deps, "goIdentity: index confirmation after link failed", "provider", link.Provider, "error", err)
	}
	return ResolveResult{UserID: target, Outcome: ResolvedLinked}
}

func runCreate(ctx context.Context, id provider.Identity, link directory.Link, indexed bool, deps ResolveDeps) ResolveResult {
	attempts := deps.MaxCreateAttempts
	if attempts <= 0 {
		attempts = DefaultMaxCreateAttempts
	}
	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}

	collisions := 0
	for i := 0; i < attempts; i++ {
		user := &directory.User{
			UserID:          deps.NewUserID(),
			GuestSecretHash: id.GuestSecretHash,
			CreatedAt:       now(),
		}
		if indexed {
			user.Links = map[string]string{link.Provider: link.Subject}
		}

		err := deps.Store.InsertUserIfAbsent(ctx, user)
		switch {
		case err == nil:
			if indexed {
				if err := deps.Store.InsertIdentityIfAbsent(ctx, link, user.UserID); err != nil {
					warn(deps, "goIdentity: index confirmation after create failed", "provider", link.Provider, "error", err)
				}
			}
			return ResolveResult{UserID: user.UserID, Outcome: ResolvedCreated, Collisions: collisions}
		case errors.Is(err, directory.ErrUserExists):
			collisions++
			continue
		case errors.Is(err, directory.ErrIdentityTaken):
			res := resolveOwner(ctx, link, deps)
			res.Collisions = collisions
			return res
		default:
			return ResolveResult{Failure: ResolveFailureStore, Err: err, Collisions: collisions}
		}
	}

	return ResolveResult{
		Failure:    ResolveFailureCreateExhausted,
		Err:        errors.New("user id candidates exhausted"),
		Collisions: collisions,
	}
}

func resolveOwner(ctx context.Context, link directory.Link, deps ResolveDeps) ResolveResult {
	owner, err := deps.Store.LookupIdentity(ctx, link)
	if err != nil {
		return ResolveResult{Failure: ResolveFailureStore, Err: err}
	}
	return ResolveResult{UserID: owner, Outcome: ResolvedExisting}
}

func warn(deps ResolveDeps, msg string, args ...any) {
	if deps.Warn != nil {
		deps.Warn(msg, args...)
	}
}
