package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/provider"
)

// LoginStage is the state a login attempt reached.
type LoginStage int

const (
	LoginValidating LoginStage = iota
	LoginResolving
	LoginIssuing
	LoginDone
)

func (s LoginStage) String() string {
	switch s {
	case LoginResolving:
		return "resolving"
	case LoginIssuing:
		return "issuing"
	case LoginDone:
		return "done"
	default:
		return "validating"
	}
}

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureUnknownProvider
	LoginFailureValidation
	// LoginFailureDependency means a validator could not reach a backing
	// store. It is not a verdict on the credential.
	LoginFailureDependency
	LoginFailureResolve
	LoginFailureIssue
)

// LoginInput is one login attempt.
type LoginInput struct {
	Provider     provider.Provider
	Credential   provider.Credential
	LinkingToken string
}

// LoginResult carries either the issued token pair or failure metadata.
// No tokens are set unless Stage is LoginDone.
type LoginResult struct {
	Failure  LoginFailureKind
	Resolve  ResolveFailureKind
	Err      error
	Stage    LoginStage
	Identity provider.Identity
	UserID   string
	Outcome  ResolveOutcome
	Pair     jwt.Pair
	// Collisions counts user id collisions during creation.
	Collisions int
}

// ValidatorSet looks validators up by provider.
type ValidatorSet interface {
	Lookup(p provider.Provider) (provider.Validator, bool)
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	Validators ValidatorSet
	Resolve    ResolveDeps
	IssuePair  func(ctx context.Context, userID, scope string, priorRefreshExpiry int64) (jwt.Pair, error)
}

// RunLogin validates a credential, resolves the canonical user and issues a
// token pair. Any failure stops the attempt with no tokens.
func RunLogin(ctx context.Context, in LoginInput, deps LoginDeps) LoginResult {
	v, ok := deps.Validators.Lookup(in.Provider)
	if !ok {
		return LoginResult{Failure: LoginFailureUnknownProvider, Stage: LoginValidating}
	}

	id, err := v.Validate(ctx, in.Credential)
	if err != nil {
		kind := LoginFailureValidation
		if !errors.Is(err, provider.ErrValidation) {
			kind = LoginFailureDependency
		}
		return LoginResult{Failure: kind, Err: err, Stage: LoginValidating}
	}

	res := RunResolve(ctx, id, in.LinkingToken, deps.Resolve)
	if res.Failure != ResolveFailureNone {
		return LoginResult{
			Failure:    LoginFailureResolve,
			Resolve:    res.Failure,
			Err:        res.Err,
			Stage:      LoginResolving,
			Identity:   id,
			Collisions: res.Collisions,
		}
	}

	pair, err := deps.IssuePair(ctx, res.UserID, id.Scope, 0)
	if err != nil {
		return LoginResult{
			Failure:    LoginFailureIssue,
			Err:        err,
			Stage:      LoginIssuing,
			Identity:   id,
			UserID:     res.UserID,
			Outcome:    res.Outcome,
			Collisions: res.Collisions,
		}
	}

	return LoginResult{
		Stage:      LoginDone,
		Identity:   id,
		UserID:     res.UserID,
		Outcome:    res.Outcome,
		Pair:       pair,
		Collisions: res.Collisions,
	}
}
