package provider

import (
	"context"
	"errors"
)

// AssertionVerifier checks a client-held assertion and returns the
// provider subject it vouches for.
type AssertionVerifier interface {
	VerifyAssertion(ctx context.Context, cred Credential) (subject string, err error)
}

// AssertionValidator adapts an AssertionVerifier to Validator.
type AssertionValidator struct {
	provider Provider
	verifier AssertionVerifier
}

// NewAssertionValidator returns a validator for p backed by v.
func NewAssertionValidator(p Provider, v AssertionVerifier) (*AssertionValidator, error) {
	if p == "" || p == Guest {
		return nil, errors.New("provider: assertion validator needs a non-guest provider")
	}
	if v == nil {
		return nil, errors.New("provider: assertion verifier required")
	}
	return &AssertionValidator{provider: p, verifier: v}, nil
}

// Provider implements Validator.
func (a *AssertionValidator) Provider() Provider { return a.provider }

// Validate implements Validator.
func (a *AssertionValidator) Validate(ctx context.Context, cred Credential) (Identity, error) {
	subject, err := a.verifier.VerifyAssertion(ctx, cred)
	if err != nil {
		return Identity{}, reject(err)
	}
	if subject == "" {
		return Identity{}, rejectf("%s assertion carried no subject", a.provider)
	}
	return Identity{Provider: a.provider, Subject: subject, Scope: ScopeAuthenticated}, nil
}
