package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// Provider names an identity provider.
type Provider string

const (
	Guest      Provider = "guest"
	Apple      Provider = "apple"
	GooglePlay Provider = "google_play"
	Facebook   Provider = "facebook"
	Steam      Provider = "steam"
	Cognito    Provider = "cognito"
)

// Scopes carried by issued tokens.
const (
	ScopeGuest         = "guest"
	ScopeAuthenticated = "authenticated"
)

var (
	// ErrValidation is wrapped by every credential rejection.
	ErrValidation = errors.New("provider: credential rejected")
	// ErrTransient marks failures worth retrying.
	ErrTransient = errors.New("provider: transient failure")
	// ErrBanned marks a credential whose owner is banned by the provider.
	ErrBanned = errors.New("provider: user banned")
	// ErrMissingField means a required credential field was absent.
	ErrMissingField = errors.New("provider: missing credential field")
	// ErrIncompleteCredential means the request names an account but omits
	// the proof for it. It wraps ErrValidation.
	ErrIncompleteCredential = errors.New("provider: incomplete credential")
)

// Credential holds the raw request fields for one login attempt.
type Credential map[string]string

// Get returns the trimmed value of field.
func (c Credential) Get(field string) string {
	return strings.TrimSpace(c[field])
}

// Require returns field or a validation error naming it.
func (c Credential) Require(field string) (string, error) {
	v := c.Get(field)
	if v == "" {
		return "", rejectf("%w: %s", ErrMissingField, field)
	}
	return v, nil
}

// Identity is a verified provider identity.
type Identity struct {
	Provider Provider
	// Subject is the provider-scoped user id. It is empty for a newly
	// minted guest, which has nothing to index.
	Subject string
	// Canonical means Subject is already the backend user id.
	Canonical bool
	Scope     string
	// GuestSecretHash is stored on the user row of a newly minted guest.
	GuestSecretHash string
	// Issued holds values returned to the client exactly once.
	Issued map[string]string
}

// Validator verifies one provider's credentials.
type Validator interface {
	Provider() Provider
	Validate(ctx context.Context, cred Credential) (Identity, error)
}

// Registry maps provider names to validators. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	validators map[Provider]Validator
}

// NewRegistry returns a registry holding vs.
func NewRegistry(vs ...Validator) *Registry {
	r := &Registry{validators: make(map[Provider]Validator, len(vs))}
	for _, v := range vs {
		r.Register(v)
	}
	return r
}

// Register adds or replaces the validator for v.Provider().
func (r *Registry) Register(v Validator) {
	r.mu.Lock()
	r.validators[v.Provider()] = v
	r.mu.Unlock()
}

// Lookup returns the validator registered for name.
func (r *Registry) Lookup(name Provider) (Validator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.validators[name]
	return v, ok
}

// Names returns the registered providers in sorted order.
func (r *Registry) Names() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.validators))
	for p := range r.validators {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type retryObserverKey struct{}

// RetryObserver is told about every retried provider call.
type RetryObserver func(p Provider, attempt int, err error)

// WithRetryObserver attaches obs to ctx. Validators that retry report
// through it.
func WithRetryObserver(ctx context.Context, obs RetryObserver) context.Context {
	return context.WithValue(ctx, retryObserverKey{}, obs)
}

func observeRetry(ctx context.Context, p Provider, attempt int, err error) {
	if obs, ok := ctx.Value(retryObserverKey{}).(RetryObserver); ok && obs != nil {
		obs(p, attempt, err)
	}
}

func rejectf(format string, args ...any) error {
	return fmt.Errorf("%w: %w", ErrValidation, fmt.Errorf(format, args...))
}

func reject(err error) error {
	if errors.Is(err, ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

// transportError strips the query string from a client error. Provider
// endpoints carry API keys and user tokens in the query.
func transportError(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	target := "request"
	if u, perr := url.Parse(ue.URL); perr == nil {
		target = u.Scheme + "://" + u.Host + u.Path
	}
	return fmt.Errorf("%s %s: %w", ue.Op, target, ue.Err)
}
