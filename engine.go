package goIdentity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/goIdentity/directory"
	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/keys"
	"github.com/MrEthical07/goIdentity/provider"
)

// Engine authenticates provider credentials and issues token pairs.
//
// An Engine is built once by Builder.Build and is safe for concurrent use.
// It keeps no per-request state; the only process-wide caches belong to
// its keys.Manager.
type Engine struct {
	config    Config
	directory directory.Store
	keys      *keys.Manager
	codec     *jwt.Codec
	providers *provider.Registry
	flow      flows.Service
	audit     *audit.Dispatcher
	metrics   *Metrics
	logger    *slog.Logger
}

// LoginRequest is one login attempt.
type LoginRequest struct {
	Provider   provider.Provider
	Credential provider.Credential
	// LinkingToken, when set, is an access token of the user the provider
	// identity should be attached to.
	LinkingToken string
}

// LoginResult is a successfully issued token pair.
type LoginResult struct {
	UserID           string
	AccessToken      string
	RefreshToken     string
	AccessExpiresIn  int64
	RefreshExpiresIn int64
	Scope            string

	Provider        provider.Provider
	ProviderSubject string
	// Issued holds values returned to the client once, such as a newly
	// minted guest secret.
	Issued map[string]string
	// Outcome is "existing", "linked" or "created". Empty for refresh.
	Outcome string
}

// Close stops the audit dispatcher after draining queued events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Providers lists registered provider names in sorted order.
func (e *Engine) Providers() []provider.Provider {
	if e == nil || e.providers == nil {
		return nil
	}
	return e.providers.Names()
}

// Issuer returns the iss claim the Engine signs with.
func (e *Engine) Issuer() string {
	if e == nil || e.codec == nil {
		return ""
	}
	return e.codec.Issuer()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.codec != nil && e.flow.Initialized()
}

// Login validates req.Credential with the provider's validator, resolves
// the canonical user and issues a token pair.
//
// Rejected credentials always surface as ErrAuthenticationFailed. No
// tokens are returned unless every stage succeeded.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricLoginLatency, time.Since(start))
	}()

	ctx = provider.WithRetryObserver(ctx, func(p provider.Provider, attempt int, err error) {
		e.metricInc(MetricProviderRetry)
		e.logger.WarnContext(ctx, "goIdentity: provider transient failure, retrying",
			"provider", string(p), "attempt", attempt, "error", err)
	})

	res := e.flow.Login(ctx, flows.LoginInput{
		Provider:     req.Provider,
		Credential:   req.Credential,
		LinkingToken: req.LinkingToken,
	})
	e.metrics.Add(MetricUserCreateCollision, uint64(res.Collisions))

	if res.Failure != flows.LoginFailureNone {
		err := e.loginError(ctx, req.Provider, res)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, res.UserID, string(req.Provider), err, func() map[string]string {
			return map[string]string{"stage": res.Stage.String()}
		})
		return nil, err
	}

	switch res.Outcome {
	case flows.ResolvedCreated:
		e.metricInc(MetricUserCreated)
		e.emitAudit(ctx, auditEventUserCreated, true, res.UserID, string(req.Provider), nil, nil)
	case flows.ResolvedLinked:
		e.metricInc(MetricUserLinked)
		e.emitAudit(ctx, auditEventIdentityLinked, true, res.UserID, string(req.Provider), nil, nil)
	}
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, res.UserID, string(req.Provider), nil, func() map[string]string {
		return map[string]string{"outcome": res.Outcome.String()}
	})

	return &LoginResult{
		UserID:           res.UserID,
		AccessToken:      res.Pair.AccessToken,
		RefreshToken:     res.Pair.RefreshToken,
		AccessExpiresIn:  res.Pair.AccessExpiresIn,
		RefreshExpiresIn: res.Pair.RefreshExpiresIn,
		Scope:            res.Identity.Scope,
		Provider:         res.Identity.Provider,
		ProviderSubject:  res.Identity.Subject,
		Issued:           res.Identity.Issued,
		Outcome:          res.Outcome.String(),
	}, nil
}

func (e *Engine) loginError(ctx context.Context, p provider.Provider, res flows.LoginResult) error {
	switch res.Failure {
	case flows.LoginFailureUnknownProvider:
		return ErrUnknownProvider
	case flows.LoginFailureValidation:
		e.metricInc(MetricProviderRejected)
		e.logger.InfoContext(ctx, "goIdentity: credential rejected", "provider", string(p), "error", res.Err)
		if errors.Is(res.Err, provider.ErrIncompleteCredential) {
			return ErrCredentialIncomplete
		}
		return ErrAuthenticationFailed
	case flows.LoginFailureDependency:
		e.metricInc(MetricProviderUnavailable)
		e.logger.WarnContext(ctx, "goIdentity: provider dependency failed", "provider", string(p), "error", res.Err)
		if errors.Is(res.Err, directory.ErrUnavailable) {
			return ErrDirectoryUnavailable
		}
		return ErrAuthenticationFailed
	case flows.LoginFailureResolve:
		return e.resolveError(ctx, p, res)
	case flows.LoginFailureIssue:
		return e.issueError(ctx, res.Err)
	default:
		return fmt.Errorf("login failed at %s", res.Stage)
	}
}

func (e *Engine) resolveError(ctx context.Context, p provider.Provider, res flows.LoginResult) error {
	switch res.Resolve {
	case flows.ResolveFailureLinkToken:
		e.metricInc(MetricLinkRejected)
		return ErrLinkingTokenInvalid
	case flows.ResolveFailureLinkTarget:
		e.metricInc(MetricLinkRejected)
		return ErrLinkTargetMissing
	case flows.ResolveFailureLinkConflict:
		e.metricInc(MetricLinkRejected)
		return ErrLinkConflict
	case flows.ResolveFailureCreateExhausted:
		e.logger.ErrorContext(ctx, "goIdentity: user id candidates exhausted", "provider", string(p), "collisions", res.Collisions)
		return ErrUserCreationExhausted
	default:
		e.logger.ErrorContext(ctx, "goIdentity: directory failure during resolve", "provider", string(p), "error", res.Err)
		return ErrDirectoryUnavailable
	}
}

func (e *Engine) issueError(ctx context.Context, err error) error {
	e.logger.ErrorContext(ctx, "goIdentity: token issuance failed", "error", err)
	if errors.Is(err, keys.ErrKeyUnavailable) {
		return ErrKeyUnavailable
	}
	return fmt.Errorf("issue tokens: %w", err)
}

// Refresh exchanges a refresh token for a new pair. The new refresh token
// keeps the original expiry and the access scope the chain started with.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricRefreshLatency, time.Since(start))
	}()

	res := e.flow.Refresh(ctx, refreshToken)
	if res.Failure != flows.RefreshFailureNone {
		err := ErrRefreshInvalid
		if res.Failure == flows.RefreshFailureIssue {
			err = e.issueError(ctx, res.Err)
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, "", nil, nil)

	return &LoginResult{
		UserID:           res.UserID,
		AccessToken:      res.Pair.AccessToken,
		RefreshToken:     res.Pair.RefreshToken,
		AccessExpiresIn:  res.Pair.AccessExpiresIn,
		RefreshExpiresIn: res.Pair.RefreshExpiresIn,
		Scope:            res.Scope,
	}, nil
}

// Verify checks an access token for backend services. Refresh tokens are
// rejected with ErrAudienceMismatch.
func (e *Engine) Verify(ctx context.Context, accessToken string) (*jwt.Claims, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	claims, err := e.codec.Verify(ctx, accessToken, e.config.Token.Audience)
	if err != nil {
		e.metricInc(MetricVerifyFailure)
		return nil, err
	}
	e.metricInc(MetricVerifySuccess)
	return claims, nil
}

func (e *Engine) observeKeyRefresh(kind keys.RefreshKind, err error) {
	switch kind {
	case keys.RefreshSigningKey:
		if err != nil {
			e.metricInc(MetricSigningKeyRefreshFailure)
			e.logger.Error("goIdentity: signing key refresh failed", "error", err)
			return
		}
		e.metricInc(MetricSigningKeyRefresh)
	case keys.RefreshJWKS:
		if err != nil {
			e.metricInc(MetricJWKSRefreshFailure)
			e.logger.Warn("goIdentity: key set refresh failed", "error", err)
			return
		}
		e.metricInc(MetricJWKSRefresh)
	}
}
