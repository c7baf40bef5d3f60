package goIdentity

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess   = "login_success"
	auditEventLoginFailure   = "login_failure"
	auditEventUserCreated    = "user_created"
	auditEventIdentityLinked = "identity_linked"
	auditEventRefreshSuccess = "refresh_success"
	auditEventRefreshInvalid = "refresh_invalid"
)

// AuditErrorCode is the stable error label written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrAuthenticationFailed AuditErrorCode = "authentication_failed"
	auditErrCredentialIncomplete AuditErrorCode = "credential_incomplete"
	auditErrUnknownProvider      AuditErrorCode = "unknown_provider"
	auditErrLinkingTokenInvalid  AuditErrorCode = "linking_token_invalid"
	auditErrLinkTargetMissing    AuditErrorCode = "link_target_missing"
	auditErrLinkConflict         AuditErrorCode = "link_conflict"
	auditErrCreationExhausted    AuditErrorCode = "user_creation_exhausted"
	auditErrKeyUnavailable       AuditErrorCode = "key_unavailable"
	auditErrInvalidToken         AuditErrorCode = "invalid_token"
	auditErrUnavailable          AuditErrorCode = "backend_unavailable"
	auditErrInternal             AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	provider string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Provider:  provider,
		IP:        clientIPFromContext(ctx),
		RequestID: requestIDFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrAuthenticationFailed):
		return auditErrAuthenticationFailed
	case errors.Is(err, ErrCredentialIncomplete):
		return auditErrCredentialIncomplete
	case errors.Is(err, ErrUnknownProvider):
		return auditErrUnknownProvider
	case errors.Is(err, ErrLinkingTokenInvalid):
		return auditErrLinkingTokenInvalid
	case errors.Is(err, ErrLinkTargetMissing):
		return auditErrLinkTargetMissing
	case errors.Is(err, ErrLinkConflict):
		return auditErrLinkConflict
	case errors.Is(err, ErrUserCreationExhausted):
		return auditErrCreationExhausted
	case errors.Is(err, ErrKeyUnavailable):
		return auditErrKeyUnavailable
	case errors.Is(err, ErrRefreshInvalid),
		errors.Is(err, ErrUnknownKey),
		errors.Is(err, ErrIssuerMismatch),
		errors.Is(err, ErrAudienceMismatch),
		errors.Is(err, ErrExpired),
		errors.Is(err, ErrNotYetValid),
		errors.Is(err, ErrBadSignature),
		errors.Is(err, ErrMalformedToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrDirectoryUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
