package goIdentity

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/provider"
)

func TestAuditDisabledEmitsNothing(t *testing.T) {
	sink := NewChannelSink(8)
	engine, _ := newTestEngine(t, func(b *Builder) {
		b.WithAuditSink(sink)
	})

	if _, err := engine.Login(context.Background(), steamLogin("quiet", "")); err != nil {
		t.Fatalf("login: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	select {
	case ev := <-sink.Events():
		t.Fatalf("expected no events when audit is disabled, got %q", ev.EventType)
	default:
	}
}

func TestAuditLoginEventsCarryContextAndNoSecrets(t *testing.T) {
	sink := NewChannelSink(16)
	engine, _ := newTestEngine(t, func(b *Builder) {
		cfg := testConfig()
		cfg.Audit.Enabled = true
		cfg.Audit.BufferSize = 16
		cfg.Audit.DropIfFull = false
		b.WithConfig(cfg).WithAuditSink(sink)
	})

	ctx := WithRequestID(WithClientIP(context.Background(), "198.51.100.33"), "req-1")
	res, err := engine.Login(ctx, LoginRequest{Provider: provider.Guest})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	created := waitEvent(t, sink)
	if created.EventType != auditEventUserCreated || created.UserID != res.UserID {
		t.Fatalf("unexpected first event %+v", created)
	}
	success := waitEvent(t, sink)
	if success.EventType != auditEventLoginSuccess || !success.Success {
		t.Fatalf("unexpected second event %+v", success)
	}
	if success.IP != "198.51.100.33" || success.RequestID != "req-1" || success.Provider != "guest" {
		t.Fatalf("context not carried: %+v", success)
	}
	if success.Metadata["outcome"] != "created" {
		t.Fatalf("expected outcome metadata, got %v", success.Metadata)
	}

	needles := []string{res.AccessToken, res.RefreshToken, res.Issued[provider.IssuedGuestSecret]}
	for _, ev := range []AuditEvent{created, success} {
		for _, n := range needles {
			if strings.Contains(ev.Error, n) {
				t.Fatal("secret leaked in audit error field")
			}
			for k, v := range ev.Metadata {
				if strings.Contains(k, n) || strings.Contains(v, n) {
					t.Fatal("secret leaked in audit metadata")
				}
			}
		}
	}
}

func TestAuditFailureUsesStableCode(t *testing.T) {
	sink := NewChannelSink(16)
	engine, _ := newTestEngine(t, func(b *Builder) {
		cfg := testConfig()
		cfg.Audit.Enabled = true
		b.WithConfig(cfg).WithAuditSink(sink)
	})

	if _, err := engine.Login(context.Background(), steamLogin("banned-7", "")); err == nil {
		t.Fatal("expected login failure")
	}
	ev := waitEvent(t, sink)
	if ev.EventType != auditEventLoginFailure || ev.Success {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Error != string(auditErrAuthenticationFailed) {
		t.Fatalf("expected %q, got %q", auditErrAuthenticationFailed, ev.Error)
	}
	if ev.Metadata["stage"] != "validating" {
		t.Fatalf("expected validating stage, got %v", ev.Metadata)
	}

	if _, err := engine.Refresh(context.Background(), "garbage"); err == nil {
		t.Fatal("expected refresh failure")
	}
	ev = waitEvent(t, sink)
	if ev.EventType != auditEventRefreshInvalid || ev.Error != string(auditErrInvalidToken) {
		t.Fatalf("unexpected refresh event %+v", ev)
	}
}

func TestAuditErrorCodeMapping(t *testing.T) {
	cases := map[error]AuditErrorCode{
		nil:                      "",
		ErrLinkConflict:          auditErrLinkConflict,
		ErrKeyUnavailable:        auditErrKeyUnavailable,
		ErrBadSignature:          auditErrInvalidToken,
		ErrDirectoryUnavailable:  auditErrUnavailable,
		ErrUserCreationExhausted: auditErrCreationExhausted,
		context.Canceled:         auditErrInternal,
	}
	for err, want := range cases {
		if got := auditErrorCode(err); got != want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", err, got, want)
		}
	}
}
