package goCreds

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goCreds/internal/audit"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func drainEvents(sink *audit.ChannelSink) []AuditEvent {
	var out []AuditEvent
	for {
		select {
		case ev := <-sink.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestAuditEventsForLoginFlow(t *testing.T) {
	sink := NewChannelSink(64)
	env := newTestEnv(t, func(c *Config) {
		c.Audit.Enabled = true
		c.Verification.ConfirmOnRegister = false
	}, func(b *Builder) {
		b.WithAuditSink(sink)
	})
	ctx := WithClientIP(context.Background(), "203.0.113.7")

	env.register(t, "vera@example.com", "correct-password")
	if _, err := env.engine.Login(ctx, "vera@example.com", "wrong-password", false); err == nil {
		t.Fatal("expected login failure")
	}
	if _, err := env.engine.Login(ctx, "vera@example.com", "correct-password", false); err != nil {
		t.Fatalf("login: %v", err)
	}
	env.engine.Close()

	events := drainEvents(sink)
	var sawFailure, sawSuccess bool
	for _, ev := range events {
		for k, v := range ev.Metadata {
			if strings.Contains(v, "correct-password") || strings.Contains(v, "wrong-password") {
				t.Fatalf("metadata %q leaks the password: %q", k, v)
			}
		}
		switch ev.EventType {
		case auditEventLoginFailure:
			sawFailure = true
			if ev.Success || ev.Error != string(auditErrAuthenticationFailed) || ev.IP != "203.0.113.7" {
				t.Fatalf("unexpected failure event %+v", ev)
			}
			if ev.Metadata["reason"] != "password_mismatch" {
				t.Fatalf("unexpected reason %q", ev.Metadata["reason"])
			}
		case auditEventLoginSuccess:
			sawSuccess = true
			if !ev.Success || ev.SubjectID == "" {
				t.Fatalf("unexpected success event %+v", ev)
			}
		}
	}
	if !sawFailure || !sawSuccess {
		t.Fatalf("missing login events in %+v", events)
	}
	if env.engine.AuditDropped() != 0 {
		t.Fatalf("unexpected drops: %d", env.engine.AuditDropped())
	}
}

func TestAuditDisabledEmitsNothing(t *testing.T) {
	sink := NewChannelSink(8)
	env := newTestEnv(t, nil, func(b *Builder) {
		b.WithAuditSink(sink)
	})
	env.register(t, "walt@example.com", "correct-password")
	env.engine.Close()

	if events := drainEvents(sink); len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestAuditErrorCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want AuditErrorCode
	}{
		{nil, ""},
		{ErrAuthenticationFailed, auditErrAuthenticationFailed},
		{&RateLimitError{Scope: ScopeLogin}, auditErrRateLimited},
		{ErrRefreshInvalid, auditErrInvalidToken},
		{ErrTokenExpired, auditErrTokenExpired},
		{persistenceError(errors.New("boom")), auditErrUnavailable},
		{errors.New("other"), auditErrInternal},
	}
	for _, tc := range cases {
		if got := auditErrorCode(tc.err); got != tc.want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestMetricsCountEngineOperations(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Metrics.Enabled = true
		c.Metrics.EnableLatencyHistograms = true
	})
	ctx := context.Background()

	reg := env.register(t, "xena@example.com", "correct-password")
	_, _ = env.engine.Login(ctx, "xena@example.com", "wrong-password", false)
	if _, err := env.engine.RefreshAccessToken(ctx, reg.Tokens.RefreshToken); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	_, _ = env.engine.RefreshAccessToken(ctx, reg.Tokens.RefreshToken)

	snap := env.engine.MetricsSnapshot()
	checks := map[MetricID]uint64{
		MetricRegisterSuccess:     1,
		MetricEmailConfirmRequest: 1,
		MetricLoginFailure:        1,
		MetricRefreshSuccess:      1,
		MetricRefreshFailure:      1,
	}
	for id, want := range checks {
		if got := snap.Counters[id]; got != want {
			t.Fatalf("metric %d = %d, want %d", id, got, want)
		}
	}

	var refreshSamples uint64
	for _, v := range snap.Histograms[MetricRefreshLatency] {
		refreshSamples += v
	}
	if refreshSamples != 2 {
		t.Fatalf("expected 2 refresh latency samples, got %d", refreshSamples)
	}
}

func TestTracingRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	env := newTestEnv(t, func(c *Config) {
		c.Verification.ConfirmOnRegister = false
	}, func(b *Builder) {
		b.WithTracerProvider(tp)
	})

	env.register(t, "yuri@example.com", "correct-password")
	_, _ = env.engine.Login(context.Background(), "yuri@example.com", "wrong-password", false)

	spans := recorder.Ended()
	byName := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range spans {
		byName[s.Name()] = s
	}

	reg, ok := byName["gocreds.Register"]
	if !ok {
		t.Fatalf("missing register span in %d spans", len(spans))
	}
	if reg.Status().Code != codes.Ok {
		t.Fatalf("register span status %v", reg.Status())
	}

	login, ok := byName["gocreds.Login"]
	if !ok {
		t.Fatal("missing login span")
	}
	if login.Status().Code != codes.Error || login.Status().Description != string(auditErrAuthenticationFailed) {
		t.Fatalf("login span status %+v", login.Status())
	}
}

func TestBuilderValidation(t *testing.T) {
	cfg := testConfig(t)

	if _, err := New().WithConfig(cfg).Build(); err == nil {
		t.Fatal("expected error without user provider")
	}
	if _, err := New().WithConfig(cfg).WithUserProvider(newMemUserProvider()).Build(); err == nil {
		t.Fatal("expected error without storage backend")
	}

	limited := cfg
	limited.LoginLimit.Enabled = true
	if _, err := New().WithConfig(limited).WithUserProvider(newMemUserProvider()).WithSQL(nil, "sqlite").Build(); err == nil {
		t.Fatal("expected error for login limiter without redis")
	}

	if _, err := New().WithConfig(cfg).WithUserProvider(newMemUserProvider()).WithSQL(nil, "mysql").Build(); err == nil {
		t.Fatal("expected error for unknown dialect")
	}

	env := newTestEnv(t, nil)
	b := New().WithConfig(cfg).WithRedis(env.rdb).WithUserProvider(newMemUserProvider())
	e, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer e.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected builder reuse to fail")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{name: "defaults with keys", mutate: func(*Config) {}, wantValid: true},
		{name: "hs256 valid", mutate: func(c *Config) {
			c.JWT.SigningMethod = "hs256"
			c.JWT.AccessPrivateKey = []byte(strings.Repeat("a", 32))
			c.JWT.RefreshPrivateKey = []byte(strings.Repeat("b", 32))
		}, wantValid: true},
		{name: "signing invalid", mutate: func(c *Config) { c.JWT.SigningMethod = "rs256" }},
		{name: "access ttl zero", mutate: func(c *Config) { c.JWT.AccessTTL = 0 }},
		{name: "missing refresh key", mutate: func(c *Config) { c.JWT.RefreshPrivateKey = nil }},
		{name: "crypto key short", mutate: func(c *Config) { c.Crypto.Key = []byte("short") }},
		{name: "password memory low", mutate: func(c *Config) { c.Password.Memory = 1024 }},
		{name: "generated length above max", mutate: func(c *Config) { c.Password.MaxPasswordBytes = 10 }},
		{name: "free attempts zero", mutate: func(c *Config) { c.Verification.FreeAttempts = 0 }},
		{name: "reset ttl zero", mutate: func(c *Config) { c.Verification.PasswordResetTTL = 0 }},
		{name: "login limit window zero", mutate: func(c *Config) {
			c.LoginLimit.Enabled = true
			c.LoginLimit.Window = 0
		}},
		{name: "login limit disabled ignores window", mutate: func(c *Config) {
			c.LoginLimit.Window = 0
		}, wantValid: true},
		{name: "unknown role", mutate: func(c *Config) { c.Account.DefaultRole = "root" }},
		{name: "audit buffer zero", mutate: func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.BufferSize = 0
		}},
		{name: "negative cooldown", mutate: func(c *Config) { c.Verification.Cooldown = -time.Second }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t)
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCloneConfigCopiesKeys(t *testing.T) {
	cfg := testConfig(t)
	clone := cloneConfig(cfg)
	clone.Crypto.Key[0] ^= 0xff
	clone.JWT.AccessPrivateKey[0] ^= 0xff
	if cfg.Crypto.Key[0] == clone.Crypto.Key[0] || cfg.JWT.AccessPrivateKey[0] == clone.JWT.AccessPrivateKey[0] {
		t.Fatal("clone shares key material with the original")
	}
}

func TestRateLimitErrorRetryAfter(t *testing.T) {
	rl := &RateLimitError{Scope: ScopeLogin, UnlockAt: time.Now().Add(-time.Second)}
	if rl.RetryAfter() != 0 {
		t.Fatalf("expected 0 for past unlock, got %v", rl.RetryAfter())
	}
	if !errors.Is(rl, ErrRateLimited) {
		t.Fatal("RateLimitError must match ErrRateLimited")
	}
}
