package main

import (
	"net/http"
	"testing"
	"time"

	"github.com/shield4u/pagescope/internal/util"
)

func TestLoadConfigDefaults(t *testing.T) {
	// Clear every knob so the defaults apply
	for _, key := range []string{
		"PORT", "ENV", "SENTRY_DSN", "LOG_LEVEL", "DEBUG", "SERVICE_NAME",
		"CALLBACK_URL", "LEGACY_CALLBACK_URL", "CALLBACK_TIMEOUT_SECONDS",
		"CALLBACK_JWT_SECRET", "RENDERER", "CHROME_PATH",
		"RENDER_TIMEOUT_SECONDS", "RENDER_SETTLE_MS", "MAX_RENDER_SESSIONS",
		"INCLUDE_SUBDOMAINS", "SCOPE_POLICY_FILE", "OBSERVABILITY_ENABLED",
	} {
		t.Setenv(key, "")
	}

	config := loadConfig()

	if config.Port != "8080" {
		t.Errorf("Port: got %q, want %q", config.Port, "8080")
	}
	if config.Env != "development" {
		t.Errorf("Env: got %q, want %q", config.Env, "development")
	}
	if config.LogLevel != "info" {
		t.Errorf("LogLevel: got %q, want %q", config.LogLevel, "info")
	}
	if config.ServiceName != "crawler" {
		t.Errorf("ServiceName: got %q, want %q", config.ServiceName, "crawler")
	}
	if config.CallbackTimeout != 10*time.Second {
		t.Errorf("CallbackTimeout: got %v, want %v", config.CallbackTimeout, 10*time.Second)
	}
	if config.Renderer != "chrome" {
		t.Errorf("Renderer: got %q, want %q", config.Renderer, "chrome")
	}
	if config.RenderTimeout != 60*time.Second {
		t.Errorf("RenderTimeout: got %v, want %v", config.RenderTimeout, 60*time.Second)
	}
	if config.RenderSettle != time.Second {
		t.Errorf("RenderSettle: got %v, want %v", config.RenderSettle, time.Second)
	}
	if config.MaxRenderSessions != 4 {
		t.Errorf("MaxRenderSessions: got %d, want 4", config.MaxRenderSessions)
	}
	if config.IncludeSubdomains {
		t.Error("IncludeSubdomains: got true, want false")
	}
	if !config.ObservabilityEnabled {
		t.Error("ObservabilityEnabled: got false, want true")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("DEBUG", "false")
	t.Setenv("SERVICE_NAME", "recon-crawler")
	t.Setenv("CALLBACK_TIMEOUT_SECONDS", "5")
	t.Setenv("RENDERER", "static")
	t.Setenv("RENDER_SETTLE_MS", "250")
	t.Setenv("INCLUDE_SUBDOMAINS", "true")

	config := loadConfig()

	if config.Port != "9090" {
		t.Errorf("Port: got %q, want %q", config.Port, "9090")
	}
	if config.LogLevel != "warn" {
		t.Errorf("LogLevel: got %q, want %q", config.LogLevel, "warn")
	}
	if config.ServiceName != "recon-crawler" {
		t.Errorf("ServiceName: got %q, want %q", config.ServiceName, "recon-crawler")
	}
	if config.CallbackTimeout != 5*time.Second {
		t.Errorf("CallbackTimeout: got %v, want %v", config.CallbackTimeout, 5*time.Second)
	}
	if config.Renderer != "static" {
		t.Errorf("Renderer: got %q, want %q", config.Renderer, "static")
	}
	if config.RenderSettle != 250*time.Millisecond {
		t.Errorf("RenderSettle: got %v, want %v", config.RenderSettle, 250*time.Millisecond)
	}
	if !config.IncludeSubdomains {
		t.Error("IncludeSubdomains: got false, want true")
	}
}

func TestLoadConfigDebugForcesDebugLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("DEBUG", "true")

	config := loadConfig()

	if config.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q, want %q", config.LogLevel, "debug")
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("TEST_INT_VALID", "42")
	t.Setenv("TEST_INT_INVALID", "not-a-number")
	t.Setenv("TEST_INT_EMPTY", "")

	if got := getEnvInt("TEST_INT_VALID", 7); got != 42 {
		t.Errorf("valid value: got %d, want 42", got)
	}
	if got := getEnvInt("TEST_INT_INVALID", 7); got != 7 {
		t.Errorf("invalid value: got %d, want default 7", got)
	}
	if got := getEnvInt("TEST_INT_EMPTY", 7); got != 7 {
		t.Errorf("empty value: got %d, want default 7", got)
	}
}

func TestParseOTLPHeaders(t *testing.T) {
	headers := parseOTLPHeaders("")
	if len(headers) != 0 {
		t.Errorf("empty input: got %d headers, want 0", len(headers))
	}

	headers = parseOTLPHeaders("api-key=secret123")
	if headers["api-key"] != "secret123" {
		t.Errorf("single pair: got %q, want %q", headers["api-key"], "secret123")
	}

	headers = parseOTLPHeaders(" api-key = secret123 , x-team = recon ")
	if headers["api-key"] != "secret123" || headers["x-team"] != "recon" {
		t.Errorf("spaced pairs: got %v", headers)
	}

	headers = parseOTLPHeaders("missing-equals,valid=yes")
	if len(headers) != 1 || headers["valid"] != "yes" {
		t.Errorf("malformed pair should be skipped: got %v", headers)
	}
}

func TestRateLimiter(t *testing.T) {
	// Create a new rate limiter
	limiter := newRateLimiter()

	// Mock request with X-Forwarded-For
	req1, _ := http.NewRequest("GET", "/crawl", nil)
	req1.Header.Set("X-Forwarded-For", "192.168.1.1")

	// Test basic allowance - should allow up to burst capacity (10)
	for i := range 10 {
		ip := util.GetClientIP(req1)
		rLimiter := limiter.getLimiter(ip)
		if !rLimiter.Allow() {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	// This should be blocked (11th request exceeds burst capacity)
	ip := util.GetClientIP(req1)
	rLimiter := limiter.getLimiter(ip)
	if rLimiter.Allow() {
		t.Errorf("Request should be blocked after burst capacity exceeded")
	}

	// Different IP should be allowed
	req2, _ := http.NewRequest("GET", "/crawl", nil)
	req2.Header.Set("X-Forwarded-For", "192.168.1.2")
	ip2 := util.GetClientIP(req2)
	rLimiter2 := limiter.getLimiter(ip2)
	if !rLimiter2.Allow() {
		t.Errorf("Request from different IP should be allowed")
	}
}
