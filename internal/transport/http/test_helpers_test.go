package http

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/duochat/duochat-server/internal/auth"
	"github.com/duochat/duochat-server/internal/config"
	"github.com/duochat/duochat-server/internal/core"
	"github.com/duochat/duochat-server/internal/store/sqlite"
)

type testEnv struct {
	ts          *httptest.Server
	store       *sqlite.SQLiteStore
	authService *auth.Service
}

// newTestEnv spins up the full HTTP surface over an in-memory store.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	cfg.TokenTTL = time.Hour

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.TokenTTL,
	})

	logger := zerolog.New(nil)
	gateway := core.NewGateway(authService, st, core.NewRegistry(), core.NewMembership(st), &logger)

	server := NewServer(gateway, authService, st, &cfg, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, store: st, authService: authService}
}

// signup registers a user over the REST API and returns the parsed response.
func (e *testEnv) signup(t *testing.T, fullname, email, password string) AuthResponse {
	t.Helper()

	body, _ := json.Marshal(SignupRequest{Fullname: fullname, Email: email, Password: password})
	resp, err := e.ts.Client().Post(e.ts.URL+"/api/auth/signup", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("signup request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 201 {
		t.Fatalf("signup %s: expected 201, got %d", email, resp.StatusCode)
	}

	var out AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode signup response: %v", err)
	}
	return out
}
