package gateway

import (
	"strings"
	"testing"

	"github.com/hayahq/haya/internal/config"
)

const (
	testToken    = "0123456789abcdef0123456789abcdef"
	testPassword = "correct-horse-battery"
)

func TestNewAuthenticatorValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.AuthConfig
		wantErr string
	}{
		{name: "no auth", cfg: config.AuthConfig{}},
		{name: "token ok", cfg: config.AuthConfig{Mode: config.AuthModeToken, Token: testToken}},
		{name: "token too short", cfg: config.AuthConfig{Mode: config.AuthModeToken, Token: "short"}, wantErr: "at least 32"},
		{name: "password ok", cfg: config.AuthConfig{Mode: config.AuthModePassword, Password: testPassword}},
		{name: "password too short", cfg: config.AuthConfig{Mode: config.AuthModePassword, Password: "hunter2"}, wantErr: "at least 16"},
		{name: "unknown mode", cfg: config.AuthConfig{Mode: "mtls"}, wantErr: "unknown auth mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAuthenticator(tt.cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestVerifyToken(t *testing.T) {
	a, err := NewAuthenticator(config.AuthConfig{Mode: config.AuthModeToken, Token: testToken})
	if err != nil {
		t.Fatal(err)
	}
	if !a.Enabled() {
		t.Fatal("token mode should be enabled")
	}
	if err := a.Verify(map[string]any{"token": testToken}); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
	if err := a.Verify(map[string]any{"token": "wrong"}); err == nil {
		t.Fatal("wrong token accepted")
	}
	if err := a.Verify(map[string]any{}); err == nil {
		t.Fatal("missing token accepted")
	}
}

func TestVerifyPasswordAndJWT(t *testing.T) {
	a, err := NewAuthenticator(config.AuthConfig{Mode: config.AuthModePassword, Password: testPassword})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Verify(map[string]any{"password": testPassword}); err != nil {
		t.Fatalf("valid password rejected: %v", err)
	}
	if err := a.Verify(map[string]any{"password": "nope nope nope nope"}); err == nil {
		t.Fatal("wrong password accepted")
	}

	token, err := a.IssueJWT()
	if err != nil {
		t.Fatal(err)
	}
	if token == "" {
		t.Fatal("password mode should issue a jwt")
	}
	if err := a.Verify(map[string]any{"jwt": token}); err != nil {
		t.Fatalf("issued jwt rejected: %v", err)
	}
	if err := a.Verify(map[string]any{"jwt": token + "x"}); err == nil {
		t.Fatal("tampered jwt accepted")
	}

	other, err := NewAuthenticator(config.AuthConfig{Mode: config.AuthModePassword, Password: "a different password!"})
	if err != nil {
		t.Fatal(err)
	}
	if err := other.Verify(map[string]any{"jwt": token}); err == nil {
		t.Fatal("jwt signed with another key accepted")
	}
}

func TestIssueJWTOutsidePasswordMode(t *testing.T) {
	a, err := NewAuthenticator(config.AuthConfig{Mode: config.AuthModeToken, Token: testToken})
	if err != nil {
		t.Fatal(err)
	}
	token, err := a.IssueJWT()
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		t.Fatalf("token mode issued a jwt: %q", token)
	}
}

func TestVerifyDisabled(t *testing.T) {
	a, err := NewAuthenticator(config.AuthConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if a.Enabled() {
		t.Fatal("empty mode should be disabled")
	}
	if err := a.Verify(nil); err != nil {
		t.Fatalf("disabled auth rejected connect: %v", err)
	}
}
