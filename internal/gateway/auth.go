package gateway

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hayahq/haya/internal/config"
)

// jwtTTL bounds the lifetime of reconnect tokens issued to
// password-authenticated clients.
const jwtTTL = 24 * time.Hour

var errUnauthorized = errors.New("invalid credentials")

// Authenticator verifies connect credentials. Token mode compares a
// shared token; password mode compares the password and additionally
// accepts a JWT it issued earlier, so clients can reconnect without
// holding the password in memory.
type Authenticator struct {
	mode     string
	token    string
	password string
	jwtKey   []byte
}

// NewAuthenticator builds an authenticator from validated config.
func NewAuthenticator(cfg config.AuthConfig) (*Authenticator, error) {
	a := &Authenticator{mode: cfg.Mode}
	switch cfg.Mode {
	case config.AuthModeToken:
		a.token = cfg.ResolvedToken()
		if len(a.token) < config.MinTokenLength {
			return nil, fmt.Errorf("auth token must be at least %d characters", config.MinTokenLength)
		}
	case config.AuthModePassword:
		a.password = cfg.ResolvedPassword()
		if len(a.password) < config.MinPasswordLength {
			return nil, fmt.Errorf("auth password must be at least %d characters", config.MinPasswordLength)
		}
		key := sha256.Sum256([]byte(a.password))
		a.jwtKey = key[:]
	case "":
		// No auth configured; every connect succeeds.
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
	return a, nil
}

// Enabled reports whether connects must carry credentials.
func (a *Authenticator) Enabled() bool { return a.mode != "" }

// Verify checks the credentials in a connect frame's params.
func (a *Authenticator) Verify(params map[string]any) error {
	switch a.mode {
	case "":
		return nil
	case config.AuthModeToken:
		token, _ := params["token"].(string)
		if subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) == 1 {
			return nil
		}
		return errUnauthorized
	case config.AuthModePassword:
		if password, ok := params["password"].(string); ok {
			if subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1 {
				return nil
			}
		}
		if tokenString, ok := params["jwt"].(string); ok {
			if a.verifyJWT(tokenString) == nil {
				return nil
			}
		}
		return errUnauthorized
	default:
		return errUnauthorized
	}
}

// IssueJWT returns a signed reconnect token. Only valid in password
// mode; other modes return empty.
func (a *Authenticator) IssueJWT() (string, error) {
	if a.mode != config.AuthModePassword {
		return "", nil
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    "haya",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(jwtTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtKey)
}

func (a *Authenticator) verifyJWT(tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.jwtKey, nil
	}, jwt.WithIssuer("haya"), jwt.WithExpirationRequired())
	if err != nil {
		return err
	}
	if !token.Valid {
		return errUnauthorized
	}
	return nil
}
