package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"certline/internal/repo"
)

// AuthConfig controls how callers of the API identify themselves. Every
// route under the base path except health needs a bearer JWT or an
// X-Api-Key, unless AllowLegacyActorHeader admits a bare X-Actor-Id.
type AuthConfig struct {
	JWTSecret              string
	AllowLegacyActorHeader bool
	// DevLogin enables POST /auth/dev/login, which mints tokens without
	// credentials.
	DevLogin bool
	Logger   *slog.Logger
}

func (c AuthConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Principal is the authenticated caller. Source names the credential that
// identified it.
type Principal struct {
	ActorID string
	Source  string
}

const (
	sourceJWT          = "jwt"
	sourceAPIKey       = "api_key"
	sourceLegacyHeader = "legacy_header"

	devTokenIssuer     = "certline-dev"
	defaultDevTokenTTL = time.Hour
)

var (
	errNoCredentials  = errors.New("authentication required")
	errBadCredentials = errors.New("invalid credentials")
)

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromRequest(ctx context.Context) (Principal, huma.StatusError) {
	if p, ok := ctx.Value(principalKey{}).(Principal); ok && p.ActorID != "" {
		return p, nil
	}
	return Principal{}, newAPIError(http.StatusUnauthorized, "unauthorized", errNoCredentials.Error(), nil)
}

func actorIDFromContext(ctx context.Context) (string, huma.StatusError) {
	p, err := principalFromRequest(ctx)
	if err != nil {
		return "", err
	}
	return p.ActorID, nil
}

func signDevToken(secret, actorID string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	if ttl <= 0 {
		ttl = defaultDevTokenTTL
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   actorID,
		Issuer:    devTokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// authenticator resolves request credentials into a Principal.
type authenticator struct {
	cfg  AuthConfig
	repo repo.Repo
	now  func() time.Time
}

// authenticate tries a bearer token, then an API key, then the legacy actor
// header. errNoCredentials means the request carried none of them.
func (a authenticator) authenticate(req *http.Request) (Principal, error) {
	if authz := strings.TrimSpace(req.Header.Get("Authorization")); authz != "" {
		scheme, token, ok := strings.Cut(authz, " ")
		token = strings.TrimSpace(token)
		if !ok || !strings.EqualFold(scheme, "bearer") || token == "" || strings.ContainsAny(token, " \t") {
			return Principal{}, fmt.Errorf("%w: malformed authorization header", errBadCredentials)
		}
		return a.verifyToken(token)
	}
	if key := strings.TrimSpace(req.Header.Get("X-Api-Key")); key != "" {
		return a.lookupKey(req.Context(), key)
	}
	if actor := strings.TrimSpace(req.Header.Get("X-Actor-Id")); actor != "" && a.cfg.AllowLegacyActorHeader {
		a.cfg.logger().Warn("unauthenticated X-Actor-Id header accepted", "actorID", actor)
		return Principal{ActorID: actor, Source: sourceLegacyHeader}, nil
	}
	return Principal{}, errNoCredentials
}

func (a authenticator) verifyToken(token string) (Principal, error) {
	secret := a.cfg.JWTSecret
	if strings.TrimSpace(secret) == "" {
		return Principal{}, fmt.Errorf("%w: jwt secret not configured", errBadCredentials)
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", errBadCredentials, err)
	}
	if claims.Subject == "" {
		return Principal{}, fmt.Errorf("%w: subject claim required", errBadCredentials)
	}
	return Principal{ActorID: claims.Subject, Source: sourceJWT}, nil
}

// lookupKey matches the key by hash. A failure to stamp last use does not
// reject the request.
func (a authenticator) lookupKey(ctx context.Context, key string) (Principal, error) {
	k, err := a.repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(key))
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", errBadCredentials, err)
	}
	if k.ActorID == "" {
		return Principal{}, fmt.Errorf("%w: api key has no actor", errBadCredentials)
	}
	now := time.Now
	if a.now != nil {
		now = a.now
	}
	if err := a.repo.TouchAPIKey(ctx, k.ID, now().UTC().Format(time.RFC3339)); err != nil {
		a.cfg.logger().Warn("api key last use not recorded", "keyID", k.ID, "error", err)
	}
	return Principal{ActorID: k.ActorID, Source: sourceAPIKey}, nil
}

func newAuthMiddleware(basePath string, cfg AuthConfig, r repo.Repo) func(http.Handler) http.Handler {
	auth := authenticator{cfg: cfg, repo: r}
	public := map[string]bool{path.Join(basePath, "health"): true}
	if cfg.DevLogin {
		public[path.Join(basePath, "auth/dev/login")] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			outside := basePath != "" && !strings.HasPrefix(req.URL.Path, basePath)
			if outside || public[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}
			p, err := auth.authenticate(req)
			switch {
			case errors.Is(err, errNoCredentials):
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", err.Error(), nil))
				return
			case err != nil:
				cfg.logger().Debug("credentials rejected", "path", req.URL.Path, "error", err)
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", errBadCredentials.Error(), nil))
				return
			}
			next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), p)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}
