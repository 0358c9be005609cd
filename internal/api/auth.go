package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"tip-settlement/internal/logging"
)

// AuthConfig holds the HMAC key and expected claims for bearer tokens.
type AuthConfig struct {
	HMACSecret string
	Issuer     string
	Audience   string
	ClockSkew  time.Duration // Default: 2m
}

type contextKey string

const contextKeyActor contextKey = "api.actor"

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid token")
)

// Authenticator validates HMAC-signed bearer tokens. The token subject is the
// actor on whose behalf the request runs.
type Authenticator struct {
	cfg    AuthConfig
	secret []byte
	logger logrus.FieldLogger
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(cfg AuthConfig, logger logrus.FieldLogger) *Authenticator {
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{
		cfg:    cfg,
		secret: []byte(strings.TrimSpace(cfg.HMACSecret)),
		logger: logging.OrDiscard(logger),
	}
}

// Middleware rejects requests without a valid token and stores the subject
// in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "unauthenticated", errMissingToken)
			return
		}
		subject, err := a.parseToken(tokenString)
		if err != nil {
			a.logger.WithError(err).Debug("token validation failed")
			writeError(w, http.StatusUnauthorized, "unauthenticated", errInvalidToken)
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyActor, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) parseToken(tokenString string) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("auth secret not configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithValidMethods([]string{
			jwt.SigningMethodHS256.Alg(),
			jwt.SigningMethodHS384.Alg(),
			jwt.SigningMethodHS512.Alg(),
		}),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("token invalid")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// ActorFromContext returns the authenticated subject, if any.
func ActorFromContext(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(contextKeyActor).(string)
	return actor, ok && actor != ""
}

func extractBearer(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
