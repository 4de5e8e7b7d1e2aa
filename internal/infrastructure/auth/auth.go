package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/janhq/transcription-api/internal/config"
)

const (
	// ContextKeyOwnerID holds the authenticated owner id on the gin context.
	ContextKeyOwnerID = "owner_id"
	// HeaderUserID identifies the caller when auth is disabled and a gateway
	// has already authenticated the request.
	HeaderUserID = "X-User-ID"
	// QueryToken carries the token for clients that cannot set headers (browser websockets, EventSource).
	QueryToken = "token"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingOwner = errors.New("token has no subject")
)

// Validator verifies identity tokens signed with a shared HMAC secret or a JWKS-published key.
type Validator struct {
	cfg  *config.Config
	log  zerolog.Logger
	jwks *keyfunc.JWKS
}

// NewValidator initializes JWKS fetching when a JWKS URL is configured.
func NewValidator(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Validator, error) {
	v := &Validator{cfg: cfg, log: log.With().Str("component", "auth").Logger()}
	if !cfg.AuthEnabled || strings.TrimSpace(cfg.AuthJWKSURL) == "" {
		return v, nil
	}

	options := keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.Error().Err(err).Msg("jwks refresh error")
		},
	}

	jwks, err := keyfunc.Get(cfg.AuthJWKSURL, options)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	v.jwks = jwks
	return v, nil
}

// VerifyToken validates the token and returns its subject.
func (v *Validator) VerifyToken(tokenString string) (string, error) {
	if strings.TrimSpace(tokenString) == "" {
		return "", ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if issuer := strings.TrimSpace(v.cfg.AuthIssuer); issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	var keyFunc jwt.Keyfunc
	if v.jwks != nil {
		keyFunc = v.jwks.Keyfunc
		opts = append(opts, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384"}))
	} else {
		secret := []byte(v.cfg.AuthJWTSecret)
		keyFunc = func(*jwt.Token) (any, error) { return secret, nil }
		opts = append(opts, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	}

	token, err := jwt.Parse(tokenString, keyFunc, opts...)
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return "", ErrMissingOwner
	}
	return sub, nil
}

// Authenticate resolves the owner of the request without writing a response.
func (v *Validator) Authenticate(c *gin.Context) (string, error) {
	if !v.cfg.AuthEnabled {
		owner := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if owner == "" {
			return "", ErrMissingOwner
		}
		return owner, nil
	}

	tokenString := bearerToken(c.GetHeader("Authorization"))
	if tokenString == "" {
		tokenString = strings.TrimSpace(c.Query(QueryToken))
	}
	return v.VerifyToken(tokenString)
}

// Middleware enforces authentication and stores the owner id on the context.
func (v *Validator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, err := v.Authenticate(c)
		if err != nil {
			v.log.Debug().Err(err).Str("path", c.FullPath()).Msg("request rejected")
			abortUnauthorized(c, unauthorizedMessage(err))
			return
		}
		c.Set(ContextKeyOwnerID, owner)
		c.Next()
	}
}

// Ready indicates if the validator is prepared.
func (v *Validator) Ready() bool {
	if v == nil || !v.cfg.AuthEnabled || strings.TrimSpace(v.cfg.AuthJWKSURL) == "" {
		return true
	}
	return v.jwks != nil
}

// Close stops the background JWKS refresh.
func (v *Validator) Close() {
	if v != nil && v.jwks != nil {
		v.jwks.EndBackground()
	}
}

// OwnerID returns the owner id set by Middleware.
func OwnerID(c *gin.Context) (string, bool) {
	owner := c.GetString(ContextKeyOwnerID)
	return owner, owner != ""
}

func unauthorizedMessage(err error) string {
	switch {
	case errors.Is(err, ErrMissingToken):
		return "missing bearer token"
	case errors.Is(err, ErrMissingOwner):
		return "missing user identity"
	default:
		return "invalid token"
	}
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":  "UNAUTHORIZED",
		"error": message,
	})
}
