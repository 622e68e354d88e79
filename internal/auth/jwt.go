package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenRejected is returned for missing, malformed, expired or badly signed credentials.
var ErrTokenRejected = errors.New("token rejected")

// Claims represents JWT claims for authentication.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration

	// Now overrides the clock used for issuing and validation. Nil means time.Now.
	Now func() time.Time
}

func (cfg *JWTConfig) now() time.Time {
	if cfg.Now != nil {
		return cfg.Now()
	}
	return time.Now()
}

// GenerateToken creates a new signed token for the given username.
func GenerateToken(cfg *JWTConfig, username string) (string, error) {
	now := cfg.now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(cfg.Secret)
}

// ValidateToken parses and validates a token: signature, algorithm, expiry and,
// when configured, issuer and audience.
func ValidateToken(cfg *JWTConfig, tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: missing token", ErrTokenRejected)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(cfg.now),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return cfg.Secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenRejected, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token claims", ErrTokenRejected)
	}
	if claims.Username == "" {
		return nil, fmt.Errorf("%w: missing username", ErrTokenRejected)
	}

	return claims, nil
}

// Verifier turns an opaque credential into a verified principal.
type Verifier interface {
	Verify(token string) (string, error)
}

// JWTVerifier verifies HS256 tokens issued by GenerateToken.
type JWTVerifier struct {
	cfg *JWTConfig
}

// NewJWTVerifier creates a verifier bound to the given configuration.
func NewJWTVerifier(cfg *JWTConfig) *JWTVerifier {
	return &JWTVerifier{cfg: cfg}
}

// Verify returns the username carried by a valid token.
func (v *JWTVerifier) Verify(token string) (string, error) {
	claims, err := ValidateToken(v.cfg, token)
	if err != nil {
		return "", err
	}
	return claims.Username, nil
}

var _ Verifier = (*JWTVerifier)(nil)
