package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	domainauth "github.com/NordCoder/Crabiner/internal/domain/auth"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const (
	DefaultIssuer    = "crabiner"
	DefaultAudience  = "crabiner-api"
	DefaultAccessTTL = 15 * time.Minute

	MinSecretLen = 32

	keyInfo = "crabiner access token v1"
)

type Config struct {
	Secret    []byte
	Issuer    string
	Audience  string
	AccessTTL time.Duration
	Now       func() time.Time
}

// Codec signs and verifies access tokens. It holds no state besides the signing key.
type Codec struct {
	key []byte
	cfg Config
}

func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) < MinSecretLen {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLen)
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.Audience == "" {
		cfg.Audience = DefaultAudience
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}

	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, cfg.Secret, nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}
	return &Codec{key: key, cfg: cfg}, nil
}

func (c *Codec) AccessTTL() time.Duration { return c.cfg.AccessTTL }

func (c *Codec) Issue(subjectID string) (string, error) {
	if subjectID == "" {
		return "", errors.New("empty subject")
	}
	now := c.cfg.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subjectID,
		Issuer:    c.cfg.Issuer,
		Audience:  jwt.ClaimStrings{c.cfg.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.cfg.AccessTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign access: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer, audience and expiry. It does not check that the
// subject still exists.
func (c *Codec) Verify(token string) (*domainauth.AccessClaims, error) {
	if token == "" {
		return nil, domainauth.ErrTokenInvalid
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (interface{}, error) { return c.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.cfg.Issuer),
		jwt.WithAudience(c.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.cfg.Now),
	)
	if err != nil {
		return nil, classify(err)
	}
	if claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, domainauth.ErrTokenInvalid
	}

	out := &domainauth.AccessClaims{
		SubjectID: claims.Subject,
		Issuer:    claims.Issuer,
		Audience:  c.cfg.Audience,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	return out, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: %v", domainauth.ErrTokenInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return domainauth.ErrTokenExpired
	default:
		return fmt.Errorf("%w: %v", domainauth.ErrTokenInvalid, err)
	}
}
