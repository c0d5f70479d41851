package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/medassist/api/internal/domain"
	"github.com/medassist/api/internal/platform/config"
)

// Token kinds carried in the "type" claim. Access tokens authorise API calls,
// refresh tokens only mint new pairs.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

var (
	// ErrExpired indicates the token was valid but is past its lifetime.
	ErrExpired = errors.New("token: expired")
	// ErrInvalid indicates the token fails signature, claim or kind checks.
	ErrInvalid = errors.New("token: invalid")
)

// Claims is the verified content of an issued token.
type Claims struct {
	UserID string
	Roles  []domain.Role
	JTI    string
	Kind   string
}

// Issuer mints and verifies HMAC-signed tokens.
type Issuer struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer constructs an Issuer from configuration.
func NewIssuer(cfg config.JWTConfig) *Issuer {
	return &Issuer{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// RefreshTTL exposes the refresh lifetime so stores can bound live-set entries.
func (i *Issuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

// MintAccess issues a short-lived access token.
func (i *Issuer) MintAccess(userID string, roles []domain.Role, jti string) (string, error) {
	return i.mint(userID, roles, jti, KindAccess, i.accessTTL)
}

// MintRefresh issues a long-lived refresh token.
func (i *Issuer) MintRefresh(userID string, roles []domain.Role, jti string) (string, error) {
	return i.mint(userID, roles, jti, KindRefresh, i.refreshTTL)
}

func (i *Issuer) mint(userID string, roles []domain.Role, jti, kind string, ttl time.Duration) (string, error) {
	now := i.now().UTC()
	roleStrings := make([]string, 0, len(roles))
	for _, r := range roles {
		roleStrings = append(roleStrings, string(r))
	}
	claims := jwt.MapClaims{
		"sub":   userID,
		"roles": roleStrings,
		"jti":   jti,
		"type":  kind,
		"iss":   i.issuer,
		"aud":   i.audience,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Verify parses the token and checks signature, lifetime, issuer, audience
// and kind. Expiry is reported distinctly so clients know to refresh.
func (i *Issuer) Verify(raw, kind string) (Claims, error) {
	parsed, err := jwt.Parse(raw,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
			}
			return i.secret, nil
		},
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, ErrInvalid
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrInvalid
	}

	claims := Claims{}
	if sub, ok := mapClaims["sub"].(string); ok {
		claims.UserID = sub
	}
	if jti, ok := mapClaims["jti"].(string); ok {
		claims.JTI = jti
	}
	if tokenKind, ok := mapClaims["type"].(string); ok {
		claims.Kind = tokenKind
	}
	if rawRoles, ok := mapClaims["roles"].([]any); ok {
		for _, r := range rawRoles {
			if role, ok := r.(string); ok {
				claims.Roles = append(claims.Roles, domain.Role(role))
			}
		}
	}

	if claims.UserID == "" || claims.JTI == "" || claims.Kind != kind {
		return Claims{}, ErrInvalid
	}
	return claims, nil
}
