package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid access token")
	ErrExpiredToken = errors.New("access token expired")
)

const RoleAdmin = "admin"

// Identity is who a verified token speaks for.
type Identity struct {
	UserID    string
	Email     string
	DiscordID string
	Admin     bool
}

// MemberID is the id team rosters list: the linked Discord account when
// there is one, otherwise the user id.
func (id Identity) MemberID() string {
	if id.DiscordID != "" {
		return id.DiscordID
	}
	return id.UserID
}

type claims struct {
	jwt.RegisteredClaims
	Email     string `json:"email,omitempty"`
	DiscordID string `json:"discord_id,omitempty"`
	Role      string `json:"role,omitempty"`
}

// Verifier checks HS256 access tokens signed with a shared secret, the
// format Supabase-style identity providers hand out.
type Verifier struct {
	secret   []byte
	audience string
	Now      func() time.Time
}

func NewVerifier(secret, audience string) (*Verifier, error) {
	if len(strings.TrimSpace(secret)) < 16 {
		return nil, fmt.Errorf("jwt secret must be at least 16 characters")
	}
	return &Verifier{secret: []byte(secret), audience: strings.TrimSpace(audience), Now: time.Now}, nil
}

func (v *Verifier) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, fmt.Errorf("%w: empty", ErrInvalidToken)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.Now),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(c.Subject) == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return Identity{
		UserID:    c.Subject,
		Email:     c.Email,
		DiscordID: c.DiscordID,
		Admin:     c.Role == RoleAdmin,
	}, nil
}

// Issue signs a token for id that expires after ttl. It backs huntctl's
// offline token minting and the tests.
func (v *Verifier) Issue(id Identity, ttl time.Duration) (string, error) {
	if strings.TrimSpace(id.UserID) == "" {
		return "", fmt.Errorf("user id is required")
	}
	now := v.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:     id.Email,
		DiscordID: id.DiscordID,
		Role:      "authenticated",
	}
	if v.audience != "" {
		c.Audience = jwt.ClaimStrings{v.audience}
	}
	if id.Admin {
		c.Role = RoleAdmin
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
}
