// Package wizardtoken carries the wizard session context between requests
// as an HS256-signed JWT.
package wizardtoken

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ruziba3vich/tax-filing-service/internal/domain/session"
	apperrors "github.com/ruziba3vich/tax-filing-service/pkg/errors"
)

const issuer = "tax-filing-service"

// Claims is the token payload. The client id is the subject.
type Claims struct {
	jwt.RegisteredClaims
	MountID   string `json:"mount_id"`
	SessionID string `json:"session_id,omitempty"`
}

// Manager issues and validates context tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewManager creates a Manager signing with secret.
func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL returns the lifetime of issued tokens.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a token for the context. It is re-issued whenever the
// session id changes.
func (m *Manager) Issue(sc session.Context) (string, error) {
	if sc.ClientID == uuid.Nil || sc.MountID == "" {
		return "", apperrors.ErrSessionContext
	}

	now := m.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   sc.ClientID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
		MountID: sc.MountID,
	}
	if sc.HasSession() {
		claims.SessionID = sc.SessionID.String()
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", apperrors.Wrap(err, "failed to sign context token")
	}
	return signed, nil
}

// Parse validates the token and returns the context it carries.
func (m *Manager) Parse(tokenString string) (session.Context, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !token.Valid {
		return session.Context{}, apperrors.Wrap(apperrors.ErrSessionContext, "invalid context token")
	}

	clientID, err := uuid.Parse(claims.Subject)
	if err != nil || claims.MountID == "" {
		return session.Context{}, apperrors.Wrap(apperrors.ErrSessionContext, "malformed context token")
	}

	sc := session.Context{ClientID: clientID, MountID: claims.MountID}
	if claims.SessionID != "" {
		sc.SessionID, err = uuid.Parse(claims.SessionID)
		if err != nil {
			return session.Context{}, apperrors.Wrap(apperrors.ErrSessionContext, "malformed session id")
		}
	}
	return sc, nil
}
