package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ruziba3vich/tax-filing-service/internal/domain/session"
	"github.com/ruziba3vich/tax-filing-service/pkg/errors"
	"github.com/ruziba3vich/tax-filing-service/pkg/wizardtoken"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// ContextKeyWizard is the context key for the wizard session context.
	ContextKeyWizard ContextKey = "wizard_context"
)

const (
	// WizardCookie holds the context token for browser clients.
	WizardCookie = "wizard_token"
	// WizardHeader carries the context token for non-browser clients and is
	// echoed on every wizard response.
	WizardHeader = "X-Wizard-Token"
	// MountHeader identifies one mount of the wizard in the client.
	MountHeader = "X-Wizard-Mount"
)

// WizardMiddleware resolves the session context from the context token.
type WizardMiddleware struct {
	tokens *wizardtoken.Manager
	secure bool
	domain string
}

// NewWizardMiddleware creates a new wizard context middleware.
func NewWizardMiddleware(tokens *wizardtoken.Manager, secureCookies bool, cookieDomain string) *WizardMiddleware {
	return &WizardMiddleware{
		tokens: tokens,
		secure: secureCookies,
		domain: cookieDomain,
	}
}

// Load resolves the context when a token is sent and starts a new client
// otherwise. A mount header overrides the mount carried by the token.
func (m *WizardMiddleware) Load() gin.HandlerFunc {
	return func(c *gin.Context) {
		var sc session.Context
		if raw := m.token(c); raw != "" {
			parsed, err := m.tokens.Parse(raw)
			if err != nil {
				abortUnauthorized(c, "invalid or expired wizard token")
				return
			}
			sc = parsed
		}

		if sc.ClientID == uuid.Nil {
			sc.ClientID = uuid.New()
		}
		if mount := strings.TrimSpace(c.GetHeader(MountHeader)); mount != "" {
			sc.MountID = mount
		}
		if sc.MountID == "" {
			sc.MountID = uuid.NewString()
		}

		c.Set(string(ContextKeyWizard), sc)
		c.Next()
	}
}

// Require rejects requests without a token bound to a session.
func (m *WizardMiddleware) Require() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := m.token(c)
		if raw == "" {
			abortUnauthorized(c, "wizard token required")
			return
		}

		sc, err := m.tokens.Parse(raw)
		if err != nil {
			abortUnauthorized(c, "invalid or expired wizard token")
			return
		}
		if !sc.HasSession() {
			abortUnauthorized(c, "no session bound to wizard token")
			return
		}

		c.Set(string(ContextKeyWizard), sc)
		c.Next()
	}
}

// Issue signs sc and hands it back as cookie and header.
func (m *WizardMiddleware) Issue(c *gin.Context, sc session.Context) error {
	token, err := m.tokens.Issue(sc)
	if err != nil {
		return err
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(
		WizardCookie,
		token,
		int(m.tokens.TTL().Seconds()),
		"/",
		m.domain,
		m.secure,
		true,
	)
	c.Header(WizardHeader, token)
	c.Set(string(ContextKeyWizard), sc)
	return nil
}

// Clear removes the token cookie.
func (m *WizardMiddleware) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(WizardCookie, "", -1, "/", m.domain, m.secure, true)
}

func (m *WizardMiddleware) token(c *gin.Context) string {
	if h := strings.TrimSpace(c.GetHeader(WizardHeader)); h != "" {
		return h
	}
	if cookie, err := c.Cookie(WizardCookie); err == nil {
		return cookie
	}
	return ""
}

func abortUnauthorized(c *gin.Context, description string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":             "unauthorized",
		"error_description": description,
	})
}

// GetSessionContext extracts the wizard session context.
func GetSessionContext(c *gin.Context) (session.Context, error) {
	v, exists := c.Get(string(ContextKeyWizard))
	if !exists {
		return session.Context{}, errors.ErrSessionContext
	}
	sc, ok := v.(session.Context)
	if !ok {
		return session.Context{}, errors.ErrSessionContext
	}
	return sc, nil
}

// GetClientIP extracts the client IP address.
func GetClientIP(c *gin.Context) string {
	// Check X-Forwarded-For first (for proxies)
	ip := c.GetHeader("X-Forwarded-For")
	if ip != "" {
		// Take the first IP if multiple
		if idx := strings.Index(ip, ","); idx != -1 {
			ip = strings.TrimSpace(ip[:idx])
		}
		return ip
	}

	// Fall back to RemoteAddr
	return c.ClientIP()
}
