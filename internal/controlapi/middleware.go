// Middleware adapted from the teacher's internal/http/middleware (auth.go,
// csrf.go): Basic/session/Bearer authentication for the control plane,
// generalized from the teacher's hardcoded demo credentials to a
// caller-supplied admin credential pair and token. Session expiry and CSRF
// protection are restructured from the teacher's stored-nonce, sliding-TTL
// scheme into an absolute-expiry session and a stateless, derived
// double-submit token (see ValidateSessionCSRF).
package controlapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// Credentials holds the admin login the control plane checks Basic auth
// against, plus an optional static bearer token for machine callers.
// Session auth does not consult it: any session carrying a uid and an
// unexpired exp is accepted, and this package defines no route that
// establishes such a session.
type Credentials struct {
	AdminUser     string
	AdminPassword string
	BearerToken   string
}

// Authentication allows access if Basic, session, or Bearer credentials
// validate; otherwise responds 401.
func Authentication(creds Credentials) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isBasicAuthenticated(c, creds) || isSessionAuthenticated(c) || isBearerTokenValid(c, creds) {
			c.Next()
			return
		}
		c.AbortWithStatus(http.StatusUnauthorized)
	}
}

func isBasicAuthenticated(c *gin.Context, creds Credentials) bool {
	user, pass, hasAuth := c.Request.BasicAuth()
	if hasAuth && creds.AdminUser != "" &&
		subtle.ConstantTimeCompare([]byte(user), []byte(creds.AdminUser)) == 1 &&
		subtle.ConstantTimeCompare([]byte(pass), []byte(creds.AdminPassword)) == 1 {
		setPrincipal(c, &Principal{Kind: CredBasic, ID: user})
		return true
	}
	return false
}

// sessionLifetime is the fixed window a login is valid for, counted from the
// moment it was established (session.Set("exp", ...)) rather than from the
// most recent request — an idle-but-unexpired session is still good, but a
// session can't be kept alive indefinitely by traffic.
const sessionLifetime = 15 * time.Minute

func isSessionAuthenticated(c *gin.Context) bool {
	session := sessions.Default(c)
	userID, _ := session.Get("uid").(string)
	if userID == "" {
		return false
	}

	expiresAt, ok := session.Get("exp").(int64)
	if !ok || time.Now().Unix() >= expiresAt {
		session.Delete("uid")
		session.Delete("exp")
		_ = session.Save()
		return false
	}

	setPrincipal(c, &Principal{Kind: CredSession, ID: userID})
	return true
}

func isBearerTokenValid(c *gin.Context, creds Credentials) bool {
	if creds.BearerToken == "" {
		return false
	}
	h := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, prefix))
	if token == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(creds.BearerToken)) == 1 {
		setPrincipal(c, &Principal{Kind: CredToken, ID: redactToken(token)})
		return true
	}
	return false
}

func redactToken(tok string) string {
	if len(tok) <= 8 {
		return "****"
	}
	return tok[:4] + "..." + tok[len(tok)-4:]
}

// CSRFToken derives the double-submit token a session-authenticated client
// must echo back on mutating requests. Unlike a random nonce minted at
// login and stored in the session, this is computed on demand from the
// session's uid and a server-held secret, so there is nothing to persist or
// leak out of the session store: anyone who can recompute it already holds
// a valid session for that uid.
func CSRFToken(uid string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(uid))
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidateSessionCSRF rejects a mutating, session-authenticated request
// unless its X-CSRF-Token header carries CSRFToken(uid, secret) for the
// caller's own session. Basic/token callers carry no session and are exempt
// outright, not just from the method check.
func ValidateSessionCSRF(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := GetPrincipal(c)
		if p == nil || p.Kind != CredSession {
			c.Next()
			return
		}

		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			c.Next()
			return
		}

		want := CSRFToken(p.ID, secret)
		got := c.GetHeader("X-CSRF-Token")
		if got == "" || !hmac.Equal([]byte(want), []byte(got)) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid csrf token"})
			return
		}
		c.Next()
	}
}
