package controlapi

import "github.com/gin-gonic/gin"

// CredentialKind names how a request authenticated against the control
// plane, adapted from the teacher's internal/domain/auth.Principal.
type CredentialKind string

const (
	CredBasic   CredentialKind = "basic"
	CredSession CredentialKind = "session"
	CredToken   CredentialKind = "token"
)

// Principal is the authenticated caller attached to the gin context.
type Principal struct {
	Kind CredentialKind
	ID   string
}

const principalKey = "controlapi.principal"

func setPrincipal(c *gin.Context, p *Principal) { c.Set(principalKey, p) }

// GetPrincipal returns the authenticated caller, or nil if the request
// reached this handler unauthenticated (should not happen behind
// Authentication middleware).
func GetPrincipal(c *gin.Context) *Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*Principal)
	return p
}
