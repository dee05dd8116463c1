package forker

import (
	"os/user"
	"testing"

	"go.uber.org/zap"
)

func TestResolveCredentialUnknownNamesWarnAndContinue(t *testing.T) {
	f := New(zap.NewNop())

	cred := f.resolveCredential(Identity{RunAsUser: "no-such-user-daemonctl-test", RunAsGroup: "no-such-group-daemonctl-test"})
	if cred != nil {
		t.Fatalf("resolveCredential with two unknown names = %+v, want nil (no switch)", cred)
	}
}

func TestResolveCredentialResolvesRealUser(t *testing.T) {
	u, err := user.Current()
	if err != nil {
		t.Skipf("cannot look up current user: %v", err)
	}

	f := New(zap.NewNop())
	cred := f.resolveCredential(Identity{RunAsUser: u.Username})
	if cred == nil {
		t.Fatal("resolveCredential for the current user should resolve, not return nil")
	}
}
