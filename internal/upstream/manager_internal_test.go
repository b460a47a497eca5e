package upstream

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

// Whitebox test: resolveProxy is unexported since it's an implementation
// detail of per-host NO_PROXY evaluation, not part of Manager's public
// contract.
func TestResolveProxyHonorsNoProxyPerHost(t *testing.T) {
	c := qt.New(t)
	t.Setenv("HTTPS_PROXY", "http://127.0.0.1:8888")
	t.Setenv("NO_PROXY", "blocked.test")

	m := &Manager{useEnv: true}

	blocked, err := m.resolveProxy("blocked.test")
	c.Assert(err, qt.IsNil)
	c.Assert(blocked, qt.IsNil)

	allowed, err := m.resolveProxy("allowed.test")
	c.Assert(err, qt.IsNil)
	c.Assert(allowed, qt.Not(qt.IsNil))
	c.Assert(allowed.Host, qt.Equals, "127.0.0.1:8888")
}

func TestResolveProxyRepeatedLookupsForSameHostAgree(t *testing.T) {
	c := qt.New(t)
	t.Setenv("HTTPS_PROXY", "http://127.0.0.1:9999")
	t.Setenv("NO_PROXY", "")

	m := &Manager{useEnv: true}

	u1, err1 := m.resolveProxy("origin.test")
	u2, err2 := m.resolveProxy("origin.test")
	c.Assert(err1, qt.IsNil)
	c.Assert(err2, qt.IsNil)
	c.Assert(u1, qt.DeepEquals, u2)
}
