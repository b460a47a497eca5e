// Package upstream dials the origin (or target) TCP connection the proxy
// tunnels to, optionally chaining through a further upstream proxy.
package upstream

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/golang/groupcache/singleflight"
)

// Manager dials upstream TCP connections, either directly or through a
// configured upstream proxy (spec.md's core doesn't require this, but the
// teacher's proxy.Manager.SetUpstreamProxy does, and chaining to a further
// proxy doesn't conflict with any Non-goal — see SPEC_FULL.md).
type Manager struct {
	dialer net.Dialer

	// configuredURL is the explicit upstream proxy, set when the embedder
	// names one. Mutually exclusive with useEnv.
	configuredURL *url.URL
	useEnv        bool

	insecure bool

	// resolve coalesces concurrent NO_PROXY/environment-proxy lookups for
	// the same host — a burst of connections to one origin reuses one
	// http.ProxyFromEnvironment evaluation instead of repeating the same
	// env parse N times. Safe to share, unlike a live connection: the
	// result is an immutable *url.URL (or nil), never a socket.
	resolve singleflight.Group
}

// NewManager builds a Manager that always dials through proxyURL (nil for
// direct dialing).
func NewManager(proxyURL *url.URL, insecureSkipVerify bool) *Manager {
	return &Manager{configuredURL: proxyURL, insecure: insecureSkipVerify}
}

// NewManagerFromConfig resolves the upstream proxy the same way the
// teacher's Manager.GetUpstreamProxyURL does: an explicit configured value
// takes precedence; otherwise the HTTPS_PROXY/NO_PROXY environment
// variables apply (every target is looked up as an https URL, so
// HTTP_PROXY is not consulted), evaluated per Dial call against the actual
// target host (NO_PROXY can only be honored once the real host is known,
// not at construction time).
func NewManagerFromConfig(configured string, insecureSkipVerify bool) (*Manager, error) {
	if configured == "" {
		return &Manager{useEnv: true, insecure: insecureSkipVerify}, nil
	}
	u, err := url.Parse(configured)
	if err != nil {
		return nil, err
	}
	return NewManager(u, insecureSkipVerify), nil
}

// Dial opens a TCP connection to host:port, through the configured
// upstream proxy if one applies to host.
func (m *Manager) Dial(ctx context.Context, host string, port int) (net.Conn, error) {
	address := net.JoinHostPort(host, strconv.Itoa(port))

	proxyURL, err := m.resolveProxy(host)
	if err != nil {
		return nil, err
	}
	if proxyURL == nil {
		return m.dialer.DialContext(ctx, "tcp", address)
	}
	return dialThroughProxy(ctx, proxyURL, address, m.insecure)
}

func (m *Manager) resolveProxy(host string) (*url.URL, error) {
	if !m.useEnv {
		return m.configuredURL, nil
	}
	v, err := m.resolve.Do(host, func() (any, error) {
		probe := &http.Request{URL: &url.URL{Scheme: "https", Host: host}}
		return http.ProxyFromEnvironment(probe)
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*url.URL), nil
}
