// Package tlsmediation implements the client-side and upstream TLS
// handshakes for an intercepted CONNECT tunnel, per spec.md §4.5. Unlike
// the teacher's attacker.go, which mints a fresh leaf certificate per SNI,
// this package always presents a single fixed certificate/key pair: the
// interceptor's trust boundary is established once, out of band, not
// negotiated per origin.
package tlsmediation

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/wdproxy/mitmproxy/cert"
)

// keyLogWriter lazily opens the file named by SSLKEYLOGFILE, exactly as the
// teacher's internal/helper.GetTLSKeyLogWriter does, so a Wireshark capture
// taken alongside a WebDriver test run can decrypt the mediated TLS
// sessions. Absent the environment variable, TLS key logging stays off.
var (
	keyLogOnce   sync.Once
	keyLogWriter io.Writer
)

func tlsKeyLogWriter() io.Writer {
	keyLogOnce.Do(func() {
		path := os.Getenv("SSLKEYLOGFILE")
		if path == "" {
			return
		}
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o666)
		if err != nil {
			return
		}
		keyLogWriter = f
	})
	return keyLogWriter
}

// Mediator performs the two TLS handshakes spec.md §4.5 requires: a server
// handshake with the client, offering Pair's fixed certificate, and a
// client handshake with the real origin, verifying its certificate against
// the system trust store with SNI set to the original host.
type Mediator struct {
	pair               *cert.Pair
	insecureSkipVerify bool
}

// New builds a Mediator that always presents pair during the client-facing
// handshake. insecureSkipVerify disables certificate verification on the
// upstream handshake, for testing against origins with self-signed or
// otherwise untrusted certificates.
func New(pair *cert.Pair, insecureSkipVerify bool) *Mediator {
	return &Mediator{pair: pair, insecureSkipVerify: insecureSkipVerify}
}

// Client performs the TLS server handshake on conn, the raw plaintext
// stream the client already addressed via CONNECT. The caller is
// responsible for having already written "200 Connection Established" on
// conn before calling Client.
func (m *Mediator) Client(ctx context.Context, conn net.Conn) (*tls.Conn, error) {
	cfg := m.pair.ServerConfig()
	cfg.KeyLogWriter = tlsKeyLogWriter()
	tlsConn := tls.Server(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, fmt.Errorf("tlsmediation: client handshake: %w", err)
	}
	return tlsConn, nil
}

// Upstream dials host:port and performs a TLS client handshake with the
// origin, verifying its certificate against the system trust store (unless
// the Mediator was built with insecureSkipVerify) and setting SNI to host.
func (m *Mediator) Upstream(ctx context.Context, host string, port int, dial func(context.Context) (net.Conn, error)) (*tls.Conn, error) {
	raw, err := dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("tlsmediation: upstream dial %s:%d: %w", host, port, err)
	}
	tlsConn := tls.Client(raw, &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: m.insecureSkipVerify,
		KeyLogWriter:       tlsKeyLogWriter(),
	})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("tlsmediation: upstream handshake %s:%d: %w", host, port, err)
	}
	return tlsConn, nil
}
