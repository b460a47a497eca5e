// Package cert loads the single pre-provisioned certificate and private key
// the proxy offers during client-side TLS mediation (spec.md §4.5). Unlike
// a traditional MITM proxy this package never mints per-origin leaf
// certificates: every intercepted TLS connection presents the same pair,
// and the client is expected to already trust it.
package cert

import (
	"crypto/tls"
	"fmt"
)

// Pair is a loaded certificate/key pair ready to hand to tls.Config.
type Pair struct {
	certificate tls.Certificate
}

// LoadPair reads a PEM certificate and key from disk, as produced by
// cmd/gencert. Both files must exist; there is no lazy generation at
// runtime.
func LoadPair(certFile, keyFile string) (*Pair, error) {
	c, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("cert: load key pair: %w", err)
	}
	return &Pair{certificate: c}, nil
}

// NewPair wraps an already-parsed certificate, for callers (tests, embedders)
// that construct one with tls.X509KeyPair directly instead of reading files.
func NewPair(c tls.Certificate) *Pair {
	return &Pair{certificate: c}
}

// Certificate returns the tls.Certificate to present in a tls.Config's
// Certificates slice.
func (p *Pair) Certificate() tls.Certificate {
	return p.certificate
}

// ServerConfig builds a *tls.Config suitable for the client-facing side of
// TLS mediation: it always presents this certificate, regardless of the
// SNI the client sent (there is no per-host certificate selection).
func (p *Pair) ServerConfig() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{p.certificate},
	}
}
