package tlsmediation_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/wdproxy/mitmproxy/cert"
	"github.com/wdproxy/mitmproxy/internal/tlsmediation"
)

func selfSignedPair(t *testing.T) *cert.Pair {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "mediator-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		DNSNames:     []string{"origin.test"},
		IsCA:         true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		t.Fatal(err)
	}
	tlsCert := tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}
	return cert.NewPair(tlsCert)
}

// TestMediatorClientHandshakeSucceedsWithMatchingTrust verifies that the
// server side of the mediation completes when the peer trusts the fixed
// certificate (spec.md §4.5 step 2).
func TestMediatorClientHandshakeSucceedsWithMatchingTrust(t *testing.T) {
	pair := selfSignedPair(t)
	mediator := tlsmediation.New(pair, false)

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	roots := x509.NewCertPool()
	roots.AddCert(mustParse(t, pair.Certificate().Certificate[0]))

	done := make(chan error, 1)
	go func() {
		_, err := mediator.Client(context.Background(), serverConn)
		done <- err
	}()

	clientTLS := tls.Client(clientConn, &tls.Config{RootCAs: roots, ServerName: "origin.test"})
	if err := clientTLS.HandshakeContext(context.Background()); err != nil {
		t.Fatalf("client-side handshake failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("mediator handshake failed: %v", err)
	}
}

// TestMediatorClientHandshakeFailsWithoutTrust verifies the failure
// semantics in spec.md §4.5: an untrusting peer must fail the handshake,
// never get a partial tunnel.
func TestMediatorClientHandshakeFailsWithoutTrust(t *testing.T) {
	pair := selfSignedPair(t)
	mediator := tlsmediation.New(pair, false)

	serverConn, clientConn := loopbackPair(t)
	defer clientConn.Close()

	done := make(chan error, 1)
	go func() {
		_, err := mediator.Client(context.Background(), serverConn)
		done <- err
	}()

	clientTLS := tls.Client(clientConn, &tls.Config{ServerName: "origin.test"}) // no RootCAs: will reject
	err := clientTLS.HandshakeContext(context.Background())
	if err == nil {
		t.Fatal("expected handshake to fail when the peer does not trust the certificate")
	}
	<-done
}

// TestMediatorUpstreamRejectsUntrustedCertificateByDefault verifies that
// Upstream performs real trust-store verification when InsecureSkipVerify
// is false: an origin presenting a self-signed certificate the dialer
// doesn't trust must fail the handshake.
func TestMediatorUpstreamRejectsUntrustedCertificateByDefault(t *testing.T) {
	pair := selfSignedPair(t)
	mediator := tlsmediation.New(pair, false)

	originConn, dialerConn := loopbackPair(t)
	defer originConn.Close()

	go func() {
		originTLS := tls.Server(originConn, &tls.Config{Certificates: []tls.Certificate{pair.Certificate()}})
		originTLS.HandshakeContext(context.Background())
	}()

	_, err := mediator.Upstream(context.Background(), "origin.test", 443, func(context.Context) (net.Conn, error) {
		return dialerConn, nil
	})
	if err == nil {
		t.Fatal("expected upstream handshake to fail against an untrusted self-signed certificate")
	}
}

// TestMediatorUpstreamInsecureSkipVerifyAcceptsUntrustedCertificate
// verifies the InsecureSkipVerify knob actually reaches the upstream
// handshake, not just the client-facing one.
func TestMediatorUpstreamInsecureSkipVerifyAcceptsUntrustedCertificate(t *testing.T) {
	pair := selfSignedPair(t)
	mediator := tlsmediation.New(pair, true)

	originConn, dialerConn := net.Pipe()
	defer originConn.Close()

	serverDone := make(chan error, 1)
	go func() {
		originTLS := tls.Server(originConn, &tls.Config{Certificates: []tls.Certificate{pair.Certificate()}})
		serverDone <- originTLS.HandshakeContext(context.Background())
	}()

	_, err := mediator.Upstream(context.Background(), "origin.test", 443, func(context.Context) (net.Conn, error) {
		return dialerConn, nil
	})
	if err != nil {
		t.Fatalf("expected InsecureSkipVerify to accept the untrusted certificate, got: %v", err)
	}
	if err := <-serverDone; err != nil {
		t.Fatalf("origin-side handshake failed: %v", err)
	}
}

// loopbackPair returns the two ends of a loopback TCP connection. Unlike
// net.Pipe its writes are buffered by the kernel, so a peer that aborts a
// handshake can send its alert while the other side is still writing its
// flight, instead of both sides blocking on each other.
func loopbackPair(t *testing.T) (server, client net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()
	client, err = net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	server = <-accepted
	if server == nil {
		t.Fatal("loopback accept failed")
	}
	t.Cleanup(func() { server.Close(); client.Close() })
	return server, client
}

func mustParse(t *testing.T, der []byte) *x509.Certificate {
	t.Helper()
	c, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}
	return c
}
