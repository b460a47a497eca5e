package upstream

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// dialThroughProxy opens a connection to address via proxyURL, which names
// a further upstream proxy this instance chains through — either a SOCKS5
// endpoint or an HTTP(S) CONNECT endpoint. Grounded on the teacher's
// internal/helper.GetProxyConn, which itself follows net/http's transport
// dialConn for the CONNECT handshake.
func dialThroughProxy(ctx context.Context, proxyURL *url.URL, address string, insecureSkipVerify bool) (net.Conn, error) {
	if proxyURL.Scheme == "socks5" {
		return dialSOCKS5(ctx, proxyURL, address)
	}

	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", proxyURL.Host)
	if err != nil {
		return nil, err
	}

	if proxyURL.Scheme == "https" {
		tlsConn := tls.Client(conn, &tls.Config{
			ServerName:         proxyURL.Hostname(),
			InsecureSkipVerify: insecureSkipVerify,
		})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		conn = tlsConn
	}

	return connectThroughHTTPProxy(ctx, conn, proxyURL, address)
}

func dialSOCKS5(ctx context.Context, proxyURL *url.URL, address string) (net.Conn, error) {
	auth := &proxy.Auth{}
	if proxyURL.User != nil {
		auth.User = proxyURL.User.Username()
		auth.Password, _ = proxyURL.User.Password()
	}
	dialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, proxy.Direct)
	if err != nil {
		return nil, err
	}
	dc, ok := dialer.(interface {
		DialContext(ctx context.Context, network, addr string) (net.Conn, error)
	})
	if !ok {
		return nil, errors.New("upstream: SOCKS5 dialer does not support DialContext")
	}
	return dc.DialContext(ctx, "tcp", address)
}

// connectThroughHTTPProxy issues an HTTP CONNECT over conn (already
// established, and already TLS-wrapped for an "https" proxyURL) and hands
// back conn once the proxy answers 200.
func connectThroughHTTPProxy(ctx context.Context, conn net.Conn, proxyURL *url.URL, address string) (net.Conn, error) {
	connectReq := &http.Request{
		Method: "CONNECT",
		URL:    &url.URL{Opaque: address},
		Host:   address,
		Header: http.Header{},
	}
	if proxyURL.User != nil {
		connectReq.Header.Set("Proxy-Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(proxyURL.User.String())))
	}

	connectCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	done := make(chan struct{})
	var resp *http.Response
	var writeErr error
	go func() {
		defer close(done)
		if writeErr = connectReq.Write(conn); writeErr != nil {
			return
		}
		resp, writeErr = http.ReadResponse(bufio.NewReader(conn), connectReq)
	}()

	select {
	case <-connectCtx.Done():
		conn.Close()
		<-done
		return nil, connectCtx.Err()
	case <-done:
	}

	if writeErr != nil {
		conn.Close()
		return nil, writeErr
	}
	if resp.StatusCode != http.StatusOK {
		conn.Close()
		if _, text, ok := strings.Cut(resp.Status, " "); ok {
			return nil, errors.New("upstream: proxy CONNECT failed: " + text)
		}
		return nil, errors.New("upstream: proxy CONNECT failed")
	}
	return conn, nil
}
