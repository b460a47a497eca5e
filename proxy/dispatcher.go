package proxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/wdproxy/mitmproxy/internal/rawhttp"
)

// handleConn is the per-connection task spawned by acceptLoop. It wraps
// its body in a catch-all recover so a handler panic never reaches the
// acceptor or other connections (spec.md §4.1 failure semantics).
func (p *Proxy) handleConn(client net.Conn) {
	logger := p.sink.With("in", "Proxy.handleConn", "remote", client.RemoteAddr().String())
	defer func() {
		if r := recover(); r != nil {
			logger.Error("connection handler panicked", "panic", r)
			client.Close()
		}
	}()

	reader := bufio.NewReader(client)
	msg, err := rawhttp.ReadRequest(reader)
	if err != nil {
		logger.Info("malformed request, closing", "error", fmt.Errorf("%w: %w", errProtocolParse, err))
		client.Close()
		return
	}

	if strings.EqualFold(msg.Method, "CONNECT") {
		p.dispatchConnect(logger, client, reader, msg)
		return
	}
	p.dispatchDirect(logger, client, reader, msg)
}

// dispatchConnect implements spec.md §4.2's CONNECT branch: dial the
// target, reply 200 or 502, then either raw-forward or run the
// interceptor's tunnel loop.
func (p *Proxy) dispatchConnect(logger Sink, client net.Conn, reader *bufio.Reader, msg *rawhttp.Message) {
	host, port, err := splitHostPort(msg.Target, 443)
	if err != nil {
		logger.Info("malformed CONNECT target", "target", msg.Target, "error", err)
		client.Close()
		return
	}

	ctx := context.Background()
	conn, err := p.registry.Dial(ctx, host, port, client, func(ctx context.Context) (net.Conn, error) {
		return p.upstream.Dial(ctx, host, port)
	})
	if err != nil {
		logger.Error("upstream connect failed", "host", host, "port", port, "error", fmt.Errorf("%w: %w", errUpstreamConnect, err))
		fmt.Fprintf(client, "HTTP/1.1 502 %s\r\n\r\n", "Bad Gateway")
		client.Close()
		return
	}
	defer p.registry.Remove(conn)

	if _, err := io.WriteString(client, "HTTP/1.1 200 Connection Established\r\n\r\n"); err != nil {
		logger.Info("failed writing 200 to client", "error", err)
		conn.Close()
		return
	}

	if p.config.Interceptor == nil {
		p.rawForward(logger, client, conn.Upstream)
		return
	}

	p.runTunnel(logger, client, reader, host, port, conn)
}

// dispatchDirect implements spec.md §4.2's non-CONNECT branch: derive
// host/port from the absolute URI, then either raw-forward or route
// through the interceptor.
func (p *Proxy) dispatchDirect(logger Sink, client net.Conn, reader *bufio.Reader, msg *rawhttp.Message) {
	u, err := url.Parse(msg.Target)
	if err != nil || !u.IsAbs() {
		logger.Info("non-absolute request target, closing", "target", msg.Target)
		client.Close()
		return
	}
	host, port, err := splitHostPort(u.Host, defaultPortFor(u.Scheme))
	if err != nil {
		logger.Info("malformed request host", "host", u.Host, "error", err)
		client.Close()
		return
	}

	if p.config.Interceptor == nil {
		p.directRawForward(logger, client, reader, msg, host, port)
		return
	}

	p.runDirect(logger, client, reader, msg, u, host, port)
}

// directRawForward relays the already-parsed request's raw bytes to the
// upstream connection verbatim, then raw forwards the remainder of the
// connection bidirectionally (spec.md §4.4, P2).
func (p *Proxy) directRawForward(logger Sink, client net.Conn, reader *bufio.Reader, msg *rawhttp.Message, host string, port int) {
	upstreamConn, err := p.upstream.Dial(context.Background(), host, port)
	if err != nil {
		logger.Error("upstream connect failed", "host", host, "port", port, "error", fmt.Errorf("%w: %w", errUpstreamConnect, err))
		fmt.Fprintf(client, "HTTP/1.1 502 %s\r\n\r\n", "Bad Gateway")
		client.Close()
		return
	}

	if _, err := upstreamConn.Write(msg.RawHeaderBlock); err != nil {
		logger.Info("failed relaying request header to upstream", "error", err)
		upstreamConn.Close()
		client.Close()
		return
	}
	if err := relayBody(upstreamConn, reader, msg); err != nil {
		logger.Info("failed relaying request body to upstream", "error", err)
		upstreamConn.Close()
		client.Close()
		return
	}

	p.rawForward(logger, client, upstreamConn)
}

// relayBody copies exactly the declared body (by Content-Length, or the
// whole chunked-encoded byte stream) from reader to dst verbatim. Chunked
// bodies are relayed chunk-framing and all via rawhttp.CopyChunkedBody,
// not decoded: the header block already relayed to dst still declares
// "Transfer-Encoding: chunked", so re-chunking or dechunking here would
// desynchronize the framing the upstream expects (spec.md §8 P2).
func relayBody(dst io.Writer, reader *bufio.Reader, msg *rawhttp.Message) error {
	if n := msg.ContentLength(); n > 0 {
		_, err := io.CopyN(dst, reader, n)
		return err
	}
	if msg.Chunked() {
		return rawhttp.CopyChunkedBody(dst, reader)
	}
	return nil
}

func splitHostPort(hostport string, defaultPort int) (string, int, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport, defaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, port, nil
}

func defaultPortFor(scheme string) int {
	if strings.EqualFold(scheme, "https") {
		return 443
	}
	return 80
}
