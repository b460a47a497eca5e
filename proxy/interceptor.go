package proxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http/httputil"
	"net/url"

	"github.com/wdproxy/mitmproxy/internal/chain"
	"github.com/wdproxy/mitmproxy/internal/httpclient"
	"github.com/wdproxy/mitmproxy/internal/rawhttp"
	"github.com/wdproxy/mitmproxy/internal/registry"
)

// bufferedConn lets a net.Conn's already-buffered unread bytes (from
// parsing the CONNECT request line) be replayed before falling through to
// further reads off the raw socket — needed before starting a TLS
// handshake on top of a connection whose bufio.Reader may have already
// pulled ahead.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (b bufferedConn) Read(p []byte) (int, error) { return b.r.Read(p) }

// runTunnel implements spec.md §4.3 run_tunnel: mediate TLS, then loop
// reading one plaintext request at a time, running both chains, until the
// client closes or a chain drop leaves nothing to deliver.
func (p *Proxy) runTunnel(logger Sink, client net.Conn, reader *bufio.Reader, host string, port int, conn *registry.Connection) {
	ctx := context.Background()

	clientTLS, err := p.mediator.Client(ctx, bufferedConn{Conn: client, r: reader})
	if err != nil {
		logger.Error("client tls handshake failed", "error", fmt.Errorf("%w: %w", errTLSHandshake, err))
		conn.Close()
		return
	}
	defer clientTLS.Close()

	upstreamTLS, err := p.mediator.Upstream(ctx, host, port, func(context.Context) (net.Conn, error) {
		return conn.Upstream, nil
	})
	if err != nil {
		logger.Error("upstream tls handshake failed", "error", fmt.Errorf("%w: %w", errTLSHandshake, err))
		conn.Close()
		return
	}
	defer upstreamTLS.Close()

	tlsReader := bufio.NewReader(clientTLS)
	for {
		msg, err := rawhttp.ReadRequest(tlsReader)
		if err != nil {
			if err != io.EOF {
				logger.Info("tunnel client stream closed", "error", err)
			}
			return
		}

		u, parseErr := url.Parse(msg.Target)
		if parseErr != nil {
			u = &url.URL{}
		}
		if !u.IsAbs() {
			u.Scheme = "https"
			u.Host = net.JoinHostPort(host, fmt.Sprint(port))
		}

		if !p.runExchange(logger, clientTLS, upstreamTLS, tlsReader, msg, u) {
			return
		}
	}
}

// runDirect implements spec.md §4.3 run_direct: run the request chain on
// the already-parsed request, issue the (possibly rewritten) upstream
// request, run the response chain, write the response.
func (p *Proxy) runDirect(logger Sink, client net.Conn, reader *bufio.Reader, msg *rawhttp.Message, u *url.URL, host string, port int) {
	defer client.Close()
	p.runExchange(logger, client, nil, reader, msg, u)
}

// runExchange runs one request/response exchange through the interceptor.
// writeTo is the stream the response is written to; the unnamed net.Conn
// parameter (the tunnel's upstream TLS stream, nil for direct requests) is
// not used — the external HTTP
// client dials through the proxy's own upstream manager either way, since
// spec.md §4.6 treats the external client as a fresh request issuer, not a
// raw relay. It returns false when the caller's loop (if any) should stop.
func (p *Proxy) runExchange(logger Sink, writeTo net.Conn, _ net.Conn, reader *bufio.Reader, msg *rawhttp.Message, u *url.URL) bool {
	body, err := readBody(reader, msg)
	if err != nil {
		logger.Info("failed reading request body", "error", err)
		return false
	}

	req := &chain.Request{Method: msg.Method, URL: u, Proto: msg.Proto, Header: msg.Header, Body: body}

	verdict := p.config.Interceptor.RequestChain.Evaluate(req, nil)
	if verdict == chain.VerdictDrop {
		logger.Debug("request chain dropped message", "uri", u.String())
		return false
	}

	reqCtx := context.Background()
	if p.config.UpstreamRequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(reqCtx, p.config.UpstreamRequestTimeout)
		defer cancel()
	}

	resp, err := p.httpClient.Do(reqCtx, httpclient.Request{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header,
		Body:   req.Body,
	})
	if err != nil {
		logger.Error("upstream request failed", "error", err)
		fmt.Fprintf(writeTo, "HTTP/1.1 502 %s\r\n\r\n", "Bad Gateway")
		return false
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		logger.Error("failed reading upstream response body", "error", err)
		return false
	}

	chainResp := &chain.Response{Proto: resp.Proto, StatusCode: resp.StatusCode, Reason: resp.Reason, Header: resp.Header, Body: respBody}

	verdict = p.config.Interceptor.ResponseChain.Evaluate(chainResp, nil)
	if verdict == chain.VerdictDrop {
		logger.Debug("response chain dropped message", "uri", u.String())
		return false
	}

	if err := writeResponse(writeTo, chainResp); err != nil {
		logger.Info("failed writing response to client", "error", err)
		return false
	}
	return true
}

func readBody(reader *bufio.Reader, msg *rawhttp.Message) ([]byte, error) {
	if n := msg.ContentLength(); n > 0 {
		buf := make([]byte, n)
		_, err := io.ReadFull(reader, buf)
		return buf, err
	}
	if msg.Chunked() {
		return io.ReadAll(httputil.NewChunkedReader(reader))
	}
	return nil, nil
}

func writeResponse(w net.Conn, resp *chain.Response) error {
	resp.Header.Set("Content-Length", fmt.Sprint(len(resp.Body)))
	resp.Header.Del("Transfer-Encoding")

	if _, err := fmt.Fprintf(w, "%s %d %s\r\n", resp.Proto, resp.StatusCode, resp.Reason); err != nil {
		return err
	}
	if err := resp.Header.Write(w); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "\r\n"); err != nil {
		return err
	}
	_, err := w.Write(resp.Body)
	return err
}
