// Package httpclient issues the single upstream HTTP request an
// interceptor needs per spec.md §4.6: verbatim method, absolute URI,
// headers (hop-by-hop headers included, untouched), and an optional opaque
// body. Request carries no protocol version: net/http always sends the
// request as HTTP/1.1, whatever version the client used. It never decodes
// the response body and never
// negotiates HTTP/2 — SPEC_FULL.md scopes HTTP/2 out, so unlike the
// teacher's DefaultClientFactory this package has only one client shape to
// build, not four.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strings"
)

// Request is the verbatim upstream request to issue.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte // nil for no body
}

// Response is the upstream response, with metadata and body kept separate
// so a response chain can inspect headers/status without first consuming
// the body (spec.md §4.6).
type Response struct {
	Proto      string
	StatusCode int
	Reason     string
	Header     http.Header
	Body       io.ReadCloser
}

// Client issues upstream HTTP requests on behalf of an interceptor. It
// mirrors the teacher's DefaultClientFactory.CreateMainClient configuration
// (disabled compression and redirects) without the HTTP/2 and
// connection-pinning variants the teacher needs for its addon pipeline.
type Client struct {
	http *http.Client
}

// New builds a Client. dial, when non-nil, replaces the transport's TCP
// dialer — the proxy package passes an adapter over its
// upstream.Manager.Dial here so the
// external request honors the same upstream-proxy chaining (spec.md
// SPEC_FULL.md "Upstream proxy chaining") the CONNECT path uses, rather
// than net/http's own Proxy field resolving a second, independent path.
// insecureSkipVerify disables origin certificate verification, for
// embedders intentionally testing against self-signed origins.
func New(dial func(ctx context.Context, network, addr string) (net.Conn, error), insecureSkipVerify bool) *Client {
	return &Client{
		http: &http.Client{
			Transport: &http.Transport{
				DialContext:        dial,
				DisableCompression: true,
				TLSClientConfig:    &tls.Config{InsecureSkipVerify: insecureSkipVerify},
			},
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Do issues req and returns the upstream response metadata and a live body
// reader. The caller must close Response.Body.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader(req.Body))
	if err != nil {
		return nil, err
	}
	httpReq.Header = req.Header.Clone()

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}

	return &Response{
		Proto:      resp.Proto,
		StatusCode: resp.StatusCode,
		Reason:     statusReason(resp),
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

func bodyReader(body []byte) io.Reader {
	if body == nil {
		return nil
	}
	return bytes.NewReader(body)
}

// statusReason recovers the reason phrase net/http folds into Response.Status
// ("200 OK" -> "OK"), since spec.md §4.6 wants it reported separately.
func statusReason(resp *http.Response) string {
	if _, reason, ok := strings.Cut(resp.Status, " "); ok {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}
