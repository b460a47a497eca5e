package proxy

import "time"

// Config holds the settings a Proxy is constructed with. It is built
// programmatically by the embedder, the way the teacher's proxy.Config is
// — there is no file- or flag-driven configuration at this layer; that
// belongs to cmd/mitmproxy.
type Config struct {
	// Addr is the listen address, e.g. "127.0.0.1:8080". Defaults to
	// "127.0.0.1:8080" if empty.
	Addr string

	// Backlog is the listen socket's connection backlog. Defaults to 128
	// if zero.
	Backlog int

	// CertFile and KeyFile name the single fixed certificate/key pair
	// presented during TLS mediation (spec.md §4.5). Required whenever an
	// Interceptor is set: New returns an error if either is empty then.
	CertFile string
	KeyFile  string

	// Interceptor, if non-nil, routes all traffic (CONNECT-tunnelled and
	// direct) through its request/response chains. If nil the proxy raw
	// forwards everything (spec.md §4.2, §4.4).
	Interceptor *Interceptor

	// UpstreamProxyURL optionally chains outbound connections through a
	// further proxy ("socks5://" or "https://"); see SPEC_FULL.md's
	// "Upstream proxy chaining" section. Empty means the HTTPS_PROXY and
	// NO_PROXY environment variables decide, per target host, whether to
	// dial directly or through a proxy.
	UpstreamProxyURL string

	// InsecureSkipVerify disables origin certificate verification for both
	// TLS-mediated upstream dials and the external HTTP client. Intended
	// for embedders deliberately testing against self-signed origins.
	InsecureSkipVerify bool

	// UpstreamRequestTimeout bounds how long the external HTTP client
	// waits for an upstream response. Zero means no timeout (spec.md §5:
	// "otherwise driven by the origin").
	UpstreamRequestTimeout time.Duration

	// Sink receives structured log events. A nil Sink falls back to a
	// plain slog.Default()-backed Sink.
	Sink Sink

	// InstanceName labels this proxy's log lines when multiple instances
	// run side by side in the same process (see NewInstanceLogger).
	InstanceName string

	// LogFilePath additionally appends this instance's logs to a file
	// when set.
	LogFilePath string
}

func (c Config) addr() string {
	if c.Addr == "" {
		return "127.0.0.1:8080"
	}
	return c.Addr
}

func (c Config) backlog() int {
	if c.Backlog <= 0 {
		return 128
	}
	return c.Backlog
}
