package proxy

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"

	"github.com/wdproxy/mitmproxy/cert"
	"github.com/wdproxy/mitmproxy/internal/httpclient"
	"github.com/wdproxy/mitmproxy/internal/registry"
	"github.com/wdproxy/mitmproxy/internal/tlsmediation"
	"github.com/wdproxy/mitmproxy/internal/upstream"
	"github.com/wdproxy/mitmproxy/version"
)

// state is the Proxy lifecycle state, spec.md §4.1: new → running →
// stopped (terminal).
type state int

const (
	stateNew state = iota
	stateRunning
	stateStopped
)

// Proxy bundles everything spec.md §3 describes: listen address/port/
// backlog, the Connection registry, an optional Interceptor, TLS material,
// and the listen socket handle (absent until started, present while
// running — invariant 1).
type Proxy struct {
	Version string

	config Config

	mu       sync.Mutex
	state    state
	listener net.Listener

	registry   *registry.Registry
	upstream   *upstream.Manager
	mediator   *tlsmediation.Mediator
	httpClient *httpclient.Client

	sink Sink
}

// New constructs a Proxy from cfg. No sockets are opened; the proxy starts
// in the *new* state.
func New(cfg Config) (*Proxy, error) {
	sink := defaultSink(cfg)
	if cfg.InstanceName != "" || cfg.LogFilePath != "" {
		sink = NewInstanceLoggerWithFile(cfg.addr(), cfg.InstanceName, cfg.LogFilePath).Sink()
	}

	upstreamMgr, err := upstream.NewManagerFromConfig(cfg.UpstreamProxyURL, cfg.InsecureSkipVerify)
	if err != nil {
		return nil, err
	}

	p := &Proxy{
		Version:  version.Version,
		config:   cfg,
		registry: registry.New(),
		upstream: upstreamMgr,
		sink:     sink,
	}
	p.httpClient = httpclient.New(p.dialUpstream, cfg.InsecureSkipVerify)

	if cfg.Interceptor != nil {
		if cfg.CertFile == "" || cfg.KeyFile == "" {
			return nil, errors.New("proxy: Interceptor requires CertFile and KeyFile to mediate CONNECT tunnels")
		}
		pair, err := cert.LoadPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		p.mediator = tlsmediation.New(pair, cfg.InsecureSkipVerify)

		sink.Info("interceptor configured",
			"request_fields", cfg.Interceptor.RequestChain.Summary(),
			"response_fields", cfg.Interceptor.ResponseChain.Summary())
	}

	return p, nil
}

// Start binds the listen socket and spawns the accept loop. It returns
// once listening is established, per spec.md §4.1; the accept loop itself
// runs in a separate goroutine. Calling Start more than once (from any
// state other than *new*) returns ErrAlreadyStarted and leaves the state
// unchanged — error taxonomy item 8.
func (p *Proxy) Start() error {
	p.mu.Lock()
	if p.state != stateNew {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}

	ln, err := listen(p.config.addr(), p.config.backlog())
	if err != nil {
		p.mu.Unlock()
		return err
	}

	p.listener = ln
	p.state = stateRunning
	p.mu.Unlock()

	p.sink.Info("proxy listening", "addr", p.config.addr(), "backlog", p.config.backlog())
	go p.acceptLoop(ln)
	return nil
}

// Stop closes every Connection in the registry and the listen socket. The
// accept loop observes the closed listener and exits. Stop is idempotent:
// calling it on an already-stopped proxy is a no-op (spec.md §4.1).
func (p *Proxy) Stop() error {
	p.mu.Lock()
	if p.state == stateStopped {
		p.mu.Unlock()
		return nil
	}
	wasRunning := p.state == stateRunning
	p.state = stateStopped
	ln := p.listener
	p.mu.Unlock()

	if !wasRunning {
		return nil
	}

	p.registry.CloseAll()

	if ln != nil {
		return ln.Close()
	}
	return nil
}

// dialUpstream adapts upstream.Manager.Dial to the net.Dialer-shaped hook
// net/http.Transport.DialContext expects, splitting "host:port" back out
// since the external HTTP client (spec.md §4.6) must dial through the same
// upstream proxy chain the CONNECT path does.
func (p *Proxy) dialUpstream(ctx context.Context, _, addr string) (net.Conn, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}
	return p.upstream.Dial(ctx, host, port)
}

func (p *Proxy) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == stateStopped
}

// Addr returns the bound listen address once running, or an error before
// Start or after Stop.
func (p *Proxy) Addr() (net.Addr, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != stateRunning || p.listener == nil {
		return nil, errors.New("proxy: not running")
	}
	return p.listener.Addr(), nil
}
