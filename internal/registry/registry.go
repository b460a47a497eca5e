// Package registry implements the proxy's connection registry: the
// mapping from "host:port" to the live Connection tunnelling traffic to
// that origin, as described in spec.md §3 and §4.7.
package registry

import (
	"context"
	"net"
	"strconv"
	"sync"

	uuid "github.com/satori/go.uuid"
	"go.uber.org/atomic"
)

// Connection pairs a client-side and an upstream byte stream under one
// identity, keyed by "host:port" (spec.md §3). While open, both streams
// are owned exclusively by the goroutine handling the connection; the
// registry itself never reads or writes them, it only tracks liveness so
// Stop can close everything still outstanding.
type Connection struct {
	ID   uuid.UUID
	Host string
	Port int

	Client   net.Conn
	Upstream net.Conn

	open         atomic.Bool
	RequestCount atomic.Uint32
}

func newConnection(host string, port int, client, upstream net.Conn) *Connection {
	c := &Connection{
		ID:       uuid.NewV4(),
		Host:     host,
		Port:     port,
		Client:   client,
		Upstream: upstream,
	}
	c.open.Store(true)
	return c
}

// Key is the registry's identity key for this connection: "host:port".
func (c *Connection) Key() string { return key(c.Host, c.Port) }

// Open reports whether both streams are still considered live. It goes
// false exactly once, the first time Close runs.
func (c *Connection) Open() bool { return c.open.Load() }

// Close closes both paired streams. Safe to call more than once; only the
// first call actually closes anything.
func (c *Connection) Close() error {
	if !c.open.CompareAndSwap(true, false) {
		return nil
	}
	var err error
	if c.Upstream != nil {
		if e := c.Upstream.Close(); e != nil {
			err = e
		}
	}
	if c.Client != nil {
		if e := c.Client.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

func key(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Registry is the mapping from "host:port" to Connection (spec.md §4.7).
// Mutated only under mu: the acceptor's dispatcher inserts, and the
// connection's own goroutine removes it on close.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*Connection
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

// Dial establishes a Connection to host:port. Each call performs its own
// independent dial — the upstream byte stream is never shared between
// Connections, since each owning task needs exclusive access to it (§5
// "Shared resources"). Re-entrant insertion for an existing key replaces
// the stale entry and then closes it, outside the registry lock (the
// situation a client reconnecting to the same origin produces).
func (r *Registry) Dial(ctx context.Context, host string, port int, client net.Conn, dial func(context.Context) (net.Conn, error)) (*Connection, error) {
	k := key(host, port)

	upstream, err := dial(ctx)
	if err != nil {
		return nil, err
	}

	conn := newConnection(host, port, client, upstream)

	r.mu.Lock()
	stale, hadStale := r.conns[k]
	r.conns[k] = conn
	r.mu.Unlock()

	if hadStale {
		_ = stale.Close()
	}

	return conn, nil
}

// Remove drops conn from the registry if it is still the entry registered
// under its key (a later Dial may already have replaced it). It does not
// close conn; callers close it themselves as part of their own teardown.
func (r *Registry) Remove(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.conns[conn.Key()]; ok && cur == conn {
		delete(r.conns, conn.Key())
	}
}

// Snapshot returns every Connection currently registered, for Stop to
// close. The returned slice is a copy; mutating it does not affect the
// registry.
func (r *Registry) Snapshot() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// CloseAll closes every registered Connection and empties the registry.
// Used by Stop (spec.md §4.1).
func (r *Registry) CloseAll() {
	for _, c := range r.Snapshot() {
		_ = c.Close()
		r.Remove(c)
	}
}
