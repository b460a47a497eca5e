package proxy

import "errors"

// Sentinel errors implementing spec.md §7's error taxonomy. Errors that
// affect only one connection never leave that connection's goroutine;
// only ErrAlreadyStarted and bind failures from Start are returned to the
// caller directly.
var (
	// ErrAlreadyStarted is returned by Start when called on a proxy that
	// is already running or has already been stopped (taxonomy item 8).
	ErrAlreadyStarted = errors.New("proxy: already started")

	// errUpstreamConnect marks a failed upstream dial (taxonomy item 3).
	// Surfaced to the client as a 502, never returned to callers of Start.
	errUpstreamConnect = errors.New("proxy: upstream connect failed")

	// errTLSHandshake marks a failed client or upstream TLS handshake
	// (taxonomy item 4). The connection is closed with no response.
	errTLSHandshake = errors.New("proxy: tls handshake failed")

	// errProtocolParse marks a malformed request line or header block
	// (taxonomy item 6).
	errProtocolParse = errors.New("proxy: malformed request")
)
