// Package proxy implements the intercepting HTTP/HTTPS proxy: connection
// acceptance, the CONNECT tunnelling state machine, TLS interception, and
// the chain-driven rewrite pipeline described in SPEC_FULL.md.
//
// This file (entry.go) is the acceptor. Unlike the teacher's entry.go,
// which delegates listening and request parsing entirely to
// net/http.Server and hijacks the connection for CONNECT, this proxy's
// dispatcher (dispatcher.go) parses requests itself, so the acceptor here
// only owns the listen socket and the accept loop — the architecture
// spec.md §4.1 describes directly, rather than going through net/http's
// server loop.
package proxy

import (
	"net"
	"os"
	"syscall"
)

// listen binds a TCP listener to addr with SO_REUSEADDR and the given
// backlog. net.Listen does not expose a backlog knob, so honoring
// spec.md §4.1's "begin listening with the configured backlog" means going
// through syscall.Socket/Bind/Listen directly and wrapping the resulting
// file descriptor with net.FileListener.
func listen(addr string, backlog int) (net.Listener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}

	var domain int
	sockAddr := toSockaddr(tcpAddr, &domain)

	fd, err := syscall.Socket(domain, syscall.SOCK_STREAM, syscall.IPPROTO_TCP)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
		syscall.Close(fd)
		return nil, os.NewSyscallError("setsockopt", err)
	}
	if err := syscall.Bind(fd, sockAddr); err != nil {
		syscall.Close(fd)
		return nil, os.NewSyscallError("bind", err)
	}
	if err := syscall.Listen(fd, backlog); err != nil {
		syscall.Close(fd)
		return nil, os.NewSyscallError("listen", err)
	}

	file := os.NewFile(uintptr(fd), "proxy-listener")
	ln, err := net.FileListener(file)
	file.Close()
	if err != nil {
		return nil, err
	}
	return ln, nil
}

func toSockaddr(addr *net.TCPAddr, domain *int) syscall.Sockaddr {
	ip := addr.IP
	if ip == nil {
		ip = net.IPv4zero
	}
	if ip4 := ip.To4(); ip4 != nil {
		*domain = syscall.AF_INET
		var b [4]byte
		copy(b[:], ip4)
		return &syscall.SockaddrInet4{Port: addr.Port, Addr: b}
	}
	*domain = syscall.AF_INET6
	var b [16]byte
	copy(b[:], ip.To16())
	return &syscall.SockaddrInet6{Port: addr.Port, Addr: b}
}

// acceptLoop repeatedly accepts connections on ln, spawning an independent
// goroutine per connection (spec.md §4.1). It returns only when ln is
// closed; transient accept errors are logged and the loop continues.
func (p *Proxy) acceptLoop(ln net.Listener) {
	logger := p.sink.With("in", "Proxy.acceptLoop")
	for {
		c, err := ln.Accept()
		if err != nil {
			if p.isStopped() {
				logger.Info("accept loop exiting", "reason", "listener closed")
				return
			}
			logger.Error("accept failed", "error", err)
			continue
		}
		go p.handleConn(c)
	}
}
