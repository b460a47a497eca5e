// Command mitmproxy starts a standalone proxy instance from flags. It is a
// thin demonstration binary; embedders normally construct proxy.Config and
// proxy.New directly (spec.md §1 treats CLI scaffolding as an external
// collaborator, not part of the core).
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/wdproxy/mitmproxy/proxy"
	"github.com/wdproxy/mitmproxy/version"
)

type config struct {
	version bool

	addr                   string
	backlog                int
	certFile               string
	keyFile                string
	upstreamProxyURL       string
	insecureSkipVerify     bool
	upstreamRequestTimeout time.Duration
	instanceName           string
	logFile                string
	debug                  bool
}

func loadConfig() *config {
	c := &config{}
	flag.BoolVar(&c.version, "version", false, "show version and exit")
	flag.StringVar(&c.addr, "addr", "127.0.0.1:8080", "proxy listen address")
	flag.IntVar(&c.backlog, "backlog", 128, "listen backlog")
	flag.StringVar(&c.certFile, "cert", "", "fixed TLS certificate file (required to intercept CONNECT tunnels)")
	flag.StringVar(&c.keyFile, "key", "", "fixed TLS key file (required to intercept CONNECT tunnels)")
	flag.StringVar(&c.upstreamProxyURL, "upstream", "", "upstream proxy URL (socks5:// or https://); defaults to environment proxy settings")
	flag.BoolVar(&c.insecureSkipVerify, "insecure", false, "do not verify upstream TLS certificates")
	flag.DurationVar(&c.upstreamRequestTimeout, "upstream-timeout", 30*time.Second, "timeout for a single upstream request")
	flag.StringVar(&c.instanceName, "name", "", "instance name tag for log lines")
	flag.StringVar(&c.logFile, "log-file", "", "also write logs to this file")
	flag.BoolVar(&c.debug, "debug", false, "enable debug logging")
	flag.Parse()
	return c
}

func main() {
	c := loadConfig()

	if c.version {
		fmt.Println("mitmproxy: " + version.String())
		os.Exit(0)
	}

	level := slog.LevelInfo
	if c.debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	p, err := proxy.New(proxy.Config{
		Addr:                   c.addr,
		Backlog:                c.backlog,
		CertFile:               c.certFile,
		KeyFile:                c.keyFile,
		UpstreamProxyURL:       c.upstreamProxyURL,
		InsecureSkipVerify:     c.insecureSkipVerify,
		UpstreamRequestTimeout: c.upstreamRequestTimeout,
		InstanceName:           c.instanceName,
		LogFilePath:            c.logFile,
	})
	if err != nil {
		slog.Error("failed to create proxy", "error", err)
		os.Exit(1)
	}

	slog.Info("mitmproxy starting", "version", p.Version, "addr", c.addr)

	if err := p.Start(); err != nil {
		slog.Error("proxy failed to start", "error", err)
		os.Exit(1)
	}

	select {}
}
