// Command gencert generates the single self-signed certificate and private
// key this proxy presents during TLS mediation (see cert.Pair and
// internal/tlsmediation). Unlike the teacher's dummycert, which minted one
// throwaway leaf per commonName on demand, this tool is run once up front:
// the resulting pair is long-lived and must be installed in the client's
// trust store before interception will work.
package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"flag"
	"log/slog"
	"math/big"
	"net"
	"os"
	"strings"
	"time"
)

type config struct {
	commonName string
	certOut    string
	keyOut     string
	validFor   time.Duration
	hosts      string
}

func loadConfig() *config {
	c := new(config)
	flag.StringVar(&c.commonName, "commonName", "wdproxy mitm root", "certificate common name")
	flag.StringVar(&c.certOut, "cert", "mitmproxy-cert.pem", "output path for the certificate")
	flag.StringVar(&c.keyOut, "key", "mitmproxy-key.pem", "output path for the private key")
	flag.DurationVar(&c.validFor, "valid-for", 10*365*24*time.Hour, "certificate validity period")
	flag.StringVar(&c.hosts, "hosts", "localhost,127.0.0.1,::1", "comma-separated SAN hosts/IPs")
	flag.Parse() //revive:disable-line:deep-exit -- ok for cmd/*
	return c
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	c := loadConfig()

	certPEM, keyPEM, err := generate(c)
	if err != nil {
		slog.Error("generate certificate", "error", err)
		os.Exit(1)
	}

	if err := os.WriteFile(c.certOut, certPEM, 0o644); err != nil {
		slog.Error("write certificate", "path", c.certOut, "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(c.keyOut, keyPEM, 0o600); err != nil {
		slog.Error("write key", "path", c.keyOut, "error", err)
		os.Exit(1)
	}

	slog.Info("wrote certificate pair", "cert", c.certOut, "key", c.keyOut, "commonName", c.commonName)
}

func generate(c *config) (certPEM, keyPEM []byte, err error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: c.commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(c.validFor),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IsCA:         true,
		BasicConstraintsValid: true,
	}
	for _, h := range strings.Split(c.hosts, ",") {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return nil, nil, err
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	keyDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, err
	}
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})

	return certPEM, keyPEM, nil
}
