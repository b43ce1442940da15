package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
)

// clientAuthModes maps the serverTlsConfig.clientAuth values to what the front end
// asks of HTTPS clients
var clientAuthModes = map[string]tls.ClientAuthType{
	"":        tls.NoClientCert,
	"none":    tls.NoClientCert,
	"request": tls.VerifyClientCertIfGiven,
	"verify":  tls.RequireAndVerifyClientCert,
}

// UpstreamTlsConfig builds the client TLS config for image fetches from the upstreamTls
// section of the configuration. If that section is empty nil is returned, meaning the
// default transport settings and the OS trust store.
func UpstreamTlsConfig() (*tls.Config, error) {
	cfg := GetUpstreamTls()
	if cfg == (TlsCfg{}) {
		return nil, nil
	}
	cp, err := loadPool("upstream", cfg.CA)
	if err != nil {
		return nil, err
	}
	certs, err := loadPair("client", cfg.Cert, cfg.Key)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		RootCAs:            cp,
		Certificates:       certs,
	}, nil
}

// ServerTlsConfig builds the TLS config for the HTTP front end from the serverTlsConfig
// section. nil means serve plain HTTP. A client CA without a verifying clientAuth mode
// is an error, as is asking for client certs without a server cert to handshake with.
// With no CA, client certs are verified against the OS trust store.
func ServerTlsConfig() (*tls.Config, error) {
	cfg := GetServerTlsCfg()
	mode, ok := clientAuthModes[strings.ToLower(cfg.ClientAuth)]
	if !ok {
		return nil, fmt.Errorf("unsupported client auth value: %s (want none, request or verify)", cfg.ClientAuth)
	}
	certs, err := loadPair("server", cfg.Cert, cfg.Key)
	if err != nil {
		return nil, err
	}
	if len(certs) == 0 {
		if mode != tls.NoClientCert || cfg.CA != "" {
			return nil, fmt.Errorf("serverTlsConfig needs a cert and key to use clientAuth %q or a ca", cfg.ClientAuth)
		}
		return nil, nil
	}
	if mode == tls.NoClientCert && cfg.CA != "" {
		return nil, fmt.Errorf("serverTlsConfig ca %s is only used with clientAuth request or verify", cfg.CA)
	}
	cp, err := loadPool("client", cfg.CA)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: certs,
		ClientAuth:   mode,
		ClientCAs:    cp,
	}, nil
}

// loadPool returns nil for an empty path
func loadPool(which, path string) (*x509.CertPool, error) {
	if path == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to load %s CA from file: %s: %w", which, path, err)
	}
	cp := x509.NewCertPool()
	if !cp.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s CA file: %s", which, path)
	}
	return cp, nil
}

// loadPair returns no certs unless both paths are set
func loadPair(which, certFile, keyFile string) ([]tls.Certificate, error) {
	if certFile == "" || keyFile == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("unable to load %s cert and/or key from files: cert: %s, key: %s: %w", which, certFile, keyFile, err)
	}
	return []tls.Certificate{cert}, nil
}
