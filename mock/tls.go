package mock

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// CertSetup holds a throwaway CA plus a server and a client cert signed by it, for
// tests that exercise TLS between the image fetcher and the mock image server, or
// between a client and the HTTP front end.
type CertSetup struct {
	CaPEM                *bytes.Buffer
	ServerCert           tls.Certificate
	ServerCertPEM        *bytes.Buffer
	ServerCertPrivKeyPEM *bytes.Buffer
	ClientCert           tls.Certificate
	ClientCertPEM        *bytes.Buffer
	ClientCertPrivKeyPEM *bytes.Buffer
}

// CaToFile writes the CA cert to fileName in dir and returns the full path
func (cs CertSetup) CaToFile(dir, fileName string) string {
	return writeOnce(dir, fileName, cs.CaPEM.Bytes())
}

func (cs CertSetup) ServerCertToFile(dir, fileName string) string {
	return writeOnce(dir, fileName, cs.ServerCertPEM.Bytes())
}

func (cs CertSetup) ServerCertPrivKeyToFile(dir, fileName string) string {
	return writeOnce(dir, fileName, cs.ServerCertPrivKeyPEM.Bytes())
}

func (cs CertSetup) ClientCertToFile(dir, fileName string) string {
	return writeOnce(dir, fileName, cs.ClientCertPEM.Bytes())
}

func (cs CertSetup) ClientCertPrivKeyToFile(dir, fileName string) string {
	return writeOnce(dir, fileName, cs.ClientCertPrivKeyPEM.Bytes())
}

// writeOnce writes the file unless it already exists. Test fixtures only, so a
// write failure panics.
func writeOnce(dir, fileName string, b []byte) string {
	p := filepath.Join(dir, fileName)
	if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(p, b, 0644); err != nil {
			panic(err)
		}
	}
	return p
}

// issuer signs leaf certs
type issuer struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey
}

// NewCertSetup generates a self-signed CA and a server and client cert signed by it. The
// certs are valid for localhost and the loopback addresses. ECDSA P-256 keys keep this fast
// enough to call from every test that needs TLS.
func NewCertSetup() (CertSetup, error) {
	ca, caPEM, err := newCA()
	if err != nil {
		return CertSetup{}, err
	}
	cs := CertSetup{CaPEM: caPEM}
	if cs.ServerCert, cs.ServerCertPEM, cs.ServerCertPrivKeyPEM, err = ca.issue("server", x509.ExtKeyUsageServerAuth); err != nil {
		return CertSetup{}, err
	}
	if cs.ClientCert, cs.ClientCertPEM, cs.ClientCertPrivKeyPEM, err = ca.issue("client", x509.ExtKeyUsageClientAuth); err != nil {
		return CertSetup{}, err
	}
	return cs, nil
}

func newCA() (issuer, *bytes.Buffer, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return issuer{}, nil, err
	}
	tmpl, err := template("imagefetch test CA")
	if err != nil {
		return issuer{}, nil, err
	}
	tmpl.IsCA = true
	tmpl.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return issuer{}, nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return issuer{}, nil, err
	}
	return issuer{cert: cert, key: key}, pemOf("CERTIFICATE", der), nil
}

// issue returns the new cert as a tls.Certificate, then the cert and its key PEM-encoded
func (is issuer) issue(cn string, usage x509.ExtKeyUsage) (tls.Certificate, *bytes.Buffer, *bytes.Buffer, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, nil, nil, err
	}
	tmpl, err := template(cn)
	if err != nil {
		return tls.Certificate{}, nil, nil, err
	}
	tmpl.KeyUsage = x509.KeyUsageDigitalSignature
	tmpl.ExtKeyUsage = []x509.ExtKeyUsage{usage}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, is.cert, &key.PublicKey, is.key)
	if err != nil {
		return tls.Certificate{}, nil, nil, err
	}
	keyDer, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return tls.Certificate{}, nil, nil, err
	}
	certPEM, keyPEM := pemOf("CERTIFICATE", der), pemOf("EC PRIVATE KEY", keyDer)
	pair, err := tls.X509KeyPair(certPEM.Bytes(), keyPEM.Bytes())
	if err != nil {
		return tls.Certificate{}, nil, nil, err
	}
	return pair, certPEM, keyPEM, nil
}

func template(cn string) (*x509.Certificate, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn},
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.AddDate(1, 0, 0),
		BasicConstraintsValid: true,
	}, nil
}

func pemOf(typ string, der []byte) *bytes.Buffer {
	b := new(bytes.Buffer)
	pem.Encode(b, &pem.Block{Type: typ, Bytes: der})
	return b
}
