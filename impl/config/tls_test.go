package config

import (
	"crypto/tls"
	"path/filepath"
	"testing"

	"imagefetch/mock"
)

// serverCerts writes a server cert, key and CA to a temp dir
func serverCerts(t *testing.T) (cert, key, ca string) {
	td := t.TempDir()
	certSetup, err := mock.NewCertSetup()
	if err != nil {
		t.FailNow()
	}
	certSetup.ServerCertToFile(td, "cert.pem")
	certSetup.ServerCertPrivKeyToFile(td, "key.pem")
	certSetup.CaToFile(td, "ca.pem")
	return filepath.Join(td, "cert.pem"), filepath.Join(td, "key.pem"), filepath.Join(td, "ca.pem")
}

func TestServerTlsModes(t *testing.T) {
	cert, key, ca := serverCerts(t)
	for _, tc := range []struct {
		cfg     ServerTlsCfg
		plain   bool
		auth    tls.ClientAuthType
		withCAs bool
		wantErr bool
	}{
		{cfg: ServerTlsCfg{}, plain: true},
		{cfg: ServerTlsCfg{ClientAuth: "none"}, plain: true},
		{cfg: ServerTlsCfg{Cert: cert, Key: key}, auth: tls.NoClientCert},
		{cfg: ServerTlsCfg{Cert: cert, Key: key, ClientAuth: "Verify"}, auth: tls.RequireAndVerifyClientCert},
		{cfg: ServerTlsCfg{Cert: cert, Key: key, CA: ca, ClientAuth: "verify"}, auth: tls.RequireAndVerifyClientCert, withCAs: true},
		{cfg: ServerTlsCfg{Cert: cert, Key: key, CA: ca, ClientAuth: "request"}, auth: tls.VerifyClientCertIfGiven, withCAs: true},
		{cfg: ServerTlsCfg{ClientAuth: "sometimes"}, wantErr: true},
		{cfg: ServerTlsCfg{ClientAuth: "verify"}, wantErr: true},
		{cfg: ServerTlsCfg{CA: ca}, wantErr: true},
		{cfg: ServerTlsCfg{Cert: cert, Key: key, CA: ca}, wantErr: true},
		{cfg: ServerTlsCfg{Cert: cert, Key: key, CA: cert + ".missing", ClientAuth: "verify"}, wantErr: true},
		{cfg: ServerTlsCfg{Cert: key, Key: key}, wantErr: true},
	} {
		Set(Configuration{ServerTlsCfg: tc.cfg})
		tlsCfg, err := ServerTlsConfig()
		if tc.wantErr {
			if err == nil {
				t.Errorf("expected an error for %+v", tc.cfg)
			}
			continue
		}
		if err != nil {
			t.Errorf("unexpected error for %+v: %s", tc.cfg, err)
			continue
		}
		if tc.plain {
			if tlsCfg != nil {
				t.Errorf("expected plain HTTP for %+v", tc.cfg)
			}
			continue
		}
		if tlsCfg == nil || len(tlsCfg.Certificates) != 1 || tlsCfg.MinVersion != tls.VersionTLS12 {
			t.Errorf("bad server config for %+v", tc.cfg)
			continue
		}
		if tlsCfg.ClientAuth != tc.auth || (tlsCfg.ClientCAs != nil) != tc.withCAs {
			t.Errorf("bad client auth for %+v", tc.cfg)
		}
	}
}
