package transport

import "testing"

func TestServerTLSConfigFallsBackToSelfSigned(t *testing.T) {
	conf, err := serverTLSConfig("", "")
	if err != nil {
		t.Fatalf("serverTLSConfig: %v", err)
	}
	if len(conf.Certificates) != 1 {
		t.Fatalf("expected one self-signed certificate, got %d", len(conf.Certificates))
	}
	if len(conf.NextProtos) != 1 || conf.NextProtos[0] != nextProto {
		t.Fatalf("expected NextProtos [%q], got %v", nextProto, conf.NextProtos)
	}
}

func TestServerTLSConfigRejectsBadCertPath(t *testing.T) {
	if _, err := serverTLSConfig("/nonexistent/cert.pem", "/nonexistent/key.pem"); err == nil {
		t.Fatal("expected an error for a cert/key pair that cannot be loaded")
	}
}

func TestSelfSignedTLSConfigProducesUsableCertificate(t *testing.T) {
	conf, err := selfSignedTLSConfig()
	if err != nil {
		t.Fatalf("selfSignedTLSConfig: %v", err)
	}
	if len(conf.Certificates) != 1 || len(conf.Certificates[0].Certificate) == 0 {
		t.Fatal("expected a usable leaf certificate")
	}
}
