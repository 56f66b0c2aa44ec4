package backend

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"
)

var ErrCertificateExpired = errors.New("certificate expired")

// LoadCertificate parses the first PEM certificate in path.
func LoadCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, fmt.Errorf("%s: no PEM certificate found", path)
		}
		if block.Type == "CERTIFICATE" {
			return x509.ParseCertificate(block.Bytes)
		}
	}
}

// CheckCertificate loads the serving certificate and fails when it is
// already expired at now.
func CheckCertificate(path string, now time.Time) (*x509.Certificate, error) {
	cert, err := LoadCertificate(path)
	if err != nil {
		return nil, fmt.Errorf("load certificate: %w", err)
	}
	if cert.NotAfter.Before(now) {
		return cert, fmt.Errorf("%w: %s expired %s", ErrCertificateExpired, path, cert.NotAfter.Format(time.RFC3339))
	}
	return cert, nil
}
