package dialer

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"

	utls "github.com/refraction-networking/utls"
)

// TLSOptions configures the TLS session layered over a CONNECT tunnel.
type TLSOptions struct {
	// CAFile is a PEM bundle of trusted roots. Empty uses the system pool.
	CAFile string
	// ServerName overrides the SNI and verification name. Empty uses the
	// destination host.
	ServerName string
	// InsecureSkipVerify disables certificate verification entirely.
	InsecureSkipVerify bool
	// SkipPeerNameCheck verifies the chain but not the name it was issued
	// for.
	SkipPeerNameCheck bool
	// Fingerprint selects a browser ClientHello: "chrome", "firefox", "ios"
	// or "randomized". Empty uses the standard library handshake.
	Fingerprint string
}

var fingerprints = map[string]utls.ClientHelloID{
	"chrome":     utls.HelloChrome_Auto,
	"firefox":    utls.HelloFirefox_Auto,
	"ios":        utls.HelloIOS_Auto,
	"randomized": utls.HelloRandomized,
}

// Validate reports an unknown Fingerprint or an unreadable CAFile.
func (o TLSOptions) Validate() error {
	if o.Fingerprint != "" {
		if _, ok := fingerprints[o.Fingerprint]; !ok {
			return fmt.Errorf("unknown tls fingerprint %q", o.Fingerprint)
		}
	}
	_, err := loadRoots(o.CAFile)
	return err
}

// UpgradeTLS runs a client handshake over conn for host and returns the
// encrypted connection. conn is closed on error. Canceling ctx aborts the
// handshake.
func UpgradeTLS(ctx context.Context, conn net.Conn, host string, opts TLSOptions) (net.Conn, error) {
	c, err := upgradeTLS(ctx, conn, host, opts)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

func upgradeTLS(ctx context.Context, conn net.Conn, host string, opts TLSOptions) (net.Conn, error) {
	roots, err := loadRoots(opts.CAFile)
	if err != nil {
		return nil, err
	}

	serverName := opts.ServerName
	if serverName == "" {
		serverName = host
	}

	insecure := opts.InsecureSkipVerify
	var verify func([][]byte, [][]*x509.Certificate) error
	if !insecure && opts.SkipPeerNameCheck {
		insecure = true
		verify = verifyChainOnly(roots)
	}

	if opts.Fingerprint == "" {
		tc := tls.Client(conn, &tls.Config{
			MinVersion:            tls.VersionTLS12,
			ServerName:            serverName,
			RootCAs:               roots,
			InsecureSkipVerify:    insecure, //nolint:gosec // Explicitly requested by the user.
			VerifyPeerCertificate: verify,
		})
		if err := tc.HandshakeContext(ctx); err != nil {
			return nil, fmt.Errorf("tls handshake: %w", err)
		}
		return tc, nil
	}

	id, ok := fingerprints[opts.Fingerprint]
	if !ok {
		return nil, fmt.Errorf("unknown tls fingerprint %q", opts.Fingerprint)
	}
	uc := utls.UClient(conn, &utls.Config{
		MinVersion:            utls.VersionTLS12,
		ServerName:            serverName,
		RootCAs:               roots,
		InsecureSkipVerify:    insecure, //nolint:gosec // Explicitly requested by the user.
		VerifyPeerCertificate: verify,
	}, id)

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	err = uc.Handshake()
	if !stop() {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("tls handshake (%s): %w", opts.Fingerprint, err)
	}
	return uc, nil
}

func loadRoots(path string) (*x509.CertPool, error) {
	if path == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(path) //nolint:gosec // Path is from user config.
	if err != nil {
		return nil, fmt.Errorf("tls ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("tls ca file %s: no certificates found", path)
	}
	return pool, nil
}

// verifyChainOnly checks the presented chain against roots (nil meaning the
// system pool) without matching any host name.
func verifyChainOnly(roots *x509.CertPool) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return errors.New("tls: no peer certificates")
		}
		certs := make([]*x509.Certificate, 0, len(rawCerts))
		for _, raw := range rawCerts {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				return fmt.Errorf("tls: parse peer certificate: %w", err)
			}
			certs = append(certs, cert)
		}

		intermediates := x509.NewCertPool()
		for _, cert := range certs[1:] {
			intermediates.AddCert(cert)
		}
		_, err := certs[0].Verify(x509.VerifyOptions{
			Roots:         roots,
			Intermediates: intermediates,
		})
		return err
	}
}
