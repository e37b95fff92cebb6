package llmclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// TLSConfig holds the TLS options for reaching an adapter service
// behind a private CA or, in development, a self-signed certificate.
type TLSConfig struct {
	// InsecureSkipVerify disables certificate verification. Dev/test
	// only.
	InsecureSkipVerify bool

	// CACertificate is the path to a custom CA certificate file.
	CACertificate string
}

// ConfigureTLS builds an http.Transport from config.
func ConfigureTLS(config *TLSConfig) (*http.Transport, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{},
	}
	if config == nil {
		return transport, nil
	}

	if config.CACertificate != "" {
		caCert, err := os.ReadFile(config.CACertificate)
		if err != nil {
			return nil, fmt.Errorf("llmclient: read CA certificate %s: %w", config.CACertificate, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("llmclient: parse CA certificate %s", config.CACertificate)
		}
		transport.TLSClientConfig.RootCAs = pool
	}

	if config.InsecureSkipVerify {
		transport.TLSClientConfig.InsecureSkipVerify = true
		slog.Warn("llmclient: TLS certificate verification disabled")
	}

	return transport, nil
}

// WithTLSConfig installs a TLS-configured transport on the client.
// Call after WithHTTPClient when both are used; WithHTTPClient carries
// an already-installed TLS config forward, the reverse order does not.
func WithTLSConfig(config *TLSConfig) Option {
	return func(c *Client) {
		if config == nil {
			return
		}
		transport, err := ConfigureTLS(config)
		if err != nil {
			slog.Warn("llmclient: TLS configuration failed, using default transport", "error", err)
			return
		}
		if c.client != nil {
			c.client.Transport = transport
		} else {
			c.client = &http.Client{
				Transport: transport,
				Timeout:   120 * time.Second,
			}
		}
	}
}

// tlsConfigOf returns client's TLS config if one was installed via
// WithTLSConfig, nil otherwise.
func tlsConfigOf(client *http.Client) *tls.Config {
	if client == nil || client.Transport == nil {
		return nil
	}
	if t, ok := client.Transport.(*http.Transport); ok {
		return t.TLSClientConfig
	}
	return nil
}
