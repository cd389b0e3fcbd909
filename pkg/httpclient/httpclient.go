package httpclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"pytc/pkg/logging"
	"pytc/pkg/version"
)

// CAFileEnv names a PEM file whose certificates are trusted in addition to
// the system roots.
const CAFileEnv = "PYTC_CA_FILE"

var (
	once   sync.Once
	client *http.Client
)

// Default returns the shared HTTP client with system certificates (plus
// those in $PYTC_CA_FILE) and request logging.
func Default() *http.Client {
	once.Do(func() {
		dialer := &net.Dialer{
			Timeout:       30 * time.Second,
			KeepAlive:     30 * time.Second,
			FallbackDelay: 300 * time.Millisecond,
		}

		client = WithLogging(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					return dialer.DialContext(ctx, network, addr)
				},
				TLSClientConfig: &tls.Config{
					RootCAs: defaultRootCAs(),
				},
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
			// No overall timeout: archive downloads can take minutes; callers use ctx.
		})
	})
	return client
}

// WithLogging wraps c so that every HTTP request logs the URL at Debug level
// and carries a pytc User-Agent.
func WithLogging(c *http.Client) *http.Client {
	base := c.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	clone := *c
	clone.Transport = &loggingTransport{base: base}
	return &clone
}

type loggingTransport struct {
	base http.RoundTripper
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	logging.GetLogger(req.Context()).Debug("http request", "method", req.Method, "url", req.URL.String())
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", version.UserAgent())
	}
	return t.base.RoundTrip(req)
}

// caBundles are read when the platform certificate pool is unavailable.
var caBundles = []string{
	"/etc/ssl/certs/ca-certificates.crt",
	"/etc/pki/tls/certs/ca-bundle.crt",
	"/etc/ssl/ca-bundle.pem",
	"/etc/pki/ca-trust/extracted/pem/tls-ca-bundle.pem",
}

// rootCAs returns the platform roots plus the PEM certificates in extraFile,
// if set. A private mirror signed by an internal CA is trusted that way.
func rootCAs(extraFile string) (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
		for _, bundle := range caBundles {
			if pem, err := os.ReadFile(bundle); err == nil && pool.AppendCertsFromPEM(pem) {
				break
			}
		}
	}
	if extraFile == "" {
		return pool, nil
	}
	pem, err := os.ReadFile(extraFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no PEM certificates in %s", extraFile)
	}
	return pool, nil
}

func defaultRootCAs() *x509.CertPool {
	extra := os.Getenv(CAFileEnv)
	pool, err := rootCAs(extra)
	if err == nil {
		return pool
	}
	slog.Warn("ignoring extra CA certificates", "env", CAFileEnv, "file", extra, "err", err)
	pool, _ = rootCAs("")
	return pool
}
