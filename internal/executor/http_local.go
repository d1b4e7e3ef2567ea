package executor

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"kubecheck/internal/kube"
	"kubecheck/internal/spec"
	"kubecheck/pkg/logging"
)

// localTransport performs the HTTP call directly from this process. It is
// also the terminal hop of the port-forward strategy.
type localTransport struct {
	kube kube.Interface
}

func (t *localTransport) do(ctx context.Context, req *httpRequest) (*Result, error) {
	target := req.url
	if target == "" {
		if req.source != nil && req.source.Type == spec.SourceLocal && strings.EqualFold(req.source.Kind, "Service") {
			discovered, err := discoverServiceURL(ctx, t.kube, req)
			if err != nil {
				return nil, err
			}
			target = discovered
		} else {
			return nil, fmt.Errorf("http test needs a url: %w", spec.ErrConfiguration)
		}
	}

	client, err := newHTTPClient(req)
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if req.body != "" {
		bodyReader = strings.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for name, value := range req.headers {
		httpReq.Header.Set(name, value)
	}

	logging.Debug("HTTP", "%s %s", req.method, target)
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", target, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	// Non-2xx statuses are returned for validation to interpret, never
	// raised here.
	res := &Result{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       string(bodyBytes),
	}
	res.parseBody()
	return res, nil
}

// newHTTPClient builds a client honoring the redirect budget and the TLS
// material of the request.
func newHTTPClient(req *httpRequest) (*http.Client, error) {
	tlsConfig := &tls.Config{}
	if req.skipTLS {
		tlsConfig.InsecureSkipVerify = true
	}
	if req.clientCert != "" && req.clientKey != "" {
		cert, err := tls.LoadX509KeyPair(req.clientCert, req.clientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	if req.caCert != "" {
		pem, err := os.ReadFile(req.caCert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in CA bundle %s", req.caCert)
		}
		tlsConfig.RootCAs = pool
	}

	maxRedirects := req.maxRedirects
	return &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
		CheckRedirect: func(r *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}, nil
}
