package ociclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// DefaultTransport is the net/http-backed HTTPClient implementation
// wired at the edge; the OCI client itself only ever talks to the
// HTTPClient interface, per spec.md §1's "HTTP transport is an
// external collaborator" boundary.
type DefaultTransport struct {
	client *http.Client
}

// NewDefaultTransport builds a DefaultTransport honoring
// DEACON_CUSTOM_CA_BUNDLE (a PEM file added to the trust store) and an
// optional client-wide request timeout.
func NewDefaultTransport(timeout time.Duration) (*DefaultTransport, error) {
	transport := &http.Transport{}

	if bundle := os.Getenv("DEACON_CUSTOM_CA_BUNDLE"); bundle != "" {
		pem, err := os.ReadFile(bundle)
		if err != nil {
			return nil, fmt.Errorf("ociclient: reading CA bundle %s: %w", bundle, err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ociclient: no certificates parsed from %s", bundle)
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: pool}
	}

	return &DefaultTransport{client: &http.Client{Transport: transport, Timeout: timeout}}, nil
}

func (t *DefaultTransport) do(ctx context.Context, method, url string, body []byte, headers map[string]string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if method == http.MethodGet {
		req.Header.Set("Accept", ManifestMediaType)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{Status: resp.StatusCode, Headers: resp.Header, Body: data}, nil
}

func (t *DefaultTransport) Get(ctx context.Context, url string) ([]byte, error) {
	return t.GetWithHeaders(ctx, url, nil)
}

func (t *DefaultTransport) GetWithHeaders(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	resp, err := t.do(ctx, http.MethodGet, url, nil, headers)
	if err != nil {
		return nil, err
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, fmt.Errorf("ociclient: GET %s: status %d", url, resp.Status)
	}
	return resp.Body, nil
}

func (t *DefaultTransport) GetWithHeadersAndResponse(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	return t.do(ctx, http.MethodGet, url, nil, headers)
}

func (t *DefaultTransport) Head(ctx context.Context, url string, headers map[string]string) (int, error) {
	resp, err := t.do(ctx, http.MethodHead, url, nil, headers)
	if err != nil {
		return 0, err
	}
	return resp.Status, nil
}

func (t *DefaultTransport) PutWithHeaders(ctx context.Context, url string, data []byte, headers map[string]string) ([]byte, error) {
	resp, err := t.do(ctx, http.MethodPut, url, data, headers)
	if err != nil {
		return nil, err
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, fmt.Errorf("ociclient: PUT %s: status %d", url, resp.Status)
	}
	return resp.Body, nil
}

func (t *DefaultTransport) PostWithHeaders(ctx context.Context, url string, data []byte, headers map[string]string) (*Response, error) {
	return t.do(ctx, http.MethodPost, url, data, headers)
}
