package ociclient

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	ref, err := ParseRef("ghcr.io/devcontainers/features/node:18")
	require.NoError(t, err)
	assert.Equal(t, "ghcr.io", ref.Registry)
	assert.Equal(t, "devcontainers/features", ref.Namespace)
	assert.Equal(t, "node", ref.Name)
	assert.Equal(t, "18", ref.Tag())
	assert.Equal(t, "ghcr.io/devcontainers/features/node:18", ref.Reference())
}

func TestParseRefDefaultsToLatest(t *testing.T) {
	ref, err := ParseRef("ghcr.io/devcontainers/node")
	require.NoError(t, err)
	assert.Equal(t, "latest", ref.Tag())
}

func TestComputeSemanticTags(t *testing.T) {
	tags, ok := ComputeSemanticTags("1.2.3")
	require.True(t, ok)
	assert.Equal(t, []string{"1", "1.2", "1.2.3", "latest"}, tags)
}

func TestParseTagVersionTolerant(t *testing.T) {
	for _, tc := range []struct{ in, wantMajor string }{
		{"v1", "1"},
		{"1.2", "1"},
		{"1.2.3", "1"},
	} {
		v, ok := ParseTagVersion(tc.in)
		require.True(t, ok, tc.in)
		assert.Equal(t, tc.wantMajor, v.Original()[:1])
	}
}

func TestFilterAndSortSemverTags(t *testing.T) {
	tags := []string{"2.0.0", "latest-dev", "1.0.0", "1.5.0"}
	filtered := FilterSemverTags(tags)
	assert.ElementsMatch(t, []string{"2.0.0", "1.0.0", "1.5.0"}, filtered)
	sorted := SortSemverTags(filtered)
	assert.Equal(t, []string{"1.0.0", "1.5.0", "2.0.0"}, sorted)
}

func TestNextLink(t *testing.T) {
	link := `<https://example.com/v2/x/tags/list?n=50&last=abc>; rel="next"`
	assert.Equal(t, "https://example.com/v2/x/tags/list?n=50&last=abc", nextLink(link))
	assert.Equal(t, "", nextLink(""))
}

func TestParseBearerChallenge(t *testing.T) {
	c, err := parseBearerChallenge(`Bearer realm="https://auth.example.com/token",service="registry.example.com",scope="repository:x:pull"`)
	require.NoError(t, err)
	assert.Equal(t, "https://auth.example.com/token", c.Realm)
	assert.Equal(t, "registry.example.com", c.Service)
	assert.Equal(t, "repository:x:pull", c.Scope)
}

func TestRetryRetriesTransientAndStopsOnLogical(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), Policy{MaxAttempts: 3, BaseDelay: 0, MaxDelay: 0}, func() error {
		attempts++
		if attempts < 3 {
			return &Error{Kind: KindDownload, Err: errors.New("transient")}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	attempts = 0
	err = Retry(context.Background(), Policy{MaxAttempts: 3, BaseDelay: 0, MaxDelay: 0}, func() error {
		attempts++
		return &Error{Kind: KindParsing, Err: errors.New("bad json")}
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

type mockHTTP struct {
	responses map[string]*Response
}

func (m *mockHTTP) Get(ctx context.Context, url string) ([]byte, error) {
	r, ok := m.responses[url]
	if !ok {
		return nil, errors.New("no mock response for " + url)
	}
	return r.Body, nil
}
func (m *mockHTTP) GetWithHeaders(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	return m.Get(ctx, url)
}
func (m *mockHTTP) GetWithHeadersAndResponse(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	r, ok := m.responses[url]
	if !ok {
		return nil, errors.New("no mock response for " + url)
	}
	return r, nil
}
func (m *mockHTTP) Head(ctx context.Context, url string, headers map[string]string) (int, error) {
	r, ok := m.responses[url]
	if !ok {
		return 0, errors.New("no mock response for " + url)
	}
	return r.Status, nil
}
func (m *mockHTTP) PutWithHeaders(ctx context.Context, url string, data []byte, headers map[string]string) ([]byte, error) {
	return nil, nil
}
func (m *mockHTTP) PostWithHeaders(ctx context.Context, url string, data []byte, headers map[string]string) (*Response, error) {
	r, ok := m.responses[url]
	if !ok {
		return nil, errors.New("no mock response for " + url)
	}
	return r, nil
}

func TestGetManifestHappyPath(t *testing.T) {
	ref := Ref{Registry: "ghcr.io", Namespace: "devcontainers/features", Name: "node", Version: "1"}
	manifestJSON := `{"schemaVersion":2,"mediaType":"application/vnd.oci.image.manifest.v1+json","layers":[{"mediaType":"application/vnd.devcontainers.layer.v1+tar","digest":"sha256:abc","size":10}]}`

	mock := &mockHTTP{responses: map[string]*Response{
		manifestURL(ref, "1"): {Status: 200, Body: []byte(manifestJSON)},
	}}

	c := &Client{HTTP: mock, Auth: NewAuthFromEnvironment(), Retry: Policy{MaxAttempts: 1}}
	manifest, err := c.GetManifest(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, manifest.Layers, 1)
	assert.Equal(t, "sha256:abc", string(manifest.Layers[0].Digest))
}
