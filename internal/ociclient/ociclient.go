// Package ociclient implements the OCI v2 distribution protocol
// operations the feature resolver and template publish paths need:
// manifest and blob fetch/push, token-auth challenge/response, and
// semver tag utilities. HTTP transport is an abstract capability
// (spec.md §1 treats it as an external collaborator); this package
// never reaches for net/http directly outside the default transport
// implementation at the edge.
package ociclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Response is the full shape of an HTTP response the OCI client needs
// when it must inspect headers (pagination Link headers, status
// codes) rather than just the body.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// HTTPClient is the capability interface the OCI client consumes;
// implementations outside this package own the actual transport.
type HTTPClient interface {
	Get(ctx context.Context, url string) ([]byte, error)
	GetWithHeaders(ctx context.Context, url string, headers map[string]string) ([]byte, error)
	GetWithHeadersAndResponse(ctx context.Context, url string, headers map[string]string) (*Response, error)
	Head(ctx context.Context, url string, headers map[string]string) (int, error)
	PutWithHeaders(ctx context.Context, url string, data []byte, headers map[string]string) ([]byte, error)
	PostWithHeaders(ctx context.Context, url string, data []byte, headers map[string]string) (*Response, error)
}

// Ref identifies a single OCI artifact: a feature or template
// reference of the form <registry>/<namespace>/<name>[:<version>].
type Ref struct {
	Registry  string
	Namespace string
	Name      string
	Version   string // empty means "latest"
}

// Tag returns the version, defaulting to "latest".
func (r Ref) Tag() string {
	if r.Version == "" {
		return "latest"
	}
	return r.Version
}

// Repository returns "<namespace>/<name>".
func (r Ref) Repository() string {
	return r.Namespace + "/" + r.Name
}

// Reference returns the full "<registry>/<namespace>/<name>:<tag>" form.
func (r Ref) Reference() string {
	return fmt.Sprintf("%s/%s:%s", r.Registry, r.Repository(), r.Tag())
}

// ParseRef splits a reference string of the form
// "registry/namespace/name[:tag]" into its components. The last "/"
// separates namespace from name; everything before is the registry
// plus any deeper namespace path (OCI registries commonly nest
// namespaces, e.g. "ghcr.io/devcontainers/features/node").
func ParseRef(s string) (Ref, error) {
	ref := s
	version := ""
	if idx := strings.LastIndex(s, ":"); idx > strings.LastIndex(s, "/") {
		ref = s[:idx]
		version = s[idx+1:]
	}

	parts := strings.Split(ref, "/")
	if len(parts) < 3 {
		return Ref{}, fmt.Errorf("ociclient: %q is not a valid reference (need registry/namespace/name)", s)
	}
	registry := parts[0]
	name := parts[len(parts)-1]
	namespace := strings.Join(parts[1:len(parts)-1], "/")

	return Ref{Registry: registry, Namespace: namespace, Name: name, Version: version}, nil
}

// Descriptor is an OCI content descriptor (manifest layers, config),
// aliased from opencontainers/image-spec so it plugs straight into the
// same types the teacher's feature-artifact fetch path already uses.
type Descriptor = ocispec.Descriptor

// Manifest is the subset of an OCI image manifest the feature/template
// fetch path consumes.
type Manifest = ocispec.Manifest

// FeatureLayerMediaType identifies the manifest layer carrying a
// feature's tarball contents.
const FeatureLayerMediaType = "application/vnd.devcontainers.layer.v1+tar"

// ManifestMediaType is the Accept header value used when requesting
// an OCI image manifest.
const ManifestMediaType = "application/vnd.oci.image.manifest.v1+json"

// TagList is the body of a /v2/<name>/tags/list response.
type TagList struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

func manifestURL(ref Ref, reference string) string {
	return fmt.Sprintf("https://%s/v2/%s/manifests/%s", ref.Registry, ref.Repository(), reference)
}

func blobURL(ref Ref, digest string) string {
	return fmt.Sprintf("https://%s/v2/%s/blobs/%s", ref.Registry, ref.Repository(), digest)
}

func tagsURL(ref Ref) string {
	return fmt.Sprintf("https://%s/v2/%s/tags/list", ref.Registry, ref.Repository())
}

func uploadInitURL(ref Ref) string {
	return fmt.Sprintf("https://%s/v2/%s/blobs/uploads/", ref.Registry, ref.Repository())
}

// Client is the OCI v2 distribution client: manifest/blob fetch and
// push, wrapped in the auth and retry policies configured on it.
type Client struct {
	HTTP  HTTPClient
	Auth  *Auth
	Retry Policy
}

// New returns a Client with the given transport, the default auth
// chain (env vars, then ~/.docker/config.json, then anonymous), and
// the default retry policy.
func New(http HTTPClient) *Client {
	return &Client{HTTP: http, Auth: NewAuthFromEnvironment(), Retry: DefaultPolicy()}
}

func (c *Client) authHeader(registry string) (string, error) {
	creds := c.Auth.CredentialsFor(registry)
	return creds.AuthHeader()
}

// getAuthenticated performs a GET, retrying once with a bearer token
// obtained via the WWW-Authenticate challenge if the first attempt is
// met with a 401 whose challenge names a Bearer realm.
func (c *Client) getAuthenticated(ctx context.Context, url string) ([]byte, error) {
	headers := map[string]string{}
	if h, err := c.authHeader(registryHost(url)); err == nil && h != "" {
		headers["Authorization"] = h
	}

	resp, err := c.HTTP.GetWithHeadersAndResponse(ctx, url, headers)
	if err != nil {
		return nil, &Error{Kind: KindDownload, Err: err}
	}
	if resp.Status == http.StatusUnauthorized {
		challenge := resp.Headers.Get("WWW-Authenticate")
		token, terr := c.Auth.ExchangeAnonymousToken(ctx, c.HTTP, challenge)
		if terr != nil {
			return nil, &Error{Kind: KindAuthentication, Err: terr}
		}
		headers["Authorization"] = "Bearer " + token
		resp, err = c.HTTP.GetWithHeadersAndResponse(ctx, url, headers)
		if err != nil {
			return nil, &Error{Kind: KindDownload, Err: err}
		}
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, &Error{Kind: KindOCI, Err: fmt.Errorf("ociclient: %s returned status %d", url, resp.Status)}
	}
	return resp.Body, nil
}

func registryHost(url string) string {
	rest := strings.TrimPrefix(url, "https://")
	rest = strings.TrimPrefix(rest, "http://")
	if idx := strings.Index(rest, "/"); idx >= 0 {
		return rest[:idx]
	}
	return rest
}

// GetManifest fetches the manifest for ref's tag.
func (c *Client) GetManifest(ctx context.Context, ref Ref) (*Manifest, error) {
	return c.getManifestAt(ctx, ref, ref.Tag())
}

// GetManifestByDigest fetches a manifest pinned to an exact digest.
func (c *Client) GetManifestByDigest(ctx context.Context, ref Ref, digest string) (*Manifest, error) {
	return c.getManifestAt(ctx, ref, digest)
}

func (c *Client) getManifestAt(ctx context.Context, ref Ref, reference string) (*Manifest, error) {
	var manifest Manifest
	err := Retry(ctx, c.Retry, func() error {
		body, err := c.getAuthenticated(ctx, manifestURL(ref, reference))
		if err != nil {
			return err
		}
		if jerr := json.Unmarshal(body, &manifest); jerr != nil {
			return &Error{Kind: KindParsing, Err: jerr}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &manifest, nil
}

// ListTags returns every tag for ref's repository, following
// Link: <...>; rel=next pagination headers until exhausted.
func (c *Client) ListTags(ctx context.Context, ref Ref) ([]string, error) {
	var tags []string
	url := tagsURL(ref)

	for url != "" {
		var resp *Response
		err := Retry(ctx, c.Retry, func() error {
			headers := map[string]string{}
			if h, aerr := c.authHeader(ref.Registry); aerr == nil && h != "" {
				headers["Authorization"] = h
			}
			r, gerr := c.HTTP.GetWithHeadersAndResponse(ctx, url, headers)
			if gerr != nil {
				return &Error{Kind: KindDownload, Err: gerr}
			}
			if r.Status < 200 || r.Status >= 300 {
				return &Error{Kind: KindOCI, Err: fmt.Errorf("ociclient: listing tags at %s: status %d", url, r.Status)}
			}
			resp = r
			return nil
		})
		if err != nil {
			return nil, err
		}

		var page TagList
		if err := json.Unmarshal(resp.Body, &page); err != nil {
			return nil, &Error{Kind: KindParsing, Err: err}
		}
		tags = append(tags, page.Tags...)
		url = nextLink(resp.Headers.Get("Link"))
	}
	return tags, nil
}

// nextLink extracts the URL from a `Link: <url>; rel="next"` header,
// returning "" when no next page is advertised.
func nextLink(link string) string {
	if link == "" {
		return ""
	}
	for _, part := range strings.Split(link, ",") {
		part = strings.TrimSpace(part)
		if !strings.Contains(part, `rel="next"`) && !strings.Contains(part, "rel=next") {
			continue
		}
		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start >= 0 && end > start {
			return part[start+1 : end]
		}
	}
	return ""
}

// FetchBlob downloads a blob by digest, retrying per the client's
// policy and re-authenticating on a 401 challenge.
func (c *Client) FetchBlob(ctx context.Context, ref Ref, digest string) ([]byte, error) {
	var data []byte
	err := Retry(ctx, c.Retry, func() error {
		body, err := c.getAuthenticated(ctx, blobURL(ref, digest))
		if err != nil {
			return err
		}
		data = body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// BlobExists does a HEAD check against the blob endpoint.
func (c *Client) BlobExists(ctx context.Context, ref Ref, digest string) (bool, error) {
	headers := map[string]string{}
	if h, err := c.authHeader(ref.Registry); err == nil && h != "" {
		headers["Authorization"] = h
	}
	status, err := c.HTTP.Head(ctx, blobURL(ref, digest), headers)
	if err != nil {
		return false, &Error{Kind: KindDownload, Err: err}
	}
	return status == http.StatusOK, nil
}

// PushBlob runs the two-step upload protocol: POST to initiate
// (extracting Location), PUT the blob to Location?digest=<digest>.
// It does not check for an existing blob first; BlobExists does that.
func (c *Client) PushBlob(ctx context.Context, ref Ref, digest string, data []byte) error {
	headers := map[string]string{}
	if h, err := c.authHeader(ref.Registry); err == nil && h != "" {
		headers["Authorization"] = h
	}

	initResp, err := c.HTTP.PostWithHeaders(ctx, uploadInitURL(ref), nil, headers)
	if err != nil {
		return &Error{Kind: KindOCI, Err: fmt.Errorf("initiating blob upload: %w", err)}
	}
	location := initResp.Headers.Get("Location")
	if location == "" {
		return &Error{Kind: KindOCI, Err: fmt.Errorf("ociclient: upload initiation response missing Location header")}
	}

	sep := "?"
	if strings.Contains(location, "?") {
		sep = "&"
	}
	putURL := fmt.Sprintf("%s%sdigest=%s", location, sep, digest)
	if _, err := c.HTTP.PutWithHeaders(ctx, putURL, data, headers); err != nil {
		return &Error{Kind: KindOCI, Err: fmt.Errorf("uploading blob: %w", err)}
	}
	return nil
}

// PushManifest PUTs the manifest bytes to ref's tag.
func (c *Client) PushManifest(ctx context.Context, ref Ref, manifest []byte) error {
	headers := map[string]string{"Content-Type": ManifestMediaType}
	if h, err := c.authHeader(ref.Registry); err == nil && h != "" {
		headers["Authorization"] = h
	}
	_, err := c.HTTP.PutWithHeaders(ctx, manifestURL(ref, ref.Tag()), manifest, headers)
	if err != nil {
		return &Error{Kind: KindOCI, Err: fmt.Errorf("pushing manifest: %w", err)}
	}
	return nil
}
