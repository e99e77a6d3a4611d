package feature

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/codeclysm/extract/v4"

	"github.com/nlsantos/devc/internal/cachedir"
	"github.com/nlsantos/devc/internal/ociclient"
)

// Resolver fetches feature artifacts (OCI, HTTPS tarball, or local
// path references) and parses their devcontainer-feature.json
// metadata. OCI and HTTPS artifacts are extracted into a cache
// directory named after the reference; local paths are read in place.
type Resolver struct {
	OCI    *ociclient.Client
	HTTP   *http.Client
	digest *digestCache
}

// NewResolver builds a Resolver around the given OCI client, a plain
// net/http.Client for HTTPS tarball fetches, and the on-disk digest
// side-cache.
func NewResolver(oci *ociclient.Client) (*Resolver, error) {
	path, err := cachedir.DigestCachePath()
	if err != nil {
		return nil, err
	}
	cache, err := loadDigestCache(path)
	if err != nil {
		return nil, err
	}
	return &Resolver{OCI: oci, HTTP: &http.Client{}, digest: cache}, nil
}

// Save persists the digest cache to disk; call once after a batch of
// fetches, not per-feature.
func (r *Resolver) Save() error {
	return r.digest.save()
}

// Fetched is a resolved feature: its cached path on disk and parsed
// metadata.
type Fetched struct {
	Reference string
	Path      string
	Metadata  *Metadata
}

// Fetch resolves a single feature reference per
// https://containers.dev/implementors/features-distribution/:
// a "./"-prefixed path is used in place from contextDir, an
// "https://"-prefixed reference is an HTTPS-hosted tarball, an
// absolute path is rejected, and everything else is an OCI reference.
func (r *Resolver) Fetch(ctx context.Context, reference, contextDir string) (*Fetched, error) {
	switch {
	case strings.HasPrefix(reference, "/"):
		return nil, fmt.Errorf("feature: locally-stored features may not be referenced by an absolute path: %s", reference)

	case strings.HasPrefix(reference, "./"):
		return r.fetchLocal(reference, contextDir)

	case strings.HasPrefix(reference, "https://"):
		return r.fetchHTTPS(ctx, reference)

	default:
		return r.fetchOCI(ctx, reference)
	}
}

func (r *Resolver) fetchLocal(reference, contextDir string) (*Fetched, error) {
	path, err := filepath.Abs(filepath.Join(contextDir, reference))
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("feature: referenced a locally-stored feature that doesn't exist: %s", path)
	}
	return r.load(reference, path)
}

func (r *Resolver) fetchHTTPS(ctx context.Context, uri string) (*Fetched, error) {
	featuresDir, err := cachedir.FeaturesDir()
	if err != nil {
		return nil, err
	}
	cacheKey := filepath.Join(featuresDir, cacheDirName(uri))

	if _, err := os.Stat(cacheKey); err == nil {
		return r.load(uri, cacheKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feature: fetching tarball %s: %w", uri, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("feature: fetching tarball %s: status %d", uri, resp.StatusCode)
	}

	var body bytes.Buffer
	if _, err := body.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cacheKey, 0o755); err != nil {
		return nil, err
	}
	if err := extract.Gz(ctx, bytes.NewReader(body.Bytes()), cacheKey, nil); err != nil {
		return nil, fmt.Errorf("feature: extracting tarball %s: %w", uri, err)
	}
	return r.load(uri, cacheKey)
}

func (r *Resolver) fetchOCI(ctx context.Context, reference string) (*Fetched, error) {
	ref, err := ociclient.ParseRef(reference)
	if err != nil {
		return nil, err
	}

	featuresDir, err := cachedir.FeaturesDir()
	if err != nil {
		return nil, err
	}
	cacheKey := filepath.Join(featuresDir, cacheDirName(reference))
	_, statErr := os.Stat(cacheKey)
	cachedCopyExists := statErr == nil

	manifest, manErr := r.OCI.GetManifest(ctx, ref)
	if manErr != nil {
		if cachedCopyExists {
			slog.Warn("feature manifest fetch failed, using cached copy", "reference", reference, "error", manErr)
			return r.load(reference, cacheKey)
		}
		return nil, manErr
	}

	if previous, ok := r.digest.get(reference); ok && cachedCopyExists && previous == digestOf(manifest) {
		return r.load(reference, cacheKey)
	}

	for _, layer := range manifest.Layers {
		if layer.MediaType != ociclient.FeatureLayerMediaType {
			continue
		}
		data, err := r.OCI.FetchBlob(ctx, ref, string(layer.Digest))
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(cacheKey, 0o755); err != nil {
			return nil, err
		}
		if err := extract.Tar(ctx, bytes.NewReader(data), cacheKey, nil); err != nil {
			return nil, fmt.Errorf("feature: extracting %s: %w", reference, err)
		}
		r.digest.set(reference, digestOf(manifest))
		return r.load(reference, cacheKey)
	}

	return nil, fmt.Errorf("feature: %s manifest contains no usable feature layer", reference)
}

func digestOf(m *ociclient.Manifest) string {
	if len(m.Layers) == 0 {
		return ""
	}
	return string(m.Layers[0].Digest)
}

func (r *Resolver) load(reference, path string) (*Fetched, error) {
	data, err := os.ReadFile(filepath.Join(path, "devcontainer-feature.json"))
	if err != nil {
		return nil, fmt.Errorf("feature: reading metadata for %s: %w", reference, err)
	}
	metadata, err := ParseMetadata(data)
	if err != nil {
		return nil, fmt.Errorf("feature: parsing metadata for %s: %w", reference, err)
	}
	return &Fetched{Reference: reference, Path: path, Metadata: metadata}, nil
}

// cacheDirName turns a reference into a filesystem-safe cache
// subdirectory name.
func cacheDirName(reference string) string {
	replacer := strings.NewReplacer("/", "_", ":", "_", "://", "_")
	return replacer.Replace(reference)
}
