// Package cachedir resolves the per-user persistent cache directory
// devc uses for downloaded feature artifacts and their digest
// side-cache, following XDG conventions with OS-specific fallbacks.
package cachedir

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"mvdan.cc/sh/v3/shell"
)

const appName = "devc"

// dirBase resolves the app's cache root, creating it if necessary: the
// first of prefixes (expanded via shell.Expand so "${XDG_CACHE_HOME}"
// etc. resolve against the real environment) that both expands to a
// non-empty path and already exists on disk wins; if none exist, the
// OS-specific fallback pattern is created from scratch.
func dirBase(prefixes []string, fallbackPattern string) (string, error) {
	for _, prefix := range prefixes {
		slog.Debug("cachedir: attempting to resolve prefix", "prefix", prefix)
		expanded, err := shell.Expand(prefix, nil)
		if err != nil {
			return "", fmt.Errorf("cachedir: expanding %q: %w", prefix, err)
		}
		if expanded == "" {
			continue
		}
		if _, err := os.Stat(expanded); errors.Is(err, fs.ErrNotExist) {
			slog.Debug("cachedir: prefix does not exist", "prefix", expanded)
			continue
		}

		dir, err := filepath.Abs(filepath.Join(expanded, appName))
		if err != nil {
			return "", fmt.Errorf("cachedir: resolving %s: %w", expanded, err)
		}
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			slog.Debug("cachedir: creating app cache directory", "path", dir)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", fmt.Errorf("cachedir: creating %s: %w", dir, err)
			}
		}
		return dir, nil
	}

	fallback, err := shell.Expand(fmt.Sprintf(fallbackPattern, appName), nil)
	if err != nil {
		return "", fmt.Errorf("cachedir: expanding fallback: %w", err)
	}
	slog.Debug("cachedir: no configured prefix found, using fallback", "path", fallback)
	if err := os.MkdirAll(fallback, 0o755); err != nil {
		return "", fmt.Errorf("cachedir: creating fallback %s: %w", fallback, err)
	}
	return fallback, nil
}

// Root returns the app-wide cache directory (OS-specific).
func Root() (string, error) {
	return root()
}

// FeaturesDir returns the "features/" subtree under Root, used by the
// feature resolver to extract downloaded OCI artifacts into.
func FeaturesDir() (string, error) {
	root, err := Root()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(root, "features")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cachedir: creating %s: %w", dir, err)
	}
	return dir, nil
}

// AuthCachePath returns the path to the OCI auth-challenge side-cache
// CSV, adjacent to the features subtree.
func AuthCachePath() (string, error) {
	root, err := Root()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "auth-cache.csv"), nil
}

// DigestCachePath returns the path to the feature-artifact digest
// side-cache CSV, adjacent to the features subtree.
func DigestCachePath() (string, error) {
	root, err := Root()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "digests.csv"), nil
}
