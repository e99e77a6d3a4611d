// Package jsonc standardizes JSONC (JSON with comments and trailing
// commas) into standard JSON, shared by the config loader and the
// feature metadata reader since devcontainer.json and
// devcontainer-feature.json both allow the JSONC dialect.
package jsonc

import (
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// Standardize converts JSONC bytes into standard JSON bytes.
func Standardize(data []byte) ([]byte, error) {
	out, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("jsonc: standardize: %w", err)
	}
	return out, nil
}

// ReadStandardized reads a JSONC file from disk and returns it as
// standard JSON.
func ReadStandardized(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("jsonc: read %s: %w", path, err)
	}
	return Standardize(raw)
}
