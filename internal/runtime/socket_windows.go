//go:build windows

package runtime

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// discoverSocketAddr determines a viable Docker/Podman named pipe. An
// explicit address always wins; otherwise a handful of well-known
// named pipes are probed.
func discoverSocketAddr(explicit string, runtimeKind string) string {
	if explicit != "" {
		return explicit
	}

	const pipeProto = "npipe://"
	candidates := []string{
		`\\.\pipe\docker_engine`,
		`\\.\pipe\podman-machine-default`,
	}
	if runtimeKind == "podman" {
		candidates = []string{`\\.\pipe\podman-machine-default`}
	}

	found := ""
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			found = candidate
			break
		}
	}

	if found == "" {
		slog.Warn("unable to discover a container runtime named pipe")
		return ""
	}
	if strings.HasPrefix(found, pipeProto) {
		return found
	}
	return pipeProto + filepath.ToSlash(found)
}
