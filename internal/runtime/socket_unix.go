//go:build !windows

package runtime

import (
	"fmt"
	"log/slog"
	"os"

	"mvdan.cc/sh/v3/shell"
)

// discoverSocketAddr determines a viable Docker/Podman socket
// address. An explicit address always wins; otherwise DOCKER_HOST is
// honored; otherwise a handful of well-known socket paths are probed.
func discoverSocketAddr(explicit string, runtimeKind string) string {
	if explicit != "" {
		return explicit
	}

	if envSocketAddr, ok := os.LookupEnv("DOCKER_HOST"); ok {
		slog.Debug("using socket nominated by DOCKER_HOST", "socket", envSocketAddr)
		return envSocketAddr
	}

	uid := os.Getuid()
	candidates := []string{
		"${XDG_RUNTIME_DIR}/docker.sock",
		"${XDG_RUNTIME_DIR}/podman/podman.sock",
		fmt.Sprintf("/run/user/%d/docker.sock", uid),
		fmt.Sprintf("/run/user/%d/podman/podman.sock", uid),
		"/var/run/podman/podman.sock",
		"/var/run/docker.sock",
		"/private/var/run/docker.sock",
	}
	if runtimeKind == "podman" {
		candidates = []string{
			fmt.Sprintf("/run/user/%d/podman/podman.sock", uid),
			"/var/run/podman/podman.sock",
			"${XDG_RUNTIME_DIR}/podman/podman.sock",
		}
	}

	for _, candidate := range candidates {
		expanded, err := shell.Expand(candidate, nil)
		if err != nil {
			continue
		}
		if _, err := os.Stat(expanded); err == nil {
			slog.Debug("using discovered socket", "socket", expanded)
			return "unix://" + expanded
		}
	}

	slog.Warn("unable to discover a container runtime socket")
	return ""
}
