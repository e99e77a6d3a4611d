// Package identity derives the stable hashes and labels a container is
// identified by, and resolves a ContainerSelector against a Runtime.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	git "github.com/go-git/go-git/v6"

	"github.com/nlsantos/devc/internal/runtime"
)

// CanonicalWorkspacePath resolves the canonical path for a workspace
// folder: if it sits inside a VCS worktree, the worktree root wins
// over the raw argument, matching editors that key a devcontainer to
// the repository root rather than a subdirectory the user happened
// to open.
func CanonicalWorkspacePath(workspace string) (string, error) {
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return "", fmt.Errorf("identity: resolving %s: %w", workspace, err)
	}

	repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		return abs, nil
	}

	wt, err := repo.Worktree()
	if err != nil {
		return abs, nil
	}
	return filepath.Abs(wt.Filesystem.Root())
}

// hashHex8 is the "first 8 hex chars of a stable hash" construction
// spec.md §4.5 uses for both workspaceHash and configHash.
func hashHex8(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:8]
}

// WorkspaceHash hashes the canonical workspace path.
func WorkspaceHash(canonicalWorkspace string) string {
	return hashHex8([]byte(canonicalWorkspace))
}

// ConfigHash hashes canonicalized, serialized config bytes. Callers
// pass the output of substitute.MarshalCanonicalJSON / config.Hash's
// canonicalization step; this function only does the truncation, so
// it's reusable wherever a "first 8 hex chars of a hash" is needed.
func ConfigHash(canonicalConfigJSON []byte) string {
	return hashHex8(canonicalConfigJSON)
}

// DevcontainerID derives the user-facing devcontainer id: the first 12
// hex chars of a hash of sorted id labels when labels are supplied,
// else derived from the workspace path alone.
//
// spec.md names BLAKE3 for this hash; no BLAKE3 implementation is
// available from the example pack's dependency set, and introducing a
// brand-new out-of-pack dependency for a single truncated digest isn't
// warranted, so SHA-256 (already used for workspaceHash/configHash) is
// used uniformly here too — see DESIGN.md's Open Question decisions.
func DevcontainerID(workspace string, idLabels map[string]string) string {
	if len(idLabels) == 0 {
		sum := sha256.Sum256([]byte("workspace:" + workspace))
		return hex.EncodeToString(sum[:])[:12]
	}

	keys := make([]string, 0, len(idLabels))
	for k := range idLabels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s;", k, idLabels[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:12]
}

// Labels builds the container labels identifying a devcontainer, as
// enumerated in spec.md §3/§6.
func Labels(workspaceHash, configHash, name string) map[string]string {
	labels := map[string]string{
		"devcontainer.source":        "deacon",
		"devcontainer.workspaceHash": workspaceHash,
		"devcontainer.configHash":    configHash,
	}
	if name != "" {
		labels["devcontainer.name"] = name
	}
	return labels
}

// Selector builds the label-selector string used to query a Runtime
// for containers belonging to a given workspace/config pair.
func Selector(workspaceHash, configHash string) string {
	return fmt.Sprintf("devcontainer.source=deacon,devcontainer.workspaceHash=%s,devcontainer.configHash=%s", workspaceHash, configHash)
}

// ContainerSelector names the ways a command can designate which
// container it targets: an explicit id, a set of label filters, or a
// workspace folder whose hash is resolved to labels.
type ContainerSelector struct {
	ContainerID     string
	Labels          map[string]string
	WorkspaceFolder string
}

// ErrMissingSelector reports that none of id/labels/workspaceFolder
// were supplied.
var ErrMissingSelector = errors.New("identity: missing required argument: one of container id, labels, or workspace folder")

// ErrWorkspaceDiscoveryUnsupported is returned by resolveContainer
// when only a workspace folder is given: spec.md §9 leaves
// workspace-only discovery unspecified, and rather than guess at a
// matching container this surfaces an actionable error asking the
// caller to narrow the selection.
type ErrWorkspaceDiscoveryUnsupported struct {
	WorkspaceFolder string
}

func (e *ErrWorkspaceDiscoveryUnsupported) Error() string {
	return fmt.Sprintf("identity: cannot resolve a container for workspace %q without a devcontainer id or label filter; select the container by id or by label filter", e.WorkspaceFolder)
}

func (s ContainerSelector) validate() error {
	if s.ContainerID == "" && len(s.Labels) == 0 && s.WorkspaceFolder == "" {
		return ErrMissingSelector
	}
	return nil
}

// resolveContainer turns a ContainerSelector into a single
// ContainerInfo. An explicit id wins over labels when both are given;
// label filters must match exactly one container: no match returns
// ErrContainerNotFound, more than one returns ErrAmbiguousSelection.
func resolveContainer(ctx context.Context, rt runtime.Runtime, sel ContainerSelector) (*runtime.ContainerInfo, error) {
	if err := sel.validate(); err != nil {
		return nil, err
	}

	if sel.ContainerID != "" {
		return rt.InspectContainer(ctx, sel.ContainerID)
	}

	if len(sel.Labels) > 0 {
		matches, err := rt.ListContainers(ctx, sel.Labels)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, &runtime.ErrContainerNotFound{ID: Selector(sel.Labels["devcontainer.workspaceHash"], sel.Labels["devcontainer.configHash"])}
		}
		if len(matches) > 1 {
			return nil, &runtime.ErrAmbiguousSelection{Matches: matches}
		}
		return rt.InspectContainer(ctx, matches[0].ID)
	}

	return nil, &ErrWorkspaceDiscoveryUnsupported{WorkspaceFolder: sel.WorkspaceFolder}
}

// ResolveContainer is the exported entry point dispatch/lifecycle use
// to turn a ContainerSelector into a live container's identity.
func ResolveContainer(ctx context.Context, rt runtime.Runtime, sel ContainerSelector) (*runtime.ContainerInfo, error) {
	return resolveContainer(ctx, rt, sel)
}
