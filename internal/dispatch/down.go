package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/nlsantos/devc/internal/identity"
)

// composeProjectNameSanitizer strips everything compose project names
// forbid, matching compose-go's own normalization.
var composeProjectNameSanitizer = regexp.MustCompile(`[^a-z0-9_-]`)

// ComposeProjectName derives a compose project name from a workspace
// folder: lowercased basename with anything outside [a-z0-9_-]
// stripped, per spec.md §6.
func ComposeProjectName(workspaceFolder string) string {
	base := strings.ToLower(filepath.Base(workspaceFolder))
	return composeProjectNameSanitizer.ReplaceAllString(base, "")
}

// ComposeFiles decodes config's dockerComposeFile field, which is
// either a bare path string or an array of paths.
func ComposeFiles(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return []string{s}
	}
	var arr []string
	if err := json.Unmarshal(raw, &arr); err == nil {
		return arr
	}
	return nil
}

// DownRequest designates the container(s) or compose project to tear
// down.
type DownRequest struct {
	Selector          identity.ContainerSelector
	ComposeFiles      []string
	WorkspaceFolder   string
	RemoveContainer   bool
}

// Down stops (and optionally removes) the target container, or tears
// down a compose project when ComposeFiles is non-empty.
func (d *Dispatcher) Down(ctx context.Context, req DownRequest) error {
	if len(req.ComposeFiles) > 0 {
		projectName := ComposeProjectName(req.WorkspaceFolder)
		if err := d.Runtime.ComposeDown(ctx, projectName, req.ComposeFiles); err != nil {
			return fmt.Errorf("dispatch: compose down: %w", err)
		}
		return nil
	}

	info, err := identity.ResolveContainer(ctx, d.Runtime, req.Selector)
	if err != nil {
		return err
	}
	if err := d.Runtime.StopContainer(ctx, info.ID); err != nil {
		return fmt.Errorf("dispatch: stopping %s: %w", info.ID, err)
	}
	if req.RemoveContainer {
		if err := d.Runtime.RemoveContainer(ctx, info.ID); err != nil {
			return fmt.Errorf("dispatch: removing %s: %w", info.ID, err)
		}
	}
	return nil
}
