package dispatch

import (
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	git "github.com/go-git/go-git/v6"
)

var imageTagSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// imageTagBase derives a distinct, meaningful name for a devcontainer
// build's image tag: the git remote/branch when contextDir sits
// inside a repository, otherwise contextDir's basename.
func imageTagBase(contextDir string) string {
	base := filepath.Base(contextDir)

	repo, err := git.PlainOpenWithOptions(contextDir, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		slog.Debug("dispatch: not a git repo, using context directory basename", "dir", contextDir)
		return imageTagSanitizer.ReplaceAllString(base, "-")
	}

	head, err := repo.Head()
	if err != nil {
		return imageTagSanitizer.ReplaceAllString(base, "-")
	}
	branch := strings.TrimPrefix(head.Name().String(), "refs/heads/")

	cfg, err := repo.Config()
	if err != nil || len(cfg.Remotes) == 0 {
		return imageTagSanitizer.ReplaceAllString(base+"-"+branch, "-")
	}

	remoteName := "origin"
	if _, ok := cfg.Remotes[remoteName]; !ok {
		for name := range cfg.Remotes {
			remoteName = name
			break
		}
	}
	repoName := filepath.Base(strings.TrimSuffix(cfg.Remotes[remoteName].URLs[0], ".git"))

	return imageTagSanitizer.ReplaceAllString(repoName+"-"+branch, "-")
}
