package runtime

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	archive "github.com/moby/go-archive"
	"github.com/moby/patternmatcher/ignorefile"
)

// buildContextExcludesList reads .dockerignore or .containerignore
// (first one found) in ctxDir and
// returns its exclude patterns, or nil if none exists.
func buildContextExcludesList(ctxDir string) []string {
	var ignoreFile string
	for _, candidate := range []string{".dockerignore", ".containerignore"} {
		path := filepath.Join(ctxDir, candidate)
		if _, err := os.Stat(path); err == nil {
			ignoreFile = path
			break
		}
	}
	if ignoreFile == "" {
		return nil
	}

	f, err := os.Open(ignoreFile)
	if err != nil {
		slog.Warn("runtime: could not open ignore file", "path", ignoreFile, "error", err)
		return nil
	}
	defer f.Close()

	excludes, err := ignorefile.ReadAll(f)
	if err != nil {
		slog.Warn("runtime: could not parse ignore file", "path", ignoreFile, "error", err)
		return nil
	}
	return excludes
}

// buildContextArchive gathers ctxDir into a gzip tarball on disk and
// returns its path; callers must remove it via removeArchive.
func buildContextArchive(ctxDir string) (string, error) {
	tempFile, err := os.CreateTemp("", fmt.Sprintf(".ctx-%s-*.tar.gz", filepath.Base(ctxDir)))
	if err != nil {
		return "", err
	}
	defer tempFile.Close()

	tarOpts := &archive.TarOptions{
		ChownOpts: &archive.ChownOpts{
			UID: 0,
			GID: 0,
		},
		Compression:      archive.Gzip,
		ExcludePatterns:  buildContextExcludesList(ctxDir),
		IncludeSourceDir: false,
		NoLchown:         true,
	}

	ctxReader, err := archive.TarWithOptions(ctxDir, tarOpts)
	if err != nil {
		return "", err
	}
	defer ctxReader.Close()

	if _, err := io.Copy(tempFile, ctxReader); err != nil {
		return "", err
	}
	return tempFile.Name(), nil
}

func openArchive(path string) (*os.File, error) {
	return os.Open(path)
}

func removeArchive(path string) {
	if err := os.Remove(path); err != nil {
		slog.Warn("runtime: could not clean up build context archive", "path", path, "error", err)
	}
}

// decodeBuildStream relays the JSON-lines build log moby emits to
// out, surfacing the first error message it contains.
func decodeBuildStream(r io.Reader, out io.Writer) error {
	decoder := json.NewDecoder(r)
	for {
		var msg struct {
			Stream string `json:"stream"`
			Error  string `json:"error"`
		}
		if err := decoder.Decode(&msg); err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("runtime: decoding build stream: %w", err)
		}
		if msg.Stream != "" {
			fmt.Fprint(out, msg.Stream)
		}
		if msg.Error != "" {
			return fmt.Errorf("runtime: build failed: %s", msg.Error)
		}
	}
}
