package feature

import (
	"errors"
	"os"

	"github.com/gocarina/gocsv"
)

// digestEntry records, for a feature reference, the digest of the
// first layer of the manifest last extracted for it, letting a fetch
// reuse the cached copy instead of re-downloading when the freshly
// fetched manifest still carries that digest.
type digestEntry struct {
	Reference string `csv:"reference"`
	Digest    string `csv:"digest"`
}

// digestCache is a small CSV side-table next to the extracted feature
// cache, mirroring the teacher's ArtifactDigest bookkeeping.
type digestCache struct {
	path    string
	entries map[string]string
}

func loadDigestCache(path string) (*digestCache, error) {
	c := &digestCache{path: path, entries: map[string]string{}}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []*digestEntry
	if err := gocsv.UnmarshalFile(f, &rows); err != nil && !errors.Is(err, gocsv.ErrEmptyCSVFile) {
		return nil, err
	}
	for _, row := range rows {
		c.entries[row.Reference] = row.Digest
	}
	return c, nil
}

func (c *digestCache) get(ref string) (string, bool) {
	d, ok := c.entries[ref]
	return d, ok
}

func (c *digestCache) set(ref, digest string) {
	c.entries[ref] = digest
}

func (c *digestCache) save() error {
	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	rows := make([]*digestEntry, 0, len(c.entries))
	for ref, digest := range c.entries {
		rows = append(rows, &digestEntry{Reference: ref, Digest: digest})
	}
	return gocsv.MarshalFile(&rows, f)
}
