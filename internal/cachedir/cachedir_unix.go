//go:build !windows

package cachedir

func root() (string, error) {
	prefixes := []string{
		"${XDG_DATA_HOME}",
		"${XDG_CACHE_HOME}",
		"${HOME}/.local/share",
		"${HOME}/.cache",
	}
	return dirBase(prefixes, "${HOME}/.local/share/%s")
}
