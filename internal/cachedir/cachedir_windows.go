//go:build windows

package cachedir

func root() (string, error) {
	prefixes := []string{
		"${XDG_DATA_HOME}",
		"${XDG_CACHE_HOME}",
		"${LOCALAPPDATA}",
		"${USERPROFILE}",
	}
	return dirBase(prefixes, "${LOCALAPPDATA}/%s")
}
