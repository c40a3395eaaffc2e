package bettertest

import (
	"strings"

	"golang.org/x/mod/semver"
)

// FormatVersion renders the version reported by --version. Invalid semantic
// versions are reported as a development build.
func FormatVersion(version, commit, date string) string {
	v := semver.Canonical(version)
	if v == "" {
		v = "v0.0.0-dev"
	}
	parts := []string{v}
	for _, p := range []string{commit, date} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "-")
}
