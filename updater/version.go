package updater

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	appErrors "github.com/vascofialho-nl/releasecheck/errors"
)

// CompareVersions orders two version strings semantically. It returns -1, 0
// or 1 when a is older than, equal to or newer than b. Short forms such as
// "1.2" are accepted.
func CompareVersions(a, b string) (int, error) {
	va, err := parseVersion(a)
	if err != nil {
		return 0, err
	}
	vb, err := parseVersion(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}

// IsNewer reports whether remote is strictly newer than local.
func IsNewer(local, remote string) (bool, error) {
	cmp, err := CompareVersions(local, remote)
	if err != nil {
		return false, err
	}
	return cmp < 0, nil
}

func parseVersion(raw string) (*semver.Version, error) {
	v, err := semver.NewVersion(strings.TrimSpace(raw))
	if err != nil {
		return nil, appErrors.Parse("invalid version "+quote(raw), err)
	}
	return v, nil
}

func quote(s string) string {
	return `"` + s + `"`
}
