package store

import (
	"github.com/Masterminds/semver/v3"

	"github.com/nacht-org/quelle-go/storemanifest"
)

// isNewerVersion reports whether a is strictly newer than b under semver
// comparison. Returns false (no promotion) if a fails to parse, so an
// unparsable version never replaces the recorded "latest"; if only b fails
// to parse, a is treated as newer.
func isNewerVersion(a, b string) bool {
	va, err := semver.NewVersion(a)
	if err != nil {
		return false
	}
	vb, err := semver.NewVersion(b)
	if err != nil {
		return true
	}
	return va.GreaterThan(vb)
}

// latestOf returns the highest semver key among versions, or "" if empty
// or all unparsable.
func latestOf(versions map[string]storemanifest.VersionSummary) string {
	var best string
	var bestV *semver.Version
	for k := range versions {
		v, err := semver.NewVersion(k)
		if err != nil {
			continue
		}
		if bestV == nil || v.GreaterThan(bestV) {
			bestV = v
			best = k
		}
	}
	return best
}
