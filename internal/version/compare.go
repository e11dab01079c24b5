package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// NeedsRecompute reports whether a feature snapshot written by
// snapshotVersion should be recomputed by the current engine.
//
// Rules:
//   - Empty or unparseable snapshot versions are always recomputed
//   - "main" (development build) on either side always recomputes
//   - A snapshot from an older major or minor engine release is recomputed
//   - Patch releases do not invalidate snapshots (1.2.5 keeps 1.2.0 rows)
func NeedsRecompute(snapshotVersion string) (bool, error) {
	current := strings.TrimPrefix(Version, "v")
	previous := strings.TrimPrefix(snapshotVersion, "v")

	if previous == "" {
		return true, nil
	}

	// Development builds cannot be compared meaningfully.
	if current == "main" || previous == "main" {
		return true, nil
	}

	currentSemver, err := semver.NewVersion(current)
	if err != nil {
		return true, fmt.Errorf("invalid engine version %q: %w", current, err)
	}

	previousSemver, err := semver.NewVersion(previous)
	if err != nil {
		// A malformed stored version is treated as stale rather than fatal.
		return true, nil
	}

	if previousSemver.Major() < currentSemver.Major() {
		return true, nil
	}

	if previousSemver.Major() == currentSemver.Major() && previousSemver.Minor() < currentSemver.Minor() {
		return true, nil
	}

	return false, nil
}
