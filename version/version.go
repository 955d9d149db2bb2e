package version

import (
	"fmt"
	"strings"

	"github.com/coreos/go-semver/semver"

	"github.com/wippyai/wasmnoise/errors"
)

// Level selects which counter a build increments.
type Level int

const (
	LevelBuild Level = iota
	LevelPatch
	LevelMinor
	LevelMajor
)

var levelNames = [...]string{"build", "patch", "minor", "major"}

func (l Level) String() string {
	if l < LevelBuild || l > LevelMajor {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel maps "build", "patch", "minor" or "major" to a Level.
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range levelNames {
		if n == name {
			return Level(i), nil
		}
	}
	return LevelBuild, errors.InvalidInput(errors.PhaseVersion, fmt.Sprintf("unknown bump level %q", s))
}

// Version is the four-counter version persisted in the version file.
type Version struct {
	Major int64
	Minor int64
	Patch int64
	Build int64
}

// Bump returns v with level incremented and every lower level reset to zero.
func (v Version) Bump(level Level) Version {
	if level == LevelBuild {
		v.Build++
		return v
	}

	sv := v.semver()
	switch level {
	case LevelMajor:
		sv.BumpMajor()
	case LevelMinor:
		sv.BumpMinor()
	case LevelPatch:
		sv.BumpPatch()
	}
	return Version{Major: sv.Major, Minor: sv.Minor, Patch: sv.Patch}
}

// Semver returns the major.minor.patch triple.
func (v Version) Semver() string {
	return v.semver().String()
}

// String returns major.minor.patch.build.
func (v Version) String() string {
	return fmt.Sprintf("%s.%d", v.Semver(), v.Build)
}

// OutputName returns the artefact base name, e.g. "wasmnoise-1.3.0".
func (v Version) OutputName(prefix string) string {
	return prefix + "-" + v.Semver()
}

// BuildDir returns the per-build directory name, e.g. "wasmnoise-1.3.0.b0".
func (v Version) BuildDir(prefix string) string {
	return fmt.Sprintf("%s.b%d", v.OutputName(prefix), v.Build)
}

func (v Version) semver() *semver.Version {
	return &semver.Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch}
}

func (v Version) validate() *errors.Error {
	for _, c := range []struct {
		name  string
		value int64
	}{
		{"major", v.Major}, {"minor", v.Minor}, {"patch", v.Patch}, {"build", v.Build},
	} {
		if c.value < 0 {
			return errors.InvalidInput(errors.PhaseVersion, fmt.Sprintf("%s counter is negative (%d)", c.name, c.value))
		}
	}
	return nil
}
