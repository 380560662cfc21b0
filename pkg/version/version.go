// Package version implements compatibility validation for plugin
// version requirements.
package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/arkforge/arkforge/pkg/types"
)

// CoreVersion is the version of the ArkForge core exposed to plugins.
const CoreVersion = "1.0.0"

// SDKVersion is the version of the plugin SDK surface exposed to plugins.
const SDKVersion = "1.0.0"

// Parse normalizes a requirement string of the form MAJOR.MINOR.PATCH
// with an optional trailing "+" (meaning "or any higher version") or a
// prerelease/build suffix, and returns the comparable (major, minor,
// patch) version. Malformed strings return an error; callers must
// treat that as incompatible, never as wildcard-compatible.
func Parse(v string) (*semver.Version, error) {
	s := strings.TrimSpace(v)
	if s == "" {
		return nil, fmt.Errorf("empty version string")
	}
	// A bare trailing "+" is the "or higher" marker; semver would read
	// it as empty build metadata, so strip it before parsing.
	s = strings.TrimSuffix(s, "+")
	// The requirement compares on the numeric tuple only.
	if i := strings.IndexAny(s, "+-"); i > 0 {
		s = s[:i]
	}
	parsed, err := semver.StrictNewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("malformed version %q: %w", v, err)
	}
	return parsed, nil
}

// Satisfies reports whether the provided version meets the required
// version under "equal or higher" semantics. Either side failing to
// parse fails closed.
func Satisfies(provided, required string) bool {
	p, err := Parse(provided)
	if err != nil {
		return false
	}
	r, err := Parse(required)
	if err != nil {
		return false
	}
	return p.Compare(r) >= 0
}

// Validator checks plugin descriptors against the host core and SDK
// versions. In strict mode a descriptor missing a required-version
// field is rejected instead of defaulting to compatible.
type Validator struct {
	Strict bool
}

// NewValidator creates a validator; strict controls whether missing
// requirement fields are rejected.
func NewValidator(strict bool) *Validator {
	return &Validator{Strict: strict}
}

// Validate checks a descriptor against the given core and SDK
// versions and returns the verdict with a human-readable reason.
func (v *Validator) Validate(d types.PluginDescriptor, coreVersion, sdkVersion string) (bool, string) {
	if ok, reason := v.check(d.ID, "core", d.RequiredCoreVersion, coreVersion); !ok {
		return false, reason
	}
	if ok, reason := v.check(d.ID, "sdk", d.RequiredSDKVersion, sdkVersion); !ok {
		return false, reason
	}
	return true, fmt.Sprintf("plugin %s compatible with core %s / sdk %s", d.ID, coreVersion, sdkVersion)
}

func (v *Validator) check(id, what, required, provided string) (bool, string) {
	if strings.TrimSpace(required) == "" {
		if v.Strict {
			return false, fmt.Sprintf("plugin %s: missing required %s version in strict mode", id, what)
		}
		return true, ""
	}
	if _, err := Parse(required); err != nil {
		return false, fmt.Sprintf("plugin %s: %v", id, err)
	}
	if !Satisfies(provided, required) {
		return false, fmt.Sprintf("plugin %s requires %s >= %s, have %s", id, what, required, provided)
	}
	return true, ""
}
