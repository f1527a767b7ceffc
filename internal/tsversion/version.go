// Package tsversion resolves which tsserver executable to run and exposes
// its version as a total order for feature gating.
package tsversion

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// ApiVersion wraps a resolved tsserver semver for comparison. Modeled on
// SeleniaProject-Orizon's use of Masterminds/semver for its own toolchain
// version gates.
type ApiVersion struct {
	raw *semver.Version
}

// Parse builds an ApiVersion from a "package.json"-style version string.
// TypeScript prereleases (e.g. "5.4.0-dev.20240101") parse cleanly under
// semver; "NaN" or empty strings are rejected so callers fall back to the
// bundled version.
func Parse(s string) (ApiVersion, error) {
	v, err := semver.NewVersion(s)
	if err != nil {
		return ApiVersion{}, fmt.Errorf("tsversion: parsing %q: %w", s, err)
	}
	return ApiVersion{raw: v}, nil
}

// MustParse panics on an invalid version; used only for the compiled-in
// bundled-fallback constant.
func MustParse(s string) ApiVersion {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v ApiVersion) String() string {
	if v.raw == nil {
		return "0.0.0"
	}
	return v.raw.String()
}

// Compare returns -1, 0, 1 per the usual ordering convention. A zero
// ApiVersion (raw == nil, not yet resolved) compares as less than any parsed
// version, and equal only to another zero value.
func (v ApiVersion) Compare(other ApiVersion) int {
	if v.raw == nil || other.raw == nil {
		switch {
		case v.raw == nil && other.raw == nil:
			return 0
		case v.raw == nil:
			return -1
		default:
			return 1
		}
	}
	return v.raw.Compare(other.raw)
}

// AtLeast reports whether v >= other.
func (v ApiVersion) AtLeast(other ApiVersion) bool {
	return v.Compare(other) >= 0
}

// Feature gates for tsserver capabilities that only exist from a given
// version onward.
var (
	MinIPCTransport = MustParse("4.9.0")
	MinInlayHints = MustParse("4.4.0")
	MinSourceDefinition = MustParse("4.7.0")
	MinSyntaxServerSplit = MustParse("4.0.0")
	MinInferredProjectArg = MustParse("2.5.0")
	MinNodeIpcFlag = MustParse("4.9.0")
)
