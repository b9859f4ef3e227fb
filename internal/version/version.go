// Package version provides the build version for the pcrgate binary.
package version

import "strings"

// Version and Commit are vars (not consts) so ldflags -X can override
// them at build time. Commit is the git revision the binary was built
// from; empty for ad-hoc builds.
var (
	Version = "dev"
	Commit  = ""
)

// String returns the display version with a single 'v' prefix,
// tolerating both tagged ("v1.2.3") and bare ("1.2.3") inputs. A stamped
// commit is appended in abbreviated form.
func String() string {
	v := "v" + strings.TrimPrefix(Version, "v")
	if Commit == "" {
		return v
	}
	c := Commit
	if len(c) > 12 {
		c = c[:12]
	}
	return v + "+" + c
}
