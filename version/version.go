// Package version reports build information for the harvester binary.
package version

import (
	"fmt"
	"runtime"
)

// Set at build time with
//
//	-ldflags "-X github.com/teranos/breg-harvester/version.Version=v1.2.0 -X ...CommitHash=$(git rev-parse HEAD)"
var (
	CommitHash = "dev"
	BuildTime  = "unknown"
	Version    = "dev"
)

// Name is the program name used in version strings and the User-Agent header
const Name = "breg-harvester"

// Info contains version and build information
type Info struct {
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	Version    string `json:"version"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

func Get() Info {
	return Info{
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		Version:    Version,
		GoVersion:  runtime.Version(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", Name, i.Version, i.CommitHash, i.BuildTime)
}

// Short returns the abbreviated commit hash.
func (i Info) Short() string {
	if len(i.CommitHash) >= 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}

// UserAgent identifies the harvester to source hosts, the triple store and
// the validation service, e.g. "breg-harvester/v1.2.0 (+go1.24.6)".
func UserAgent() string {
	return fmt.Sprintf("%s/%s (+%s)", Name, Version, runtime.Version())
}
