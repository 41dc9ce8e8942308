package version

import (
	"runtime"

	"github.com/google/uuid"
)

// Build information, injected via ldflags at build time:
//
//	go build -ldflags "-X github.com/pscheid92/linecast/internal/platform/version.Version=v1.2.0"
var (
	// Version is the git tag or semantic version
	Version = "dev"
	// Commit is the git commit SHA
	Commit = "unknown"
	// BuildTime is the ISO 8601 build timestamp
	BuildTime = "unknown"
)

// instanceID distinguishes relay processes in logs when several run side by side.
var instanceID = uuid.New()

// Info holds complete build information
type Info struct {
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	BuildTime  string `json:"build_time"`
	GoVersion  string `json:"go_version"`
	InstanceID string `json:"instance_id"`
}

// Get returns the current build information
func Get() Info {
	return Info{
		Version:    Version,
		Commit:     Commit,
		BuildTime:  BuildTime,
		GoVersion:  runtime.Version(),
		InstanceID: instanceID.String(),
	}
}
