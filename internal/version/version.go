package version

import (
	"fmt"
	"runtime"
)

// Version indicates the version of the binary, such as a release number or semantic version.
// Set via -ldflags "-X github.com/OpenCHAMI/pductl/internal/version.Version=v1.0.0"
var Version string

// GitCommit stores the latest Git commit hash.
// Set via -ldflags "-X github.com/OpenCHAMI/pductl/internal/version.GitCommit=$(git rev-parse HEAD)"
var GitCommit string

// BuildTime stores the build timestamp in UTC.
// Set via -ldflags "-X github.com/OpenCHAMI/pductl/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var BuildTime string

// GitState indicates whether the working directory was "clean" or "dirty".
var GitState string

// Set fills in values passed down from main (goreleaser sets those). Empty
// arguments leave the ldflags values alone.
func Set(version, commit, date string) {
	if version != "" {
		Version = version
	}
	if commit != "" {
		GitCommit = commit
	}
	if date != "" {
		BuildTime = date
	}
}

type Info struct {
	Version   string `json:"version" yaml:"version"`
	GitCommit string `json:"commit" yaml:"commit"`
	BuildTime string `json:"build_time" yaml:"build_time"`
	GitState  string `json:"git_state,omitempty" yaml:"git_state,omitempty"`
	GoVersion string `json:"go_version" yaml:"go_version"`
}

func Get() Info {
	v := Version
	if v == "" {
		v = "dev"
	}
	return Info{
		Version:   v,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GitState:  GitState,
		GoVersion: runtime.Version(),
	}
}

func (i Info) List() []string {
	return []string{
		fmt.Sprintf("Version: %s", i.Version),
		fmt.Sprintf("Git Commit: %s", i.GitCommit),
		fmt.Sprintf("Build Time: %s", i.BuildTime),
		fmt.Sprintf("Git State: %s", i.GitState),
		fmt.Sprintf("Go Version: %s", i.GoVersion),
	}
}

// String is the single line printed by `pductl version`.
func (i Info) String() string {
	if i.GitCommit == "" {
		return i.Version
	}
	return fmt.Sprintf("%s (%s)", i.Version, i.GitCommit)
}
