package main

import (
	"runtime/debug"

	"github.com/marcus/lists/cmd"
)

// Version is injected at release time with -ldflags "-X main.Version=v1.2.3".
var Version = "dev"

// resolveVersion prefers the injected version, then the module version
// recorded by `go install`, then a devel+<rev>[+dirty] string from VCS stamps.
func resolveVersion() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Version
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}

	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}
	rev := settings["vcs.revision"]
	if rev == "" {
		return Version
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	v := "devel+" + rev
	if settings["vcs.modified"] == "true" {
		v += "+dirty"
	}
	return v
}

func main() {
	cmd.SetVersion(resolveVersion())
	cmd.Execute()
}
