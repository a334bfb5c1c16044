// Package version reports which oracle build is running.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set with -ldflags "-X github.com/andywolf/oracle/internal/version.Version=v0.3.0".
// Builds without ldflags fall back to the module build info.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// keyModules are the dependencies listed by Full.
var keyModules = []string{
	"google.golang.org/genai",
	"github.com/jackc/pgx/v5",
	"cloud.google.com/go/secretmanager",
}

// Build describes the running binary.
type Build struct {
	Version  string
	Commit   string
	Date     string
	Modified bool
	Go       string
	Deps     map[string]string
}

// Current returns the build description, filled from ldflags and, where
// those were not set, from debug.ReadBuildInfo.
func Current() Build {
	b := Build{
		Version: Version,
		Commit:  Commit,
		Date:    BuildDate,
		Go:      runtime.Version(),
		Deps:    map[string]string{},
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	if b.Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "unknown" {
				b.Commit = s.Value
			}
		case "vcs.time":
			if b.Date == "unknown" {
				b.Date = s.Value
			}
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}
	for _, dep := range info.Deps {
		for _, m := range keyModules {
			if dep.Path == m {
				b.Deps[m] = dep.Version
			}
		}
	}
	return b
}

// Short returns the version string.
func Short() string {
	return Current().Version
}

// UserAgent is sent with outbound platform requests, e.g. "oracle/v0.3.0".
func UserAgent() string {
	return "oracle/" + Short()
}

// Info returns a one-line summary:
// "oracle v0.3.0 (commit: abc1234, built: 2024-01-15T10:30:00Z, go: go1.24.x)".
func Info() string {
	return Current().String()
}

func (b Build) String() string {
	return fmt.Sprintf("oracle %s (commit: %s, built: %s, go: %s)",
		b.Version, b.shortCommit(), b.Date, b.Go)
}

// Full returns the multi-line form used by `oracle version --verbose`.
func Full() string {
	b := Current()

	var sb strings.Builder
	fmt.Fprintf(&sb, "oracle %s\n", b.Version)
	fmt.Fprintf(&sb, "  Commit:     %s\n", b.commitLabel())
	fmt.Fprintf(&sb, "  Built:      %s\n", b.Date)
	fmt.Fprintf(&sb, "  Go version: %s\n", b.Go)
	fmt.Fprintf(&sb, "  OS/Arch:    %s/%s", runtime.GOOS, runtime.GOARCH)
	for _, m := range keyModules {
		if v, ok := b.Deps[m]; ok {
			fmt.Fprintf(&sb, "\n  %s %s", m, v)
		}
	}
	return sb.String()
}

func (b Build) shortCommit() string {
	c := b.Commit
	if len(c) > 7 {
		c = c[:7]
	}
	if b.Modified {
		c += "-dirty"
	}
	return c
}

func (b Build) commitLabel() string {
	if b.Modified {
		return b.Commit + " (modified)"
	}
	return b.Commit
}
