package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Build metadata injected via -ldflags. A .version file beside the binary
// fills in anything left at its default.
var (
	Version = "dev"
	Build   = "unknown"
	Commit  = "unknown"
)

// VersionString formats the version with its build metadata, e.g.
// "0.3.1 (build 2026-08-29T10:00:00Z, commit 4f2c1a9)".
func VersionString() string {
	return fmt.Sprintf("%s (build %s, commit %s)", Version, Build, Commit)
}

// LoadVersionFromFile reads a .version file from the binary's directory and
// applies its values. Missing files and unreadable lines are ignored.
func LoadVersionFromFile() {
	exe, err := os.Executable()
	if err != nil {
		return
	}
	data, err := os.ReadFile(filepath.Join(filepath.Dir(exe), ".version"))
	if err != nil {
		return
	}
	applyVersionFile(string(data))
}

// applyVersionFile parses "key: value" lines and fills in build metadata
// that is still at its compiled-in default. ldflags always win.
func applyVersionFile(data string) {
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if val == "" {
			continue
		}
		switch key {
		case "version":
			if Version == "dev" {
				Version = val
			}
		case "build":
			if Build == "unknown" {
				Build = val
			}
		case "commit":
			if Commit == "unknown" {
				Commit = val
			}
		}
	}
}
