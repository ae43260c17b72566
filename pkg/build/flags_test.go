// SPDX-License-Identifier: MIT
package build

import (
	"os"
	"runtime/debug"
	"testing"
)

var (
	origName    string
	origTime    string
	origCommit  string
	origVersion string
	origFlags   ldFlags
)

func TestMain(m *testing.M) {
	origName = buildName
	origTime = buildTime
	origCommit = buildCommit
	origVersion = buildVersion
	if buildFlags != nil {
		origFlags = *buildFlags
	}

	exitCode := m.Run()

	buildName = origName
	buildTime = origTime
	buildCommit = origCommit
	buildVersion = origVersion
	if buildFlags != nil {
		*buildFlags = origFlags
	}

	os.Exit(exitCode)
}

func resetFlags() {
	buildFlags = &ldFlags{Name: "trap", Time: "unknown", Commit: "unknown", Version: "devel"}
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name        string
		buildName   string
		buildTime   string
		buildCommit string
		buildVer    string
		wantErrMsg  string
	}{
		{"Missing BuildName", "", "2026-03-02", "abcdef123", "v1.0.0", "BuildName is required"},
		{"Missing BuildTime", "trap", "", "abcdef123", "v1.0.0", "BuildTime is required"},
		{"Missing BuildCommit", "trap", "2026-03-02", "", "v1.0.0", "BuildCommit is required"},
		{"Missing BuildVersion", "trap", "2026-03-02", "abcdef123", "", "BuildVersion is required"},
		{"Success Case", "trap", "2026-03-02", "abcdef123", "v1.0.0", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags()

			buildName = tt.buildName
			buildTime = tt.buildTime
			buildCommit = tt.buildCommit
			buildVersion = tt.buildVer

			err := Initialize()

			if tt.wantErrMsg != "" {
				if err == nil {
					t.Fatalf("Initialize() expected error, got nil")
				}
				if err.Error() != tt.wantErrMsg {
					t.Errorf("Initialize() error = %v, want %v", err, tt.wantErrMsg)
				}
				return
			}

			if err != nil {
				t.Fatalf("Initialize() unexpected error: %v", err)
			}
			if buildFlags.Version != tt.buildVer || buildFlags.Commit != tt.buildCommit {
				t.Errorf("buildFlags = %+v, want version %s commit %s", buildFlags, tt.buildVer, tt.buildCommit)
			}
		})
	}
}

func TestInitializeFallsBackToBuildInfo(t *testing.T) {
	resetFlags()
	buildName, buildTime, buildCommit, buildVersion = "", "", "", ""

	orig := readBuildInfo
	t.Cleanup(func() { readBuildInfo = orig })
	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			Main: debug.Module{Version: "v0.3.1"},
			Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "f00dcafe"},
				{Key: "vcs.time", Value: "2026-02-11T09:00:00Z"},
			},
		}, true
	}

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() unexpected error: %v", err)
	}
	flags := GetBuildFlags()
	if flags.Version != "v0.3.1" || flags.Commit != "f00dcafe" || flags.Time != "2026-02-11T09:00:00Z" {
		t.Errorf("GetBuildFlags() = %+v", flags)
	}
	if got, want := flags.String(), "trap v0.3.1 (commit f00dcafe, built 2026-02-11T09:00:00Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
