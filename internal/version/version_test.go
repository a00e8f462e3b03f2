package version

import (
	"testing"

	"github.com/fatih/color"
)

func TestLine(t *testing.T) {
	color.NoColor = true
	origVersion, origCommit, origDate := Version, GitCommit, BuildDate
	t.Cleanup(func() { Version, GitCommit, BuildDate = origVersion, origCommit, origDate })

	Version, GitCommit, BuildDate = "1.2.3-rc.1", "", ""
	if got := Line(); got != "cjses 1.2.3-rc.1" {
		t.Fatalf("Line = %q", got)
	}
	GitCommit, BuildDate = "abc123", "2026-01-15"
	if got := Line(); got != "cjses 1.2.3-rc.1 (commit abc123, built 2026-01-15)" {
		t.Fatalf("Line = %q", got)
	}
}

func TestColoredKeepsOddVersions(t *testing.T) {
	color.NoColor = true
	orig := Version
	t.Cleanup(func() { Version = orig })

	Version = "nightly"
	if got := Colored(); got != "nightly" {
		t.Fatalf("Colored = %q", got)
	}
}
