package version

import (
	"strings"
	"testing"
)

// setVersion overrides the build variables for one test.
func setVersion(t *testing.T, v, commit, built string) {
	t.Helper()
	origVersion, origCommit, origBuildTime := Version, Commit, BuildTime
	t.Cleanup(func() {
		Version, Commit, BuildTime = origVersion, origCommit, origBuildTime
	})
	Version, Commit, BuildTime = v, commit, built
}

func TestString(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		setVersion(t, "dev", "unknown", "unknown")

		result := String()

		if !strings.Contains(result, "dev") {
			t.Errorf("String() = %q, should contain 'dev'", result)
		}
		if !strings.Contains(result, "built") {
			t.Errorf("String() = %q, should contain 'built'", result)
		}
	})

	t.Run("custom values", func(t *testing.T) {
		setVersion(t, "1.2.3", "abc1234", "2024-01-15T10:00:00Z")

		expected := "1.2.3 (abc1234) built 2024-01-15T10:00:00Z"
		if result := String(); result != expected {
			t.Errorf("String() = %q, want %q", result, expected)
		}
	})
}

func TestGet(t *testing.T) {
	setVersion(t, "0.4.0", "deadbee", "2024-02-01T00:00:00Z")

	info := Get()
	if info.Version != "0.4.0" {
		t.Errorf("Version = %q, want 0.4.0", info.Version)
	}
	if info.Commit != "deadbee" {
		t.Errorf("Commit = %q, want deadbee", info.Commit)
	}
	if info.BuildTime != "2024-02-01T00:00:00Z" {
		t.Errorf("BuildTime = %q, want 2024-02-01T00:00:00Z", info.BuildTime)
	}
}
