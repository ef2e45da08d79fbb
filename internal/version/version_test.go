package version

import (
	"runtime/debug"
	"testing"
)

func TestFillFromSettings(t *testing.T) {
	base := Info{Version: "dev", GitSHA: "unknown", BuildTime: "unknown"}
	got := fillFromSettings(base, []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		{Key: "vcs.time", Value: "2026-03-01T09:00:00Z"},
		{Key: "GOOS", Value: "linux"},
	})
	if got.GitSHA != "0123456789ab" {
		t.Errorf("GitSHA = %q, want truncated revision", got.GitSHA)
	}
	if got.BuildTime != "2026-03-01T09:00:00Z" {
		t.Errorf("BuildTime = %q", got.BuildTime)
	}
}

func TestLinkerValuesWin(t *testing.T) {
	base := Info{Version: "v1.0.0", GitSHA: "abc123", BuildTime: "yesterday"}
	got := fillFromSettings(base, []debug.BuildSetting{{Key: "vcs.revision", Value: "ffff"}})
	if got != base {
		t.Errorf("got %+v, want %+v", got, base)
	}
}

func TestString(t *testing.T) {
	s := Info{Version: "v1", GitSHA: "abc", BuildTime: "now"}.String()
	if s != "lanepilot v1 (abc, built now)" {
		t.Errorf("String() = %q", s)
	}
	if Get().Version != Version {
		t.Errorf("Get().Version = %q, want %q", Get().Version, Version)
	}
}
