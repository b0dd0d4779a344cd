package version

import (
	"runtime/debug"
	"testing"
)

func TestFromSettings(t *testing.T) {
	vcs := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "3f0c2ab9d1e4"},
		{Key: "vcs.time", Value: "2026-05-01T12:00:00Z"},
		{Key: "vcs.modified", Value: "true"},
	}
	tests := []struct {
		name string
		in   Info
		want Info
	}{
		{
			"unset fields come from vcs",
			Info{Version: "dev", Commit: "unknown", Date: "unknown"},
			Info{Version: "dev", Commit: "3f0c2ab9d1e4", Date: "2026-05-01T12:00:00Z", Dirty: true},
		},
		{
			"ldflags win",
			Info{Version: "1.4.0", Commit: "abc1234", Date: "2026-06-01"},
			Info{Version: "1.4.0", Commit: "abc1234", Date: "2026-06-01", Dirty: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fromSettings(tt.in, vcs); got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestInfo_String(t *testing.T) {
	tests := []struct {
		in   Info
		want string
	}{
		{Info{Version: "1.4.0", Commit: "3f0c2ab9d1e4", Date: "2026-05-01"}, "lexdex 1.4.0 (3f0c2ab, 2026-05-01)"},
		{Info{Version: "dev", Commit: "abc", Date: "unknown", Dirty: true}, "lexdex dev (abc-dirty, unknown)"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestGet_KeepsVersion(t *testing.T) {
	if got := Get(); got.Version != Version || got.Commit == "" {
		t.Errorf("Get() = %+v", got)
	}
}
