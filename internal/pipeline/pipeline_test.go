package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ref := filepath.Join(dir, "ref.mp4")
	cap := filepath.Join(dir, "cap.mp4")
	for _, p := range []string{ref, cap} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	valid := Config{ReferencePath: ref, CapturedPath: cap}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name string
		mut  func(*Config)
	}{
		{name: "empty reference", mut: func(c *Config) { c.ReferencePath = "" }},
		{name: "missing reference", mut: func(c *Config) { c.ReferencePath = filepath.Join(dir, "nope.mp4") }},
		{name: "empty captured", mut: func(c *Config) { c.CapturedPath = "" }},
		{name: "missing captured", mut: func(c *Config) { c.CapturedPath = filepath.Join(dir, "nope.mp4") }},
		{name: "negative max offset", mut: func(c *Config) { c.MaxOffsetSeconds = -1 }},
		{name: "negative duration", mut: func(c *Config) { c.DurationSeconds = -1 }},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid
			tc.mut(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestBuildRunOutDir(t *testing.T) {
	now := time.Date(2026, 2, 12, 10, 30, 45, 1234, time.UTC)
	got := buildRunOutDir("out", "/tmp/My Ref.Video.mp4", "/tmp/Cap (1).mp4", now)
	base := filepath.Base(got)
	if filepath.Dir(got) != "out" {
		t.Fatalf("unexpected parent dir: %s", got)
	}
	if !strings.HasPrefix(base, "my-ref-video-vs-cap-1-20260212-103045Z-") {
		t.Fatalf("unexpected run dir format: %s", base)
	}
	if len(base) != len("my-ref-video-vs-cap-1-20260212-103045Z-")+6 {
		t.Fatalf("unexpected run dir suffix length: %s", base)
	}
}

func TestNormalizePathSegment(t *testing.T) {
	tests := map[string]string{
		"  My Cool.Video  ": "my-cool-video",
		"___":               "",
		"abc123":            "abc123",
		"Name (v2)!":        "name-v2",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			if got := normalizePathSegment(in); got != want {
				t.Fatalf("normalizePathSegment(%q) = %q, want %q", in, got, want)
			}
		})
	}
}
