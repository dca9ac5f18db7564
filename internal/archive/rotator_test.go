package archive

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRotatedPathLayout(t *testing.T) {
	r := NewRotator("/data", "merged", "root", "merged-pv", ".", "_", RotationPolicy{}, zerolog.Nop())
	now := time.Date(2026, time.August, 2, 15, 4, 5, 0, time.UTC)
	path := r.rotatedPath(now)
	want := "/data/2026/08/02/merged_20260802_150405.parquet"
	if path != want {
		t.Fatalf("rotatedPath = %q, want %q", path, want)
	}
}

func TestUnlimitedPolicyNeverRotates(t *testing.T) {
	p := RotationPolicy{}
	if !p.unlimited() {
		t.Fatal("expected zero-value policy to be unlimited")
	}
	p.MaxSizeMB = 10
	if p.unlimited() {
		t.Fatal("expected policy with MaxSizeMB set to not be unlimited")
	}
}

func TestWriteOpensLazilyAndTracksCurrentPath(t *testing.T) {
	dir := t.TempDir()
	r := NewRotator(dir, "merged", "root", "merged-pv", ".", "_", RotationPolicy{}, zerolog.Nop())
	defer r.Stop()

	if r.CurrentPath() != "" {
		t.Fatal("expected no current path before the first write")
	}

	v := testValue(t)
	if err := r.Write(v); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if r.CurrentPath() == "" {
		t.Fatal("expected a current path after the first write")
	}
}
