package identity

import (
	"os"
	"path/filepath"
	"testing"
)

func TestToSafe(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "alice", "alice"},
		{"email domain stripped", "alice@example.com", "alice"},
		{"whitespace trimmed", "  bob  ", "bob"},
		{"unsafe runes replaced", "team/ops:1", "team_ops_1"},
		{"dots dashes kept", "a.b-c_d", "a.b-c_d"},
		{"unicode replaced", "สมชาย", "_____"},
		{"only domain part dropped", "a@b@c", "a"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToSafe(tt.in); got != tt.want {
				t.Errorf("ToSafe(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestToSafe_SameSessionKey(t *testing.T) {
	// Raw variants that normalize identically must map to one key.
	if ToSafe("alice@example.com") != ToSafe("alice@other.org") {
		t.Error("expected identical safe keys for same local part")
	}
}

func TestUserDirs(t *testing.T) {
	root := t.TempDir()

	d, err := UserDirs(root, "alice")
	if err != nil {
		t.Fatalf("UserDirs() error = %v", err)
	}

	for _, p := range []string{d.Profile, d.Output, d.Log} {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("expected directory %s: %v", p, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", p)
		}
	}
	if d.Profile != filepath.Join(root, "profiles", "alice") {
		t.Errorf("Profile = %q", d.Profile)
	}
}

func TestProfileHasData(t *testing.T) {
	root := t.TempDir()

	if ProfileHasData(root, "alice") {
		t.Error("expected no data for unknown profile")
	}

	d, err := UserDirs(root, "alice")
	if err != nil {
		t.Fatalf("UserDirs() error = %v", err)
	}
	// Empty profile dir still counts as no data.
	if ProfileHasData(root, "alice") {
		t.Error("expected empty profile to report no data")
	}

	if err := os.WriteFile(filepath.Join(d.Profile, "Default"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !ProfileHasData(root, "alice") {
		t.Error("expected data after writing into profile dir")
	}
}
