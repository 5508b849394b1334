// Package identity normalizes caller-supplied identities into filesystem- and
// log-safe keys, and owns the per-identity data directory layout.
package identity

import (
	"os"
	"path/filepath"
	"strings"
)

// ToSafe converts a raw identity (e.g. an account email) into the safe form
// used as the registry key and for all derived storage paths. The part after
// an '@' is dropped, and any rune outside [A-Za-z0-9._-] becomes '_'.
// Two raw identities with the same safe form refer to the same session.
func ToSafe(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Dirs holds the per-identity directory layout under the data root.
type Dirs struct {
	Profile string // persistent browser profile (user data dir)
	Output  string // job result artifacts
	Log     string // per-identity logs
}

// UserDirs returns (and creates) the directories for one safe identity.
func UserDirs(dataDir, identitySafe string) (Dirs, error) {
	d := Dirs{
		Profile: filepath.Join(dataDir, "profiles", identitySafe),
		Output:  filepath.Join(dataDir, "outputs", identitySafe),
		Log:     filepath.Join(dataDir, "logs", identitySafe),
	}
	for _, p := range []string{d.Profile, d.Output, d.Log} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return Dirs{}, err
		}
	}
	return d, nil
}

// ProfilesDir returns the root directory holding all browser profiles.
func ProfilesDir(dataDir string) string {
	return filepath.Join(dataDir, "profiles")
}

// ProfileHasData reports whether a profile directory exists and is non-empty,
// i.e. a browser has been opened for this identity at least once.
func ProfileHasData(dataDir, identitySafe string) bool {
	entries, err := os.ReadDir(filepath.Join(dataDir, "profiles", identitySafe))
	return err == nil && len(entries) > 0
}
