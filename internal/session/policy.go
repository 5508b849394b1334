package session

import (
	"fmt"
)

type policyKind int

const (
	policyNever policyKind = iota
	policyBeforeEach
	policyEveryN
)

// Policy decides when a session's browser is torn down and re-opened.
// Construct one with ParsePolicy; the zero value behaves like "never".
type Policy struct {
	kind policyKind
	n    uint64
}

// ParsePolicy validates a policy name and its parameter. every_n requires a
// positive N; the other policies ignore it. Unknown names are rejected so a
// typo in configuration fails at startup instead of silently never recycling.
func ParsePolicy(name string, n int) (Policy, error) {
	switch name {
	case "never", "":
		return Policy{kind: policyNever}, nil
	case "before_each":
		return Policy{kind: policyBeforeEach}, nil
	case "every_n":
		if n <= 0 {
			return Policy{}, fmt.Errorf("recycle policy every_n requires a positive N, got %d", n)
		}
		return Policy{kind: policyEveryN, n: uint64(n)}, nil
	default:
		return Policy{}, fmt.Errorf("unknown recycle policy %q", name)
	}
}

// ShouldRecycle reports whether the browser should be recycled before the
// job with the given 1-based foreground job count runs.
func (p Policy) ShouldRecycle(jobCount uint64) bool {
	switch p.kind {
	case policyBeforeEach:
		return true
	case policyEveryN:
		return jobCount%p.n == 0
	default:
		return false
	}
}

func (p Policy) String() string {
	switch p.kind {
	case policyBeforeEach:
		return "before_each"
	case policyEveryN:
		return fmt.Sprintf("every_n(%d)", p.n)
	default:
		return "never"
	}
}
