package session

import "testing"

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		name    string
		policy  string
		n       int
		wantErr bool
		str     string
	}{
		{"never", "never", 0, false, "never"},
		{"empty defaults to never", "", 0, false, "never"},
		{"before_each", "before_each", 0, false, "before_each"},
		{"every_n", "every_n", 5, false, "every_n(5)"},
		{"every_n zero rejected", "every_n", 0, true, ""},
		{"every_n negative rejected", "every_n", -3, true, ""},
		{"unknown rejected", "sometimes", 0, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePolicy(tt.policy, tt.n)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParsePolicy(%q, %d) succeeded, want error", tt.policy, tt.n)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePolicy(%q, %d): %v", tt.policy, tt.n, err)
			}
			if p.String() != tt.str {
				t.Fatalf("String() = %q, want %q", p.String(), tt.str)
			}
		})
	}
}

func TestPolicyShouldRecycle(t *testing.T) {
	never, _ := ParsePolicy("never", 0)
	each, _ := ParsePolicy("before_each", 0)
	everyThree, _ := ParsePolicy("every_n", 3)

	for n := uint64(1); n <= 9; n++ {
		if never.ShouldRecycle(n) {
			t.Fatalf("never recycled at job %d", n)
		}
		if !each.ShouldRecycle(n) {
			t.Fatalf("before_each skipped job %d", n)
		}
		want := n%3 == 0
		if got := everyThree.ShouldRecycle(n); got != want {
			t.Fatalf("every_n(3) at job %d = %v, want %v", n, got, want)
		}
	}
}
