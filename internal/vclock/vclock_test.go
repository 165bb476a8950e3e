package vclock

import "testing"

func TestLessThanReflexive(t *testing.T) {
	a := Clock{"n1": 3, "n2": 1}
	if a.LessThan(a) {
		t.Fatalf("a < a must be false, got true for %v", a)
	}
}

func TestLessThanCases(t *testing.T) {
	cases := []struct {
		name string
		a, b Clock
		want bool
	}{
		{"empty vs empty", Clock{}, Clock{}, false},
		{"empty vs nonempty", Clock{}, Clock{"n1": 1}, true},
		{"nonempty vs empty", Clock{"n1": 1}, Clock{}, false},
		{"strict subset", Clock{"n1": 2}, Clock{"n1": 2, "n2": 1}, true},
		{"dominates", Clock{"n1": 2, "n2": 1}, Clock{"n1": 2}, false},
		{"equal", Clock{"n1": 2, "n2": 3}, Clock{"n1": 2, "n2": 3}, false},
		{"concurrent", Clock{"n1": 2}, Clock{"n2": 3}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.a.LessThan(tc.b)
			if got != tc.want {
				t.Fatalf("%v.LessThan(%v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestConcurrent(t *testing.T) {
	a := Clock{"n1": 2}
	b := Clock{"n2": 3}
	if !Concurrent(a, b) {
		t.Fatalf("expected %v and %v to be concurrent", a, b)
	}
	c := Clock{"n1": 1}
	if Concurrent(a, c) {
		t.Fatalf("expected %v to dominate %v", a, c)
	}
}

func TestMerge(t *testing.T) {
	a := Clock{"n1": 2}
	b := Clock{"n1": 1, "n2": 5}
	merged := a.Merge(b)
	if merged["n1"] != 2 || merged["n2"] != 5 {
		t.Fatalf("unexpected merge result: %v", merged)
	}
	// Merge must not mutate either operand.
	if len(a) != 1 || len(b) != 2 {
		t.Fatalf("merge mutated an operand: a=%v b=%v", a, b)
	}
}

func TestCopyIsIndependent(t *testing.T) {
	a := Clock{"n1": 1}
	b := a.Copy()
	b.Increment("n1")
	if a["n1"] != 1 {
		t.Fatalf("Copy shares backing map with original")
	}
}
