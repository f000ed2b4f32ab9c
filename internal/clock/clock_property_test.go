package clock

import (
	"testing"
)

// TestVectorClock_Property_MergeDominatesBoth tests that merge(a,b) dominates both inputs
func TestVectorClock_Property_MergeDominatesBoth(t *testing.T) {
	a := New()
	a.Set("s1", 1)
	a.Set("s2", 1)

	b := New()
	b.Set("s1", 2)
	b.Set("s3", 1)

	merged := a.Copy()
	merged.Merge(b)

	if c := merged.Compare(a); c != After && c != Equal {
		t.Errorf("Merged clock should dominate or equal a, got %v", c)
	}
	if c := merged.Compare(b); c != After && c != Equal {
		t.Errorf("Merged clock should dominate or equal b, got %v", c)
	}

	if merged.Get("s1") != 2 {
		t.Errorf("Merged should have s1=max(1,2)=2, got %d", merged.Get("s1"))
	}
	if merged.Get("s2") != 1 {
		t.Errorf("Merged should have s2=1, got %d", merged.Get("s2"))
	}
	if merged.Get("s3") != 1 {
		t.Errorf("Merged should have s3=1, got %d", merged.Get("s3"))
	}
}

// TestVectorClock_Property_CompareAntisymmetric tests that Before/After are symmetric opposites
func TestVectorClock_Property_CompareAntisymmetric(t *testing.T) {
	a := VectorClock{"s1": 1, "s2": 1}
	b := VectorClock{"s1": 2, "s2": 2}

	if a.Compare(b) != Before {
		t.Fatalf("Expected a Before b, got %v", a.Compare(b))
	}
	if b.Compare(a) != After {
		t.Errorf("If a is Before b, then b must be After a, got %v", b.Compare(a))
	}

	x := VectorClock{"s1": 2, "s2": 1}
	y := VectorClock{"s1": 1, "s2": 2}
	if x.Compare(y) != Concurrent || y.Compare(x) != Concurrent {
		t.Errorf("Concurrency must be symmetric, got %v and %v", x.Compare(y), y.Compare(x))
	}
}

// TestVectorClock_Property_CountersNonDecreasing tests that increment and merge never lower a counter
func TestVectorClock_Property_CountersNonDecreasing(t *testing.T) {
	vc := New()
	vc.Set("s1", 5)

	lower := New()
	lower.Set("s1", 2)
	vc.Merge(lower)

	if vc.Get("s1") != 5 {
		t.Errorf("Merge must never decrease a counter, got %d", vc.Get("s1"))
	}

	for i := 0; i < 10; i++ {
		before := vc.Get("s1")
		vc.Increment("s1")
		if vc.Get("s1") != before+1 {
			t.Fatalf("Increment must advance by exactly 1, got %d after %d", vc.Get("s1"), before)
		}
	}
}
