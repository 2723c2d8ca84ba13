package vec

import "testing"

func TestCross(t *testing.T) {
	n := Vec3{0, 0, 1}
	tan := Vec3{1, 0, 0}
	b := Cross(n, tan)
	if b != (Vec3{0, 1, 0}) {
		t.Errorf("Cross(%v, %v) = %v, want {0 1 0}", n, tan, b)
	}

	// Anticommutative.
	r := Cross(tan, n)
	if r != (Vec3{0, -1, 0}) {
		t.Errorf("Cross(%v, %v) = %v, want {0 -1 0}", tan, n, r)
	}
}

func TestNormalize(t *testing.T) {
	v := Vec3{3, 4, 0}
	n := v.Normalize()
	if n != (Vec3{0.6, 0.8, 0}) {
		t.Errorf("Normalize(%v) = %v", v, n)
	}

	var zero Vec3
	if z := zero.Normalize(); z != (Vec3{}) {
		t.Errorf("Normalize(zero) = %v", z)
	}
}

func TestLengthDot(t *testing.T) {
	v := Vec3{2, 3, 6}
	if l := v.Length(); l != 7 {
		t.Errorf("Length(%v) = %g, want 7", v, l)
	}
	if d := Dot(Vec3{1, 2, 3}, Vec3{4, 5, 6}); d != 32 {
		t.Errorf("Dot = %g, want 32", d)
	}
}

func TestArrayRoundTrip(t *testing.T) {
	a := [3]float32{1.5, -2, 0.25}
	v := VFromA(a)
	if v.Array() != a {
		t.Errorf("Array() = %v, want %v", v.Array(), a)
	}
}
