package locator

import "testing"

func TestIsSyntacticallyValid(t *testing.T) {
	testCases := []struct {
		code string
		want bool
	}{
		{"42", true},
		{"11", true},
		{"99", true},
		{"40", false}, // zero digit
		{"04", false}, // zero digit
		{"100", false}, // wrong length
		{"4", false},
		{"ab", false},
	}

	for _, tc := range testCases {
		t.Run(tc.code, func(t *testing.T) {
			if got := isSyntacticallyValid(tc.code); got != tc.want {
				t.Errorf("isSyntacticallyValid(%q) = %v, want %v", tc.code, got, tc.want)
			}
		})
	}
}

func TestClamp(t *testing.T) {
	testCases := []struct {
		name         string
		v, lo, hi    float64
		expected     float64
	}{
		{"within range", 45, -90, 90, 45},
		{"below range", -100, -90, 90, -90},
		{"above range", 100, -90, 90, 90},
		{"at boundary", 180, -180, 180, 180},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := clamp(tc.v, tc.lo, tc.hi); got != tc.expected {
				t.Errorf("clamp(%v, %v, %v) = %v, want %v", tc.v, tc.lo, tc.hi, got, tc.expected)
			}
		})
	}
}

func TestValidateWithoutLoadedLayerChecksSyntaxOnly(t *testing.T) {
	l := New(t.TempDir(), nil)
	// No basin layer exists on disk; AllBasinCodes will fail, so Validate
	// falls back to syntax-only checking.
	if err := l.Validate([]string{"42", "11"}); err != nil {
		t.Errorf("expected syntactically valid codes to pass, got %v", err)
	}
	if err := l.Validate([]string{"40"}); err == nil {
		t.Errorf("expected code with a zero digit to fail validation")
	}
	if err := l.Validate([]string{"100"}); err == nil {
		t.Errorf("expected 3-digit code to fail validation")
	}
}

func TestBasinsForBBoxRejectsInvertedBounds(t *testing.T) {
	l := New(t.TempDir(), nil)
	_, err := l.BasinsForBBox(10, 10, -10, -10)
	if err == nil {
		t.Fatalf("expected inverted bounds to fail")
	}
}
