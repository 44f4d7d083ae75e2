package country

import "testing"

func TestNoneAlwaysUnknown(t *testing.T) {
	n := None{}
	got, err := n.Country(51.5, -0.1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != Unknown {
		t.Fatalf("expected %q, got %q", Unknown, got)
	}
}

func TestStaticHitAndMiss(t *testing.T) {
	s := Static{Entries: []StaticEntry{
		{Name: "Freedonia", MinLat: 10, MaxLat: 20, MinLng: 30, MaxLng: 40},
		{Name: "Sylvania", MinLat: -5, MaxLat: 5, MinLng: -5, MaxLng: 5},
	}}

	tests := []struct {
		name     string
		lat, lng float64
		want     string
	}{
		{"inside first entry", 15, 35, "Freedonia"},
		{"inside second entry", 0, 0, "Sylvania"},
		{"on boundary is inside", 10, 30, "Freedonia"},
		{"outside all entries", 60, 60, Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Country(tt.lat, tt.lng)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Country(%v,%v) = %q, want %q", tt.lat, tt.lng, got, tt.want)
			}
		})
	}
}

func TestStaticFirstMatchWinsOnOverlap(t *testing.T) {
	s := Static{Entries: []StaticEntry{
		{Name: "A", MinLat: 0, MaxLat: 10, MinLng: 0, MaxLng: 10},
		{Name: "B", MinLat: 5, MaxLat: 15, MinLng: 5, MaxLng: 15},
	}}
	got, err := s.Country(7, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "A" {
		t.Fatalf("expected first overlapping entry to win, got %q", got)
	}
}
