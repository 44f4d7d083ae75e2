package network

import (
	"reflect"
	"testing"

	"github.com/merit-hydro/delineator/internal/merit"
)

func reach(comid, up1, up2, up3, up4 int) merit.RiverReach {
	return merit.RiverReach{COMID: comid, Up1: up1, Up2: up2, Up3: up3, Up4: up4}
}

func TestCollectUpstreamPushOrder(t *testing.T) {
	// Terminal has up1=2, up2=3, up3=4: pushed in that order onto an
	// explicit stack, so they pop (and get recorded) in reverse: 4,3,2.
	rivers := map[int]merit.RiverReach{
		1: reach(1, 2, 3, 4, 0),
		2: reach(2, 0, 0, 0, 0),
		3: reach(3, 0, 0, 0, 0),
		4: reach(4, 0, 0, 0, 0),
	}

	got := CollectUpstream(1, rivers)
	want := []int{1, 4, 3, 2}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("CollectUpstream push order = %v, want %v", got, want)
	}
}

func TestCollectUpstreamCardinalityAndUniqueness(t *testing.T) {
	// Linear chain: 1 -> 2 -> 3 (41000001 -> 41000002 -> 41000003 style, E2E-2).
	rivers := map[int]merit.RiverReach{
		1: reach(1, 2, 0, 0, 0),
		2: reach(2, 3, 0, 0, 0),
		3: reach(3, 0, 0, 0, 0),
	}

	got := CollectUpstream(1, rivers)
	if len(got) != 3 {
		t.Fatalf("expected 3 upstream COMIDs, got %d: %v", len(got), got)
	}
	if got[0] != 1 {
		t.Fatalf("expected terminal COMID first, got %v", got)
	}
	seen := make(map[int]bool)
	for _, c := range got {
		if seen[c] {
			t.Fatalf("COMID %d appears more than once in %v", c, got)
		}
		seen[c] = true
	}
}

func TestCollectUpstreamYBranch(t *testing.T) {
	// E2E-3: terminal with up1, up2 each a headwater tributary.
	rivers := map[int]merit.RiverReach{
		1: reach(1, 2, 3, 0, 0),
		2: reach(2, 0, 0, 0, 0),
		3: reach(3, 0, 0, 0, 0),
	}

	got := CollectUpstream(1, rivers)
	if len(got) != 3 {
		t.Fatalf("expected upstream set size 3, got %d: %v", len(got), got)
	}

	strahler, shreve := StreamOrders(subset(rivers, got))
	if strahler[1] != 2 {
		t.Errorf("Strahler(terminal) = %d, want 2", strahler[1])
	}
	if shreve[1] != 2 {
		t.Errorf("Shreve(terminal) = %d, want 2", shreve[1])
	}
}

func TestStreamOrdersComplexSevenNode(t *testing.T) {
	// E2E-4: two levels of confluence under a single terminal.
	//   T  (up1=A, up2=B)
	//   A  (up1=A1, up2=A2)      B  (up1=B1, up2=B2)
	//   A1, A2, B1, B2           headwaters
	rivers := map[int]merit.RiverReach{
		1: reach(1, 2, 3, 0, 0), // T
		2: reach(2, 4, 5, 0, 0), // A
		3: reach(3, 6, 7, 0, 0), // B
		4: reach(4, 0, 0, 0, 0), // A1
		5: reach(5, 0, 0, 0, 0), // A2
		6: reach(6, 0, 0, 0, 0), // B1
		7: reach(7, 0, 0, 0, 0), // B2
	}

	upstream := CollectUpstream(1, rivers)
	if len(upstream) != 7 {
		t.Fatalf("expected upstream set size 7, got %d: %v", len(upstream), upstream)
	}

	strahler, shreve := StreamOrders(rivers)
	if strahler[1] != 3 {
		t.Errorf("Strahler(terminal) = %d, want 3", strahler[1])
	}
	if shreve[1] != 4 {
		t.Errorf("Shreve(terminal) = %d, want 4", shreve[1])
	}
	for _, headwater := range []int{4, 5, 6, 7} {
		if strahler[headwater] != 1 || shreve[headwater] != 1 {
			t.Errorf("headwater %d: strahler=%d shreve=%d, want 1,1", headwater, strahler[headwater], shreve[headwater])
		}
	}
}

func TestStreamOrdersNeverBelowOne(t *testing.T) {
	rivers := map[int]merit.RiverReach{
		1: reach(1, 0, 0, 0, 0),
	}
	strahler, shreve := StreamOrders(rivers)
	if strahler[1] < 1 || shreve[1] < 1 {
		t.Fatalf("single headwater orders must be >= 1, got strahler=%d shreve=%d", strahler[1], shreve[1])
	}
}

func subset(rivers map[int]merit.RiverReach, comids []int) map[int]merit.RiverReach {
	out := make(map[int]merit.RiverReach, len(comids))
	for _, c := range comids {
		out[c] = rivers[c]
	}
	return out
}
