// Package network walks the upstream COMID graph carried by river
// reaches: collecting the full upstream set of a terminal reach, and
// computing Strahler/Shreve stream orders over it (spec.md §4.4, C4).
package network

import "github.com/merit-hydro/delineator/internal/merit"

// CollectUpstream performs an iterative DFS from terminalComid using an
// explicit stack, returning the terminal COMID first followed by every
// upstream COMID exactly once.
//
// The push order is up1, up2, up3, up4 and the stack then pops in
// reverse; spec.md's Open Questions flag that some downstream logic may
// depend on this exact order, so it is preserved rather than normalised
// to, say, a sorted or breadth-first order.
func CollectUpstream(terminalComid int, rivers map[int]merit.RiverReach) []int {
	var result []int
	seen := make(map[int]bool)
	stack := []int{terminalComid}

	for len(stack) > 0 {
		n := len(stack) - 1
		comid := stack[n]
		stack = stack[:n]

		if seen[comid] {
			continue
		}
		seen[comid] = true
		result = append(result, comid)

		reach, ok := rivers[comid]
		if !ok {
			continue
		}
		for _, up := range reach.Upstreams() {
			if !seen[up] {
				stack = append(stack, up)
			}
		}
	}
	return result
}

// StreamOrders computes Strahler and Shreve orders for every COMID in
// riversSubset via Kahn's algorithm over the upstream DAG: headwaters
// (no upstream tributaries) start at order 1, and a confluence combines
// its direct upstream orders once all of them are known.
func StreamOrders(riversSubset map[int]merit.RiverReach) (strahler map[int]int, shreve map[int]int) {
	strahler = make(map[int]int, len(riversSubset))
	shreve = make(map[int]int, len(riversSubset))

	// upstreamsOf[comid] lists comid's direct upstream tributaries that
	// are present in riversSubset; remaining[comid] counts those not yet
	// processed.
	remaining := make(map[int]int, len(riversSubset))
	upstreamsOf := make(map[int][]int, len(riversSubset))
	for comid, reach := range riversSubset {
		ups := reach.Upstreams()
		var present []int
		for _, u := range ups {
			if _, ok := riversSubset[u]; ok {
				present = append(present, u)
			}
		}
		upstreamsOf[comid] = present
		remaining[comid] = len(present)
	}

	var queue []int
	for comid, n := range remaining {
		if n == 0 {
			queue = append(queue, comid)
		}
	}

	// downstreamEdges: for each comid, the set of nodes that list it as
	// an upstream tributary, built once up front for Kahn propagation.
	downstreamEdges := make(map[int][]int, len(riversSubset))
	for comid, ups := range upstreamsOf {
		for _, u := range ups {
			downstreamEdges[u] = append(downstreamEdges[u], comid)
		}
	}

	for len(queue) > 0 {
		comid := queue[0]
		queue = queue[1:]

		ups := upstreamsOf[comid]
		if len(ups) == 0 {
			strahler[comid] = 1
			shreve[comid] = 1
		} else {
			strahler[comid] = strahlerOf(ups, strahler)
			var shreveSum int
			for _, u := range ups {
				shreveSum += shreve[u]
			}
			shreve[comid] = shreveSum
		}

		for _, down := range downstreamEdges[comid] {
			remaining[down]--
			if remaining[down] == 0 {
				queue = append(queue, down)
			}
		}
	}

	return strahler, shreve
}

// strahlerOf applies the Strahler rule to a node's direct upstream
// orders: if the two (or more) highest are tied, the node is one greater
// than that shared maximum; otherwise it equals the maximum.
func strahlerOf(upstreamComids []int, strahler map[int]int) int {
	max1, max2 := 0, 0
	for _, u := range upstreamComids {
		o := strahler[u]
		if o > max1 {
			max1, max2 = o, max1
		} else if o > max2 {
			max2 = o
		}
	}
	if max1 == max2 {
		return max1 + 1
	}
	return max1
}
