package raster

// D8 direction codes, MERIT's ESRI encoding (spec.md glossary): the value
// at a pixel names which of its 8 neighbours it drains *into*.
const (
	DirE  uint8 = 1
	DirSE uint8 = 2
	DirS  uint8 = 4
	DirSW uint8 = 8
	DirW  uint8 = 16
	DirNW uint8 = 32
	DirN  uint8 = 64
	DirNE uint8 = 128
)

// d8Offsets maps each direction code to its (dCol, dRow) neighbour
// offset. Row increases southward (raster convention), matching the
// compass directions directly: e.g. DirS increases row, DirN decreases it.
var d8Offsets = map[uint8][2]int{
	DirE:  {1, 0},
	DirSE: {1, 1},
	DirS:  {0, 1},
	DirSW: {-1, 1},
	DirW:  {-1, 0},
	DirNW: {-1, -1},
	DirN:  {0, -1},
	DirNE: {1, -1},
}

// minQueueCapacity is a sizing hint for the flood-fill's explicit queue,
// matching spec.md §4.5 step 4's "generous enough... e.g., ≥ 15k"; the
// queue itself is an unbounded slice, so this only avoids reallocation
// churn on continental-scale catchments.
const minQueueCapacity = 15000

// FloodFillUpstream performs the reverse D8 traversal from (snapCol,
// snapRow): a neighbour n is included when n's own flow-direction code
// points from n toward a pixel already in the included set. Returns a
// binary mask over w's grid.
func FloodFillUpstream(flowdir []uint8, w Window, snapCol, snapRow int) []uint8 {
	included := make([]uint8, w.Cols*w.Rows)
	if !w.inBounds(snapCol, snapRow) {
		return included
	}

	queue := make([][2]int, 0, minQueueCapacity)
	queue = append(queue, [2]int{snapCol, snapRow})
	included[w.index(snapCol, snapRow)] = 1

	for len(queue) > 0 {
		cur := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		col, row := cur[0], cur[1]

		for _, off := range d8Offsets {
			nCol, nRow := col-off[0], row-off[1]
			if !w.inBounds(nCol, nRow) {
				continue
			}
			idx := w.index(nCol, nRow)
			if included[idx] != 0 {
				continue
			}
			dir := flowdir[idx]
			if dir == 0 {
				continue
			}
			off2, ok := d8Offsets[dir]
			if !ok {
				continue
			}
			// n's flow direction must point at (col, row), the pixel we
			// expanded from.
			if nCol+off2[0] == col && nRow+off2[1] == row {
				included[idx] = 1
				queue = append(queue, [2]int{nCol, nRow})
			}
		}
	}
	return included
}
