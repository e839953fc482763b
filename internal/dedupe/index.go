package dedupe

import (
	"github.com/dhconnelly/rtreego"
)

// pointExtent is the half-width of the degenerate rectangle used to store
// point coordinates in the R-tree. rtreego requires a positive extent.
const pointExtent = 1e-7

type indexEntry struct {
	rect rtreego.Rect
	idx  int
}

func (e *indexEntry) Bounds() rtreego.Rect { return e.rect }

// Index answers k-nearest-neighbor queries over the working-set station
// coordinates. Neighbor ordering uses planar distance on raw degrees; the
// candidate selector re-filters by true great-circle distance downstream,
// so projection error here is acceptable.
type Index struct {
	tree *rtreego.Rtree
	lons []float64
	lats []float64
	k    int
}

// NewIndex builds the R-tree over all coordinates in a single batch. k is
// fixed for the lifetime of the index.
func NewIndex(lons, lats []float64, k int) *Index {
	tree := rtreego.NewTree(2, 25, 50)
	for i := range lons {
		rect := rtreego.Point{lons[i], lats[i]}.ToRect(pointExtent)
		tree.Insert(&indexEntry{rect: rect, idx: i})
	}
	return &Index{tree: tree, lons: lons, lats: lats, k: k}
}

// Neighbors returns the indices of the k stations nearest to station i,
// excluding i itself. Fewer than k indices are returned when the working
// set is small.
func (ix *Index) Neighbors(i int) []int {
	p := rtreego.Point{ix.lons[i], ix.lats[i]}
	// Ask for one extra: the query point is in the tree too.
	nearest := ix.tree.NearestNeighbors(ix.k+1, p)

	out := make([]int, 0, ix.k)
	for _, sp := range nearest {
		if sp == nil {
			break
		}
		e := sp.(*indexEntry)
		if e.idx == i {
			continue
		}
		out = append(out, e.idx)
		if len(out) == ix.k {
			break
		}
	}
	return out
}
