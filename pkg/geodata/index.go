package geodata

import (
	"sort"

	"github.com/dhconnelly/rtreego"
)

// Index answers bounding-box queries over the direct children of a Collection.
type Index struct {
	rtree *rtreego.Rtree
	size  int
}

// indexedElement wraps an element for R-tree storage.
type indexedElement struct {
	elem   Element
	order  int
	bounds Bounds
}

// Bounds implements rtreego.Spatial.
func (e *indexedElement) Bounds() rtreego.Rect {
	return toRect(e.bounds)
}

const epsilon = 1e-9

// toRect converts b to an R-tree rectangle. Degenerate boxes (points, axis-parallel
// lines) get a minimum extent because the R-tree rejects zero lengths.
func toRect(b Bounds) rtreego.Rect {
	w := b.MaxX - b.MinX
	h := b.MaxY - b.MinY
	if w < epsilon {
		w = epsilon
	}
	if h < epsilon {
		h = epsilon
	}
	rect, _ := rtreego.NewRect(rtreego.Point{b.MinX, b.MinY}, []float64{w, h})
	return rect
}

// NewIndex indexes the children of c. Children with empty bounds are skipped.
func NewIndex(c *Collection) *Index {
	rtree := rtreego.NewTree(2, 25, 50)
	n := 0
	for i, e := range c.Children() {
		b := e.Bounds()
		if b.IsEmpty() {
			continue
		}
		rtree.Insert(&indexedElement{elem: e, order: i, bounds: b})
		n++
	}
	return &Index{rtree: rtree, size: n}
}

// Size returns the number of indexed elements.
func (ix *Index) Size() int { return ix.size }

// Search returns the children whose bounds intersect b, in collection order.
func (ix *Index) Search(b Bounds) []Element {
	if b.IsEmpty() || ix.size == 0 {
		return nil
	}
	hits := ix.rtree.SearchIntersect(queryRect(b))
	found := make([]*indexedElement, 0, len(hits))
	for _, s := range hits {
		ie := s.(*indexedElement)
		// the padded query also matches boxes up to epsilon outside b
		if ie.bounds.Intersects(b) {
			found = append(found, ie)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].order < found[j].order })
	out := make([]Element, len(found))
	for i, ie := range found {
		out[i] = ie.elem
	}
	return out
}

// queryRect grows b by epsilon on every side. The R-tree treats rectangles that only
// share an edge as disjoint, while Bounds.Intersects counts them.
func queryRect(b Bounds) rtreego.Rect {
	rect, _ := rtreego.NewRect(
		rtreego.Point{b.MinX - epsilon, b.MinY - epsilon},
		[]float64{b.MaxX - b.MinX + 2*epsilon, b.MaxY - b.MinY + 2*epsilon},
	)
	return rect
}
