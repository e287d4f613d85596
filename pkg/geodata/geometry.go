// Package geodata defines the in-memory model produced by geoimport decoders.
//
// Vector data is decoded into a Collection of Points, Paths and nested Collections.
// Raster data is decoded into a Grid of float32 cells or a georeferenced Image.
// Every value is created fresh per decode call and handed to the caller once decoding
// has finished; decoders never hand out partially built values.
package geodata

import (
	"math"
)

// Bounds is an axis-aligned bounding box in source coordinates.
type Bounds struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// EmptyBounds returns a bounding box that contains nothing. Extending it with a point
// yields the degenerate box around that point.
func EmptyBounds() Bounds {
	return Bounds{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
}

// IsEmpty reports whether b contains no point.
func (b Bounds) IsEmpty() bool {
	return b.MinX > b.MaxX || b.MinY > b.MaxY
}

// Extend returns b grown to contain (x, y).
func (b Bounds) Extend(x, y float64) Bounds {
	b.MinX = math.Min(b.MinX, x)
	b.MinY = math.Min(b.MinY, y)
	b.MaxX = math.Max(b.MaxX, x)
	b.MaxY = math.Max(b.MaxY, y)
	return b
}

// Union returns the smallest box containing both b and o.
func (b Bounds) Union(o Bounds) Bounds {
	if o.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return o
	}
	return b.Extend(o.MinX, o.MinY).Extend(o.MaxX, o.MaxY)
}

// Intersects reports whether b and o overlap. Touching edges count as overlap.
func (b Bounds) Intersects(o Bounds) bool {
	if b.IsEmpty() || o.IsEmpty() {
		return false
	}
	return b.MinX <= o.MaxX && o.MinX <= b.MaxX &&
		b.MinY <= o.MaxY && o.MinY <= b.MaxY
}

// Element is a child of a Collection: a *Point, a *Path or a nested *Collection.
type Element interface {
	Bounds() Bounds
	element()
}

// Point is a single named location.
type Point struct {
	X, Y  float64
	Name  string
	ID    int
	HasID bool
}

// Bounds returns the degenerate box around the point.
func (p *Point) Bounds() Bounds { return EmptyBounds().Extend(p.X, p.Y) }

func (*Point) element() {}

// Op is a path drawing instruction.
type Op uint8

const (
	OpMoveTo Op = iota + 1
	OpLineTo
	OpClose
)

// String returns the instruction name.
func (o Op) String() string {
	switch o {
	case OpMoveTo:
		return "MoveTo"
	case OpLineTo:
		return "LineTo"
	case OpClose:
		return "ClosePath"
	default:
		return "Op(?)"
	}
}

// Instruction is one step of a Path. X and Y are zero for OpClose.
type Instruction struct {
	Op   Op
	X, Y float64
}

// Path is an ordered sequence of MoveTo, LineTo and ClosePath instructions.
// A path may hold several subpaths, each starting with a MoveTo.
type Path struct {
	Instructions []Instruction
	Name         string
	ID           int
	HasID        bool
}

// MoveTo starts a new subpath at (x, y).
func (p *Path) MoveTo(x, y float64) {
	p.Instructions = append(p.Instructions, Instruction{Op: OpMoveTo, X: x, Y: y})
}

// LineTo extends the current subpath to (x, y).
func (p *Path) LineTo(x, y float64) {
	p.Instructions = append(p.Instructions, Instruction{Op: OpLineTo, X: x, Y: y})
}

// Close closes the current subpath. Closing an empty path or an already closed
// subpath does nothing.
func (p *Path) Close() {
	n := len(p.Instructions)
	if n == 0 || p.Instructions[n-1].Op == OpClose {
		return
	}
	p.Instructions = append(p.Instructions, Instruction{Op: OpClose})
}

// Len returns the number of instructions.
func (p *Path) Len() int { return len(p.Instructions) }

// Subpath is one MoveTo-delimited run of a Path.
type Subpath struct {
	Points [][2]float64
	Closed bool
}

// Subpaths splits the path at each MoveTo.
func (p *Path) Subpaths() []Subpath {
	var out []Subpath
	for _, in := range p.Instructions {
		switch in.Op {
		case OpMoveTo:
			out = append(out, Subpath{Points: [][2]float64{{in.X, in.Y}}})
		case OpLineTo:
			if len(out) == 0 {
				out = append(out, Subpath{})
			}
			cur := &out[len(out)-1]
			cur.Points = append(cur.Points, [2]float64{in.X, in.Y})
		case OpClose:
			if len(out) > 0 {
				out[len(out)-1].Closed = true
			}
		}
	}
	return out
}

// Bounds returns the box around all path vertices.
func (p *Path) Bounds() Bounds {
	b := EmptyBounds()
	for _, in := range p.Instructions {
		if in.Op != OpClose {
			b = b.Extend(in.X, in.Y)
		}
	}
	return b
}

func (*Path) element() {}

// Symbol is an opaque rendering hint attached to a Collection.
type Symbol int

const (
	SymbolNone Symbol = iota
	// SymbolFilled marks collections holding polygon features.
	SymbolFilled
)

// Collection is an ordered, named container of Elements.
type Collection struct {
	Name   string
	ID     int
	HasID  bool
	Symbol Symbol

	children []Element
}

// NewCollection returns an empty collection.
func NewCollection(name string) *Collection {
	return &Collection{Name: name}
}

// Add appends e. Nil elements and paths without instructions are ignored.
func (c *Collection) Add(e Element) {
	switch v := e.(type) {
	case nil:
		return
	case *Path:
		if v == nil || v.Len() == 0 {
			return
		}
	case *Point:
		if v == nil {
			return
		}
	case *Collection:
		if v == nil {
			return
		}
	}
	c.children = append(c.children, e)
}

// Len returns the number of direct children.
func (c *Collection) Len() int { return len(c.children) }

// Children returns the direct children in insertion order. The slice must not be modified.
func (c *Collection) Children() []Element { return c.children }

// At returns the i-th child.
func (c *Collection) At(i int) Element { return c.children[i] }

// Bounds returns the union of all child bounds.
func (c *Collection) Bounds() Bounds {
	b := EmptyBounds()
	for _, e := range c.children {
		b = b.Union(e.Bounds())
	}
	return b
}

func (*Collection) element() {}

// Walk calls fn for every element below c in depth-first insertion order.
// Walking stops early when fn returns false.
func (c *Collection) Walk(fn func(Element) bool) bool {
	for _, e := range c.children {
		if !fn(e) {
			return false
		}
		if sub, ok := e.(*Collection); ok {
			if !sub.Walk(fn) {
				return false
			}
		}
	}
	return true
}
