package geodata

import (
	"image"
	"math"
)

// Grid is a dense raster of float32 cells in row-major order. Row 0 is the northern edge.
// NaN cells hold no data.
type Grid struct {
	Cols     uint32
	Rows     uint32
	CellSize float64
	West     float64
	North    float64
	Cells    []float32
}

// NewGrid allocates a grid of cols*rows cells.
func NewGrid(cols, rows uint32, cellSize, west, north float64) (*Grid, error) {
	if cols == 0 || rows == 0 {
		return nil, Corrupt("grid", "invalid dimensions %dx%d", cols, rows)
	}
	if !(cellSize > 0) {
		return nil, Corrupt("grid", "invalid cell size %v", cellSize)
	}
	n := uint64(cols) * uint64(rows)
	if n > math.MaxInt32 {
		return nil, Unsupported("grid", "grid of %dx%d cells is too large", cols, rows)
	}
	return &Grid{
		Cols:     cols,
		Rows:     rows,
		CellSize: cellSize,
		West:     west,
		North:    north,
		Cells:    make([]float32, n),
	}, nil
}

// At returns the value of cell (col, row).
func (g *Grid) At(col, row uint32) float32 {
	return g.Cells[uint64(row)*uint64(g.Cols)+uint64(col)]
}

// Set stores v in cell (col, row).
func (g *Grid) Set(col, row uint32, v float32) {
	g.Cells[uint64(row)*uint64(g.Cols)+uint64(col)] = v
}

// South returns the y coordinate of the last row.
func (g *Grid) South() float64 {
	return g.North - float64(g.Rows-1)*g.CellSize
}

// Bounds returns the box spanned by the cell origins.
func (g *Grid) Bounds() Bounds {
	return EmptyBounds().
		Extend(g.West, g.South()).
		Extend(g.West+float64(g.Cols-1)*g.CellSize, g.North)
}

// Image is a decoded raster image, optionally georeferenced by a world file.
type Image struct {
	Name   string
	Pixels image.Image
	Format string

	Georeferenced bool
	CellSize      float64
	West          float64
	North         float64
}

// Width returns the pixel width.
func (im *Image) Width() int { return im.Pixels.Bounds().Dx() }

// Height returns the pixel height.
func (im *Image) Height() int { return im.Pixels.Bounds().Dy() }

// Bounds returns the georeferenced extent, or an empty box when the image
// carries no georeference.
func (im *Image) Bounds() Bounds {
	if !im.Georeferenced {
		return EmptyBounds()
	}
	return EmptyBounds().
		Extend(im.West, im.North).
		Extend(im.West+float64(im.Width())*im.CellSize, im.North-float64(im.Height())*im.CellSize)
}
