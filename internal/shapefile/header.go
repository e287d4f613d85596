// Package shapefile decodes ESRI Shapefile geometry (.shp) with its record index (.shx).
//
// The main file starts with a fixed 100-byte header followed by variable-length records.
// Header integers mix byte orders: the magic number and file length are big-endian,
// version and shape type little-endian. Record headers are big-endian; record content
// (shape type and coordinates) is little-endian.
package shapefile

import (
	"errors"
	"fmt"
	"io"

	"github.com/beetlebugorg/geoimport/internal/binio"
	"github.com/beetlebugorg/geoimport/pkg/geodata"
)

const (
	// FileCode is the magic number at offset 0 of .shp and .shx files.
	FileCode = 9994

	// HeaderSize is the size of the fixed file header in bytes.
	HeaderSize = 100

	// Version is the only format version ESRI has published.
	Version = 1000
)

// ShapeType is the geometry type code stored in headers and records.
type ShapeType int32

const (
	ShapeNull        ShapeType = 0
	ShapePoint       ShapeType = 1
	ShapePolyLine    ShapeType = 3
	ShapePolygon     ShapeType = 5
	ShapeMultiPoint  ShapeType = 8
	ShapePointZ      ShapeType = 11
	ShapePolyLineZ   ShapeType = 13
	ShapePolygonZ    ShapeType = 15
	ShapeMultiPointZ ShapeType = 18
	ShapePointM      ShapeType = 21
	ShapePolyLineM   ShapeType = 23
	ShapePolygonM    ShapeType = 25
	ShapeMultiPointM ShapeType = 28
	ShapeMultiPatch  ShapeType = 31
)

// Base maps Z and M variants to their planar type. Unknown codes map to themselves.
func (t ShapeType) Base() ShapeType {
	switch t {
	case ShapePoint, ShapePointZ, ShapePointM:
		return ShapePoint
	case ShapePolyLine, ShapePolyLineZ, ShapePolyLineM:
		return ShapePolyLine
	case ShapePolygon, ShapePolygonZ, ShapePolygonM:
		return ShapePolygon
	case ShapeMultiPoint, ShapeMultiPointZ, ShapeMultiPointM:
		return ShapeMultiPoint
	default:
		return t
	}
}

// Known reports whether t is one of the published shape type codes.
func (t ShapeType) Known() bool {
	switch t.Base() {
	case ShapeNull, ShapePoint, ShapePolyLine, ShapePolygon, ShapeMultiPoint, ShapeMultiPatch:
		return true
	}
	return false
}

var shapeTypeNames = map[ShapeType]string{
	ShapeNull: "Null", ShapePoint: "Point", ShapePolyLine: "PolyLine", ShapePolygon: "Polygon",
	ShapeMultiPoint: "MultiPoint", ShapePointZ: "PointZ", ShapePolyLineZ: "PolyLineZ",
	ShapePolygonZ: "PolygonZ", ShapeMultiPointZ: "MultiPointZ", ShapePointM: "PointM",
	ShapePolyLineM: "PolyLineM", ShapePolygonM: "PolygonM", ShapeMultiPointM: "MultiPointM",
	ShapeMultiPatch: "MultiPatch",
}

func (t ShapeType) String() string {
	if n, ok := shapeTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("ShapeType(%d)", int32(t))
}

// Header is the fixed 100-byte header shared by .shp and .shx files.
type Header struct {
	FileLength int32 // in 16-bit words, header included
	Version    int32
	ShapeType  ShapeType
	Bounds     geodata.Bounds
	ZMin, ZMax float64
	MMin, MMax float64
}

// readHeader decodes the file header at the cursor's current position.
//
// Layout:
//
//	0   int32 BE  file code (9994)
//	4   5×int32   unused
//	24  int32 BE  file length in 16-bit words
//	28  int32 LE  version
//	32  int32 LE  shape type
//	36  8×f64 LE  Xmin, Ymin, Xmax, Ymax, Zmin, Zmax, Mmin, Mmax
func readHeader(c *binio.Cursor, op string) (Header, error) {
	var h Header
	code, err := c.Int32BE()
	if err != nil {
		return h, readErr(op, "header", err)
	}
	if code != FileCode {
		return h, geodata.Corrupt(op, "bad file code %d, want %d", code, FileCode)
	}
	if err := c.Skip(20); err != nil {
		return h, readErr(op, "header", err)
	}
	if h.FileLength, err = c.Int32BE(); err != nil {
		return h, readErr(op, "header", err)
	}
	if h.Version, err = c.Int32LE(); err != nil {
		return h, readErr(op, "header", err)
	}
	st, err := c.Int32LE()
	if err != nil {
		return h, readErr(op, "header", err)
	}
	h.ShapeType = ShapeType(st)

	var box [8]float64
	for i := range box {
		if box[i], err = c.Float64LE(); err != nil {
			return h, readErr(op, "header", err)
		}
	}
	h.Bounds = geodata.Bounds{MinX: box[0], MinY: box[1], MaxX: box[2], MaxY: box[3]}
	h.ZMin, h.ZMax, h.MMin, h.MMax = box[4], box[5], box[6], box[7]
	return h, nil
}

// readErr classifies a read failure: running out of bytes is corruption, anything
// else is an I/O failure.
func readErr(op, what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return geodata.Corrupt(op, "truncated %s", what)
	}
	return geodata.IOFailure(op+": read "+what, err)
}
