// Package asciigrid decodes and encodes ESRI ASCII Grid rasters.
//
// A grid file is a short key/value header followed by rows*cols numeric tokens in
// row-major order, row 0 being the northern edge:
//
//	ncols         4
//	nrows         2
//	xllcorner     10.0
//	yllcorner     50.0
//	cellsize      0.5
//	NODATA_value  -9999
//	1 2 3 4
//	5 6 -9999 8
package asciigrid

import (
	"bufio"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/beetlebugorg/geoimport/pkg/geodata"
)

const op = "asciigrid"

// Header is the decoded grid prologue.
type Header struct {
	Cols      uint32
	Rows      uint32
	CellSize  float64
	West      float64
	North     float64
	NoData    float64
	HasNoData bool

	// Center is set when the origin was given with xllcenter/yllcenter.
	Center bool
}

// South returns the y coordinate of the last row.
func (h Header) South() float64 {
	return h.North - float64(h.Rows-1)*h.CellSize
}

func splitHeader(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';'
	})
}

// ParseHeader reads header lines from r up to the first line that is not a header
// key. That line is returned as the first data line; it is empty when the stream
// ended inside the header.
func ParseHeader(r *bufio.Reader) (Header, string, error) {
	var (
		h        Header
		xll, yll float64
		haveX    bool
		haveY    bool
	)

	for {
		line, rerr := r.ReadString('\n')
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			return h, "", geodata.IOFailure(op+": read header", rerr)
		}
		tokens := splitHeader(line)
		if len(tokens) > 0 {
			key := strings.ToLower(tokens[0])
			if !isKey(key) {
				return h.finish(xll, yll, haveX, haveY, line)
			}
			if len(tokens) < 2 {
				return h, "", geodata.Corrupt(op, "header key %q has no value", tokens[0])
			}

			var err error
			switch val := tokens[1]; key {
			case "ncols":
				h.Cols, err = parseCount(key, val)
			case "nrows":
				h.Rows, err = parseCount(key, val)
			case "xllcorner", "xllcenter":
				xll, err = parseReal(key, val)
				haveX = true
				h.Center = key == "xllcenter"
			case "yllcorner", "yllcenter":
				yll, err = parseReal(key, val)
				haveY = true
			case "cellsize":
				h.CellSize, err = parseReal(key, val)
			case "nodata_value", "nodata":
				h.NoData, err = parseReal(key, val)
				h.HasNoData = true
			}
			if err != nil {
				return h, "", err
			}
		}
		if rerr != nil {
			return h.finish(xll, yll, haveX, haveY, "")
		}
	}
}

func (h Header) finish(xll, yll float64, haveX, haveY bool, first string) (Header, string, error) {
	switch {
	case h.Cols == 0 || h.Rows == 0:
		return h, "", geodata.Corrupt(op, "invalid grid dimensions %dx%d", h.Cols, h.Rows)
	case !(h.CellSize > 0):
		return h, "", geodata.Corrupt(op, "invalid cell size %v", h.CellSize)
	case !haveX || !haveY:
		return h, "", geodata.Corrupt(op, "missing lower-left corner")
	}
	h.West = xll
	h.North = yll + float64(h.Rows-1)*h.CellSize
	return h, first, nil
}

func isKey(key string) bool {
	switch key {
	case "ncols", "nrows", "xllcorner", "xllcenter", "yllcorner", "yllcenter",
		"cellsize", "nodata_value", "nodata":
		return true
	}
	return false
}

func parseReal(key, val string) (float64, error) {
	v, err := strconv.ParseFloat(val, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, geodata.Corrupt(op, "bad %s value %q", key, val)
	}
	return v, nil
}

// parseCount accepts integral values, including the "100.0" some writers emit.
func parseCount(key, val string) (uint32, error) {
	v, err := parseReal(key, val)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > math.MaxUint32 || v != math.Trunc(v) {
		return 0, geodata.Corrupt(op, "bad %s value %q", key, val)
	}
	return uint32(v), nil
}
