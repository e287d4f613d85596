// Package worldfile finds and parses the sidecar files that georeference raster images.
//
// A world file holds six numbers, one per line:
//
//	A  pixel size in x
//	D  rotation about y
//	B  rotation about x
//	E  pixel size in y (normally negative)
//	C  x of the upper-left pixel
//	F  y of the upper-left pixel
//
// Only axis-aligned, square-pixel transforms are modelled.
package worldfile

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/beetlebugorg/geoimport/pkg/geodata"
)

const op = "worldfile"

// Georef is an axis-aligned georeference with square pixels.
type Georef struct {
	CellSize float64
	West     float64
	North    float64

	// Source is the name of the world file it was read from.
	Source string
}

// Apply copies the georeference onto im.
func (g Georef) Apply(im *geodata.Image) {
	im.Georeferenced = true
	im.CellSize = g.CellSize
	im.West = g.West
	im.North = g.North
}

// Candidates returns the sibling names tried for an image called name, in order:
// extension plus w, first and last extension letters plus w, full name plus w,
// w alone, then wld. Each is tried in lower and upper case; duplicates are dropped.
func Candidates(name string) []string {
	stem, ext := geodata.SplitExt(name)
	var names []string
	add := func(base string) { names = append(names, base+"w", base+"W") }

	if ext != "" {
		add(stem + "." + ext)
		add(stem + "." + ext[:1] + ext[len(ext)-1:])
	}
	add(name)
	if ext != "" {
		add(stem + ".")
	}
	names = append(names, stem+".wld", stem+".WLD")

	seen := make(map[string]bool, len(names))
	out := names[:0]
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// Resolve looks for a world file beside img. It reports false, with no error, when
// none exists. An existing world file that cannot be used is an error.
func Resolve(img geodata.Resource) (Georef, bool, error) {
	for _, name := range Candidates(img.Name()) {
		wf, ok := img.Sibling(name)
		if !ok {
			continue
		}
		data, err := geodata.ReadAll(wf)
		if err != nil {
			return Georef{}, false, geodata.IOFailure(op+": read "+name, err)
		}
		g, err := Parse(data)
		if err != nil {
			return Georef{}, false, err
		}
		g.Source = name
		return g, true, nil
	}
	return Georef{}, false, nil
}

// Parse decodes the six world-file parameters. Rotated or non-square transforms are
// rejected as unsupported.
func Parse(data []byte) (Georef, error) {
	fields := strings.Fields(string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	if len(fields) < 6 {
		return Georef{}, geodata.Corrupt(op, "want 6 parameters, got %d", len(fields))
	}
	var v [6]float64
	for i := range v {
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return Georef{}, geodata.Corrupt(op, "bad parameter %d: %q", i+1, fields[i])
		}
		v[i] = f
	}

	sizeX, rotY, rotX, sizeY, west, north := v[0], v[1], v[2], v[3], v[4], v[5]
	switch {
	case rotX != 0 || rotY != 0:
		return Georef{}, geodata.Unsupported(op, "rotated transform (%g, %g)", rotY, rotX)
	case math.Abs(sizeX) != math.Abs(sizeY):
		return Georef{}, geodata.Unsupported(op, "non-square pixels %g x %g", math.Abs(sizeX), math.Abs(sizeY))
	case sizeX == 0:
		return Georef{}, geodata.Corrupt(op, "zero pixel size")
	}
	return Georef{CellSize: math.Abs(sizeX), West: west, North: north}, nil
}
