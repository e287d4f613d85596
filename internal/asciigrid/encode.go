package asciigrid

import (
	"bufio"
	"io"
	"math"
	"strconv"

	"github.com/beetlebugorg/geoimport/pkg/geodata"
)

// Encode writes g as an ESRI ASCII Grid. NaN cells are written as nodata.
// One grid row is written per line.
func Encode(w io.Writer, g *geodata.Grid, nodata float64) error {
	bw := bufio.NewWriter(w)
	num := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

	span := float64(g.Rows-1) * g.CellSize
	header := [][2]string{
		{"ncols", strconv.FormatUint(uint64(g.Cols), 10)},
		{"nrows", strconv.FormatUint(uint64(g.Rows), 10)},
		{"xllcorner", num(g.West)},
		{"yllcorner", num(southFor(g.North, span))},
		{"cellsize", num(g.CellSize)},
		{"NODATA_value", num(nodata)},
	}
	for _, kv := range header {
		bw.WriteString(kv[0])
		bw.WriteByte(' ')
		bw.WriteString(kv[1])
		bw.WriteByte('\n')
	}

	nd := []byte(num(nodata))
	var buf []byte
	for row := uint32(0); row < g.Rows; row++ {
		for col := uint32(0); col < g.Cols; col++ {
			if col > 0 {
				bw.WriteByte(' ')
			}
			v := g.At(col, row)
			if math.IsNaN(float64(v)) {
				bw.Write(nd)
				continue
			}
			buf = strconv.AppendFloat(buf[:0], float64(v), 'g', -1, 32)
			bw.Write(buf)
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// southFor returns the southern edge the decoder maps back to north exactly,
// nudging by a few ulps where rounding would otherwise drift.
func southFor(north, span float64) float64 {
	s := north - span
	for i := 0; i < 8 && s+span != north; i++ {
		if s+span < north {
			s = math.Nextafter(s, math.Inf(1))
		} else {
			s = math.Nextafter(s, math.Inf(-1))
		}
	}
	return s
}
