package asciigrid

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/geoimport/pkg/geodata"
)

const sample = `ncols 4
nrows 2
xllcorner 10.0
yllcorner 50.0
cellsize 0.5
NODATA_value -9999
1 2 3 4
5 6 -9999 8
`

func TestParseHeader(t *testing.T) {
	h, first, err := ParseHeader(bufio.NewReader(strings.NewReader(sample)))
	require.NoError(t, err)
	assert.EqualValues(t, 4, h.Cols)
	assert.EqualValues(t, 2, h.Rows)
	assert.Equal(t, 0.5, h.CellSize)
	assert.Equal(t, 10.0, h.West)
	assert.Equal(t, 50.5, h.North)
	assert.Equal(t, 50.0, h.South())
	assert.True(t, h.HasNoData)
	assert.Equal(t, -9999.0, h.NoData)
	assert.Equal(t, "1 2 3 4\n", first)
}

func TestParseHeader_Variants(t *testing.T) {
	text := "NCOLS,3\nNRows;1\n\nXLLCENTER 1\nyllcenter 2\nCellSize 1.0\n7 8 9"
	h, first, err := ParseHeader(bufio.NewReader(strings.NewReader(text)))
	require.NoError(t, err)
	assert.EqualValues(t, 3, h.Cols)
	assert.EqualValues(t, 1, h.Rows)
	assert.True(t, h.Center)
	assert.False(t, h.HasNoData)
	assert.Equal(t, 2.0, h.North)
	assert.Equal(t, "7 8 9", first)

	h, first, err = ParseHeader(bufio.NewReader(strings.NewReader("ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\nnodata 0")))
	require.NoError(t, err)
	assert.True(t, h.HasNoData)
	assert.Empty(t, first)
}

func TestParseHeader_Invalid(t *testing.T) {
	tests := map[string]string{
		"zero cols":      "ncols 0\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\n1\n",
		"missing rows":   "ncols 1\nxllcorner 0\nyllcorner 0\ncellsize 1\n1\n",
		"negative cell":  "ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize -1\n1\n",
		"missing corner": "ncols 1\nnrows 1\nxllcorner 0\ncellsize 1\n1\n",
		"bad count":      "ncols 1.5\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\n1\n",
		"bad real":       "ncols 1\nnrows 1\nxllcorner abc\nyllcorner 0\ncellsize 1\n1\n",
		"key only":       "ncols\n",
		"empty":          "",
	}
	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := ParseHeader(bufio.NewReader(strings.NewReader(text)))
			assert.Equal(t, geodata.KindCorruptData, geodata.KindOf(err), fmt.Sprint(err))
		})
	}
}

func TestDecode(t *testing.T) {
	var seen []int
	progress := geodata.ProgressFunc(func(p int) bool {
		seen = append(seen, p)
		return true
	})
	g, err := Decode(context.Background(), strings.NewReader(sample), progress, Options{QueueSize: 1})
	require.NoError(t, err)

	assert.EqualValues(t, 4, g.Cols)
	assert.EqualValues(t, 2, g.Rows)
	assert.Equal(t, float32(6), g.At(1, 1))
	assert.True(t, math.IsNaN(float64(g.At(2, 1))))
	assert.Equal(t, []int{50, 100}, seen)
}

func TestDecode_LinesNeedNotMatchRows(t *testing.T) {
	text := "ncols 3\nnrows 2\nxllcorner 0\nyllcorner 0\ncellsize 1\n1 2\n3 4 5 6\n\n"
	g, err := Decode(context.Background(), strings.NewReader(text), nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, g.Cells)
}

func TestDecode_CountMismatch(t *testing.T) {
	head := "ncols 3\nnrows 2\nxllcorner 0\nyllcorner 0\ncellsize 1\n"

	_, err := Decode(context.Background(), strings.NewReader(head+"1 2 3\n4 5\n"), nil, Options{})
	assert.Equal(t, geodata.KindCorruptData, geodata.KindOf(err))
	assert.Contains(t, err.Error(), "incomplete grid")

	_, err = Decode(context.Background(), strings.NewReader(head+"1 2 3\n4 5 6 7\n"), nil, Options{})
	assert.Equal(t, geodata.KindCorruptData, geodata.KindOf(err))
	assert.Contains(t, err.Error(), "too many values")

	_, err = Decode(context.Background(), strings.NewReader(head+"1 2 3\n4 x 6\n"), nil, Options{})
	assert.Equal(t, geodata.KindCorruptData, geodata.KindOf(err))
}

func TestDecode_CancelOnFirstReport(t *testing.T) {
	calls := 0
	progress := geodata.ProgressFunc(func(int) bool {
		calls++
		return false
	})
	var body strings.Builder
	body.WriteString("ncols 10\nnrows 500\nxllcorner 0\nyllcorner 0\ncellsize 1\n")
	for i := 0; i < 500; i++ {
		body.WriteString("1 2 3 4 5 6 7 8 9 10\n")
	}

	g, err := Decode(context.Background(), strings.NewReader(body.String()), progress, Options{QueueSize: 2})
	assert.Nil(t, g)
	assert.ErrorIs(t, err, geodata.ErrCancelled)
	assert.Equal(t, geodata.KindCancelled, geodata.KindOf(err))
	assert.Equal(t, 1, calls)
}

func TestDecode_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g, err := Decode(ctx, strings.NewReader(sample), nil, Options{})
	assert.Nil(t, g)
	assert.ErrorIs(t, err, geodata.ErrCancelled)
}

func TestDecode_ReadFailure(t *testing.T) {
	r := iotest.TimeoutReader(strings.NewReader(sample)) // second read fails
	g, err := Decode(context.Background(), &smallReader{r: r, n: len(sample) - 4}, nil, Options{})
	assert.Nil(t, g)
	assert.Equal(t, geodata.KindIOFailure, geodata.KindOf(err))
	assert.True(t, errors.Is(err, iotest.ErrTimeout))
}

// smallReader caps the first read at n bytes so the failure lands in the body.
type smallReader struct {
	r    io.Reader
	n    int
	done bool
}

func (s *smallReader) Read(p []byte) (int, error) {
	if !s.done && len(p) > s.n {
		p = p[:s.n]
	}
	s.done = true
	return s.r.Read(p)
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const nodata = -9999.0

	for i := 0; i < 40; i++ {
		cols := uint32(1 + rng.Intn(50))
		rows := uint32(1 + rng.Intn(50))
		cellSize := float64(1+rng.Intn(64)) / 8
		west := float64(rng.Intn(2000)-1000) / 4
		north := float64(rng.Intn(2000)-1000) / 4

		g, err := geodata.NewGrid(cols, rows, cellSize, west, north)
		require.NoError(t, err)
		for j := range g.Cells {
			if rng.Intn(10) == 0 {
				g.Cells[j] = float32(math.NaN())
				continue
			}
			g.Cells[j] = float32(rng.NormFloat64() * 1000)
		}

		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, g, nodata))
		got, err := Decode(context.Background(), &buf, nil, Options{})
		require.NoError(t, err)

		assert.Equal(t, g.Cols, got.Cols)
		assert.Equal(t, g.Rows, got.Rows)
		assert.Equal(t, g.CellSize, got.CellSize)
		assert.Equal(t, g.West, got.West)
		assert.Equal(t, g.North, got.North)
		for j := range g.Cells {
			want, have := g.Cells[j], got.Cells[j]
			if math.IsNaN(float64(want)) {
				assert.True(t, math.IsNaN(float64(have)), "cell %d", j)
				continue
			}
			require.Equal(t, want, have, "cell %d", j)
		}
	}
}

func TestSouthFor(t *testing.T) {
	for _, tc := range []struct{ north, span float64 }{
		{50.5, 0.5}, {0.3, 0.1 * 7}, {-12.345678, 3.3}, {1e6 + 0.1, 0.7},
	} {
		s := southFor(tc.north, tc.span)
		assert.Equal(t, tc.north, s+tc.span)
	}
}
