package asciigrid

import (
	"bufio"
	"context"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/beetlebugorg/geoimport/pkg/geodata"
)

// DefaultQueueSize is the number of lines buffered between reader and parser.
const DefaultQueueSize = 64

// Options configures Decode.
type Options struct {
	// QueueSize bounds the line queue. Zero means DefaultQueueSize.
	QueueSize int
}

// line is one queued physical line. eof marks the end of the stream and never
// carries text.
type line struct {
	text string
	eof  bool
}

// Decode parses a complete grid from r. Lines are read by one goroutine and parsed
// into cells by another; the two are coupled by a bounded queue. A progress report
// that returns false, or a cancelled ctx, yields geodata.ErrCancelled and no grid.
func Decode(ctx context.Context, r io.Reader, progress geodata.Progress, opts Options) (*geodata.Grid, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	hdr, first, err := ParseHeader(br)
	if err != nil {
		return nil, err
	}
	grid, err := geodata.NewGrid(hdr.Cols, hdr.Rows, hdr.CellSize, hdr.West, hdr.North)
	if err != nil {
		return nil, err
	}

	if ctx.Err() != nil {
		return nil, geodata.ErrCancelled
	}

	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	queue := make(chan line, size)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return produce(gctx, br, first, queue)
	})
	g.Go(func() error {
		c := &consumer{
			hdr:     hdr,
			grid:    grid,
			tracker: geodata.NewTracker(progress),
			nodata:  float32(hdr.NoData),
		}
		return c.run(gctx, queue)
	})

	// Both roles have returned once Wait does; grid is safe to hand out.
	if err := g.Wait(); err != nil {
		if errors.Is(err, geodata.ErrCancelled) || ctx.Err() != nil {
			return nil, geodata.ErrCancelled
		}
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, geodata.ErrCancelled
	}
	return grid, nil
}

// produce enqueues the header's trailing data line, then every remaining line of br,
// then the end-of-stream marker.
func produce(ctx context.Context, br *bufio.Reader, first string, queue chan<- line) error {
	send := func(l line) error {
		select {
		case queue <- l:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if first != "" {
		if err := send(line{text: first}); err != nil {
			return err
		}
	}
	for {
		text, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return geodata.IOFailure(op+": read", err)
		}
		if text != "" {
			if serr := send(line{text: text}); serr != nil {
				return serr
			}
		}
		if err != nil {
			return send(line{eof: true})
		}
	}
}

type consumer struct {
	hdr     Header
	grid    *geodata.Grid
	tracker *geodata.Tracker
	nodata  float32
	counter uint64
}

func (c *consumer) run(ctx context.Context, queue <-chan line) error {
	total := uint64(c.hdr.Cols) * uint64(c.hdr.Rows)
	for {
		var l line
		select {
		case l = <-queue:
		case <-ctx.Done():
			return ctx.Err()
		}

		if l.eof {
			if c.counter != total {
				return geodata.Corrupt(op, "incomplete grid: %d of %d values", c.counter, total)
			}
			return nil
		}

		for _, tok := range strings.Fields(l.text) {
			if c.counter == total {
				return geodata.Corrupt(op, "too many values: more than %d", total)
			}
			v, err := strconv.ParseFloat(tok, 32)
			if err != nil {
				return geodata.Corrupt(op, "bad value %q at cell %d", tok, c.counter)
			}
			cell := float32(v)
			if c.hdr.HasNoData && cell == c.nodata {
				cell = float32(math.NaN())
			}
			c.grid.Cells[c.counter] = cell
			c.counter++
		}

		if !c.tracker.Report(c.percent()) {
			return geodata.ErrCancelled
		}
	}
}

// percent is floor((row+1)/rows*100) for the row of the last filled cell.
func (c *consumer) percent() int {
	if c.counter == 0 {
		return 0
	}
	row := (c.counter - 1) / uint64(c.hdr.Cols)
	return int((row + 1) * 100 / uint64(c.hdr.Rows))
}
