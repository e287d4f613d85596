package shapefile

import (
	"context"
	"errors"
	"io"

	"github.com/beetlebugorg/geoimport/internal/binio"
	"github.com/beetlebugorg/geoimport/pkg/geodata"
)

const op = "shapefile"

// DecodeOptions configures a single Decode call.
type DecodeOptions struct {
	// Name becomes the collection name.
	Name string

	// Index, when set, drives record traversal. Without it records are read
	// sequentially until a clean end-of-stream.
	Index *Index

	// Size is the .shp byte length, used for progress in sequential mode and to
	// reject records declared past the end of the file. Zero disables both.
	Size int64

	Factory  geodata.Factory
	Progress *geodata.Tracker
}

// decoder holds the state of one Decode call.
type decoder struct {
	c       *binio.Cursor
	hdr     Header
	opts    DecodeOptions
	factory geodata.Factory
	coll    *geodata.Collection
	polygon bool
}

// Decode reads a .shp stream into a collection. A cancelled progress tracker or
// context yields geodata.ErrCancelled and no collection.
func Decode(ctx context.Context, r io.Reader, opts DecodeOptions) (*geodata.Collection, Header, error) {
	d := &decoder{
		c:       binio.NewCursor(r),
		opts:    opts,
		factory: opts.Factory.WithDefaults(),
	}
	if d.opts.Progress == nil {
		d.opts.Progress = geodata.NewTracker(nil)
	}

	hdr, err := readHeader(d.c, op)
	if err != nil {
		return nil, hdr, err
	}
	d.hdr = hdr
	switch {
	case hdr.ShapeType == ShapeMultiPatch:
		return nil, hdr, geodata.Unsupported(op, "MultiPatch geometry is not supported")
	case !hdr.ShapeType.Known():
		return nil, hdr, geodata.Corrupt(op, "unknown shape type %d in header", int32(hdr.ShapeType))
	}

	d.coll = d.factory.Collection(opts.Name)
	if err := d.records(ctx); err != nil {
		return nil, hdr, err
	}
	if d.polygon {
		d.coll.Symbol = geodata.SymbolFilled
	}
	return d.coll, hdr, nil
}

func (d *decoder) records(ctx context.Context) error {
	count := -1
	if d.opts.Index != nil {
		count = d.opts.Index.RecordCount()
	}

	for i := 0; count < 0 || i < count; i++ {
		if err := ctx.Err(); err != nil {
			return geodata.ErrCancelled
		}
		if count >= 0 {
			off := d.opts.Index.Entries[i].Offset
			if err := d.c.SeekTo(off); err != nil {
				if errors.Is(err, binio.ErrBackwardSeek) {
					return geodata.Corrupt(op, "record %d at offset %d lies behind the read position %d", i, off, d.c.Pos())
				}
				return readErr(op, "record", err)
			}
		}

		done, err := d.record(count < 0)
		if err != nil {
			return err
		}
		if done {
			break
		}

		if !d.opts.Progress.Report(d.percent(i, count)) {
			return geodata.ErrCancelled
		}
	}
	return nil
}

func (d *decoder) percent(i, count int) int {
	switch {
	case count > 0:
		return (i + 1) * 100 / count
	case d.opts.Size > 0:
		return int(d.c.Pos() * 100 / d.opts.Size)
	}
	return 0
}

// record decodes one record. It reports done when sequential reading meets a clean
// end-of-stream at a record boundary.
func (d *decoder) record(sequential bool) (done bool, err error) {
	num, err := d.c.Int32BE()
	if err == io.EOF && sequential {
		return true, nil
	}
	if err != nil {
		return false, recordErr(err)
	}
	words, err := d.c.Int32BE()
	if err != nil {
		return false, recordErr(err)
	}
	if words < 2 {
		return false, geodata.Corrupt(op, "record %d declares %d content words, want at least 2", num, words)
	}
	end := d.c.Pos() + int64(words)*2
	if d.opts.Size > 0 && end > d.opts.Size {
		return false, geodata.Corrupt(op, "record %d ends at byte %d, beyond the %d-byte file", num, end, d.opts.Size)
	}

	raw, err := d.c.Int32LE()
	if err != nil {
		return false, recordErr(err)
	}
	st := ShapeType(raw)
	switch {
	case st == ShapeMultiPatch:
		return false, geodata.Unsupported(op, "record %d: MultiPatch geometry is not supported", num)
	case !st.Known():
		return false, geodata.Corrupt(op, "record %d: unknown shape type %d", num, raw)
	case st != ShapeNull && st.Base() != d.hdr.ShapeType.Base():
		return false, geodata.Corrupt(op, "record %d: shape type mismatch, %s in a %s file", num, st, d.hdr.ShapeType)
	}

	rec := record{num: int(num), end: end}
	switch st.Base() {
	case ShapePoint:
		err = d.point(rec)
	case ShapeMultiPoint:
		err = d.multiPoint(rec)
	case ShapePolyLine:
		err = d.poly(rec, false)
	case ShapePolygon:
		err = d.poly(rec, true)
		d.polygon = true
	}
	if err != nil {
		return false, err
	}

	// Z and M values follow the planar payload.
	rest := end - d.c.Pos()
	if rest < 0 {
		return false, geodata.Corrupt(op, "record %d overruns its declared length by %d bytes", num, -rest)
	}
	if err := d.c.Skip(rest); err != nil {
		return false, recordErr(err)
	}
	return false, nil
}

type record struct {
	num int
	end int64
}

func (r record) remaining(c *binio.Cursor) int64 { return r.end - c.Pos() }

func (d *decoder) point(rec record) error {
	x, y, err := d.xy()
	if err != nil {
		return err
	}
	p := d.factory.Point(x, y)
	p.ID, p.HasID = rec.num, true
	d.coll.Add(p)
	return nil
}

func (d *decoder) multiPoint(rec record) error {
	if err := d.c.Skip(32); err != nil { // bounding box
		return recordErr(err)
	}
	n, err := d.c.Int32LE()
	if err != nil {
		return recordErr(err)
	}
	if n < 0 || int64(n)*16 > rec.remaining(d.c) {
		return geodata.Corrupt(op, "record %d: point count %d does not fit the record", rec.num, n)
	}
	for i := int32(0); i < n; i++ {
		if err := d.point(rec); err != nil {
			return err
		}
	}
	return nil
}

// poly builds one Path from all parts of a PolyLine or Polygon record.
func (d *decoder) poly(rec record, closed bool) error {
	if err := d.c.Skip(32); err != nil { // bounding box
		return recordErr(err)
	}
	numParts, err := d.c.Int32LE()
	if err != nil {
		return recordErr(err)
	}
	numPoints, err := d.c.Int32LE()
	if err != nil {
		return recordErr(err)
	}
	if numParts < 0 || numPoints < 0 || int64(numParts)*4+int64(numPoints)*16 > rec.remaining(d.c) {
		return geodata.Corrupt(op, "record %d: %d parts and %d points do not fit the record", rec.num, numParts, numPoints)
	}

	starts := make([]int32, numParts)
	for i := range starts {
		if starts[i], err = d.c.Int32LE(); err != nil {
			return recordErr(err)
		}
		if starts[i] < 0 || starts[i] > numPoints || (i > 0 && starts[i] < starts[i-1]) {
			return geodata.Corrupt(op, "record %d: part %d starts at point %d of %d", rec.num, i, starts[i], numPoints)
		}
	}
	pts := make([][2]float64, numPoints)
	for i := range pts {
		if pts[i][0], pts[i][1], err = d.xy(); err != nil {
			return err
		}
	}

	path := d.factory.Path()
	path.ID, path.HasID = rec.num, true
	for p, start := range starts {
		end := numPoints
		if p+1 < len(starts) {
			end = starts[p+1]
		}
		if end-start < 2 {
			continue
		}
		path.MoveTo(pts[start][0], pts[start][1])
		for _, pt := range pts[start+1 : end] {
			path.LineTo(pt[0], pt[1])
		}
		if closed && end-start > 2 {
			path.Close()
		}
	}
	d.coll.Add(path)
	return nil
}

func (d *decoder) xy() (x, y float64, err error) {
	if x, err = d.c.Float64LE(); err != nil {
		return 0, 0, recordErr(err)
	}
	if y, err = d.c.Float64LE(); err != nil {
		return 0, 0, recordErr(err)
	}
	return x, y, nil
}

// recordErr maps any end-of-stream inside a record to a truncated record.
func recordErr(err error) error {
	return readErr(op, "record", err)
}
