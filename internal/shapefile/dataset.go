package shapefile

import (
	"context"
	"io"
	"strings"

	"github.com/beetlebugorg/geoimport/internal/binio"
	"github.com/beetlebugorg/geoimport/internal/dbf"
	"github.com/beetlebugorg/geoimport/pkg/geodata"
)

// Options configures Load.
type Options struct {
	Factory  geodata.Factory
	Progress geodata.Progress
}

// Canonical resolves any member of a shapefile set (.shp, .shx or .dbf in any case)
// to its .shp file and checks the file code. Other resources yield geodata.ErrNoMatch.
func Canonical(r geodata.Resource) (geodata.Resource, error) {
	stem, ext := geodata.SplitExt(r.Name())
	var shp geodata.Resource
	switch strings.ToLower(ext) {
	case "shp":
		shp = r
	case "shx", "dbf":
		s, ok := geodata.SiblingAnyCase(r, stem, "shp", "SHP", "Shp")
		if !ok {
			return nil, geodata.ErrNoMatch
		}
		shp = s
	default:
		return nil, geodata.ErrNoMatch
	}

	rc, err := shp.Open()
	if err != nil {
		return nil, geodata.IOFailure(op+": open "+shp.Name(), err)
	}
	defer rc.Close()
	code, err := binio.NewCursor(rc).Int32BE()
	if err != nil || code != FileCode {
		return nil, geodata.ErrNoMatch
	}
	return shp, nil
}

// Load decodes the .shp resource r together with its .shx index and .dbf table
// when present. Nothing is returned unless the whole set decodes.
func Load(ctx context.Context, r geodata.Resource, opts Options) (*geodata.Dataset, error) {
	stem, _ := geodata.SplitExt(r.Name())

	var index *Index
	if shx, ok := geodata.SiblingAnyCase(r, stem, "shx", "SHX", "Shx"); ok {
		ix, err := withStream(shx, ReadIndex)
		if err != nil {
			return nil, err
		}
		index = ix
	}

	rc, err := r.Open()
	if err != nil {
		return nil, geodata.IOFailure(op+": open "+r.Name(), err)
	}
	defer rc.Close()
	size, _ := r.Size()
	coll, _, err := Decode(ctx, rc, DecodeOptions{
		Name:     stem,
		Index:    index,
		Size:     size,
		Factory:  opts.Factory,
		Progress: geodata.NewTracker(opts.Progress),
	})
	if err != nil {
		return nil, err
	}

	ds := &geodata.Dataset{Collection: coll}
	if tbl, ok := geodata.SiblingAnyCase(r, stem, "dbf", "DBF", "Dbf"); ok {
		t, err := withStream(tbl, dbf.ReadHeader)
		if err != nil {
			return nil, err
		}
		link, err := geodata.NewTableLink(&table{Table: t, res: tbl}, coll)
		if err != nil {
			return nil, err
		}
		ds.Link = link
	}
	return ds, nil
}

// table binds a dBASE header to the file it came from so rows can be read later.
type table struct {
	*dbf.Table
	res geodata.Resource
}

func (t *table) EachRow(fn func(i int, values []string) bool) error {
	rc, err := t.res.Open()
	if err != nil {
		return geodata.IOFailure(op+": open "+t.res.Name(), err)
	}
	defer rc.Close()
	return t.Rows(rc, func(i int, _ bool, values []string) bool { return fn(i, values) })
}

func withStream[T any](r geodata.Resource, fn func(io.Reader) (T, error)) (T, error) {
	var zero T
	rc, err := r.Open()
	if err != nil {
		return zero, geodata.IOFailure(op+": open "+r.Name(), err)
	}
	defer rc.Close()
	return fn(rc)
}
