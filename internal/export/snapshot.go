package export

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/beetlebugorg/geoimport/pkg/geodata"
)

// SnapshotVersion is written into every snapshot.
const SnapshotVersion = 1

// Snapshot is the msgpack form of a decoded dataset.
type Snapshot struct {
	Version  int    `msgpack:"v"`
	ImportID string `msgpack:"import_id"`
	Source   string `msgpack:"source"`
	Kind     string `msgpack:"kind"`

	Collection *CollectionSnapshot `msgpack:"collection,omitempty"`
	Grid       *GridSnapshot       `msgpack:"grid,omitempty"`
	TableRows  int                 `msgpack:"table_rows,omitempty"`
}

// CollectionSnapshot holds a collection tree.
type CollectionSnapshot struct {
	Name     string            `msgpack:"name"`
	ID       *int              `msgpack:"id,omitempty"`
	Filled   bool              `msgpack:"filled,omitempty"`
	Elements []ElementSnapshot `msgpack:"elements"`
}

// ElementSnapshot is one child: a point, a path or a nested collection.
type ElementSnapshot struct {
	Type       string              `msgpack:"t"`
	Name       string              `msgpack:"name,omitempty"`
	ID         *int                `msgpack:"id,omitempty"`
	Ops        []uint8             `msgpack:"ops,omitempty"`
	Coords     []float64           `msgpack:"xy,omitempty"`
	Collection *CollectionSnapshot `msgpack:"c,omitempty"`
}

// GridSnapshot holds a grid and its cells.
type GridSnapshot struct {
	Cols     uint32    `msgpack:"cols"`
	Rows     uint32    `msgpack:"rows"`
	CellSize float64   `msgpack:"cellsize"`
	West     float64   `msgpack:"west"`
	North    float64   `msgpack:"north"`
	Cells    []float32 `msgpack:"cells"`
}

// NewSnapshot captures ds. Images are recorded by kind only.
func NewSnapshot(importID, source string, ds *geodata.Dataset) *Snapshot {
	s := &Snapshot{
		Version:  SnapshotVersion,
		ImportID: importID,
		Source:   source,
		Kind:     ds.Kind(),
	}
	if ds.Collection != nil {
		s.Collection = snapshotCollection(ds.Collection)
	}
	if g := ds.Grid; g != nil {
		s.Grid = &GridSnapshot{
			Cols: g.Cols, Rows: g.Rows, CellSize: g.CellSize,
			West: g.West, North: g.North, Cells: g.Cells,
		}
	}
	if ds.Link != nil {
		s.TableRows = ds.Link.Rows()
	}
	return s
}

func idPtr(id int, ok bool) *int {
	if !ok {
		return nil
	}
	return &id
}

func snapshotCollection(c *geodata.Collection) *CollectionSnapshot {
	cs := &CollectionSnapshot{
		Name:   c.Name,
		ID:     idPtr(c.ID, c.HasID),
		Filled: c.Symbol == geodata.SymbolFilled,
	}
	for _, e := range c.Children() {
		switch v := e.(type) {
		case *geodata.Point:
			cs.Elements = append(cs.Elements, ElementSnapshot{
				Type: "point", Name: v.Name, ID: idPtr(v.ID, v.HasID),
				Coords: []float64{v.X, v.Y},
			})
		case *geodata.Path:
			el := ElementSnapshot{Type: "path", Name: v.Name, ID: idPtr(v.ID, v.HasID)}
			for _, in := range v.Instructions {
				el.Ops = append(el.Ops, uint8(in.Op))
				if in.Op != geodata.OpClose {
					el.Coords = append(el.Coords, in.X, in.Y)
				}
			}
			cs.Elements = append(cs.Elements, el)
		case *geodata.Collection:
			cs.Elements = append(cs.Elements, ElementSnapshot{Type: "collection", Collection: snapshotCollection(v)})
		}
	}
	return cs
}

// WriteSnapshot encodes s to w.
func WriteSnapshot(w io.Writer, s *Snapshot) error {
	return msgpack.NewEncoder(w).Encode(s)
}

// ReadSnapshot decodes a snapshot written by WriteSnapshot.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := msgpack.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("export: read snapshot: %w", err)
	}
	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("export: snapshot version %d, want %d", s.Version, SnapshotVersion)
	}
	return &s, nil
}

// Dataset rebuilds the geometry or grid held by the snapshot. Table links are not
// restored.
func (s *Snapshot) Dataset(factory geodata.Factory) (*geodata.Dataset, error) {
	factory = factory.WithDefaults()
	ds := &geodata.Dataset{}
	if s.Collection != nil {
		c, err := restoreCollection(s.Collection, factory)
		if err != nil {
			return nil, err
		}
		ds.Collection = c
	}
	if gs := s.Grid; gs != nil {
		g, err := geodata.NewGrid(gs.Cols, gs.Rows, gs.CellSize, gs.West, gs.North)
		if err != nil {
			return nil, err
		}
		if len(gs.Cells) != len(g.Cells) {
			return nil, geodata.Corrupt("snapshot", "grid has %d cells, want %d", len(gs.Cells), len(g.Cells))
		}
		copy(g.Cells, gs.Cells)
		ds.Grid = g
	}
	return ds, nil
}

func restoreCollection(cs *CollectionSnapshot, f geodata.Factory) (*geodata.Collection, error) {
	c := f.Collection(cs.Name)
	if cs.ID != nil {
		c.ID, c.HasID = *cs.ID, true
	}
	if cs.Filled {
		c.Symbol = geodata.SymbolFilled
	}
	for i, el := range cs.Elements {
		switch el.Type {
		case "point":
			if len(el.Coords) != 2 {
				return nil, geodata.Corrupt("snapshot", "point %d has %d coordinates", i, len(el.Coords))
			}
			p := f.Point(el.Coords[0], el.Coords[1])
			p.Name = el.Name
			if el.ID != nil {
				p.ID, p.HasID = *el.ID, true
			}
			c.Add(p)
		case "path":
			p := f.Path()
			p.Name = el.Name
			if el.ID != nil {
				p.ID, p.HasID = *el.ID, true
			}
			xy := el.Coords
			for _, op := range el.Ops {
				switch geodata.Op(op) {
				case geodata.OpMoveTo, geodata.OpLineTo:
					if len(xy) < 2 {
						return nil, geodata.Corrupt("snapshot", "path %d runs out of coordinates", i)
					}
					if geodata.Op(op) == geodata.OpMoveTo {
						p.MoveTo(xy[0], xy[1])
					} else {
						p.LineTo(xy[0], xy[1])
					}
					xy = xy[2:]
				case geodata.OpClose:
					p.Close()
				default:
					return nil, geodata.Corrupt("snapshot", "path %d has unknown op %d", i, op)
				}
			}
			c.Add(p)
		case "collection":
			if el.Collection == nil {
				return nil, geodata.Corrupt("snapshot", "element %d is an empty collection", i)
			}
			sub, err := restoreCollection(el.Collection, f)
			if err != nil {
				return nil, err
			}
			c.Add(sub)
		default:
			return nil, geodata.Corrupt("snapshot", "element %d has unknown type %q", i, el.Type)
		}
	}
	return c, nil
}
