// Package export renders decoded datasets as GeoJSON or msgpack snapshots.
package export

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/tidwall/geojson"
	"github.com/tidwall/geojson/geometry"

	"github.com/beetlebugorg/geoimport/pkg/geodata"
)

// Object converts a single element to a GeoJSON geometry. Paths map to LineString,
// MultiLineString, Polygon or MultiPolygon depending on which subpaths are closed;
// a path mixing open and closed subpaths becomes a GeometryCollection. It returns
// nil for elements with no drawable geometry.
func Object(e geodata.Element) geojson.Object {
	switch v := e.(type) {
	case *geodata.Point:
		return geojson.NewPoint(geometry.Point{X: v.X, Y: v.Y})
	case *geodata.Path:
		return pathObject(v)
	case *geodata.Collection:
		var objs []geojson.Object
		for _, c := range v.Children() {
			if o := Object(c); o != nil {
				objs = append(objs, o)
			}
		}
		return geojson.NewGeometryCollection(objs)
	}
	return nil
}

func pathObject(p *geodata.Path) geojson.Object {
	var (
		lines []*geometry.Line
		rings [][]geometry.Point
	)
	for _, sp := range p.Subpaths() {
		pts := toPoints(sp.Points)
		if sp.Closed && len(pts) >= 3 {
			rings = append(rings, closeRing(pts))
			continue
		}
		if len(pts) >= 2 {
			lines = append(lines, geometry.NewLine(pts, nil))
		}
	}

	var objs []geojson.Object
	switch len(lines) {
	case 0:
	case 1:
		objs = append(objs, geojson.NewLineString(lines[0]))
	default:
		objs = append(objs, geojson.NewMultiLineString(lines))
	}
	if polys := groupRings(rings); len(polys) == 1 {
		objs = append(objs, geojson.NewPolygon(polys[0]))
	} else if len(polys) > 1 {
		objs = append(objs, geojson.NewMultiPolygon(polys))
	}

	switch len(objs) {
	case 0:
		return nil
	case 1:
		return objs[0]
	}
	return geojson.NewGeometryCollection(objs)
}

// groupRings assembles polygons from rings in file order. Clockwise rings start a
// new polygon; counter-clockwise rings are holes of the polygon before them.
func groupRings(rings [][]geometry.Point) []*geometry.Poly {
	type poly struct {
		exterior []geometry.Point
		holes    [][]geometry.Point
	}
	var acc []*poly
	for _, r := range rings {
		if signedArea(r) < 0 || len(acc) == 0 {
			acc = append(acc, &poly{exterior: r})
			continue
		}
		last := acc[len(acc)-1]
		last.holes = append(last.holes, r)
	}
	out := make([]*geometry.Poly, len(acc))
	for i, p := range acc {
		out[i] = geometry.NewPoly(p.exterior, p.holes, nil)
	}
	return out
}

// signedArea is positive for counter-clockwise rings.
func signedArea(ring []geometry.Point) float64 {
	var a float64
	for i := 0; i+1 < len(ring); i++ {
		a += ring[i].X*ring[i+1].Y - ring[i+1].X*ring[i].Y
	}
	return a / 2
}

func toPoints(pts [][2]float64) []geometry.Point {
	out := make([]geometry.Point, len(pts))
	for i, p := range pts {
		out[i] = geometry.Point{X: p[0], Y: p[1]}
	}
	return out
}

func closeRing(pts []geometry.Point) []geometry.Point {
	if pts[0] != pts[len(pts)-1] {
		pts = append(pts, pts[0])
	}
	return pts
}

// Feature wraps the element's geometry with its id and name.
func Feature(e geodata.Element) *geojson.Feature {
	return feature(e, nil)
}

func feature(e geodata.Element, attrs map[string]interface{}) *geojson.Feature {
	obj := Object(e)
	if obj == nil {
		return nil
	}
	props := make(map[string]interface{}, len(attrs)+1)
	for k, v := range attrs {
		props[k] = v
	}
	var id interface{}
	switch v := e.(type) {
	case *geodata.Point:
		id = optionalID(v.ID, v.HasID)
		setName(props, v.Name)
	case *geodata.Path:
		id = optionalID(v.ID, v.HasID)
		setName(props, v.Name)
	case *geodata.Collection:
		id = optionalID(v.ID, v.HasID)
		setName(props, v.Name)
	}
	return geojson.NewFeature(obj, members(id, props))
}

func optionalID(id int, ok bool) interface{} {
	if !ok {
		return nil
	}
	return id
}

func members(id interface{}, props map[string]interface{}) string {
	m := map[string]interface{}{"properties": props}
	if id != nil {
		m["id"] = id
	}
	data, _ := json.Marshal(m)
	return string(data)
}

// setName records a non-empty element name unless an attribute already uses the key.
func setName(props map[string]interface{}, name string) {
	if _, taken := props["name"]; name != "" && !taken {
		props["name"] = name
	}
}

// FeatureCollection converts every direct child of c into a feature.
func FeatureCollection(c *geodata.Collection) *geojson.FeatureCollection {
	return featureCollection(c, nil)
}

// featureCollection converts the children of c; attrs[i], when present, becomes the
// properties of child i.
func featureCollection(c *geodata.Collection, attrs []map[string]interface{}) *geojson.FeatureCollection {
	var features []geojson.Object
	for i, e := range c.Children() {
		var a map[string]interface{}
		if i < len(attrs) {
			a = attrs[i]
		}
		if f := feature(e, a); f != nil {
			features = append(features, f)
		}
	}
	return geojson.NewFeatureCollection(features)
}

// Attributes reads the linked rows of a table link, one property map per collection
// child. Numeric and logical dBASE fields are converted; blank values are dropped. It
// returns nil when link is nil or its table cannot stream rows.
func Attributes(link *geodata.TableLink) ([]map[string]interface{}, error) {
	if link == nil {
		return nil, nil
	}
	src, ok := link.Table.(geodata.RowSource)
	if !ok {
		return nil, nil
	}
	cols := link.Table.Columns()
	n := link.Rows()
	rows := make([]map[string]interface{}, 0, n)
	err := src.EachRow(func(i int, values []string) bool {
		if i >= n {
			return false
		}
		props := make(map[string]interface{}, len(cols))
		for j, col := range cols {
			if v := attrValue(col, values[j]); v != nil {
				props[col.Name] = v
			}
		}
		rows = append(rows, props)
		return true
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func attrValue(col geodata.Column, raw string) interface{} {
	if raw == "" {
		return nil
	}
	switch col.Type {
	case 'N', 'F':
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	case 'L':
		switch strings.ToUpper(raw) {
		case "T", "Y":
			return true
		case "F", "N":
			return false
		case "?":
			return nil
		}
	}
	return raw
}

// Extent returns the dataset footprint as a polygon feature. Grids and images carry
// their dimensions as properties.
func Extent(ds *geodata.Dataset) *geojson.Feature {
	b := ds.Bounds()
	if b.IsEmpty() {
		return nil
	}
	rect := geojson.NewRect(geometry.Rect{
		Min: geometry.Point{X: b.MinX, Y: b.MinY},
		Max: geometry.Point{X: b.MaxX, Y: b.MaxY},
	})
	props := map[string]interface{}{"kind": ds.Kind()}
	switch {
	case ds.Grid != nil:
		props["cols"] = ds.Grid.Cols
		props["rows"] = ds.Grid.Rows
		props["cellsize"] = ds.Grid.CellSize
	case ds.Image != nil:
		props["width"] = ds.Image.Width()
		props["height"] = ds.Image.Height()
		props["cellsize"] = ds.Image.CellSize
	}
	return geojson.NewFeature(rect, members(nil, props))
}

// WriteGeoJSON writes the dataset as a FeatureCollection. Geometry collections
// become one feature per child, carrying the linked table row as properties; rasters
// become a single extent feature.
func WriteGeoJSON(w io.Writer, ds *geodata.Dataset) error {
	var fc *geojson.FeatureCollection
	if ds.Collection != nil {
		attrs, err := Attributes(ds.Link)
		if err != nil {
			return err
		}
		fc = featureCollection(ds.Collection, attrs)
	} else if f := Extent(ds); f != nil {
		fc = geojson.NewFeatureCollection([]geojson.Object{f})
	} else {
		fc = geojson.NewFeatureCollection(nil)
	}
	_, err := io.WriteString(w, fc.JSON())
	return err
}
