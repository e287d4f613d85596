package geodata

// Dataset is the result of one decode call. Exactly one of Collection, Grid and Image
// is set. Link is only set alongside a Collection.
type Dataset struct {
	Collection *Collection
	Grid       *Grid
	Image      *Image
	Link       *TableLink
}

// Bounds returns the extent of whichever payload the dataset holds.
func (d *Dataset) Bounds() Bounds {
	switch {
	case d.Collection != nil:
		return d.Collection.Bounds()
	case d.Grid != nil:
		return d.Grid.Bounds()
	case d.Image != nil:
		return d.Image.Bounds()
	}
	return EmptyBounds()
}

// Kind names the payload: "geometry", "grid", "image" or "empty".
func (d *Dataset) Kind() string {
	switch {
	case d.Collection != nil:
		return "geometry"
	case d.Grid != nil:
		return "grid"
	case d.Image != nil:
		return "image"
	}
	return "empty"
}
