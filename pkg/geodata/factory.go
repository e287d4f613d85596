package geodata

// Factory creates the elements a decoder emits. Callers replace individual functions to
// name, tag or pre-populate elements without changing the decoders.
type Factory struct {
	Point      func(x, y float64) *Point
	Path       func() *Path
	Collection func(name string) *Collection
}

// DefaultFactory returns a factory producing plain zero-valued elements.
func DefaultFactory() Factory {
	return Factory{
		Point:      func(x, y float64) *Point { return &Point{X: x, Y: y} },
		Path:       func() *Path { return &Path{} },
		Collection: NewCollection,
	}
}

// WithDefaults fills any nil constructor from DefaultFactory.
func (f Factory) WithDefaults() Factory {
	d := DefaultFactory()
	if f.Point == nil {
		f.Point = d.Point
	}
	if f.Path == nil {
		f.Path = d.Path
	}
	if f.Collection == nil {
		f.Collection = d.Collection
	}
	return f
}
