package geodata

// Column describes one attribute column.
type Column struct {
	Name     string
	Type     byte // dBASE field type: 'C', 'N', 'F', 'L', 'D', ...
	Length   int
	Decimals int
}

// Table is an attribute row store. Decoders only consult RowCount.
type Table interface {
	RowCount() int
	Columns() []Column
}

// TableLink associates attribute rows with collection children: row i describes child i.
type TableLink struct {
	Table      Table
	Collection *Collection
}

// NewTableLink links t to c. A table with fewer rows than c has children is corrupt.
func NewTableLink(t Table, c *Collection) (*TableLink, error) {
	if t.RowCount() < c.Len() {
		return nil, Corrupt("table link", "table has %d rows but collection %q has %d children",
			t.RowCount(), c.Name, c.Len())
	}
	return &TableLink{Table: t, Collection: c}, nil
}

// Rows returns the number of linked rows, min(rowCount, childCount).
func (l *TableLink) Rows() int {
	if n := l.Collection.Len(); n < l.Table.RowCount() {
		return n
	}
	return l.Table.RowCount()
}

// RowSource is implemented by tables that can stream their records. values holds one
// string per column and is only valid during the call.
type RowSource interface {
	EachRow(fn func(i int, values []string) bool) error
}
