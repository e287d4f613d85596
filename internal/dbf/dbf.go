// Package dbf reads dBASE III attribute tables that accompany shapefiles.
//
// Only the header and field descriptors are needed to link a table to decoded geometry;
// rows are read on demand with Rows.
package dbf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/beetlebugorg/geoimport/internal/binio"
	"github.com/beetlebugorg/geoimport/pkg/geodata"
)

const (
	headerSize      = 32
	descriptorSize  = 32
	fieldTerminator = 0x0D
	deletedFlag     = '*'
)

// Table is a dBASE table header. It implements geodata.Table.
type Table struct {
	Version      byte
	records      int
	headerLength int
	recordLength int
	columns      []geodata.Column
}

// RowCount returns the number of records declared in the header, deleted ones included.
func (t *Table) RowCount() int { return t.records }

// Columns returns the field descriptors in file order.
func (t *Table) Columns() []geodata.Column { return t.columns }

// ReadHeader parses the table header and field descriptors from r.
func ReadHeader(r io.Reader) (*Table, error) {
	c := binio.NewCursor(r)
	head, err := c.Bytes(headerSize)
	if err != nil {
		return nil, truncated("header", err)
	}
	t := &Table{
		Version:      head[0],
		records:      int(binary.LittleEndian.Uint32(head[4:8])),
		headerLength: int(binary.LittleEndian.Uint16(head[8:10])),
		recordLength: int(binary.LittleEndian.Uint16(head[10:12])),
	}
	if t.headerLength < headerSize+1 {
		return nil, geodata.Corrupt("dbf", "header length %d is too small", t.headerLength)
	}

	width := 1 // deletion flag
	for c.Pos()+descriptorSize <= int64(t.headerLength) {
		desc, err := c.Bytes(1)
		if err != nil {
			return nil, truncated("field descriptor", err)
		}
		if desc[0] == fieldTerminator {
			break
		}
		rest, err := c.Bytes(descriptorSize - 1)
		if err != nil {
			return nil, truncated("field descriptor", err)
		}
		desc = append(desc, rest...)
		name := desc[:11]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		col := geodata.Column{
			Name:     strings.TrimSpace(string(name)),
			Type:     desc[11],
			Length:   int(desc[16]),
			Decimals: int(desc[17]),
		}
		width += col.Length
		t.columns = append(t.columns, col)
	}
	if t.recordLength == 0 {
		t.recordLength = width
	}
	if width > t.recordLength {
		return nil, geodata.Corrupt("dbf", "fields span %d bytes but records are %d bytes", width, t.recordLength)
	}
	return t, nil
}

// Rows streams the records of a fresh read of the table file. fn receives the row
// index, whether the row is marked deleted and the trimmed field values. Iteration
// stops when fn returns false.
func (t *Table) Rows(r io.Reader, fn func(i int, deleted bool, values []string) bool) error {
	c := binio.NewCursor(r)
	if err := c.Skip(int64(t.headerLength)); err != nil {
		return truncated("header", err)
	}
	values := make([]string, len(t.columns))
	for i := 0; i < t.records; i++ {
		rec, err := c.Bytes(t.recordLength)
		if err != nil {
			return truncated(fmt.Sprintf("record %d", i), err)
		}
		off := 1
		for j, col := range t.columns {
			values[j] = strings.TrimSpace(string(rec[off : off+col.Length]))
			off += col.Length
		}
		if !fn(i, rec[0] == deletedFlag, values) {
			return nil
		}
	}
	return nil
}

func truncated(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return geodata.Corrupt("dbf", "truncated %s", what)
	}
	return geodata.IOFailure("dbf: read "+what, err)
}
