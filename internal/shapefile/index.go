package shapefile

import (
	"io"

	"github.com/beetlebugorg/geoimport/internal/binio"
	"github.com/beetlebugorg/geoimport/pkg/geodata"
)

// IndexEntry locates one record in the .shp file.
type IndexEntry struct {
	Offset        int64 // byte offset of the record header
	ContentLength int64 // content bytes, record header excluded
}

// Index is the decoded .shx file.
type Index struct {
	Header  Header
	Entries []IndexEntry
}

// RecordCount returns the number of records the index describes.
func (ix *Index) RecordCount() int { return len(ix.Entries) }

// ReadIndex decodes a .shx stream. The record count is derived from the header's file
// length; entry offsets and lengths are stored in 16-bit words and converted to bytes.
func ReadIndex(r io.Reader) (*Index, error) {
	const op = "shapefile: index"
	c := binio.NewCursor(r)
	h, err := readHeader(c, op)
	if err != nil {
		return nil, err
	}
	count := (int64(h.FileLength)*2 - HeaderSize) / 8
	if count < 0 {
		return nil, geodata.Corrupt(op, "file length %d words is shorter than the header", h.FileLength)
	}

	ix := &Index{Header: h, Entries: make([]IndexEntry, 0, minInt64(count, 1<<16))}
	for i := int64(0); i < count; i++ {
		off, err := c.Int32BE()
		if err != nil {
			return nil, readErr(op, "entry", err)
		}
		length, err := c.Int32BE()
		if err != nil {
			return nil, readErr(op, "entry", err)
		}
		if off < HeaderSize/2 || length < 0 {
			return nil, geodata.Corrupt(op, "entry %d has offset %d and length %d words", i, off, length)
		}
		ix.Entries = append(ix.Entries, IndexEntry{
			Offset:        int64(off) * 2,
			ContentLength: int64(length) * 2,
		})
	}
	return ix, nil
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
