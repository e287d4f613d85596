package geoimport

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/beetlebugorg/geoimport/pkg/geodata"
)

// fakeHandler claims resources by extension and counts decode calls.
type fakeHandler struct {
	name        string
	ext         string
	probePanic  bool
	probeErr    error
	decodePanic bool
	decodeErr   error
	decodes     atomic.Int32
}

func (h *fakeHandler) Name() string { return h.name }

func (h *fakeHandler) Probe(_ context.Context, r geodata.Resource) (geodata.Resource, error) {
	if h.probePanic {
		panic("probe exploded")
	}
	if h.probeErr != nil {
		return nil, h.probeErr
	}
	if _, ext := geodata.SplitExt(r.Name()); ext != h.ext {
		return nil, geodata.ErrNoMatch
	}
	return r, nil
}

func (h *fakeHandler) Decode(_ context.Context, r geodata.Resource, _ geodata.Progress) (*geodata.Dataset, error) {
	h.decodes.Add(1)
	if h.decodePanic {
		panic("decode exploded")
	}
	if h.decodeErr != nil {
		return nil, h.decodeErr
	}
	return &geodata.Dataset{Collection: geodata.NewCollection(h.name)}, nil
}

// shapefileSet returns .shp and .shx bytes holding one point record per coordinate pair.
func shapefileSet(pts ...[2]float64) (shp, shx []byte) {
	header := func(length int) []byte {
		b := make([]byte, 100)
		binary.BigEndian.PutUint32(b[0:], 9994)
		binary.BigEndian.PutUint32(b[24:], uint32(length/2))
		binary.LittleEndian.PutUint32(b[28:], 1000)
		binary.LittleEndian.PutUint32(b[32:], 1)
		return b
	}
	var body, idx bytes.Buffer
	off := 100
	for i, p := range pts {
		_ = binary.Write(&body, binary.BigEndian, int32(i+1))
		_ = binary.Write(&body, binary.BigEndian, int32(10))
		_ = binary.Write(&body, binary.LittleEndian, int32(1))
		_ = binary.Write(&body, binary.LittleEndian, p[0])
		_ = binary.Write(&body, binary.LittleEndian, p[1])
		_ = binary.Write(&idx, binary.BigEndian, int32(off/2))
		_ = binary.Write(&idx, binary.BigEndian, int32(10))
		off += 28
	}
	shp = append(header(100+body.Len()), body.Bytes()...)
	shx = append(header(100+idx.Len()), idx.Bytes()...)
	return shp, shx
}

// dbfTable returns a dBASE header declaring rows records.
func dbfTable(rows int) []byte {
	b := make([]byte, 65)
	b[0] = 3
	binary.LittleEndian.PutUint32(b[4:], uint32(rows))
	binary.LittleEndian.PutUint16(b[8:], uint16(len(b)))
	binary.LittleEndian.PutUint16(b[10:], 5)
	copy(b[32:], "ID")
	b[32+11] = 'N'
	b[32+16] = 4
	b[64] = 0x0D
	return b
}

const elevation = `ncols 2
nrows 2
xllcorner 10
yllcorner 20
cellsize 5
NODATA_value -9999
1 2
3 -9999
`

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// testFS holds a shapefile set with a matching table, a grid and a note.
func testFS(t *testing.T) fstest.MapFS {
	t.Helper()
	shp, shx := shapefileSet([2]float64{1, 1}, [2]float64{2, 3})
	return fstest.MapFS{
		"roads.shp": {Data: shp},
		"roads.shx": {Data: shx},
		"roads.dbf": {Data: dbfTable(2)},
		"elev.asc":  {Data: []byte(elevation)},
		"notes.txt": {Data: []byte("not a dataset\n")},
	}
}

func res(fsys fstest.MapFS, name string) geodata.Resource {
	return geodata.NewFSResource(fsys, "", name)
}

func defaultRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := RegistryFromNames(nil, HandlerOptions{})
	require.NoError(t, err)
	return reg
}

func TestRegistry_FirstMatchWins(t *testing.T) {
	first := &fakeHandler{name: "first", ext: "dat"}
	second := &fakeHandler{name: "second", ext: "dat"}
	reg := NewRegistry(first, second)
	fsys := fstest.MapFS{"a.dat": {Data: []byte("x")}}

	m, ok := reg.Detect(context.Background(), res(fsys, "a.dat"))
	require.True(t, ok)
	assert.Equal(t, "first", m.Handler.Name())

	out := NewImporter(reg).Import(context.Background(), res(fsys, "a.dat"), nil, nil)
	assert.Equal(t, StatusDecoded, out.Status)
	assert.Equal(t, "first", out.Handler)
	assert.EqualValues(t, 1, first.decodes.Load())
	assert.EqualValues(t, 0, second.decodes.Load())
}

func TestRegistry_NoMatch(t *testing.T) {
	reg := defaultRegistry(t)
	fsys := testFS(t)

	_, ok := reg.Detect(context.Background(), res(fsys, "notes.txt"))
	assert.False(t, ok)

	var sink Collector
	out := NewImporter(reg).Import(context.Background(), res(fsys, "notes.txt"), &sink, nil)
	assert.Equal(t, StatusNoMatch, out.Status)
	assert.Empty(t, out.Canonical)
	assert.Empty(t, sink.Deliveries())
	assert.Empty(t, sink.Failures())
}

func TestRegistry_DetectMany(t *testing.T) {
	reg := defaultRegistry(t)
	fsys := testFS(t)
	var rs []geodata.Resource
	for _, name := range []string{"roads.dbf", "roads.shp", "roads.shx", "elev.asc", "notes.txt"} {
		rs = append(rs, res(fsys, name))
	}

	matches := reg.DetectMany(context.Background(), rs)
	require.Len(t, matches, 2)
	assert.Equal(t, "shapefile", matches["roads.shp"].Handler.Name())
	assert.Equal(t, "roads.shp", matches["roads.shp"].Resource.Name())
	assert.Equal(t, "asciigrid", matches["elev.asc"].Handler.Name())
}

func TestRegistry_ProbeFailuresFallThrough(t *testing.T) {
	for _, bad := range []*fakeHandler{
		{name: "bad", probePanic: true},
		{name: "bad", probeErr: errors.New("disk on fire")},
	} {
		core, logs := observer.New(zap.DebugLevel)
		metrics := NewMetrics(prometheus.NewRegistry())
		good := &fakeHandler{name: "good", ext: "dat"}
		reg := NewRegistry(bad, good).WithLogger(zap.New(core)).WithMetrics(metrics)
		fsys := fstest.MapFS{"a.dat": {Data: []byte("x")}}

		m, ok := reg.Detect(context.Background(), res(fsys, "a.dat"))
		require.True(t, ok)
		assert.Equal(t, "good", m.Handler.Name())
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ProbeFailures.WithLabelValues("bad")))

		entries := logs.FilterMessage("probe failed").All()
		require.Len(t, entries, 1)
		assert.Equal(t, bad.probePanic, entries[0].ContextMap()["panic"])
	}
}

func TestRegistryFromNames(t *testing.T) {
	reg, err := RegistryFromNames(nil, HandlerOptions{})
	require.NoError(t, err)
	var names []string
	for _, h := range reg.Handlers() {
		names = append(names, h.Name())
	}
	assert.Equal(t, DefaultHandlerOrder, names)

	reg, err = RegistryFromNames([]string{"image", "asciigrid"}, HandlerOptions{GridQueueSize: 2})
	require.NoError(t, err)
	require.Len(t, reg.Handlers(), 2)
	assert.Equal(t, "image", reg.Handlers()[0].Name())
	assert.Equal(t, 2, reg.Handlers()[1].(*GridHandler).QueueSize)

	_, err = RegistryFromNames([]string{"shapefile", "kml"}, HandlerOptions{})
	assert.ErrorContains(t, err, `unknown handler "kml"`)
}

func TestImport_Shapefile(t *testing.T) {
	fsys := testFS(t)
	var sink Collector
	out := NewImporter(defaultRegistry(t)).Import(context.Background(), res(fsys, "roads.dbf"), &sink, nil)

	require.Equal(t, StatusDecoded, out.Status, "%v", out.Err)
	assert.NotEmpty(t, out.ID)
	assert.Equal(t, "shapefile", out.Handler)
	assert.Equal(t, "roads.dbf", out.Resource)
	assert.Equal(t, "roads.shp", out.Canonical)
	assert.Empty(t, sink.Failures())

	d := sink.Deliveries()
	require.Len(t, d, 2)
	require.NotNil(t, d[0].Collection)
	assert.Equal(t, "roads.shp", d[0].ResourceID)
	assert.Equal(t, "roads", d[0].Collection.Name)
	assert.Equal(t, 2, d[0].Collection.Len())
	require.NotNil(t, d[1].Link)
	assert.Equal(t, 2, d[1].Link.Rows())
	assert.Same(t, d[0].Collection, d[1].Link.Collection)
}

func TestImport_TableMismatch(t *testing.T) {
	fsys := testFS(t)
	fsys["roads.dbf"] = &fstest.MapFile{Data: dbfTable(1)}
	var sink Collector
	out := NewImporter(defaultRegistry(t)).Import(context.Background(), res(fsys, "roads.shp"), &sink, nil)

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, geodata.KindCorruptData, out.Kind)
	assert.Nil(t, out.Dataset)
	assert.Empty(t, sink.Deliveries())
	f := sink.Failures()
	require.Len(t, f, 1)
	assert.Equal(t, geodata.KindCorruptData, f[0].Kind)
	assert.Equal(t, "roads.shp", f[0].ResourceID)
	assert.Contains(t, f[0].Msg, "table has 1 rows")
}

func TestImport_Grid(t *testing.T) {
	fsys := testFS(t)
	var sink Collector
	var reports []int
	progress := geodata.ProgressFunc(func(p int) bool {
		reports = append(reports, p)
		return true
	})
	out := NewImporter(defaultRegistry(t)).Import(context.Background(), res(fsys, "elev.asc"), &sink, progress)

	require.Equal(t, StatusDecoded, out.Status, "%v", out.Err)
	assert.Equal(t, []int{50, 100}, reports)
	d := sink.Deliveries()
	require.Len(t, d, 1)
	g := d[0].Grid
	require.NotNil(t, g)
	assert.Equal(t, uint32(2), g.Cols)
	assert.Equal(t, 10.0, g.West)
	assert.Equal(t, 25.0, g.North)
	assert.Equal(t, float32(3), g.At(0, 1))
	assert.True(t, g.At(1, 1) != g.At(1, 1), "nodata cell is NaN")
}

func TestImport_ImageWithWorldFile(t *testing.T) {
	fsys := fstest.MapFS{
		"map.png": {Data: pngBytes(t, 4, 2)},
		"map.pgw": {Data: []byte("2\n0\n0\n-2\n100\n200\n")},
		"raw.png": {Data: pngBytes(t, 1, 1)},
	}
	reg := defaultRegistry(t)

	var sink Collector
	out := NewImporter(reg).Import(context.Background(), res(fsys, "map.png"), &sink, nil)
	require.Equal(t, StatusDecoded, out.Status, "%v", out.Err)
	assert.Equal(t, "image", out.Handler)
	d := sink.Deliveries()
	require.Len(t, d, 1)
	im := d[0].Image
	require.NotNil(t, im)
	assert.Equal(t, "png", im.Format)
	assert.True(t, im.Georeferenced)
	assert.Equal(t, 2.0, im.CellSize)
	assert.Equal(t, geodata.Bounds{MinX: 100, MinY: 196, MaxX: 108, MaxY: 200}, im.Bounds())

	out = NewImporter(reg).Import(context.Background(), res(fsys, "raw.png"), nil, nil)
	require.Equal(t, StatusDecoded, out.Status)
	assert.False(t, out.Dataset.Image.Georeferenced)
}

func TestImport_RotatedWorldFileFails(t *testing.T) {
	fsys := fstest.MapFS{
		"map.png":  {Data: pngBytes(t, 2, 2)},
		"map.pngw": {Data: []byte("2\n0.5\n0\n-2\n100\n200\n")},
	}
	var sink Collector
	out := NewImporter(defaultRegistry(t)).Import(context.Background(), res(fsys, "map.png"), &sink, nil)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, geodata.KindUnsupportedFeature, out.Kind)
	assert.Empty(t, sink.Deliveries())
	require.Len(t, sink.Failures(), 1)
}

func TestImport_DecodePanic(t *testing.T) {
	h := &fakeHandler{name: "boom", ext: "dat", decodePanic: true}
	fsys := fstest.MapFS{"a.dat": {Data: []byte("x")}}
	var sink Collector
	out := NewImporter(NewRegistry(h)).Import(context.Background(), res(fsys, "a.dat"), &sink, nil)

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, geodata.KindIOFailure, out.Kind)
	f := sink.Failures()
	require.Len(t, f, 1)
	assert.Equal(t, geodata.KindIOFailure, f[0].Kind)
	assert.Contains(t, f[0].Msg, "decode exploded")
}

func TestImport_CancelIsSilent(t *testing.T) {
	fsys := testFS(t)
	var sink Collector
	stop := geodata.ProgressFunc(func(int) bool { return false })
	imp := NewImporter(defaultRegistry(t))

	out := imp.Import(context.Background(), res(fsys, "elev.asc"), &sink, stop)
	assert.Equal(t, StatusCancelled, out.Status)
	assert.Equal(t, geodata.KindCancelled, out.Kind)

	out = imp.Import(context.Background(), res(fsys, "roads.shp"), &sink, stop)
	assert.Equal(t, StatusCancelled, out.Status)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out = imp.Import(ctx, res(fsys, "elev.asc"), &sink, nil)
	assert.Equal(t, StatusCancelled, out.Status)

	assert.Empty(t, sink.Deliveries())
	assert.Empty(t, sink.Failures())
}

func TestImport_DecoderErrorKind(t *testing.T) {
	h := &fakeHandler{name: "fake", ext: "dat", decodeErr: geodata.Unsupported("fake", "multipatch")}
	fsys := fstest.MapFS{"a.dat": {Data: []byte("x")}}
	var sink Collector
	out := NewImporter(NewRegistry(h)).Import(context.Background(), res(fsys, "a.dat"), &sink, nil)
	assert.Equal(t, StatusFailed, out.Status)
	require.Len(t, sink.Failures(), 1)
	assert.Equal(t, geodata.KindUnsupportedFeature, sink.Failures()[0].Kind)
	assert.Equal(t, "fake: multipatch", sink.Failures()[0].Msg)
}

func TestImport_MetricsAndLogs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	metrics := NewMetrics(prometheus.NewRegistry())
	imp := NewImporter(defaultRegistry(t), WithLogger(zap.New(core)), WithMetrics(metrics))
	fsys := testFS(t)
	fsys["roads.dbf"] = &fstest.MapFile{Data: dbfTable(1)}

	imp.Import(context.Background(), res(fsys, "elev.asc"), nil, nil)
	imp.Import(context.Background(), res(fsys, "roads.shx"), nil, nil)
	imp.Import(context.Background(), res(fsys, "notes.txt"), nil, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Imports.WithLabelValues("asciigrid", "decoded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Imports.WithLabelValues("shapefile", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Imports.WithLabelValues("none", "no_match")))
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.DecodeDuration))

	require.Equal(t, 1, logs.FilterMessage("import failed").Len())
	failed := logs.FilterMessage("import failed").All()[0]
	assert.Equal(t, zap.WarnLevel, failed.Level)
	assert.Equal(t, "CorruptData", failed.ContextMap()["kind"])
	assert.Equal(t, 1, logs.FilterMessage("import finished").Len())
	assert.Equal(t, 1, logs.FilterMessage("no handler for resource").Len())
}

func TestImportAll(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		fsys := testFS(t)
		var rs []geodata.Resource
		for _, name := range []string{"notes.txt", "roads.shx", "elev.asc", "roads.dbf", "roads.shp"} {
			rs = append(rs, res(fsys, name))
		}

		var (
			mu    sync.Mutex
			dones []int
			total int
		)
		var sink Collector
		outcomes := NewImporter(defaultRegistry(t)).ImportAll(context.Background(), rs, &sink, LoadOptions{
			Parallel: parallel,
			Workers:  4,
			Progress: func(done, n int) {
				mu.Lock()
				dones = append(dones, done)
				total = n
				mu.Unlock()
			},
		})

		require.Len(t, outcomes, 3)
		assert.Equal(t, StatusNoMatch, outcomes[0].Status)
		assert.Equal(t, "notes.txt", outcomes[0].Resource)
		assert.Equal(t, StatusDecoded, outcomes[1].Status)
		assert.Equal(t, "roads.shx", outcomes[1].Resource)
		assert.Equal(t, "roads.shp", outcomes[1].Canonical)
		assert.Equal(t, StatusDecoded, outcomes[2].Status)
		assert.Equal(t, "asciigrid", outcomes[2].Handler)

		assert.Equal(t, 2, total)
		assert.Equal(t, []int{1, 2}, dones)

		d := sink.Deliveries()
		require.Len(t, d, 3)
		for i, del := range d {
			if del.Collection != nil {
				require.Less(t, i+1, len(d))
				assert.NotNil(t, d[i+1].Link, "table link follows its geometry")
			}
		}
	}
}

func TestImportAll_Failures(t *testing.T) {
	boom := &fakeHandler{name: "boom", ext: "bad", decodeErr: geodata.Corrupt("boom", "bad bytes")}
	ok := &fakeHandler{name: "ok", ext: "dat"}
	fsys := fstest.MapFS{
		"a.bad": {Data: []byte("x")},
		"b.dat": {Data: []byte("x")},
		"c.dat": {Data: []byte("x")},
	}
	var sink Collector
	outcomes := NewImporter(NewRegistry(boom, ok)).ImportAll(context.Background(),
		[]geodata.Resource{res(fsys, "a.bad"), res(fsys, "b.dat"), res(fsys, "c.dat")},
		&sink, DefaultLoadOptions())

	require.Len(t, outcomes, 3)
	assert.Equal(t, StatusFailed, outcomes[0].Status)
	assert.Equal(t, StatusDecoded, outcomes[1].Status)
	assert.Equal(t, StatusDecoded, outcomes[2].Status)
	assert.Len(t, sink.Failures(), 1)
	assert.Len(t, sink.Deliveries(), 2)
	assert.EqualValues(t, 2, ok.decodes.Load())
}

func TestImportAll_Cancelled(t *testing.T) {
	fsys := testFS(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var sink Collector
	outcomes := NewImporter(defaultRegistry(t)).ImportAll(ctx,
		[]geodata.Resource{res(fsys, "roads.shp"), res(fsys, "elev.asc")}, &sink, DefaultLoadOptions())

	require.Len(t, outcomes, 2)
	for _, out := range outcomes {
		assert.Equal(t, StatusCancelled, out.Status)
	}
	assert.Empty(t, sink.Deliveries())
	assert.Empty(t, sink.Failures())
}

func TestSinkFuncs(t *testing.T) {
	var got []string
	sink := SinkFuncs{
		Raster: func(id string, _ *geodata.Grid) { got = append(got, "raster:"+id) },
		Error:  func(k geodata.Kind, _ string, id string) { got = append(got, k.String()+":"+id) },
	}
	sink.OnGeometry("a", nil)
	sink.OnRaster("b", nil)
	sink.OnError(geodata.KindIOFailure, "x", "c")
	assert.Equal(t, []string{"raster:b", "IOFailure:c"}, got)
}
