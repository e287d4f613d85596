package geoimport

import (
	"bufio"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/beetlebugorg/geoimport/internal/asciigrid"
	"github.com/beetlebugorg/geoimport/internal/shapefile"
	"github.com/beetlebugorg/geoimport/internal/worldfile"
	"github.com/beetlebugorg/geoimport/pkg/geodata"
)

// probeLimit caps how much of a resource a text probe may read.
const probeLimit = 64 * 1024

// ShapefileHandler decodes ESRI Shapefiles. Any member of the file set is accepted
// and resolved to the .shp file.
type ShapefileHandler struct {
	Factory geodata.Factory
}

func (h *ShapefileHandler) Name() string { return "shapefile" }

func (h *ShapefileHandler) Probe(_ context.Context, r geodata.Resource) (geodata.Resource, error) {
	return shapefile.Canonical(r)
}

func (h *ShapefileHandler) Decode(ctx context.Context, r geodata.Resource, progress geodata.Progress) (*geodata.Dataset, error) {
	return shapefile.Load(ctx, r, shapefile.Options{Factory: h.Factory, Progress: progress})
}

// GridHandler decodes ESRI ASCII Grid files.
type GridHandler struct {
	QueueSize int
}

func (h *GridHandler) Name() string { return "asciigrid" }

// Probe accepts resources whose leading lines form a valid grid header.
func (h *GridHandler) Probe(_ context.Context, r geodata.Resource) (geodata.Resource, error) {
	rc, err := r.Open()
	if err != nil {
		return nil, geodata.IOFailure("asciigrid: open "+r.Name(), err)
	}
	defer rc.Close()
	if _, _, err := asciigrid.ParseHeader(bufio.NewReader(io.LimitReader(rc, probeLimit))); err != nil {
		return nil, geodata.ErrNoMatch
	}
	return r, nil
}

func (h *GridHandler) Decode(ctx context.Context, r geodata.Resource, progress geodata.Progress) (*geodata.Dataset, error) {
	rc, err := r.Open()
	if err != nil {
		return nil, geodata.IOFailure("asciigrid: open "+r.Name(), err)
	}
	defer rc.Close()
	g, err := asciigrid.Decode(ctx, rc, progress, asciigrid.Options{QueueSize: h.QueueSize})
	if err != nil {
		return nil, err
	}
	return &geodata.Dataset{Grid: g}, nil
}

// ImageHandler decodes raster images with the registered image codecs (PNG, JPEG,
// GIF, TIFF, BMP and WebP) and georeferences them from a world file when one exists.
type ImageHandler struct {
	Logger *zap.Logger
}

func (h *ImageHandler) Name() string { return "image" }

func (h *ImageHandler) Probe(_ context.Context, r geodata.Resource) (geodata.Resource, error) {
	rc, err := r.Open()
	if err != nil {
		return nil, geodata.IOFailure("image: open "+r.Name(), err)
	}
	defer rc.Close()
	if _, _, err := image.DecodeConfig(rc); err != nil {
		return nil, geodata.ErrNoMatch
	}
	return r, nil
}

func (h *ImageHandler) Decode(ctx context.Context, r geodata.Resource, progress geodata.Progress) (*geodata.Dataset, error) {
	tracker := geodata.NewTracker(progress)
	if !tracker.Report(0) || ctx.Err() != nil {
		return nil, geodata.ErrCancelled
	}

	rc, err := r.Open()
	if err != nil {
		return nil, geodata.IOFailure("image: open "+r.Name(), err)
	}
	defer rc.Close()
	pixels, format, err := image.Decode(rc)
	if err != nil {
		return nil, geodata.Corrupt("image", "decode %s: %v", r.Name(), err)
	}
	im := &geodata.Image{Name: r.Name(), Pixels: pixels, Format: format}

	ref, ok, err := worldfile.Resolve(r)
	if err != nil {
		return nil, err
	}
	if ok {
		ref.Apply(im)
	} else if h.Logger != nil {
		h.Logger.Debug("image has no world file", zap.String("resource", r.ID()))
	}

	if !tracker.Report(100) || ctx.Err() != nil {
		return nil, geodata.ErrCancelled
	}
	return &geodata.Dataset{Image: im}, nil
}
