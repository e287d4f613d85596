// Package geoimport detects the format of geospatial files and decodes them into the
// geodata model.
//
// A Registry holds format handlers in priority order. The Importer asks the registry
// which handler claims a resource, runs that handler's decoder and hands the result
// to a ResultSink:
//
//	reg, _ := geoimport.RegistryFromNames(nil, geoimport.HandlerOptions{})
//	imp := geoimport.NewImporter(reg, geoimport.WithLogger(logger))
//
//	res, _ := geodata.NewFileResource("roads.dbf") // resolves to roads.shp
//	out := imp.Import(ctx, res, sink, nil)
//	if out.Status == geoimport.StatusNoMatch {
//	    fmt.Println("unsupported format")
//	}
//
// Decoding never delivers partial results: a resource yields either its full
// dataset, one OnError call, or nothing at all when it was cancelled or not
// recognised.
package geoimport

import (
	"context"
	"sync"
	"time"

	"github.com/rs/xid"
	"go.uber.org/zap"

	"github.com/beetlebugorg/geoimport/pkg/geodata"
)

// Status is the result class of one import.
type Status int

const (
	StatusNoMatch Status = iota
	StatusDecoded
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusNoMatch:
		return "no_match"
	case StatusDecoded:
		return "decoded"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome describes one import.
type Outcome struct {
	// ID correlates log lines and sink calls of one import.
	ID string

	// Resource is the ID of the resource passed in; Canonical is the ID of the
	// resource actually decoded. Canonical is empty for StatusNoMatch.
	Resource  string
	Canonical string
	Handler   string

	Status  Status
	Kind    geodata.Kind
	Err     error
	Dataset *geodata.Dataset

	Duration time.Duration
}

// Importer runs detection, decoding and delivery.
type Importer struct {
	registry  *Registry
	logger    *zap.Logger
	loggerSet bool
	metrics   *Metrics
}

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets the logger of the importer and its registry. The default discards
// everything.
func WithLogger(l *zap.Logger) Option {
	return func(im *Importer) {
		if l != nil {
			im.logger, im.loggerSet = l, true
		}
	}
}

// WithMetrics records import counts and decode durations in m.
func WithMetrics(m *Metrics) Option {
	return func(im *Importer) { im.metrics = m }
}

// NewImporter returns an importer using reg.
func NewImporter(reg *Registry, opts ...Option) *Importer {
	im := &Importer{registry: reg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(im)
	}
	if im.metrics != nil {
		im.registry = im.registry.WithMetrics(im.metrics)
	}
	if im.loggerSet {
		im.registry = im.registry.WithLogger(im.logger)
	}
	return im
}

// Registry returns the registry the importer detects with.
func (im *Importer) Registry() *Registry { return im.registry }

// Import detects and decodes r. Decoded datasets and failures go to sink; a
// StatusNoMatch or StatusCancelled outcome reaches the sink not at all. progress
// may be nil.
func (im *Importer) Import(ctx context.Context, r geodata.Resource, sink ResultSink, progress geodata.Progress) Outcome {
	m, ok := im.registry.Detect(ctx, r)
	if !ok {
		out := Outcome{ID: xid.New().String(), Resource: r.ID(), Status: StatusNoMatch}
		im.finish(out)
		return out
	}
	out := im.decode(ctx, r.ID(), m, progress)
	im.deliver(sink, nil, out)
	im.finish(out)
	return out
}

func (im *Importer) decode(ctx context.Context, resourceID string, m Match, progress geodata.Progress) Outcome {
	out := Outcome{
		ID:        xid.New().String(),
		Resource:  resourceID,
		Canonical: m.Resource.ID(),
		Handler:   m.Handler.Name(),
	}
	if progress == nil {
		progress = geodata.NopProgress{}
	}

	start := time.Now()
	if ctx.Err() != nil {
		out.Status, out.Kind, out.Err = StatusCancelled, geodata.KindCancelled, geodata.ErrCancelled
		return out
	}
	progress.Start()
	ds, err := decode(ctx, m.Handler, m.Resource, progress)
	progress.Finish()
	out.Duration = time.Since(start)
	if im.metrics != nil {
		im.metrics.DecodeDuration.WithLabelValues(out.Handler).Observe(out.Duration.Seconds())
	}

	switch kind := geodata.KindOf(err); {
	case err == nil:
		out.Status, out.Dataset = StatusDecoded, ds
	case kind == geodata.KindCancelled:
		out.Status, out.Kind, out.Err = StatusCancelled, kind, err
	default:
		out.Status, out.Kind, out.Err = StatusFailed, kind, err
	}
	return out
}

// deliver hands a finished outcome to the sink. When mu is set, all calls for the
// outcome are made while holding it.
func (im *Importer) deliver(sink ResultSink, mu sync.Locker, out Outcome) {
	if sink == nil || (out.Status != StatusDecoded && out.Status != StatusFailed) {
		return
	}
	if mu != nil {
		mu.Lock()
		defer mu.Unlock()
	}

	if out.Status == StatusFailed {
		sink.OnError(out.Kind, out.Err.Error(), out.Canonical)
		return
	}
	ds := out.Dataset
	switch {
	case ds.Collection != nil:
		sink.OnGeometry(out.Canonical, ds.Collection)
	case ds.Grid != nil:
		sink.OnRaster(out.Canonical, ds.Grid)
	case ds.Image != nil:
		sink.OnImage(out.Canonical, ds.Image)
	}
	if ds.Link != nil {
		sink.OnTableLink(out.Canonical, ds.Link)
	}
}

func (im *Importer) finish(out Outcome) {
	handler := out.Handler
	if handler == "" {
		handler = "none"
	}
	if im.metrics != nil {
		im.metrics.Imports.WithLabelValues(handler, out.Status.String()).Inc()
	}

	fields := []zap.Field{
		zap.String("import_id", out.ID),
		zap.String("resource", out.Resource),
		zap.String("handler", handler),
		zap.Stringer("status", out.Status),
		zap.Duration("duration", out.Duration),
	}
	switch out.Status {
	case StatusFailed:
		im.logger.Warn("import failed", append(fields, zap.Stringer("kind", out.Kind), zap.Error(out.Err))...)
	case StatusNoMatch:
		im.logger.Info("no handler for resource", fields...)
	default:
		if out.Canonical != out.Resource {
			fields = append(fields, zap.String("canonical", out.Canonical))
		}
		if out.Dataset != nil {
			fields = append(fields, zap.String("payload", out.Dataset.Kind()))
		}
		im.logger.Info("import finished", fields...)
	}
}
