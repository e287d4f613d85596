package geoimport

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/beetlebugorg/geoimport/pkg/geodata"
)

// DefaultHandlerOrder is the probe order used when no order is configured.
var DefaultHandlerOrder = []string{"shapefile", "asciigrid", "image"}

// HandlerOptions configures the built-in handlers.
type HandlerOptions struct {
	// Factory creates the geometry elements produced by vector handlers.
	Factory geodata.Factory

	// GridQueueSize bounds the ASCII grid line queue. Zero uses the decoder default.
	GridQueueSize int

	Logger *zap.Logger
}

var constructors = map[string]func(HandlerOptions) Handler{
	"shapefile": func(o HandlerOptions) Handler { return &ShapefileHandler{Factory: o.Factory} },
	"asciigrid": func(o HandlerOptions) Handler { return &GridHandler{QueueSize: o.GridQueueSize} },
	"image":     func(o HandlerOptions) Handler { return &ImageHandler{Logger: o.Logger} },
}

// Registry is an ordered list of handlers. It is read-only after construction and
// safe for concurrent use.
type Registry struct {
	handlers []Handler
	logger   *zap.Logger
	metrics  *Metrics
}

// NewRegistry returns a registry probing handlers in the given order.
func NewRegistry(handlers ...Handler) *Registry {
	return &Registry{
		handlers: append([]Handler(nil), handlers...),
		logger:   zap.NewNop(),
	}
}

// RegistryFromNames builds a registry from handler names in priority order. An empty
// list selects DefaultHandlerOrder. Unknown names are an error.
func RegistryFromNames(names []string, opts HandlerOptions) (*Registry, error) {
	if len(names) == 0 {
		names = DefaultHandlerOrder
	}
	handlers := make([]Handler, 0, len(names))
	for _, name := range names {
		mk, ok := constructors[name]
		if !ok {
			return nil, fmt.Errorf("geoimport: unknown handler %q", name)
		}
		handlers = append(handlers, mk(opts))
	}
	r := NewRegistry(handlers...)
	if opts.Logger != nil {
		r = r.WithLogger(opts.Logger)
	}
	return r, nil
}

// WithLogger returns a copy of r that logs failed probes to l.
func (r *Registry) WithLogger(l *zap.Logger) *Registry {
	c := *r
	c.logger = l
	return &c
}

// WithMetrics returns a copy of r that counts failed probes in m.
func (r *Registry) WithMetrics(m *Metrics) *Registry {
	c := *r
	c.metrics = m
	return &c
}

// Handlers returns the handlers in priority order.
func (r *Registry) Handlers() []Handler {
	return append([]Handler(nil), r.handlers...)
}

// Detect returns the first handler, in priority order, whose probe accepts res.
func (r *Registry) Detect(ctx context.Context, res geodata.Resource) (Match, bool) {
	for _, h := range r.handlers {
		canon, err := probe(ctx, h, res)
		if err != nil {
			r.probeFailed(err)
			continue
		}
		return Match{Handler: h, Resource: canon}, true
	}
	return Match{}, false
}

func (r *Registry) probeFailed(err error) {
	var pe *ProbeError
	if !errors.As(err, &pe) {
		return
	}
	r.logger.Debug("probe failed",
		zap.String("handler", pe.Handler),
		zap.String("resource", pe.Resource),
		zap.Bool("panic", pe.Panic),
		zap.Error(pe.Err))
	if r.metrics != nil {
		r.metrics.ProbeFailures.WithLabelValues(pe.Handler).Inc()
	}
}

// DetectMany resolves a batch of resources, keyed by canonical resource ID. Sibling
// files of one dataset collapse into a single entry.
// The first resource to resolve to a canonical ID wins.
func (r *Registry) DetectMany(ctx context.Context, rs []geodata.Resource) map[string]Match {
	out := make(map[string]Match)
	for _, res := range rs {
		m, ok := r.Detect(ctx, res)
		if !ok {
			continue
		}
		if _, dup := out[m.Resource.ID()]; !dup {
			out[m.Resource.ID()] = m
		}
	}
	return out
}
