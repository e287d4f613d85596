package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/beetlebugorg/geoimport/internal/asciigrid"
	"github.com/beetlebugorg/geoimport/internal/config"
	"github.com/beetlebugorg/geoimport/internal/export"
	"github.com/beetlebugorg/geoimport/pkg/geodata"
	"github.com/beetlebugorg/geoimport/pkg/geoimport"
)

const defaultNoData = -9999

func main() {
	fs := flag.NewFlagSet("geoimport", flag.ExitOnError)
	var (
		confFilename = fs.String("config", "", "Sets configuration filename. Built-in defaults when empty.")
		format       = fs.String("format", "summary", "Output format: summary, geojson, msgpack or asc.")
		bbox         = fs.String("bbox", "", "Keep only geometry intersecting minx,miny,maxx,maxy.")
		workers      = fs.Int("workers", 0, "Decoder goroutines. Overrides import.workers; 1 decodes serially.")
		metricsAddr  = fs.String("metrics-addr", "", "Serve Prometheus metrics on this address.")
	)
	fs.Usage = usageFor(fs, os.Args[0]+" [flags] file...")
	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Printf("[ERROR] fs.Parse(%v) => %v\n", os.Args[1:], err)
		os.Exit(1)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	if env := os.Getenv("GEOIMPORT_CONFIG"); len(env) > 0 {
		*confFilename = env
	}
	conf := config.Default()
	if *confFilename != "" {
		var err error
		if conf, err = config.FromFile(*confFilename); err != nil {
			fmt.Printf("[ERROR] config.FromFile(%s) => %v\n", *confFilename, err)
			os.Exit(1)
		}
	}
	if *workers > 0 {
		conf.Import.Workers = *workers
	}
	if *metricsAddr != "" {
		conf.Import.MetricsAddr = *metricsAddr
	}

	logger, err := conf.BuildLogger()
	if err != nil {
		fmt.Printf("[ERROR] conf.BuildLogger() => %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	var filter *geodata.Bounds
	if *bbox != "" {
		b, err := parseBBox(*bbox)
		if err != nil {
			logger.Fatal("invalid -bbox", zap.Error(err))
		}
		filter = &b
	}
	out, err := newWriter(*format, filter)
	if err != nil {
		logger.Fatal("invalid -format", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg, err := geoimport.RegistryFromNames(conf.Registry.Handlers, geoimport.HandlerOptions{
		GridQueueSize: conf.Grid.QueueSize,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("failed to build registry", zap.Error(err))
	}

	opts := []geoimport.Option{geoimport.WithLogger(logger)}
	if conf.Import.MetricsAddr != "" {
		promReg := prometheus.NewRegistry()
		opts = append(opts, geoimport.WithMetrics(geoimport.NewMetrics(promReg)))
		srv := serveMetrics(conf.Import.MetricsAddr, promReg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}
	imp := geoimport.NewImporter(reg, opts...)

	var resources []geodata.Resource
	for _, arg := range fs.Args() {
		r, err := geodata.NewFileResource(arg)
		if err != nil {
			logger.Fatal("invalid path", zap.String("path", arg), zap.Error(err))
		}
		resources = append(resources, r)
	}

	var sink geoimport.Collector
	outcomes := imp.ImportAll(ctx, resources, &sink, geoimport.LoadOptions{
		Parallel: conf.Import.Workers > 1,
		Workers:  conf.Import.Workers,
		Progress: func(done, total int) {
			logger.Debug("import progress", zap.Int("done", done), zap.Int("total", total))
		},
	})

	failed := false
	for _, o := range outcomes {
		if o.Status == geoimport.StatusFailed {
			failed = true
		}
		if err := out.write(os.Stdout, o); err != nil {
			logger.Error("failed to write output", zap.String("resource", o.Resource), zap.Error(err))
			failed = true
		}
	}
	if ctx.Err() != nil {
		logger.Warn("interrupted")
		os.Exit(130)
	}
	if failed {
		os.Exit(1)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	return srv
}

func parseBBox(s string) (geodata.Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geodata.Bounds{}, fmt.Errorf("want minx,miny,maxx,maxy, got %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geodata.Bounds{}, fmt.Errorf("bbox value %d: %w", i+1, err)
		}
		v[i] = f
	}
	b := geodata.Bounds{MinX: v[0], MinY: v[1], MaxX: v[2], MaxY: v[3]}
	if b.IsEmpty() {
		return geodata.Bounds{}, fmt.Errorf("empty bbox %q", s)
	}
	return b, nil
}

// writer renders outcomes in the selected output format.
type writer struct {
	format string
	filter *geodata.Bounds
}

func newWriter(format string, filter *geodata.Bounds) (*writer, error) {
	switch format {
	case "summary", "geojson", "msgpack", "asc":
		return &writer{format: format, filter: filter}, nil
	}
	return nil, fmt.Errorf("unknown format %q", format)
}

func (w *writer) write(out io.Writer, o geoimport.Outcome) error {
	if w.format == "summary" || o.Status != geoimport.StatusDecoded {
		return w.summary(out, o)
	}
	ds := w.clip(o.Dataset)
	switch w.format {
	case "geojson":
		if err := export.WriteGeoJSON(out, ds); err != nil {
			return err
		}
		_, err := io.WriteString(out, "\n")
		return err
	case "msgpack":
		return export.WriteSnapshot(out, export.NewSnapshot(o.ID, o.Canonical, ds))
	case "asc":
		if ds.Grid == nil {
			return fmt.Errorf("%s holds %s data, not a grid", o.Canonical, ds.Kind())
		}
		return asciigrid.Encode(out, ds.Grid, defaultNoData)
	}
	return nil
}

func (w *writer) summary(out io.Writer, o geoimport.Outcome) error {
	var detail string
	switch o.Status {
	case geoimport.StatusDecoded:
		ds := w.clip(o.Dataset)
		detail = describe(ds)
	case geoimport.StatusFailed:
		detail = fmt.Sprintf("%s: %v", o.Kind, o.Err)
	case geoimport.StatusNoMatch:
		detail = "unsupported format"
	}
	name := o.Canonical
	if name == "" {
		name = o.Resource
	}
	_, err := fmt.Fprintf(out, "%-9s %-9s %s %s\n", o.Status, o.Handler, name, detail)
	return err
}

// clip keeps only the top-level children intersecting the -bbox filter. Table links
// no longer line up with a clipped collection and are dropped.
func (w *writer) clip(ds *geodata.Dataset) *geodata.Dataset {
	if w.filter == nil || ds.Collection == nil {
		return ds
	}
	c := geodata.NewCollection(ds.Collection.Name)
	c.ID, c.HasID, c.Symbol = ds.Collection.ID, ds.Collection.HasID, ds.Collection.Symbol
	for _, e := range geodata.NewIndex(ds.Collection).Search(*w.filter) {
		c.Add(e)
	}
	return &geodata.Dataset{Collection: c}
}

func describe(ds *geodata.Dataset) string {
	b := ds.Bounds()
	extent := "no extent"
	if !b.IsEmpty() {
		extent = fmt.Sprintf("[%g %g %g %g]", b.MinX, b.MinY, b.MaxX, b.MaxY)
	}
	switch {
	case ds.Collection != nil:
		s := fmt.Sprintf("%d features %s", ds.Collection.Len(), extent)
		if ds.Link != nil {
			s += fmt.Sprintf(" %d attribute rows", ds.Link.Rows())
		}
		return s
	case ds.Grid != nil:
		return fmt.Sprintf("grid %dx%d cell %g %s", ds.Grid.Cols, ds.Grid.Rows, ds.Grid.CellSize, extent)
	case ds.Image != nil:
		return fmt.Sprintf("%s image %dx%d %s", ds.Image.Format, ds.Image.Width(), ds.Image.Height(), extent)
	}
	return ds.Kind()
}

func usageFor(fs *flag.FlagSet, short string) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "USAGE\n")
		fmt.Fprintf(os.Stderr, "  %s\n", short)
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "FLAGS\n")
		w := tabwriter.NewWriter(os.Stderr, 0, 2, 2, ' ', 0)
		fs.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(w, "\t-%s %s\t%s\n", f.Name, f.DefValue, f.Usage)
		})
		w.Flush()
		fmt.Fprintf(os.Stderr, "\n")
	}
}
