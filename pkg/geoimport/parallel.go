package geoimport

import (
	"context"
	"runtime"
	"sync"

	"github.com/rs/xid"

	"github.com/beetlebugorg/geoimport/pkg/geodata"
)

// LoadOptions controls batch imports.
type LoadOptions struct {
	// Parallel enables concurrent decoding.
	// When true, datasets are decoded by multiple worker goroutines.
	Parallel bool

	// Workers specifies the number of decoder goroutines.
	// If 0, defaults to runtime.NumCPU().
	// Only used when Parallel is true.
	Workers int

	// Progress is an optional callback for tracking batch progress.
	// Called after each dataset finishes, whatever its outcome.
	// Parameters: (done, total) where total counts distinct datasets.
	Progress func(done, total int)

	// DecodeProgress optionally returns the per-dataset progress sink.
	// It may be called from several goroutines.
	DecodeProgress func(m Match) geodata.Progress
}

// DefaultLoadOptions returns load options with sensible defaults.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		Parallel: true,
		Workers:  runtime.NumCPU(),
	}
}

// ImportAll imports a batch of resources.
//
// Resources are first resolved with the registry; sibling files of one dataset
// collapse into one import. Each distinct dataset is then decoded, concurrently
// when opts.Parallel is set, and delivered to sink. Sink calls never overlap, and
// all calls for one dataset are made together. A failure does not stop the batch.
//
// The returned outcomes follow input order: one per distinct dataset, at the
// position of the first resource that referenced it, and one StatusNoMatch outcome
// per unrecognised resource.
//
// Example:
//
//	outcomes := imp.ImportAll(ctx, resources, sink, geoimport.LoadOptions{
//	    Parallel: true,
//	    Workers:  8,
//	    Progress: func(done, total int) {
//	        fmt.Printf("\rImporting: %d/%d", done, total)
//	    },
//	})
func (im *Importer) ImportAll(ctx context.Context, rs []geodata.Resource, sink ResultSink, opts LoadOptions) []Outcome {
	if len(rs) == 0 {
		return nil
	}

	// Resolve in input order, remembering where each outcome goes.
	type job struct {
		slot     int
		resource string
		match    Match
	}
	var (
		jobs     []job
		outcomes []Outcome
		seen     = make(map[string]bool)
	)
	for _, r := range rs {
		m, ok := im.registry.Detect(ctx, r)
		if !ok {
			out := Outcome{ID: xid.New().String(), Resource: r.ID(), Status: StatusNoMatch}
			im.finish(out)
			outcomes = append(outcomes, out)
			continue
		}
		id := m.Resource.ID()
		if seen[id] {
			continue
		}
		seen[id] = true
		jobs = append(jobs, job{slot: len(outcomes), resource: r.ID(), match: m})
		outcomes = append(outcomes, Outcome{})
	}
	if len(jobs) == 0 {
		return outcomes
	}

	var (
		sinkMu sync.Mutex
		doneMu sync.Mutex
		done   int
	)
	run := func(j job) {
		var progress geodata.Progress
		if opts.DecodeProgress != nil {
			progress = opts.DecodeProgress(j.match)
		}
		out := im.decode(ctx, j.resource, j.match, progress)
		im.deliver(sink, &sinkMu, out)
		im.finish(out)
		outcomes[j.slot] = out

		if opts.Progress != nil {
			doneMu.Lock()
			done++
			opts.Progress(done, len(jobs))
			doneMu.Unlock()
		}
	}

	// If parallel loading disabled, fall back to serial
	if !opts.Parallel {
		for _, j := range jobs {
			run(j)
		}
		return outcomes
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	queue := make(chan job, len(jobs))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range queue {
				run(j)
			}
		}()
	}
	for _, j := range jobs {
		queue <- j
	}
	close(queue)
	wg.Wait()

	return outcomes
}
