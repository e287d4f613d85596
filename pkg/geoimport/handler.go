package geoimport

import (
	"context"
	"errors"
	"fmt"

	"github.com/beetlebugorg/geoimport/pkg/geodata"
)

// Handler decodes one file format.
//
// Probe must not change the resource; it may open and consume separate reads of it
// and of its siblings. It returns the canonical resource to decode, which differs from
// the probed one when the format spans several files (a .dbf resolves to its .shp).
// A handler that does not recognise the resource returns geodata.ErrNoMatch. Any other
// error is also treated as no match, but is reported.
//
// Decode builds a dataset from the canonical resource. It must return
// geodata.ErrCancelled, and no dataset, when progress asks it to stop or ctx is done.
type Handler interface {
	Name() string
	Probe(ctx context.Context, r geodata.Resource) (geodata.Resource, error)
	Decode(ctx context.Context, r geodata.Resource, progress geodata.Progress) (*geodata.Dataset, error)
}

// Match pairs a handler with the canonical resource it claimed.
type Match struct {
	Handler  Handler
	Resource geodata.Resource
}

// ProbeError records a probe that failed for a reason other than not recognising
// the resource. Panics inside Probe are reported with Panic set.
type ProbeError struct {
	Handler  string
	Resource string
	Panic    bool
	Err      error
}

func (e *ProbeError) Error() string {
	if e.Panic {
		return fmt.Sprintf("probe %s on %s: panic: %v", e.Handler, e.Resource, e.Err)
	}
	return fmt.Sprintf("probe %s on %s: %v", e.Handler, e.Resource, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// probe runs h.Probe, converting panics into a *ProbeError. A declined probe
// returns geodata.ErrNoMatch unchanged.
func probe(ctx context.Context, h Handler, r geodata.Resource) (canon geodata.Resource, err error) {
	defer func() {
		if p := recover(); p != nil {
			canon = nil
			err = &ProbeError{Handler: h.Name(), Resource: r.ID(), Panic: true, Err: fmt.Errorf("%v", p)}
		}
	}()
	canon, err = h.Probe(ctx, r)
	switch {
	case err == nil && canon == nil:
		return nil, &ProbeError{Handler: h.Name(), Resource: r.ID(), Err: errors.New("no canonical resource")}
	case err != nil && !errors.Is(err, geodata.ErrNoMatch):
		return nil, &ProbeError{Handler: h.Name(), Resource: r.ID(), Err: err}
	}
	return canon, err
}

// decode runs h.Decode, converting panics into an I/O failure.
func decode(ctx context.Context, h Handler, r geodata.Resource, progress geodata.Progress) (ds *geodata.Dataset, err error) {
	defer func() {
		if p := recover(); p != nil {
			ds = nil
			err = geodata.IOFailure(h.Name(), fmt.Errorf("decoder panic: %v", p))
		}
	}()
	ds, err = h.Decode(ctx, r, progress)
	if err == nil && ds == nil {
		err = geodata.IOFailure(h.Name(), errors.New("decoder returned no dataset"))
	}
	return ds, err
}
