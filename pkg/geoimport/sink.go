package geoimport

import (
	"sync"

	"github.com/beetlebugorg/geoimport/pkg/geodata"
)

// ResultSink receives decoded data. For one resource it receives either the decoded
// payload, followed by its table link when there is one, or a single OnError call.
// Cancelled and unrecognised resources produce no calls.
type ResultSink interface {
	OnGeometry(resourceID string, c *geodata.Collection)
	OnRaster(resourceID string, g *geodata.Grid)
	OnImage(resourceID string, im *geodata.Image)
	OnTableLink(resourceID string, link *geodata.TableLink)
	OnError(kind geodata.Kind, msg string, resourceID string)
}

// SinkFuncs adapts functions to ResultSink. Nil fields ignore their calls.
type SinkFuncs struct {
	Geometry  func(resourceID string, c *geodata.Collection)
	Raster    func(resourceID string, g *geodata.Grid)
	Image     func(resourceID string, im *geodata.Image)
	TableLink func(resourceID string, link *geodata.TableLink)
	Error     func(kind geodata.Kind, msg string, resourceID string)
}

func (f SinkFuncs) OnGeometry(id string, c *geodata.Collection) {
	if f.Geometry != nil {
		f.Geometry(id, c)
	}
}

func (f SinkFuncs) OnRaster(id string, g *geodata.Grid) {
	if f.Raster != nil {
		f.Raster(id, g)
	}
}

func (f SinkFuncs) OnImage(id string, im *geodata.Image) {
	if f.Image != nil {
		f.Image(id, im)
	}
}

func (f SinkFuncs) OnTableLink(id string, link *geodata.TableLink) {
	if f.TableLink != nil {
		f.TableLink(id, link)
	}
}

func (f SinkFuncs) OnError(kind geodata.Kind, msg, id string) {
	if f.Error != nil {
		f.Error(kind, msg, id)
	}
}

// Delivery is one sink call recorded by a Collector.
type Delivery struct {
	ResourceID string
	Collection *geodata.Collection
	Grid       *geodata.Grid
	Image      *geodata.Image
	Link       *geodata.TableLink
}

// Failure is one OnError call recorded by a Collector.
type Failure struct {
	ResourceID string
	Kind       geodata.Kind
	Msg        string
}

// Collector is a ResultSink that records every call. It is safe for concurrent use.
type Collector struct {
	mu         sync.Mutex
	deliveries []Delivery
	failures   []Failure
}

func (c *Collector) add(d Delivery) {
	c.mu.Lock()
	c.deliveries = append(c.deliveries, d)
	c.mu.Unlock()
}

func (c *Collector) OnGeometry(id string, g *geodata.Collection) {
	c.add(Delivery{ResourceID: id, Collection: g})
}

func (c *Collector) OnRaster(id string, g *geodata.Grid) {
	c.add(Delivery{ResourceID: id, Grid: g})
}

func (c *Collector) OnImage(id string, im *geodata.Image) {
	c.add(Delivery{ResourceID: id, Image: im})
}

func (c *Collector) OnTableLink(id string, link *geodata.TableLink) {
	c.add(Delivery{ResourceID: id, Link: link})
}

func (c *Collector) OnError(kind geodata.Kind, msg, id string) {
	c.mu.Lock()
	c.failures = append(c.failures, Failure{ResourceID: id, Kind: kind, Msg: msg})
	c.mu.Unlock()
}

// Deliveries returns the recorded payload calls in arrival order.
func (c *Collector) Deliveries() []Delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Delivery(nil), c.deliveries...)
}

// Failures returns the recorded OnError calls in arrival order.
func (c *Collector) Failures() []Failure {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Failure(nil), c.failures...)
}
