package geodata

// Progress receives decode progress. Report returns false to request cancellation.
type Progress interface {
	Start()
	Report(percent int) bool
	Finish()
}

// NopProgress ignores all reports and never cancels.
type NopProgress struct{}

func (NopProgress) Start() {}
func (NopProgress) Report(int) bool { return true }
func (NopProgress) Finish() {}

// ProgressFunc adapts a function to Progress. Start and Finish are no-ops.
type ProgressFunc func(percent int) bool

func (f ProgressFunc) Start() {}
func (f ProgressFunc) Report(percent int) bool { return f(percent) }
func (f ProgressFunc) Finish() {}

// Tracker forwards reports to a Progress, clamping them to 0..100 and keeping them
// non-decreasing. Once the downstream requests cancellation the tracker stays cancelled
// and stops forwarding.
//
// A Tracker is owned by one goroutine.
type Tracker struct {
	p         Progress
	last      int
	cancelled bool
}

// NewTracker wraps p. A nil p never cancels.
func NewTracker(p Progress) *Tracker {
	if p == nil {
		p = NopProgress{}
	}
	return &Tracker{p: p, last: -1}
}

// Report forwards percent and reports whether decoding should continue.
func (t *Tracker) Report(percent int) bool {
	if t.cancelled {
		return false
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if percent < t.last {
		percent = t.last
	}
	t.last = percent
	if !t.p.Report(percent) {
		t.cancelled = true
		return false
	}
	return true
}

// Cancelled reports whether the downstream requested a stop.
func (t *Tracker) Cancelled() bool { return t.cancelled }

// Percent returns the last forwarded value, or -1.
func (t *Tracker) Percent() int { return t.last }
