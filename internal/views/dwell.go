package views

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultDwell is how long a post must stay on screen to count as viewed
const DefaultDwell = 30 * time.Second

// Marker records a post as viewed
type Marker interface {
	MarkViewed(id int64) error
}

// DwellTracker marks a post viewed once it stayed visible for the dwell
// time. Time is read through now so tests can drive it.
type DwellTracker struct {
	marker Marker
	dwell  time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu      sync.Mutex
	entered map[int64]time.Time
}

// NewDwellTracker creates a tracker. A zero dwell uses DefaultDwell and a nil
// now uses time.Now.
func NewDwellTracker(m Marker, dwell time.Duration, now func() time.Time) *DwellTracker {
	if dwell <= 0 {
		dwell = DefaultDwell
	}
	if now == nil {
		now = time.Now
	}
	return &DwellTracker{
		marker:  m,
		dwell:   dwell,
		now:     now,
		logger:  zap.NewNop(),
		entered: make(map[int64]time.Time),
	}
}

// WithLogger sets the logger used for failed marks
func (d *DwellTracker) WithLogger(l *zap.Logger) *DwellTracker {
	d.logger = l
	return d
}

// Enter starts the visibility clock of id. Re-entering keeps the first
// start.
func (d *DwellTracker) Enter(id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entered[id]; !ok {
		d.entered[id] = d.now()
	}
}

// Leave stops the clock of id and marks it viewed when the dwell time was
// reached. It reports whether the post was marked.
func (d *DwellTracker) Leave(id int64) bool {
	d.mu.Lock()
	start, ok := d.entered[id]
	delete(d.entered, id)
	d.mu.Unlock()

	if !ok || d.now().Sub(start) < d.dwell {
		return false
	}
	return d.mark(id)
}

// Tick marks every visible post whose dwell time elapsed and returns their
// ids. Marked posts stop being tracked.
func (d *DwellTracker) Tick() []int64 {
	now := d.now()
	d.mu.Lock()
	var due []int64
	for id, start := range d.entered {
		if now.Sub(start) >= d.dwell {
			due = append(due, id)
			delete(d.entered, id)
		}
	}
	d.mu.Unlock()

	marked := due[:0]
	for _, id := range due {
		if d.mark(id) {
			marked = append(marked, id)
		}
	}
	return marked
}

func (d *DwellTracker) mark(id int64) bool {
	if err := d.marker.MarkViewed(id); err != nil {
		d.logger.Warn("Failed to mark post viewed", zap.Int64("post_id", id), zap.Error(err))
		return false
	}
	return true
}
