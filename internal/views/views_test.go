package views

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vanequal/ideafeed/pkg/config"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMarkViewedIsIdempotent(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.MarkViewed(1))
	require.NoError(t, s.MarkViewed(1))

	viewed, err := s.Viewed()
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{1: true}, viewed)

	ok, err := s.IsViewed(1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsViewed(2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkViewedNoCrossKeyInterference(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.MarkViewed(10))
	require.NoError(t, s.MarkViewed(100))
	require.NoError(t, s.MarkViewed(1))

	viewed, err := s.Viewed()
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{1: true, 10: true, 100: true}, viewed)

	ok, err := s.IsViewed(11)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestViewersAreIsolated(t *testing.T) {
	s := openTestStore(t)
	ann, bob := s.For("ann"), s.For("bob/1")

	require.NoError(t, ann.MarkViewed(5))
	require.NoError(t, bob.MarkViewed(6))
	require.NoError(t, ann.Close(), "closing a viewer keeps the database open")

	tests := []struct {
		name  string
		store *Store
		want  map[int64]bool
	}{
		{"ann", ann, map[int64]bool{5: true}},
		{"bob", bob, map[int64]bool{6: true}},
		{"local", s, map[int64]bool{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viewed, err := tt.store.Viewed()
			require.NoError(t, err)
			assert.Equal(t, tt.want, viewed)
		})
	}
}

func TestStorePersists(t *testing.T) {
	cfg := &config.ViewsConfig{Path: t.TempDir()}

	s, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, s.MarkViewed(42))
	require.NoError(t, s.Close())

	s, err = Open(cfg)
	require.NoError(t, err)
	defer s.Close()

	ok, err := s.IsViewed(42)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(&config.ViewsConfig{})
	assert.Error(t, err)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestDwellTracker(t *testing.T) {
	s := openTestStore(t)
	clock := &fakeClock{t: time.Unix(0, 0)}
	d := NewDwellTracker(s, 0, clock.Now)

	d.Enter(1)
	clock.Advance(29 * time.Second)
	assert.False(t, d.Leave(1), "left before the dwell time")

	d.Enter(1)
	d.Enter(2)
	clock.Advance(10 * time.Second)
	d.Enter(1) // re-entering keeps the first start
	clock.Advance(20 * time.Second)
	assert.True(t, d.Leave(1))

	clock.Advance(5 * time.Second)
	assert.Equal(t, []int64{2}, d.Tick())
	assert.Empty(t, d.Tick())
	assert.False(t, d.Leave(2), "already marked by Tick")

	viewed, err := s.Viewed()
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{1: true, 2: true}, viewed)
}

type failingMarker struct{}

func (failingMarker) MarkViewed(int64) error { return errors.New("disk full") }

func TestDwellTrackerMarkFailure(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	d := NewDwellTracker(failingMarker{}, time.Second, clock.Now)

	d.Enter(1)
	clock.Advance(time.Second)
	assert.False(t, d.Leave(1))
}
