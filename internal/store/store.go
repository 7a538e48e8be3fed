package store

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Vanequal/ideafeed/internal/models"
	"github.com/Vanequal/ideafeed/pkg/logging"
)

// CommentStatus is the per-post state of the comment loader
type CommentStatus int

const (
	CommentsNotRequested CommentStatus = iota
	CommentsLoading
	CommentsLoaded
	CommentsFailed
)

func (s CommentStatus) String() string {
	switch s {
	case CommentsLoading:
		return "loading"
	case CommentsLoaded:
		return "loaded"
	case CommentsFailed:
		return "error"
	default:
		return "not_requested"
	}
}

// Change is sent to subscribers after every dispatch
type Change struct {
	Action string
	PostID int64
}

const subscriberBuffer = 32

// Store is the single-writer cache of posts, comments and session data.
// Every action is applied under the store lock; selectors return copies.
type Store struct {
	mu     sync.RWMutex
	st     state
	subs   map[int]chan Change
	nextID int
	logger *zap.Logger
}

// New creates an empty store
func New() *Store {
	return &Store{
		st:     newState(),
		subs:   make(map[int]chan Change),
		logger: logging.WithComponent("store"),
	}
}

// Dispatch applies a and notifies subscribers
func (s *Store) Dispatch(a Action) {
	s.mu.Lock()
	id := reduce(&s.st, a)
	s.notify(Change{Action: a.Type(), PostID: id})
	s.mu.Unlock()

	if ce := s.logger.Check(zap.DebugLevel, "Dispatched"); ce != nil {
		ce.Write(zap.String("action", a.Type()), zap.Int64("post_id", id))
	}
}

// BeginComments marks the comments of id as loading and returns true, unless
// they are already loaded or loading. Exactly one of any number of
// concurrent callers gets true.
func (s *Store) BeginComments(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.comments[id]; ok {
		return false
	}
	if s.st.commentsLoading[id] {
		return false
	}
	a := CommentsPending{ID: id}
	reduce(&s.st, a)
	s.notify(Change{Action: a.Type(), PostID: id})
	return true
}

// Subscribe returns a channel of change notices and a function that cancels
// the subscription. Notices are dropped for subscribers that fall behind.
func (s *Store) Subscribe() (<-chan Change, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Change, subscriberBuffer)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			close(ch)
			s.mu.Unlock()
		})
	}
}

// notify must be called with the lock held
func (s *Store) notify(c Change) {
	for _, ch := range s.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

// Post returns the cached post with id
func (s *Store) Post(id int64) (models.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.st.index[id]
	if !ok {
		return models.Post{}, false
	}
	return s.st.posts[i], true
}

// Posts returns the cached posts of a section in arrival order. A zero
// themeID matches every theme.
func (s *Store) Posts(sectionCode string, themeID int64) []models.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := pairKey{sectionCode, themeID}
	out := make([]models.Post, 0, len(s.st.posts))
	for _, p := range s.st.posts {
		if key.matches(p) {
			out = append(out, p)
		}
	}
	return out
}

// PostsLoaded reports whether a list load for the pair has completed
func (s *Store) PostsLoaded(sectionCode string, themeID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.loaded[pairKey{sectionCode, themeID}]
}

// PostsLoading reports whether a list load for the pair is in flight
func (s *Store) PostsLoading(sectionCode string, themeID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.loading[pairKey{sectionCode, themeID}]
}

// Error returns the message of the last failed list load, if any
func (s *Store) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.err
}

// Comments returns the comment thread of a post and whether it is loaded
func (s *Store) Comments(id int64) ([]models.Comment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.st.comments[id]
	if !ok {
		return nil, false
	}
	return append([]models.Comment(nil), c...), true
}

// CommentStatus returns the loader state of the comments of a post
func (s *Store) CommentStatus(id int64) CommentStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch {
	case s.st.commentsLoading[id]:
		return CommentsLoading
	case s.st.comments[id] != nil:
		return CommentsLoaded
	case s.st.commentErrors[id] != "":
		return CommentsFailed
	default:
		return CommentsNotRequested
	}
}

// CommentError returns the message of the last failed comment load of a post
func (s *Store) CommentError(id int64) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.commentErrors[id]
}

// Theme returns cached theme metadata
func (s *Store) Theme(id int64) (models.Theme, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.st.themes[id]
	return t, ok
}

// Me returns the signed-in user, if fetched
func (s *Store) Me() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.st.me == nil {
		return models.User{}, false
	}
	return *s.st.me, true
}
