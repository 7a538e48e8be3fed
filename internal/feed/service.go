package feed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Vanequal/ideafeed/internal/backend"
	"github.com/Vanequal/ideafeed/internal/cache"
	"github.com/Vanequal/ideafeed/internal/models"
	"github.com/Vanequal/ideafeed/internal/store"
	"github.com/Vanequal/ideafeed/pkg/logging"
	"github.com/Vanequal/ideafeed/pkg/telemetry"
)

// ErrEmptySubmission is returned when text is blank and nothing is attached.
// No request is sent.
var ErrEmptySubmission = errors.New("nothing to submit")

// Backend is the part of the REST client the service drives
type Backend interface {
	ListPosts(ctx context.Context, q backend.PostsQuery) ([]models.Post, error)
	GetPost(ctx context.Context, section string, postID, themeID int64) (models.Post, error)
	ListComments(ctx context.Context, section string, postID, themeID int64) ([]models.Comment, error)
	GetAttachments(ctx context.Context, messageID int64) ([]models.Attachment, error)
	GetReactions(ctx context.Context, messageID int64) (models.Reactions, error)
	React(ctx context.Context, req backend.ReactionRequest) (models.Reactions, error)
	CreatePost(ctx context.Context, req backend.CreatePostRequest) (models.Post, error)
	CreateTask(ctx context.Context, req backend.CreateTaskRequest) (models.Post, error)
	CreateComment(ctx context.Context, req backend.CommentRequest) (models.Post, error)
	CreateTaskComment(ctx context.Context, req backend.CommentRequest) (models.Post, error)
	AcceptTask(ctx context.Context, req backend.TaskTransitionRequest) error
	CompleteTask(ctx context.Context, req backend.TaskTransitionRequest) error
	Preview(ctx context.Context, req backend.PreviewRequest) (string, error)
	GetTheme(ctx context.Context, themeID int64) (models.Theme, error)
	Me(ctx context.Context) (models.User, error)
}

// Service runs backend calls and records their outcome in the store
type Service struct {
	client   Backend
	store    *store.Store
	validate *validator.Validate
	flight   singleflight.Group
	pageSize int

	snapshots *cache.Cache
	scope     string

	logger *zap.Logger
}

// Option customizes a Service
type Option func(*Service)

// WithPageSize sets the default list limit
func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithSnapshots serves first pages from a shared cache. scope separates
// viewers, since reaction state is per viewer.
func WithSnapshots(c *cache.Cache, scope string) Option {
	return func(s *Service) {
		s.snapshots = c
		s.scope = scope
	}
}

// NewService creates a service writing into st
func NewService(client Backend, st *store.Store, opts ...Option) *Service {
	s := &Service{
		client:   client,
		store:    st,
		validate: validator.New(),
		pageSize: 20,
		logger:   logging.WithComponent("feed"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the store the service writes into
func (s *Service) Store() *store.Store {
	return s.store
}

// FetchPostsInSection loads a page of posts. Offset 0 replaces the cached
// posts of the pair, a positive offset appends.
func (s *Service) FetchPostsInSection(ctx context.Context, q backend.PostsQuery) ([]models.Post, error) {
	ctx, span := telemetry.StartSpan(ctx, "feed.FetchPostsInSection")
	defer span.End()

	if q.SectionCode == "" {
		return nil, fmt.Errorf("section code is required")
	}
	if q.Limit <= 0 {
		q.Limit = s.pageSize
	}

	s.store.Dispatch(store.PostsPending{SectionCode: q.SectionCode, ThemeID: q.ThemeID})

	if posts, ok := s.readSnapshot(ctx, q); ok {
		s.store.Dispatch(store.PostsFulfilled{SectionCode: q.SectionCode, ThemeID: q.ThemeID, Posts: posts})
		return s.store.Posts(q.SectionCode, q.ThemeID), nil
	}

	posts, err := s.client.ListPosts(ctx, q)
	if err != nil {
		s.store.Dispatch(store.PostsRejected{SectionCode: q.SectionCode, ThemeID: q.ThemeID, Err: err})
		s.logger.Warn("Failed to load posts",
			zap.String("section", q.SectionCode),
			zap.Int64("theme_id", q.ThemeID),
			zap.Error(err))
		return nil, err
	}

	s.store.Dispatch(store.PostsFulfilled{
		SectionCode: q.SectionCode,
		ThemeID:     q.ThemeID,
		Posts:       posts,
		Offset:      q.Offset,
	})
	s.writeSnapshot(ctx, q, posts)
	return s.store.Posts(q.SectionCode, q.ThemeID), nil
}

// FetchPostByID returns the cached post, or fetches it when absent.
// Concurrent callers for the same id share one request.
func (s *Service) FetchPostByID(ctx context.Context, messageID int64, sectionCode string, themeID int64) (models.Post, error) {
	if p, ok := s.store.Post(messageID); ok {
		return p, nil
	}

	v, err, _ := s.flight.Do("post:"+strconv.FormatInt(messageID, 10), func() (interface{}, error) {
		ctx, span := telemetry.StartSpan(ctx, "feed.FetchPostByID")
		defer span.End()

		p, err := s.client.GetPost(ctx, sectionCode, messageID, themeID)
		if err != nil {
			return models.Post{}, err
		}
		s.store.Dispatch(store.PostUpserted{Post: p})
		cached, _ := s.store.Post(messageID)
		return cached, nil
	})
	if err != nil {
		return models.Post{}, err
	}
	return v.(models.Post), nil
}

// RefreshPost refetches a post even when it is cached, so status changes
// made by a write show up
func (s *Service) RefreshPost(ctx context.Context, messageID int64, sectionCode string, themeID int64) (models.Post, error) {
	v, err, _ := s.flight.Do("refresh:"+strconv.FormatInt(messageID, 10), func() (interface{}, error) {
		ctx, span := telemetry.StartSpan(ctx, "feed.RefreshPost")
		defer span.End()

		p, err := s.client.GetPost(ctx, sectionCode, messageID, themeID)
		if err != nil {
			return models.Post{}, err
		}
		s.store.Dispatch(store.PostUpserted{Post: p})
		cached, _ := s.store.Post(messageID)
		return cached, nil
	})
	if err != nil {
		return models.Post{}, err
	}
	return v.(models.Post), nil
}

// FetchMessageAttachments backfills the attachments of a post unless they
// are already loaded
func (s *Service) FetchMessageAttachments(ctx context.Context, messageID int64) error {
	if p, ok := s.store.Post(messageID); ok && p.AttachmentsLoaded {
		return nil
	}
	_, err, _ := s.flight.Do("attachments:"+strconv.FormatInt(messageID, 10), func() (interface{}, error) {
		attachments, err := s.client.GetAttachments(ctx, messageID)
		if err != nil {
			return nil, err
		}
		s.store.Dispatch(store.AttachmentsFetched{ID: messageID, Attachments: attachments})
		return nil, nil
	})
	return err
}

// FetchMessageReactions backfills the reaction aggregate of a post unless it
// is already loaded
func (s *Service) FetchMessageReactions(ctx context.Context, messageID int64) error {
	if p, ok := s.store.Post(messageID); ok && p.ReactionsLoaded {
		return nil
	}
	return s.refreshReactions(ctx, messageID)
}

func (s *Service) refreshReactions(ctx context.Context, messageID int64) error {
	_, err, _ := s.flight.Do("reactions:"+strconv.FormatInt(messageID, 10), func() (interface{}, error) {
		reactions, err := s.client.GetReactions(ctx, messageID)
		if err != nil {
			return nil, err
		}
		s.store.Dispatch(store.ReactionsFetched{ID: messageID, Reactions: reactions})
		return nil, nil
	})
	return err
}

// FetchPostComments loads the comment thread of a post unconditionally
func (s *Service) FetchPostComments(ctx context.Context, postID int64, sectionCode string, themeID int64) ([]models.Comment, error) {
	s.store.Dispatch(store.CommentsPending{ID: postID})
	return s.loadComments(ctx, postID, sectionCode, themeID)
}

// EnsureComments loads the comment thread of a post unless it is loaded or
// loading. Only the caller that wins the store guard reaches the network.
func (s *Service) EnsureComments(ctx context.Context, postID int64, sectionCode string, themeID int64) error {
	if !s.store.BeginComments(postID) {
		return nil
	}
	_, err := s.loadComments(ctx, postID, sectionCode, themeID)
	return err
}

func (s *Service) loadComments(ctx context.Context, postID int64, sectionCode string, themeID int64) ([]models.Comment, error) {
	ctx, span := telemetry.StartSpan(ctx, "feed.loadComments")
	defer span.End()

	comments, err := s.client.ListComments(ctx, sectionCode, postID, themeID)
	if err != nil {
		s.store.Dispatch(store.CommentsRejected{ID: postID, Err: err})
		s.logger.Warn("Failed to load comments", zap.Int64("post_id", postID), zap.Error(err))
		return nil, err
	}
	s.store.Dispatch(store.CommentsFulfilled{ID: postID, Comments: comments})
	return comments, nil
}

// FetchTheme loads theme metadata, served from the store when cached
func (s *Service) FetchTheme(ctx context.Context, themeID int64) (models.Theme, error) {
	if t, ok := s.store.Theme(themeID); ok {
		return t, nil
	}
	t, err := s.client.GetTheme(ctx, themeID)
	if err != nil {
		return models.Theme{}, err
	}
	s.store.Dispatch(store.ThemeFetched{Theme: t})
	return t, nil
}

// FetchMe loads the signed-in user
func (s *Service) FetchMe(ctx context.Context) (models.User, error) {
	if u, ok := s.store.Me(); ok {
		return u, nil
	}
	u, err := s.client.Me(ctx)
	if err != nil {
		return models.User{}, err
	}
	s.store.Dispatch(store.UserFetched{User: u})
	return u, nil
}

// IsBlank reports whether a submission carries neither text nor files
func IsBlank(text string, files int) bool {
	return strings.TrimSpace(text) == "" && files == 0
}
