package feed

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Vanequal/ideafeed/internal/backend"
	"github.com/Vanequal/ideafeed/internal/models"
)

// maxCommentLoads bounds concurrent comment fetches of one mount
const maxCommentLoads = 4

// Page is one mounted feed page. Comments are requested at most once per
// Page; building a new Page is a remount.
type Page struct {
	svc     *Service
	section string
	themeID int64

	mu             sync.Mutex
	commentsLoaded bool
}

// NewPage creates a page for a (section, theme) pair
func (s *Service) NewPage(sectionCode string, themeID int64) *Page {
	return &Page{svc: s, section: sectionCode, themeID: themeID}
}

// Mount loads the posts of the pair when the store has none for it, then
// requests the comments of every post. It returns the posts to render.
func (p *Page) Mount(ctx context.Context) ([]models.Post, error) {
	st := p.svc.store
	if !st.PostsLoaded(p.section, p.themeID) {
		if _, err := p.svc.FetchPostsInSection(ctx, backend.PostsQuery{
			SectionCode: p.section,
			ThemeID:     p.themeID,
		}); err != nil {
			return nil, err
		}
	}
	posts := st.Posts(p.section, p.themeID)

	p.mu.Lock()
	first := !p.commentsLoaded
	p.commentsLoaded = true
	p.mu.Unlock()

	if first {
		p.loadComments(ctx, posts)
	}
	return st.Posts(p.section, p.themeID), nil
}

// loadComments requests every thread through the store guard. Failures stay
// in the store as per-post comment errors.
func (p *Page) loadComments(ctx context.Context, posts []models.Post) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxCommentLoads)
	for _, post := range posts {
		id := post.ID
		g.Go(func() error {
			if err := p.svc.EnsureComments(gctx, id, p.section, p.themeID); err != nil {
				p.svc.logger.Debug("Comment load failed on mount", zap.Int64("post_id", id), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// LoadMore appends the next page of posts and returns every post of the pair
func (p *Page) LoadMore(ctx context.Context) ([]models.Post, error) {
	offset := len(p.svc.store.Posts(p.section, p.themeID))
	return p.svc.FetchPostsInSection(ctx, backend.PostsQuery{
		SectionCode: p.section,
		ThemeID:     p.themeID,
		Offset:      offset,
	})
}
