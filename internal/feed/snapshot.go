package feed

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/Vanequal/ideafeed/internal/backend"
	"github.com/Vanequal/ideafeed/internal/cache"
	"github.com/Vanequal/ideafeed/internal/models"
)

// snapshot is the cached first page of a (section, theme) pair
type snapshot struct {
	Limit int            `json:"limit"`
	Posts []snapshotPost `json:"posts"`
}

// snapshotPost keeps the backfill flags that models.Post leaves out of JSON
type snapshotPost struct {
	models.Post
	AttachmentsLoaded bool `json:"attachments_loaded"`
	ReactionsLoaded   bool `json:"reactions_loaded"`
}

func (s *Service) snapshotKey(section string, themeID int64) string {
	return "feed:" + cache.HashKey(s.scope, section, strconv.FormatInt(themeID, 10))
}

func (s *Service) readSnapshot(ctx context.Context, q backend.PostsQuery) ([]models.Post, bool) {
	if !s.snapshots.Enabled() || q.Offset != 0 {
		return nil, false
	}
	var snap snapshot
	ok, err := s.snapshots.GetJSON(ctx, s.snapshotKey(q.SectionCode, q.ThemeID), &snap)
	if err != nil {
		s.logger.Warn("Failed to read feed snapshot", zap.Error(err))
		return nil, false
	}
	if !ok || snap.Limit != q.Limit {
		return nil, false
	}

	posts := make([]models.Post, 0, len(snap.Posts))
	for _, sp := range snap.Posts {
		p := sp.Post
		p.AttachmentsLoaded = sp.AttachmentsLoaded
		p.ReactionsLoaded = sp.ReactionsLoaded
		posts = append(posts, p)
	}
	return posts, true
}

func (s *Service) writeSnapshot(ctx context.Context, q backend.PostsQuery, posts []models.Post) {
	if !s.snapshots.Enabled() || q.Offset != 0 {
		return
	}
	snap := snapshot{Limit: q.Limit, Posts: make([]snapshotPost, 0, len(posts))}
	for _, p := range posts {
		snap.Posts = append(snap.Posts, snapshotPost{
			Post:              p,
			AttachmentsLoaded: p.AttachmentsLoaded,
			ReactionsLoaded:   p.ReactionsLoaded,
		})
	}
	if err := s.snapshots.SetJSON(ctx, s.snapshotKey(q.SectionCode, q.ThemeID), snap, 0); err != nil {
		s.logger.Warn("Failed to write feed snapshot", zap.Error(err))
	}
}

// invalidate drops the snapshot of a pair after a write changed it
func (s *Service) invalidate(ctx context.Context, section string, themeID int64) {
	if !s.snapshots.Enabled() {
		return
	}
	if err := s.snapshots.Delete(ctx, s.snapshotKey(section, themeID)); err != nil {
		s.logger.Warn("Failed to drop feed snapshot", zap.Error(err))
	}
}
