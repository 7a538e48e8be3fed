package feed

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Vanequal/ideafeed/internal/models"
	"github.com/Vanequal/ideafeed/pkg/telemetry"
)

// Thread is everything a detail page renders
type Thread struct {
	Post     models.Post
	Comments []models.Comment
}

// LoadThread loads a post by id, then backfills its attachments and
// reactions and loads its comments concurrently. Backfill failures are
// logged and leave the fields as the post carried them; a comment failure is
// returned.
func (s *Service) LoadThread(ctx context.Context, postID int64, sectionCode string, themeID int64) (Thread, error) {
	ctx, span := telemetry.StartSpan(ctx, "feed.LoadThread")
	defer span.End()

	if _, err := s.FetchPostByID(ctx, postID, sectionCode, themeID); err != nil {
		return Thread{}, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.FetchMessageAttachments(gctx, postID); err != nil {
			s.logger.Warn("Attachment backfill failed", zap.Int64("post_id", postID), zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		if err := s.FetchMessageReactions(gctx, postID); err != nil {
			s.logger.Warn("Reaction backfill failed", zap.Int64("post_id", postID), zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		return s.EnsureComments(gctx, postID, sectionCode, themeID)
	})
	if err := g.Wait(); err != nil {
		return Thread{}, err
	}

	p, _ := s.store.Post(postID)
	comments, _ := s.store.Comments(postID)
	return Thread{Post: p, Comments: comments}, nil
}
