package feed

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Vanequal/ideafeed/internal/backend"
	"github.com/Vanequal/ideafeed/internal/models"
	"github.com/Vanequal/ideafeed/internal/store"
	"github.com/Vanequal/ideafeed/pkg/telemetry"
)

// Writes never insert locally. The created entity shows up on the next
// list or thread fetch.

// CreatePost publishes an idea, question or publication
func (s *Service) CreatePost(ctx context.Context, req backend.CreatePostRequest) (models.Post, error) {
	if IsBlank(req.Text, len(req.Files)) {
		return models.Post{}, ErrEmptySubmission
	}
	if err := s.check(req); err != nil {
		return models.Post{}, err
	}
	p, err := s.client.CreatePost(ctx, req)
	if err != nil {
		return models.Post{}, err
	}
	s.invalidate(ctx, req.SectionCode, req.ThemeID)
	return p, nil
}

// CreateTask publishes a task
func (s *Service) CreateTask(ctx context.Context, req backend.CreateTaskRequest) (models.Post, error) {
	if IsBlank(req.Text, len(req.Files)) {
		return models.Post{}, ErrEmptySubmission
	}
	if err := s.check(req); err != nil {
		return models.Post{}, err
	}
	p, err := s.client.CreateTask(ctx, req)
	if err != nil {
		return models.Post{}, err
	}
	s.invalidate(ctx, req.SectionCode, req.ThemeID)
	return p, nil
}

// CreateComment comments on a post
func (s *Service) CreateComment(ctx context.Context, req backend.CommentRequest) (models.Post, error) {
	if IsBlank(req.Text, len(req.Files)) {
		return models.Post{}, ErrEmptySubmission
	}
	if err := s.check(req); err != nil {
		return models.Post{}, err
	}
	return s.client.CreateComment(ctx, req)
}

// CreateTaskComment comments on a task
func (s *Service) CreateTaskComment(ctx context.Context, req backend.CommentRequest) (models.Post, error) {
	if IsBlank(req.Text, len(req.Files)) {
		return models.Post{}, ErrEmptySubmission
	}
	if err := s.check(req); err != nil {
		return models.Post{}, err
	}
	return s.client.CreateTaskComment(ctx, req)
}

// ReactToPost sends a reaction and merges the confirmed aggregate into the
// cached post. Nothing changes locally before the backend answers.
func (s *Service) ReactToPost(ctx context.Context, req backend.ReactionRequest) (models.Reactions, error) {
	ctx, span := telemetry.StartSpan(ctx, "feed.ReactToPost")
	defer span.End()

	if err := s.check(req); err != nil {
		return models.Reactions{}, err
	}
	reactions, err := s.client.React(ctx, req)
	if err != nil {
		s.logger.Warn("Reaction failed", zap.Int64("post_id", req.PostID), zap.Error(err))
		return models.Reactions{}, err
	}

	if reactions.IsEmpty() {
		// Some backend versions answer a bare 200; read the aggregate back.
		// The read must start after the write, so it never joins a reactions
		// fetch already in flight.
		reactions, err = s.client.GetReactions(ctx, req.PostID)
		if err != nil {
			return models.Reactions{}, err
		}
	}
	s.store.Dispatch(store.ReactionsFetched{ID: req.PostID, Reactions: reactions})
	s.invalidate(ctx, req.SectionCode, req.ThemeID)

	if p, ok := s.store.Post(req.PostID); ok {
		return p.Reactions, nil
	}
	return reactions, nil
}

// AcceptTask takes a task. The new status arrives with the next fetch.
func (s *Service) AcceptTask(ctx context.Context, req backend.TaskTransitionRequest) error {
	if err := s.check(req); err != nil {
		return err
	}
	if err := s.client.AcceptTask(ctx, req); err != nil {
		return err
	}
	s.invalidate(ctx, req.SectionCode, req.ThemeID)
	return nil
}

// CompleteTask reports a task as done. The new status arrives with the next
// fetch.
func (s *Service) CompleteTask(ctx context.Context, req backend.TaskTransitionRequest) error {
	if err := s.check(req); err != nil {
		return err
	}
	if err := s.client.CompleteTask(ctx, req); err != nil {
		return err
	}
	s.invalidate(ctx, req.SectionCode, req.ThemeID)
	return nil
}

// PreviewPost asks the backend for an AI-rewritten draft. Nothing is stored.
func (s *Service) PreviewPost(ctx context.Context, req backend.PreviewRequest) (string, error) {
	if IsBlank(req.Text, 0) {
		return "", ErrEmptySubmission
	}
	return s.client.Preview(ctx, req)
}

// Published is the outcome of PublishPost
type Published struct {
	Post    models.Post
	GPTText string
	// AIFallback is set when the AI preview was unavailable and the
	// original text was published alone.
	AIFallback bool
}

// PublishPost creates a post, optionally preceded by an AI preview. When the
// preview is unavailable the original text is published without a variant.
func (s *Service) PublishPost(ctx context.Context, draft backend.CreatePostRequest, useAI bool) (Published, error) {
	var out Published
	if IsBlank(draft.Text, len(draft.Files)) {
		return out, ErrEmptySubmission
	}

	if useAI && !IsBlank(draft.Text, 0) {
		gpt, err := s.PreviewPost(ctx, backend.PreviewRequest{
			SectionCode: draft.SectionCode,
			ThemeID:     draft.ThemeID,
			Text:        draft.Text,
		})
		switch {
		case errors.Is(err, backend.ErrAIUnavailable):
			s.logger.Info("AI preview unavailable, publishing original text")
			out.AIFallback = true
		case err != nil:
			return out, err
		default:
			draft.GPTText = gpt
			out.GPTText = gpt
		}
	}

	p, err := s.CreatePost(ctx, draft)
	if err != nil {
		return out, err
	}
	out.Post = p
	return out, nil
}

func (s *Service) check(req interface{}) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}
