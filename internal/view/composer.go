package view

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/Vanequal/ideafeed/internal/backend"
	"github.com/Vanequal/ideafeed/internal/feed"
	"github.com/Vanequal/ideafeed/internal/models"
	"github.com/Vanequal/ideafeed/pkg/logging"
)

// SendFunc performs the create call of a composer
type SendFunc func(ctx context.Context, text string, files []backend.File) error

// Composer holds a draft and sends it through a SendFunc. A blank draft is
// refused before send runs.
type Composer struct {
	Text  string
	Files []backend.File

	send SendFunc
}

// NewComposer creates a composer sending through send
func NewComposer(send SendFunc) *Composer {
	return &Composer{send: send}
}

// Submit sends the draft and clears it on success
func (c *Composer) Submit(ctx context.Context) error {
	if feed.IsBlank(c.Text, len(c.Files)) {
		return feed.ErrEmptySubmission
	}
	if err := c.send(ctx, c.Text, c.Files); err != nil {
		return err
	}
	c.Text, c.Files = "", nil
	return nil
}

// CommentComposer sends comments on one post, picking the task route for
// task posts, and reloads the thread after a successful send. A failed
// reload leaves the comment loader in its error state but does not fail the
// submit, since the comment already exists.
func CommentComposer(svc *feed.Service, post models.Post, parentID *int64) *Composer {
	return NewComposer(func(ctx context.Context, text string, files []backend.File) error {
		req := backend.CommentRequest{
			PostID:      post.ID,
			SectionCode: post.SectionCode,
			ThemeID:     post.ThemeID,
			ParentID:    parentID,
			Text:        text,
			Files:       files,
		}
		var err error
		if post.IsTask() {
			_, err = svc.CreateTaskComment(ctx, req)
		} else {
			_, err = svc.CreateComment(ctx, req)
		}
		if err != nil {
			return err
		}
		if _, err := svc.FetchPostComments(ctx, post.ID, post.SectionCode, post.ThemeID); err != nil {
			logging.WithComponent("view").Warn("Comment sent but thread reload failed",
				zap.Int64("post_id", post.ID), zap.Error(err))
		}
		return nil
	})
}

// ErrReactionPending is returned by Click while an earlier reaction on the
// same post waits for its answer
var ErrReactionPending = errors.New("reaction already pending")

// ReactionButtons tracks which cards wait for a reaction answer. The
// displayed counts never change before the backend confirms.
type ReactionButtons struct {
	mu      sync.Mutex
	pending map[int64]bool
}

// Pending reports whether a reaction on id is in flight
func (b *ReactionButtons) Pending(id int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending[id]
}

// Click sends a reaction on post. Repeating the current reaction is sent
// as a new request; clicking while one is in flight is refused.
func (b *ReactionButtons) Click(ctx context.Context, svc *feed.Service, post models.Post, r models.Reaction) error {
	b.mu.Lock()
	if b.pending == nil {
		b.pending = make(map[int64]bool)
	}
	if b.pending[post.ID] {
		b.mu.Unlock()
		return ErrReactionPending
	}
	b.pending[post.ID] = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, post.ID)
		b.mu.Unlock()
	}()

	_, err := svc.ReactToPost(ctx, backend.ReactionRequest{
		PostID:      post.ID,
		Reaction:    r,
		SectionCode: post.SectionCode,
		ThemeID:     post.ThemeID,
	})
	return err
}
