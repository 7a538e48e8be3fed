package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Vanequal/ideafeed/internal/models"
)

func reacted(likes, dislikes *int, user *models.Reaction) models.Post {
	return models.Post{ID: 1, Reactions: models.Reactions{Likes: likes, Dislikes: dislikes, UserReaction: user}}
}

func TestResolvePrecedence(t *testing.T) {
	like := models.ReactionPtr(models.ReactionLike)
	dislike := models.ReactionPtr(models.ReactionDislike)
	cached := func(p models.Post) *models.Post { return &p }
	withdrawn := reacted(models.IntPtr(3), nil, nil)
	withdrawn.Reactions.UserReactionSet = true

	tests := []struct {
		name          string
		cached        *models.Post
		passed        models.Post
		likes         int
		dislikes      int
		likeActive    bool
		dislikeActive bool
	}{
		{
			name:   "cached wins",
			cached: cached(reacted(models.IntPtr(5), models.IntPtr(2), like)),
			passed: reacted(models.IntPtr(3), models.IntPtr(9), dislike),
			likes:  5, dislikes: 2, likeActive: true,
		},
		{
			name:   "cached zero is not skipped",
			cached: cached(reacted(models.IntPtr(0), nil, nil)),
			passed: reacted(models.IntPtr(3), models.IntPtr(1), nil),
			likes:  0, dislikes: 1,
		},
		{
			name:   "falls back to passed",
			cached: cached(reacted(nil, nil, nil)),
			passed: reacted(models.IntPtr(3), nil, dislike),
			likes:  3, dislikes: 0, dislikeActive: true,
		},
		{
			name:   "cached null reaction beats passed like",
			cached: cached(withdrawn),
			passed: reacted(models.IntPtr(4), nil, like),
			likes:  3, dislikes: 0,
		},
		{
			name:   "no cached entry",
			passed: reacted(models.IntPtr(8), models.IntPtr(1), nil),
			likes:  8, dislikes: 1,
		},
		{
			name:   "nothing anywhere",
			passed: reacted(nil, nil, nil),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Resolve(tt.cached, tt.passed)
			assert.Equal(t, tt.likes, d.Likes)
			assert.Equal(t, tt.dislikes, d.Dislikes)
			assert.Equal(t, tt.likeActive, d.LikeActive)
			assert.Equal(t, tt.dislikeActive, d.DislikeActive)
		})
	}
}

func TestResolveComment(t *testing.T) {
	d := ResolveComment(models.Comment{Reactions: models.Reactions{Likes: models.IntPtr(2)}})
	assert.Equal(t, 2, d.Likes)
	assert.Nil(t, d.UserReaction)
	assert.False(t, d.LikeActive)
}
