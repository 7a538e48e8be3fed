// Package reconcile decides which reaction numbers a card displays when the
// cached copy of a post and the copy handed to the card disagree.
package reconcile

import "github.com/Vanequal/ideafeed/internal/models"

// Display is the resolved reaction state of one card
type Display struct {
	Likes         int              `json:"likes"`
	Dislikes      int              `json:"dislikes"`
	UserReaction  *models.Reaction `json:"user_reaction,omitempty"`
	LikeActive    bool             `json:"like_active"`
	DislikeActive bool             `json:"dislike_active"`
}

// Resolve picks each field from the cached post when present, then from the
// passed post, then zero. The cached copy is the one reaction updates land
// in, so it wins whenever it carries the field.
func Resolve(cached *models.Post, passed models.Post) Display {
	var c models.Reactions
	if cached != nil {
		c = cached.Reactions
	}
	p := passed.Reactions

	d := Display{
		Likes:    pick(c.Likes, p.Likes),
		Dislikes: pick(c.Dislikes, p.Dislikes),
	}
	// A user reaction the cache carries wins even when it is null: that is
	// the confirmed answer after a reaction was withdrawn.
	if cached != nil && c.HasUserReaction() {
		d.UserReaction = c.UserReaction
	} else {
		d.UserReaction = p.UserReaction
	}
	if d.UserReaction != nil {
		d.LikeActive = *d.UserReaction == models.ReactionLike
		d.DislikeActive = *d.UserReaction == models.ReactionDislike
	}
	return d
}

// ResolveComment is Resolve for a comment, which never has a cached copy
func ResolveComment(c models.Comment) Display {
	return Resolve(nil, models.Post{Reactions: c.Reactions})
}

func pick(values ...*int) int {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return 0
}
