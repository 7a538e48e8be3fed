package models

import "fmt"

// Reaction is a viewer's vote on a post or comment
type Reaction string

const (
	ReactionLike    Reaction = "like"
	ReactionDislike Reaction = "dislike"
)

// ParseReaction validates a reaction name
func ParseReaction(s string) (Reaction, error) {
	switch Reaction(s) {
	case ReactionLike, ReactionDislike:
		return Reaction(s), nil
	default:
		return "", fmt.Errorf("unknown reaction %q", s)
	}
}

// Reactions is the server-side aggregate for a post. A nil pointer means the
// response did not carry the field at all, which is different from zero.
// UserReaction is nil both when absent and when the server answered null;
// UserReactionSet tells the two apart, so a withdrawn reaction can clear a
// cached one.
type Reactions struct {
	Likes           *int      `json:"count_likes,omitempty"`
	Dislikes        *int      `json:"count_dislikes,omitempty"`
	UserReaction    *Reaction `json:"user_reaction,omitempty"`
	UserReactionSet bool      `json:"user_reaction_set,omitempty"`
}

// HasUserReaction reports whether the aggregate carried user_reaction, null
// included
func (r Reactions) HasUserReaction() bool {
	return r.UserReactionSet || r.UserReaction != nil
}

// IsEmpty reports whether no field was populated
func (r Reactions) IsEmpty() bool {
	return r.Likes == nil && r.Dislikes == nil && !r.HasUserReaction()
}

// Merge overlays the populated fields of other onto r. A user reaction the
// server reported as null replaces a cached one.
func (r Reactions) Merge(other Reactions) Reactions {
	if other.Likes != nil {
		r.Likes = other.Likes
	}
	if other.Dislikes != nil {
		r.Dislikes = other.Dislikes
	}
	if other.HasUserReaction() {
		r.UserReaction = other.UserReaction
		r.UserReactionSet = true
	}
	return r
}

// IntPtr returns a pointer to v
func IntPtr(v int) *int {
	return &v
}

// ReactionPtr returns a pointer to r
func ReactionPtr(r Reaction) *Reaction {
	return &r
}
