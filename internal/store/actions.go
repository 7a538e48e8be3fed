package store

import "github.com/Vanequal/ideafeed/internal/models"

// Action is a typed state transition applied by the reducer
type Action interface {
	Type() string
}

// PostsPending marks a list load as in flight
type PostsPending struct {
	SectionCode string
	ThemeID     int64
}

// PostsFulfilled delivers a page of posts. Offset 0 replaces the posts of
// the (section, theme) pair, a positive offset appends to them.
type PostsFulfilled struct {
	SectionCode string
	ThemeID     int64
	Posts       []models.Post
	Offset      int
}

// PostsRejected records a failed list load. Cached posts are left intact.
type PostsRejected struct {
	SectionCode string
	ThemeID     int64
	Err         error
}

// PostUpserted merges one post into the cache by id
type PostUpserted struct {
	Post models.Post
}

// AttachmentsFetched backfills the attachments of a post
type AttachmentsFetched struct {
	ID          int64
	Attachments []models.Attachment
}

// ReactionsFetched backfills or replaces the reaction aggregate of a post
type ReactionsFetched struct {
	ID        int64
	Reactions models.Reactions
}

// CommentsPending marks the comment thread of a post as loading
type CommentsPending struct {
	ID int64
}

// CommentsFulfilled stores the comment thread of a post
type CommentsFulfilled struct {
	ID       int64
	Comments []models.Comment
}

// CommentsRejected clears the loading flag of a post after a failed load
type CommentsRejected struct {
	ID  int64
	Err error
}

// ThemeFetched caches theme metadata
type ThemeFetched struct {
	Theme models.Theme
}

// UserFetched caches the signed-in user
type UserFetched struct {
	User models.User
}

func (PostsPending) Type() string       { return "posts/pending" }
func (PostsFulfilled) Type() string     { return "posts/fulfilled" }
func (PostsRejected) Type() string      { return "posts/rejected" }
func (PostUpserted) Type() string       { return "posts/upserted" }
func (AttachmentsFetched) Type() string { return "posts/attachmentsFetched" }
func (ReactionsFetched) Type() string   { return "posts/reactionsFetched" }
func (CommentsPending) Type() string    { return "comments/pending" }
func (CommentsFulfilled) Type() string  { return "comments/fulfilled" }
func (CommentsRejected) Type() string   { return "comments/rejected" }
func (ThemeFetched) Type() string       { return "themes/fetched" }
func (UserFetched) Type() string        { return "user/fetched" }
