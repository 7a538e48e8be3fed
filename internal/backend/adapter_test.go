package backend

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vanequal/ideafeed/internal/models"
)

func decodePost(t *testing.T, raw string) models.Post {
	t.Helper()
	var w wirePost
	require.NoError(t, json.Unmarshal([]byte(raw), &w))
	return toPost(w)
}

func TestToPostReactionShapes(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		likes        *int
		dislikes     *int
		userReaction *models.Reaction
		reactionSet  bool
		loaded       bool
	}{
		{
			name:         "nested count fields",
			raw:          `{"id":1,"reactions":{"count_likes":5,"count_dislikes":1,"user_reaction":"like"}}`,
			likes:        models.IntPtr(5),
			dislikes:     models.IntPtr(1),
			userReaction: models.ReactionPtr(models.ReactionLike),
			reactionSet:  true,
			loaded:       true,
		},
		{
			name:     "flat legacy fields",
			raw:      `{"id":1,"likes":2,"dislikes":0}`,
			likes:    models.IntPtr(2),
			dislikes: models.IntPtr(0),
			loaded:   true,
		},
		{
			name:     "nested wins over flat",
			raw:      `{"id":1,"reactions":{"count_likes":7},"likes":2,"dislikes":3}`,
			likes:    models.IntPtr(7),
			dislikes: models.IntPtr(3),
			loaded:   true,
		},
		{
			name:   "no reaction data",
			raw:    `{"id":1,"text":"hi"}`,
			loaded: false,
		},
		{
			name:        "explicit null user reaction is present",
			raw:         `{"id":1,"reactions":{"count_likes":3,"user_reaction":null}}`,
			likes:       models.IntPtr(3),
			reactionSet: true,
			loaded:      true,
		},
		{
			name:        "flat null user reaction is present",
			raw:         `{"id":1,"user_reaction":null}`,
			reactionSet: true,
			loaded:      true,
		},
		{
			name:   "unknown user reaction ignored",
			raw:    `{"id":1,"reactions":{"user_reaction":"love"}}`,
			loaded: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := decodePost(t, tt.raw)
			assert.Equal(t, tt.likes, p.Reactions.Likes)
			assert.Equal(t, tt.dislikes, p.Reactions.Dislikes)
			assert.Equal(t, tt.userReaction, p.Reactions.UserReaction)
			assert.Equal(t, tt.reactionSet, p.Reactions.HasUserReaction())
			assert.Equal(t, tt.loaded, p.ReactionsLoaded)
		})
	}
}

func TestToPostFieldAliases(t *testing.T) {
	p := decodePost(t, `{
		"message_id": 9,
		"content": "body",
		"section_key": "chat_qa",
		"theme_id": 3,
		"user": {"username": "ann"},
		"created_at": "2024-05-01T10:00:00.123456",
		"files": [{"url": "/api/v1/files/download/a/b.png?url=x", "name": "b.png"}]
	}`)

	assert.Equal(t, int64(9), p.ID)
	assert.Equal(t, "body", p.Text)
	assert.Equal(t, "chat_qa", p.SectionCode)
	assert.Equal(t, models.PostTypePost, p.Type)
	assert.Equal(t, "ann", p.Author.Username)
	assert.Equal(t, 2024, p.CreatedAt.Year())
	require.True(t, p.AttachmentsLoaded)
	require.Len(t, p.Attachments, 1)
	assert.Equal(t, "a/b.png", p.Attachments[0].StoredPath)
	assert.Equal(t, "b.png", p.Attachments[0].Name)
}

func TestToPostTaskDefaults(t *testing.T) {
	p := decodePost(t, `{"id":4,"type":"task","ratio":0.5,"expires_at":"2025-01-01T00:00:00Z",
		"executions":[{"id":1,"author":{"first_name":"Bo"},"status":"completed","report":"done"}]}`)

	assert.True(t, p.IsTask())
	assert.Equal(t, models.TaskIdle, p.Status)
	require.NotNil(t, p.Ratio)
	assert.Equal(t, 0.5, *p.Ratio)
	require.NotNil(t, p.ExpiresAt)
	assert.True(t, p.ExpiresAt.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.Len(t, p.Executions, 1)
	assert.Equal(t, "Bo", p.Executions[0].User.FirstName)
	assert.Equal(t, "done", p.Executions[0].Text)
}

func TestToAttachment(t *testing.T) {
	tests := []struct {
		name     string
		wire     wireAttachment
		path     string
		fileName string
	}{
		{"stored path wins", wireAttachment{StoredPath: "x/1.jpg", URL: "y/2.jpg", OriginalName: "photo.jpg"}, "x/1.jpg", "photo.jpg"},
		{"url fallback", wireAttachment{URL: "/uploads/2.mp4"}, "uploads/2.mp4", "2.mp4"},
		{"relative path fallback", wireAttachment{RelativePath: "docs/a.pdf", Name: "A"}, "docs/a.pdf", "A"},
		{"messages legacy prefix", wireAttachment{StoredPath: "/api/v1/messages/attachments/m/3.png"}, "m/3.png", "3.png"},
		{"absolute url untouched", wireAttachment{URL: "https://cdn.example.com/f.gif"}, "https://cdn.example.com/f.gif", "f.gif"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := toAttachment(tt.wire)
			assert.Equal(t, tt.path, a.StoredPath)
			assert.Equal(t, tt.fileName, a.Name)
		})
	}
}

func TestToCommentFlattensDeepReplies(t *testing.T) {
	var w wirePost
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"text":"top","replies":[
		{"id":2,"text":"r1","replies":[{"id":3,"text":"r1a"}]},
		{"id":4,"text":"r2"}
	]}`), &w))

	c := toComment(w, 77)
	assert.Equal(t, int64(77), c.PostID)
	require.Len(t, c.Replies, 3)
	for _, r := range c.Replies {
		assert.Empty(t, r.Replies)
		assert.Equal(t, int64(77), r.PostID)
	}
	assert.Equal(t, []int64{2, 3, 4}, []int64{c.Replies[0].ID, c.Replies[1].ID, c.Replies[2].ID})
}

func TestDecodeList(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"bare array", `[{"id":1},{"id":2}]`, 2},
		{"wrapped", `{"posts":[{"id":1}]}`, 1},
		{"nested wrapper", `{"data":{"items":[{"id":1},{"id":2},{"id":3}]}}`, 3},
		{"null", `null`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out []wirePost
			require.NoError(t, decodeList([]byte(tt.body), &out, "posts", "items", "data"))
			assert.Len(t, out, tt.want)
		})
	}

	var out []wirePost
	assert.Error(t, decodeList([]byte(`{"nope":[]}`), &out, "posts"))
}

func TestFlexTime(t *testing.T) {
	tests := []struct {
		in   string
		set  bool
		year int
	}{
		{`"2024-03-01T12:00:00Z"`, true, 2024},
		{`"2023-03-01 12:00:00"`, true, 2023},
		{`1700000000`, true, 2023},
		{`null`, false, 0},
		{`""`, false, 0},
	}
	for _, tt := range tests {
		var ft flexTime
		require.NoError(t, json.Unmarshal([]byte(tt.in), &ft), tt.in)
		assert.Equal(t, tt.set, ft.set, tt.in)
		if tt.set {
			assert.Equal(t, tt.year, ft.Year(), tt.in)
		}
	}

	var bad flexTime
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &bad))
}
