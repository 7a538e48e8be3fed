package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Vanequal/ideafeed/internal/models"
	"github.com/Vanequal/ideafeed/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, token string) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(&config.APIConfig{
		BaseURL:           srv.URL,
		Timeout:           5 * time.Second,
		SkipTunnelWarning: true,
	}, StaticToken(token), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	return c
}

func TestClientHeaders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tkn", r.Header.Get("Authorization"))
		assert.Equal(t, "Bearer tkn", r.Header.Get("WWW-Authenticate"))
		assert.Equal(t, "true", r.Header.Get("ngrok-skip-browser-warning"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		assert.Equal(t, "/api/v1/post/posts", r.URL.Path)
		assert.Equal(t, "chat_ideas", r.URL.Query().Get("section_key"))
		assert.Equal(t, "5", r.URL.Query().Get("theme_id"))
		assert.Equal(t, "post", r.URL.Query().Get("content_type"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		w.Write([]byte(`[{"id":1,"text":"a"},{"id":2,"text":"b","theme_id":9}]`))
	}, "tkn")

	posts, err := c.ListPosts(context.Background(), PostsQuery{SectionCode: models.SectionIdeas, ThemeID: 5, Limit: 10})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, models.SectionIdeas, posts[0].SectionCode)
	assert.Equal(t, int64(5), posts[0].ThemeID)
	assert.Equal(t, int64(9), posts[1].ThemeID)
}

func TestClientForwardsRequestID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "req-1", r.Header.Get("X-Request-ID"))
		w.Write([]byte(`{"id":1,"username":"ann"}`))
	}, "tkn")

	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestIDFrom(ctx))
	_, err := c.Me(ctx)
	require.NoError(t, err)
}

func TestClientRequiresToken(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}, "")

	_, err := c.Me(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoToken))
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestClientErrorBodies(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"detail string", 404, `{"detail":"Post not found"}`, "Post not found"},
		{"detail list", 422, `{"detail":[{"msg":"field required"},{"msg":"too long"}]}`, "field required; too long"},
		{"message", 400, `{"message":"bad theme"}`, "bad theme"},
		{"plain text", 500, `upstream exploded`, "upstream exploded"},
		{"empty", 401, ``, "Unauthorized"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}, "tkn")

			_, err := c.GetPost(context.Background(), models.SectionIdeas, 1, 0)
			require.Error(t, err)

			var apiErr *Error
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.False(t, IsTransport(err))
		})
	}
}

func TestClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := New(&config.APIConfig{BaseURL: url, Timeout: time.Second}, StaticToken("t"), WithLogger(zap.NewNop()))
	require.NoError(t, err)

	_, err = c.GetReactions(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.Zero(t, StatusOf(err))
}

func TestPreviewForbiddenIsAIUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"detail":"OpenAI quota exceeded"}`))
	}, "tkn")

	_, err := c.Preview(context.Background(), PreviewRequest{Text: "draft"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAIUnavailable))
	assert.Equal(t, http.StatusForbidden, StatusOf(err))
}

func TestReactDecodesAggregate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/section/chat_ideas/post/12/reactions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"reaction":"like","section_code":"chat_ideas","theme_id":3}`, string(body))
		w.Write([]byte(`{"reactions":{"count_likes":4,"count_dislikes":1,"user_reaction":"like"}}`))
	}, "tkn")

	r, err := c.React(context.Background(), ReactionRequest{
		PostID: 12, Reaction: models.ReactionLike, SectionCode: models.SectionIdeas, ThemeID: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, *r.Likes)
	assert.Equal(t, 1, *r.Dislikes)
	assert.Equal(t, models.ReactionLike, *r.UserReaction)
}

func TestCreatePostMultipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "hello", r.FormValue("text"))
		assert.Equal(t, "7", r.FormValue("theme_id"))
		files := r.MultipartForm.File["files"]
		require.Len(t, files, 1)
		assert.Equal(t, "a.txt", files[0].Filename)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"post":{"id":55,"text":"hello"}}`))
	}, "tkn")

	p, err := c.CreatePost(context.Background(), CreatePostRequest{
		SectionCode: models.SectionIdeas,
		ThemeID:     7,
		Text:        "hello",
		Files:       []File{{Name: "a.txt", Data: []byte("abc")}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(55), p.ID)
}

func TestAuthTelegram(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "query_id=1&user=%7B%7D", r.PostForm.Get("init_data"))
		w.Write([]byte(`{"access_token":"jwt","token_type":"bearer"}`))
	}, "")

	token, err := c.AuthTelegram(context.Background(), "query_id=1&user=%7B%7D")
	require.NoError(t, err)
	assert.Equal(t, "jwt", token)

	_, err = c.AuthTelegram(context.Background(), "  ")
	assert.Error(t, err)
}

func TestAttachmentURL(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"uploads/a b.png", "https://api.example.com/api/v1/attachments/uploads%2Fa%20b.png"},
		{"/api/v1/files/download/x.pdf?url=x.pdf", "https://api.example.com/api/v1/attachments/x.pdf"},
		{"https://cdn.example.com/v.mp4", "https://cdn.example.com/v.mp4"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AttachmentURL("https://api.example.com/", tt.path), tt.path)
	}
}
