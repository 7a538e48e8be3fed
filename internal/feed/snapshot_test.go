package feed

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vanequal/ideafeed/internal/backend"
	"github.com/Vanequal/ideafeed/internal/cache"
	"github.com/Vanequal/ideafeed/internal/models"
	"github.com/Vanequal/ideafeed/internal/store"
	"github.com/Vanequal/ideafeed/pkg/config"
)

func newSnapshotCache(t *testing.T) (*miniredis.Miniredis, *cache.Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.New(&config.RedisConfig{Enabled: true, URL: "redis://" + mr.Addr(), TTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return mr, c
}

// withSnapshots returns a service with a fresh store over the backend of
// base, sharing snapshots, the way a second BFF replica would
func withSnapshots(base *Service, c *cache.Cache, scope string) *Service {
	return NewService(base.client, store.New(), WithSnapshots(c, scope))
}

func TestSnapshotServesFirstPage(t *testing.T) {
	fb, base := newFakeBackend(t)
	list := "GET /api/v1/post/posts"
	fb.handle(list, http.StatusOK,
		`[{"id":1,"text":"first","reactions":{"count_likes":2,"user_reaction":"like"}},{"id":2,"text":"second"}]`)
	mr, c := newSnapshotCache(t)
	ctx := context.Background()
	q := backend.PostsQuery{SectionCode: models.SectionIdeas, ThemeID: 1}

	first := withSnapshots(base, c, "token:a")
	_, err := first.FetchPostsInSection(ctx, q)
	require.NoError(t, err)
	require.Equal(t, 1, fb.count(list))
	assert.True(t, mr.Exists("ideafeed:"+first.snapshotKey(q.SectionCode, q.ThemeID)))

	replica := withSnapshots(base, c, "token:a")
	posts, err := replica.FetchPostsInSection(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 1, fb.count(list), "served from the snapshot")
	require.Len(t, posts, 2)
	assert.Equal(t, "first", posts[0].Text)
	assert.True(t, posts[0].ReactionsLoaded)
	require.NotNil(t, posts[0].Reactions.UserReaction)
	assert.Equal(t, models.ReactionLike, *posts[0].Reactions.UserReaction)

	_, err = withSnapshots(base, c, "token:b").FetchPostsInSection(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 2, fb.count(list), "another token has its own snapshot")
}

func TestSnapshotMisses(t *testing.T) {
	tests := []struct {
		name string
		next backend.PostsQuery
	}{
		{
			name: "limit changed",
			next: backend.PostsQuery{SectionCode: models.SectionIdeas, ThemeID: 1, Limit: 5},
		},
		{
			name: "later page",
			next: backend.PostsQuery{SectionCode: models.SectionIdeas, ThemeID: 1, Offset: 20},
		},
		{
			name: "other theme",
			next: backend.PostsQuery{SectionCode: models.SectionIdeas, ThemeID: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb, base := newFakeBackend(t)
			list := "GET /api/v1/post/posts"
			fb.handle(list, http.StatusOK, `[{"id":1,"text":"first"}]`)
			_, c := newSnapshotCache(t)
			ctx := context.Background()

			_, err := withSnapshots(base, c, "token:a").FetchPostsInSection(ctx,
				backend.PostsQuery{SectionCode: models.SectionIdeas, ThemeID: 1})
			require.NoError(t, err)

			_, err = withSnapshots(base, c, "token:a").FetchPostsInSection(ctx, tt.next)
			require.NoError(t, err)
			assert.Equal(t, 2, fb.count(list))
		})
	}
}

func TestSnapshotDroppedAfterWrite(t *testing.T) {
	fb, base := newFakeBackend(t)
	list := "GET /api/v1/post/posts"
	fb.handle(list, http.StatusOK, `[{"id":8,"type":"task","status":"in_progress"}]`)
	fb.handle("POST /api/v1/section/chat_tasks/task/{id}/accept", http.StatusOK, `{}`)
	mr, c := newSnapshotCache(t)
	ctx := context.Background()
	q := backend.PostsQuery{SectionCode: models.SectionTasks, ThemeID: 3}

	svc := withSnapshots(base, c, "token:a")
	_, err := svc.FetchPostsInSection(ctx, q)
	require.NoError(t, err)
	key := "ideafeed:" + svc.snapshotKey(q.SectionCode, q.ThemeID)
	require.True(t, mr.Exists(key))

	require.NoError(t, svc.AcceptTask(ctx, backend.TaskTransitionRequest{
		TaskID: 8, SectionCode: models.SectionTasks, ThemeID: 3,
	}))
	assert.False(t, mr.Exists(key))

	_, err = withSnapshots(base, c, "token:a").FetchPostsInSection(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 2, fb.count(list), "refetched after the write")
	assert.True(t, mr.Exists(key), "rewritten by the refetch")
}
