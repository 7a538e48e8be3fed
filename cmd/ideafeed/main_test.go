package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vanequal/ideafeed/internal/models"
	"github.com/Vanequal/ideafeed/internal/reconcile"
	"github.com/Vanequal/ideafeed/internal/view"
)

func TestResolveSection(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"ideas", models.SectionIdeas, false},
		{"QA", models.SectionQA, false},
		{"questions", models.SectionQA, false},
		{"tasks", models.SectionTasks, false},
		{models.SectionPublications, models.SectionPublications, false},
		{"memes", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := resolveSection(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDeadline(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	got, err := parseDeadline("", now)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseDeadline("72h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(72*time.Hour), *got)

	got, err = parseDeadline("2024-06-01T00:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), *got)

	_, err = parseDeadline("-1h", now)
	assert.Error(t, err)
	_, err = parseDeadline("tomorrow", now)
	assert.Error(t, err)
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"0", "-3", "abc"} {
		_, err := parseID(bad)
		assert.Error(t, err, bad)
	}
}

func TestReadFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	got, err := readFiles([]string{path})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "notes.txt", got[0].Name)
	assert.True(t, strings.HasPrefix(got[0].MimeType, "text/plain"))
	assert.Equal(t, []byte("hello"), got[0].Data)

	_, err = readFiles([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}

func TestRenderCard(t *testing.T) {
	like := models.ReactionLike
	card := view.Card{
		ID:            7,
		Variant:       view.VariantFor(models.SectionIdeas),
		SafeText:      "Ship it",
		Author:        "@ann",
		Reactions:     reconcile.Display{Likes: 4, Dislikes: 1, UserReaction: &like, LikeActive: true},
		CommentStatus: "loaded",
		CommentCount:  2,
	}
	out := renderCard(card, true)
	assert.Contains(t, out, "#7")
	assert.Contains(t, out, "@ann")
	assert.Contains(t, out, "Ship it")
	assert.Contains(t, out, "👍 4 •")
	assert.Contains(t, out, "👎 1")
	assert.Contains(t, out, "viewed")
	assert.Contains(t, out, ": 2")

	card.CommentStatus = "error"
	assert.Contains(t, renderCard(card, false), "failed to load")
}

func TestRenderTaskCard(t *testing.T) {
	r := 0.5
	past := time.Now().Add(-time.Hour)
	card := view.Card{
		ID:          3,
		Variant:     view.VariantFor(models.SectionTasks),
		SafeText:    "Write docs",
		Status:      models.TaskInProgress,
		Ratio:       &r,
		IsPartially: true,
		ExpiresAt:   &past,
		Expired:     true,
	}
	out := renderCard(card, false)
	assert.Contains(t, out, "Status: in_progress")
	assert.Contains(t, out, "Reward: 0.5 (partial allowed)")
	assert.Contains(t, out, "(expired)")
}

func TestRenderThread(t *testing.T) {
	thread := view.Thread{
		Card: view.Card{ID: 1, Variant: view.VariantFor(models.SectionQA), SafeText: "Why?"},
		Comments: []view.Comment{
			{ID: 10, Author: "Bob", SafeText: "Because", Replies: []view.Comment{
				{ID: 11, Author: "Ann", SafeText: "Thanks"},
			}},
			{ID: -2, Author: "Eve", SafeText: "Took the task", IsExecution: true},
		},
	}
	out := renderThread(thread)
	assert.Less(t, strings.Index(out, "Because"), strings.Index(out, "Thanks"))
	assert.Contains(t, out, "  ")
	assert.Contains(t, out, "⚑")

	empty := renderThread(view.Thread{Card: thread.Card})
	assert.Contains(t, empty, "yet")
}

func TestRenderError(t *testing.T) {
	assert.Contains(t, renderError(errors.New("boom")), "boom")
}
