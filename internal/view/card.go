package view

import (
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/Vanequal/ideafeed/internal/models"
	"github.com/Vanequal/ideafeed/internal/reconcile"
	"github.com/Vanequal/ideafeed/internal/store"
)

var textPolicy = bluemonday.StrictPolicy()

// Card is a post ready to render
type Card struct {
	ID          int64             `json:"id"`
	Variant     Variant           `json:"variant"`
	Text        string            `json:"text"`
	SafeText    string            `json:"safe_text"`
	Author      string            `json:"author"`
	CreatedAt   time.Time         `json:"created_at"`
	Reactions   reconcile.Display `json:"reactions"`
	Attachments []Attachment      `json:"attachments,omitempty"`

	CommentStatus string `json:"comment_status"`
	CommentCount  int    `json:"comment_count"`

	// Task fields, populated when the variant shows them
	Status      models.TaskStatus `json:"status,omitempty"`
	Ratio       *float64          `json:"ratio,omitempty"`
	IsPartially bool              `json:"is_partially,omitempty"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
	Expired     bool              `json:"expired,omitempty"`
}

// Comment is a comment, reply or task execution ready to render
type Comment struct {
	ID          int64             `json:"id"`
	SafeText    string            `json:"safe_text"`
	Text        string            `json:"text"`
	Author      string            `json:"author"`
	CreatedAt   time.Time         `json:"created_at"`
	Reactions   reconcile.Display `json:"reactions"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	Replies     []Comment         `json:"replies,omitempty"`
	IsExecution bool              `json:"is_execution,omitempty"`
}

// Thread is a detail page: the card plus its comments
type Thread struct {
	Card     Card      `json:"card"`
	Comments []Comment `json:"comments"`
}

// BuildCard renders passed, preferring the live cached copy of the post
// wherever the cache carries a field. st may be nil.
func BuildCard(st *store.Store, passed models.Post, v Variant, baseURL string) Card {
	p := passed
	var cached *models.Post
	status := store.CommentsNotRequested
	var comments []models.Comment
	if st != nil {
		if c, ok := st.Post(passed.ID); ok {
			cached = &c
			p = c
			if len(p.Attachments) == 0 && !p.AttachmentsLoaded {
				p.Attachments = passed.Attachments
			}
		}
		status = st.CommentStatus(passed.ID)
		comments, _ = st.Comments(passed.ID)
	}

	card := Card{
		ID:            p.ID,
		Variant:       v,
		Text:          p.Text,
		SafeText:      Sanitize(p.Text),
		Author:        p.Author.DisplayName(),
		CreatedAt:     p.CreatedAt,
		Reactions:     reconcile.Resolve(cached, passed),
		Attachments:   NormalizeAttachments(baseURL, p.Attachments),
		CommentStatus: status.String(),
		CommentCount:  countComments(comments),
	}
	if v.ShowStatus {
		card.Status = p.Status
	}
	if v.ShowRatio {
		card.Ratio = p.Ratio
		card.IsPartially = p.IsPartially
	}
	if v.ShowDeadline && p.ExpiresAt != nil {
		card.ExpiresAt = p.ExpiresAt
		card.Expired = time.Now().After(*p.ExpiresAt)
	}
	return card
}

// BuildCards renders a feed in order
func BuildCards(st *store.Store, posts []models.Post, baseURL string) []Card {
	cards := make([]Card, 0, len(posts))
	for _, p := range posts {
		cards = append(cards, BuildCard(st, p, VariantOf(p), baseURL))
	}
	return cards
}

// BuildThread renders a detail page. Task executions are shown as
// comments, merged by time with the real ones.
func BuildThread(st *store.Store, passed models.Post, v Variant, baseURL string) Thread {
	card := BuildCard(st, passed, v, baseURL)

	post := passed
	var comments []models.Comment
	if st != nil {
		if c, ok := st.Post(passed.ID); ok {
			post = c
		}
		comments, _ = st.Comments(passed.ID)
	}

	all := append(append([]models.Comment(nil), comments...), ExecutionsAsComments(post)...)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	out := make([]Comment, 0, len(all))
	for _, c := range all {
		vc := buildComment(c, baseURL)
		vc.IsExecution = c.ID < 0
		out = append(out, vc)
	}
	return Thread{Card: card, Comments: out}
}

// ExecutionsAsComments renders the executions of a task as comments. Their
// ids are negative so they never collide with real comments.
func ExecutionsAsComments(p models.Post) []models.Comment {
	if len(p.Executions) == 0 {
		return nil
	}
	out := make([]models.Comment, 0, len(p.Executions))
	for _, e := range p.Executions {
		text := e.Text
		if text == "" {
			text = executionSummary(e.Status)
		}
		out = append(out, models.Comment{
			ID:        -e.ID,
			PostID:    p.ID,
			Text:      text,
			Author:    e.User,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}

func executionSummary(s models.TaskStatus) string {
	switch s {
	case models.TaskCompleted:
		return "Completed the task"
	case models.TaskInProgress:
		return "Took the task"
	default:
		return "Joined the task"
	}
}

func buildComment(c models.Comment, baseURL string) Comment {
	out := Comment{
		ID:          c.ID,
		Text:        c.Text,
		SafeText:    Sanitize(c.Text),
		Author:      c.Author.DisplayName(),
		CreatedAt:   c.CreatedAt,
		Reactions:   reconcile.ResolveComment(c),
		Attachments: NormalizeAttachments(baseURL, c.Attachments),
	}
	for _, r := range c.Replies {
		out.Replies = append(out.Replies, buildComment(r, baseURL))
	}
	return out
}

func countComments(cs []models.Comment) int {
	n := 0
	for _, c := range cs {
		n += 1 + len(c.Replies)
	}
	return n
}

// Sanitize strips markup from user text for HTML rendering
func Sanitize(s string) string {
	return strings.TrimSpace(textPolicy.Sanitize(s))
}
