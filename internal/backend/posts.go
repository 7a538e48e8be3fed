package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Vanequal/ideafeed/internal/models"
)

// PostsQuery selects a page of posts in a section
type PostsQuery struct {
	SectionCode string
	ThemeID     int64
	Limit       int
	Offset      int
}

// File is an upload attached to a post or comment
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// CreatePostRequest creates an idea, question or publication
type CreatePostRequest struct {
	SectionCode string `json:"section_code" validate:"required"`
	ThemeID     int64  `json:"theme_id" validate:"gt=0"`
	Text        string `json:"text" validate:"max=10000"`
	GPTText     string `json:"gpt_text,omitempty"`
	Files       []File `json:"-"`
}

// CreateTaskRequest creates a task
type CreateTaskRequest struct {
	SectionCode string     `json:"section_code" validate:"required"`
	ThemeID     int64      `json:"theme_id" validate:"gt=0"`
	Text        string     `json:"text" validate:"max=10000"`
	Ratio       *float64   `json:"ratio,omitempty" validate:"omitempty,gte=0"`
	IsPartially bool       `json:"is_partially"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Files       []File     `json:"-"`
}

// CommentRequest comments on a post or task
type CommentRequest struct {
	PostID      int64  `json:"-" validate:"gt=0"`
	SectionCode string `json:"section_code" validate:"required"`
	ThemeID     int64  `json:"theme_id"`
	ParentID    *int64 `json:"parent_id,omitempty"`
	Text        string `json:"text" validate:"max=5000"`
	Files       []File `json:"-"`
}

// ReactionRequest votes on a post
type ReactionRequest struct {
	PostID      int64           `json:"-" validate:"gt=0"`
	Reaction    models.Reaction `json:"reaction" validate:"oneof=like dislike"`
	SectionCode string          `json:"section_code" validate:"required"`
	ThemeID     int64           `json:"theme_id"`
}

// TaskTransitionRequest accepts or completes a task
type TaskTransitionRequest struct {
	TaskID      int64  `json:"-" validate:"gt=0"`
	SectionCode string `json:"section_code" validate:"required"`
	ThemeID     int64  `json:"theme_id"`
	Text        string `json:"text,omitempty"`
	Files       []File `json:"-"`
}

// PreviewRequest asks the backend for an AI-rewritten variant of a draft
type PreviewRequest struct {
	SectionCode string `json:"section_code"`
	ThemeID     int64  `json:"theme_id"`
	Text        string `json:"text"`
}

func sectionPath(section string, parts ...string) string {
	p := "/api/v1/section/" + url.PathEscape(section)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func themeQuery(themeID int64) url.Values {
	q := url.Values{}
	if themeID > 0 {
		q.Set("theme_id", strconv.FormatInt(themeID, 10))
	}
	return q
}

// ListPosts fetches a page of posts in a section
func (c *Client) ListPosts(ctx context.Context, q PostsQuery) ([]models.Post, error) {
	query := url.Values{}
	query.Set("section_key", q.SectionCode)
	if q.ThemeID > 0 {
		query.Set("theme_id", strconv.FormatInt(q.ThemeID, 10))
	}
	query.Set("content_type", c.contentType)
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		query.Set("offset", strconv.Itoa(q.Offset))
	}

	body, err := c.getJSON(ctx, "posts.list", "/api/v1/post/posts", query)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts in %s: %w", q.SectionCode, err)
	}

	var wire []wirePost
	if err := decodeList(body, &wire, "posts", "items", "data", "results"); err != nil {
		return nil, fmt.Errorf("failed to decode posts: %w", err)
	}

	posts := make([]models.Post, 0, len(wire))
	for _, w := range wire {
		p := toPost(w)
		if p.SectionCode == "" {
			p.SectionCode = q.SectionCode
		}
		if p.ThemeID == 0 {
			p.ThemeID = q.ThemeID
		}
		posts = append(posts, p)
	}
	return posts, nil
}

// GetPost fetches one post
func (c *Client) GetPost(ctx context.Context, section string, postID, themeID int64) (models.Post, error) {
	path := sectionPath(section, "post", strconv.FormatInt(postID, 10))
	body, err := c.getJSON(ctx, "posts.get", path, themeQuery(themeID))
	if err != nil {
		return models.Post{}, fmt.Errorf("failed to get post %d: %w", postID, err)
	}

	var w wirePost
	if err := decodeObject(body, &w, "post", "data"); err != nil {
		return models.Post{}, fmt.Errorf("failed to decode post %d: %w", postID, err)
	}
	p := toPost(w)
	if p.ID == 0 {
		p.ID = postID
	}
	if p.SectionCode == "" {
		p.SectionCode = section
	}
	if p.ThemeID == 0 {
		p.ThemeID = themeID
	}
	return p, nil
}

// ListComments fetches the comment thread of a post with nested replies
func (c *Client) ListComments(ctx context.Context, section string, postID, themeID int64) ([]models.Comment, error) {
	path := sectionPath(section, "post", strconv.FormatInt(postID, 10), "comments")
	body, err := c.getJSON(ctx, "comments.list", path, themeQuery(themeID))
	if err != nil {
		return nil, fmt.Errorf("failed to list comments of %d: %w", postID, err)
	}

	var wire []wirePost
	if err := decodeList(body, &wire, "comments", "items", "data"); err != nil {
		return nil, fmt.Errorf("failed to decode comments: %w", err)
	}

	comments := make([]models.Comment, 0, len(wire))
	for _, w := range wire {
		comments = append(comments, toComment(w, postID))
	}
	return comments, nil
}

// GetAttachments fetches the attachments of a message
func (c *Client) GetAttachments(ctx context.Context, messageID int64) ([]models.Attachment, error) {
	path := "/api/v1/messages/" + strconv.FormatInt(messageID, 10) + "/attachments"
	body, err := c.getJSON(ctx, "messages.attachments", path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get attachments of %d: %w", messageID, err)
	}

	var wire []wireAttachment
	if err := decodeList(body, &wire, "attachments", "files", "items"); err != nil {
		return nil, fmt.Errorf("failed to decode attachments: %w", err)
	}
	return toAttachments(wire), nil
}

// GetReactions fetches the reaction aggregate of a message
func (c *Client) GetReactions(ctx context.Context, messageID int64) (models.Reactions, error) {
	path := "/api/v1/messages/" + strconv.FormatInt(messageID, 10) + "/reactions"
	body, err := c.getJSON(ctx, "messages.reactions", path, nil)
	if err != nil {
		return models.Reactions{}, fmt.Errorf("failed to get reactions of %d: %w", messageID, err)
	}
	return decodeReactions(body)
}

func decodeReactions(body []byte) (models.Reactions, error) {
	var w wireReactions
	if err := decodeObject(body, &w, "reactions", "data"); err != nil {
		return models.Reactions{}, fmt.Errorf("failed to decode reactions: %w", err)
	}
	return toReactions(&w, nil, nil, nullableString{}), nil
}

// React posts a like or dislike and returns the updated aggregate
func (c *Client) React(ctx context.Context, req ReactionRequest) (models.Reactions, error) {
	path := sectionPath(req.SectionCode, "post", strconv.FormatInt(req.PostID, 10), "reactions")
	body, err := c.postJSON(ctx, "posts.react", path, req)
	if err != nil {
		return models.Reactions{}, fmt.Errorf("failed to react to %d: %w", req.PostID, err)
	}
	return decodeReactions(body)
}

// CreatePost publishes a post
func (c *Client) CreatePost(ctx context.Context, req CreatePostRequest) (models.Post, error) {
	fields := map[string]string{
		"section_code": req.SectionCode,
		"theme_id":     strconv.FormatInt(req.ThemeID, 10),
		"text":         req.Text,
		"content_type": c.contentType,
	}
	if req.GPTText != "" {
		fields["gpt_text"] = req.GPTText
	}
	return c.create(ctx, "posts.create", sectionPath(req.SectionCode, "post"), req, fields, req.Files)
}

// CreateTask publishes a task
func (c *Client) CreateTask(ctx context.Context, req CreateTaskRequest) (models.Post, error) {
	fields := map[string]string{
		"section_code": req.SectionCode,
		"theme_id":     strconv.FormatInt(req.ThemeID, 10),
		"text":         req.Text,
		"is_partially": strconv.FormatBool(req.IsPartially),
	}
	if req.Ratio != nil {
		fields["ratio"] = strconv.FormatFloat(*req.Ratio, 'f', -1, 64)
	}
	if req.ExpiresAt != nil {
		fields["expires_at"] = req.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return c.create(ctx, "tasks.create", sectionPath(req.SectionCode, "task"), req, fields, req.Files)
}

// CreateComment comments on a post
func (c *Client) CreateComment(ctx context.Context, req CommentRequest) (models.Post, error) {
	path := sectionPath(req.SectionCode, "post", strconv.FormatInt(req.PostID, 10), "comments")
	return c.create(ctx, "comments.create", path, req, commentFields(req), req.Files)
}

// CreateTaskComment comments on a task
func (c *Client) CreateTaskComment(ctx context.Context, req CommentRequest) (models.Post, error) {
	path := sectionPath(req.SectionCode, "task", strconv.FormatInt(req.PostID, 10), "comments")
	return c.create(ctx, "tasks.comment", path, req, commentFields(req), req.Files)
}

func commentFields(req CommentRequest) map[string]string {
	fields := map[string]string{
		"section_code": req.SectionCode,
		"theme_id":     strconv.FormatInt(req.ThemeID, 10),
		"text":         req.Text,
	}
	if req.ParentID != nil {
		fields["parent_id"] = strconv.FormatInt(*req.ParentID, 10)
	}
	return fields
}

// AcceptTask moves a task into progress for the viewer
func (c *Client) AcceptTask(ctx context.Context, req TaskTransitionRequest) error {
	path := sectionPath(req.SectionCode, "task", strconv.FormatInt(req.TaskID, 10), "accept")
	if _, err := c.postJSON(ctx, "tasks.accept", path, req); err != nil {
		return fmt.Errorf("failed to accept task %d: %w", req.TaskID, err)
	}
	return nil
}

// CompleteTask reports a task as done, with an optional report and files
func (c *Client) CompleteTask(ctx context.Context, req TaskTransitionRequest) error {
	path := sectionPath(req.SectionCode, "task", strconv.FormatInt(req.TaskID, 10), "complete")
	fields := map[string]string{
		"section_code": req.SectionCode,
		"theme_id":     strconv.FormatInt(req.ThemeID, 10),
	}
	if req.Text != "" {
		fields["text"] = req.Text
	}
	if _, err := c.create(ctx, "tasks.complete", path, req, fields, req.Files); err != nil {
		return fmt.Errorf("failed to complete task %d: %w", req.TaskID, err)
	}
	return nil
}

// Preview asks the AI endpoint for an alternate text. Nothing is persisted.
func (c *Client) Preview(ctx context.Context, req PreviewRequest) (string, error) {
	body, err := c.postJSON(ctx, "posts.preview", "/api/v1/post/preview", req)
	if err != nil {
		if StatusOf(err) == http.StatusForbidden {
			return "", fmt.Errorf("%w: %w", ErrAIUnavailable, err)
		}
		return "", fmt.Errorf("failed to preview post: %w", err)
	}

	var out struct {
		GPTText string `json:"gpt_text"`
		Text    string `json:"text"`
		Result  string `json:"result"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to decode preview: %w", err)
	}
	return firstNonEmpty(out.GPTText, out.Result, out.Text), nil
}

// create posts JSON, or multipart form data when files are attached, and
// decodes the created entity when the backend returns one.
func (c *Client) create(ctx context.Context, endpoint, path string, payload interface{}, fields map[string]string, files []File) (models.Post, error) {
	var (
		body []byte
		err  error
	)
	if len(files) == 0 {
		body, err = c.postJSON(ctx, endpoint, path, payload)
	} else {
		body, err = c.postMultipart(ctx, endpoint, path, fields, files)
	}
	if err != nil {
		return models.Post{}, fmt.Errorf("%s: %w", endpoint, err)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return models.Post{}, nil
	}
	var w wirePost
	if err := decodeObject(body, &w, "post", "task", "comment", "data"); err != nil {
		// The created entity is re-fetched by callers; an unexpected body
		// shape is not a failure of the write itself.
		c.logger.Debug("Create response not decodable")
		return models.Post{}, nil
	}
	return toPost(w), nil
}

func (c *Client) postMultipart(ctx context.Context, endpoint, path string, fields map[string]string, files []File) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", k, err)
		}
	}
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to add file %s: %w", f.Name, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("failed to write file %s: %w", f.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	return c.do(ctx, request{
		endpoint:    endpoint,
		method:      http.MethodPost,
		path:        path,
		body:        &buf,
		contentType: mw.FormDataContentType(),
	})
}
