package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Vanequal/ideafeed/internal/models"
)

// The backend went through several response shapes. Every wire struct below
// accepts all known spellings, and the to* functions fold them into the
// canonical models so nothing past this file needs fallback chains.

type wireAuthor struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type wireAttachment struct {
	ID           int64  `json:"id"`
	StoredPath   string `json:"stored_path"`
	URL          string `json:"url"`
	RelativePath string `json:"relative_path"`
	FileURL      string `json:"file_url"`
	OriginalName string `json:"original_name"`
	Name         string `json:"name"`
	Filename     string `json:"filename"`
	MimeType     string `json:"mime_type"`
	ContentType  string `json:"content_type"`
	Size         int64  `json:"size"`
	FileSize     int64  `json:"file_size"`
}

type wireReactions struct {
	CountLikes    *int    `json:"count_likes"`
	CountDislikes *int    `json:"count_dislikes"`
	Likes         *int    `json:"likes"`
	Dislikes      *int    `json:"dislikes"`
	UserReaction  nullableString `json:"user_reaction"`
}

type wireExecution struct {
	ID        int64       `json:"id"`
	User      *wireAuthor `json:"user"`
	Author    *wireAuthor `json:"author"`
	Status    string      `json:"status"`
	Text      string      `json:"text"`
	Report    string      `json:"report"`
	CreatedAt flexTime    `json:"created_at"`
}

type wirePost struct {
	ID          int64            `json:"id"`
	MessageID   int64            `json:"message_id"`
	PostID      int64            `json:"post_id"`
	ParentID    *int64           `json:"parent_id"`
	Text        string           `json:"text"`
	Content     string           `json:"content"`
	Type        string           `json:"type"`
	SectionCode string           `json:"section_code"`
	SectionKey  string           `json:"section_key"`
	ThemeID     int64            `json:"theme_id"`
	Author      *wireAuthor      `json:"author"`
	User        *wireAuthor      `json:"user"`
	CreatedAt   flexTime         `json:"created_at"`
	Attachments []wireAttachment `json:"attachments"`
	Files       []wireAttachment `json:"files"`
	Reactions   *wireReactions   `json:"reactions"`

	// Flat reaction fields from the older response shape
	Likes        *int    `json:"likes"`
	Dislikes     *int    `json:"dislikes"`
	UserReaction nullableString `json:"user_reaction"`

	Status      string          `json:"status"`
	Ratio       *float64        `json:"ratio"`
	IsPartially bool            `json:"is_partially"`
	ExpiresAt   flexTime        `json:"expires_at"`
	Executions  []wireExecution `json:"executions"`
	Replies     []wirePost      `json:"replies"`
}

type wireTheme struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Title    string   `json:"title"`
	Locale   string   `json:"locale"`
	Language string   `json:"language"`
	Sections []string `json:"sections"`
}

type wireUser struct {
	ID         int64  `json:"id"`
	TelegramID int64  `json:"telegram_id"`
	Username   string `json:"username"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	PhotoURL   string `json:"photo_url"`
}

// flexTime accepts RFC3339, zone-less ISO timestamps and unix seconds
type flexTime struct {
	time.Time
	set bool
}

var flexLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

func (t *flexTime) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) || len(b) == 0 {
		return nil
	}
	if b[0] != '"' {
		var secs int64
		if err := json.Unmarshal(b, &secs); err != nil {
			return fmt.Errorf("invalid timestamp %s", b)
		}
		t.Time, t.set = time.Unix(secs, 0).UTC(), true
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	for _, layout := range flexLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time, t.set = parsed.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func (t flexTime) ptr() *time.Time {
	if !t.set {
		return nil
	}
	v := t.Time
	return &v
}

func toAuthor(candidates ...*wireAuthor) models.Author {
	for _, a := range candidates {
		if a != nil {
			return models.Author{ID: a.ID, Username: a.Username, FirstName: a.FirstName, LastName: a.LastName}
		}
	}
	return models.Author{}
}

// legacyAttachmentPrefixes are the older download routes that sometimes leak
// into stored paths; the remainder after the prefix is the stored path.
var legacyAttachmentPrefixes = []string{
	"/api/v1/attachments/",
	"/api/v1/files/download/",
	"/api/v1/messages/attachments/",
}

// NormalizeStoredPath strips legacy download prefixes and leading slashes.
// Absolute http(s) URLs are returned unchanged.
func NormalizeStoredPath(p string) string {
	p = strings.TrimSpace(p)
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p
	}
	if i := strings.Index(p, "?"); i >= 0 {
		p = p[:i]
	}
	for _, prefix := range legacyAttachmentPrefixes {
		if strings.HasPrefix(p, prefix) {
			p = strings.TrimPrefix(p, prefix)
			break
		}
	}
	return strings.TrimLeft(p, "/")
}

func toAttachment(w wireAttachment) models.Attachment {
	path := firstNonEmpty(w.StoredPath, w.URL, w.RelativePath, w.FileURL)
	name := firstNonEmpty(w.OriginalName, w.Name, w.Filename)
	if name == "" && path != "" {
		name = path[strings.LastIndex(path, "/")+1:]
	}
	size := w.Size
	if size == 0 {
		size = w.FileSize
	}
	return models.Attachment{
		ID:         w.ID,
		StoredPath: NormalizeStoredPath(path),
		Name:       name,
		MimeType:   firstNonEmpty(w.MimeType, w.ContentType),
		Size:       size,
	}
}

func toAttachments(ws []wireAttachment) []models.Attachment {
	out := make([]models.Attachment, 0, len(ws))
	for _, w := range ws {
		a := toAttachment(w)
		if a.StoredPath == "" {
			continue
		}
		out = append(out, a)
	}
	return out
}

// nullableString records whether a field was present, so an explicit null
// can be told apart from a missing key
type nullableString struct {
	Present bool
	Value   *string
}

func (n *nullableString) UnmarshalJSON(b []byte) error {
	n.Present = true
	if string(b) == "null" {
		n.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	n.Value = &s
	return nil
}

// toReaction returns the reaction and whether the field counts as present.
// An empty string is treated as null; an unknown name as absent.
func toReaction(n nullableString) (*models.Reaction, bool) {
	if !n.Present {
		return nil, false
	}
	if n.Value == nil || *n.Value == "" {
		return nil, true
	}
	r, err := models.ParseReaction(*n.Value)
	if err != nil {
		return nil, false
	}
	return &r, true
}

// toReactions folds the nested and the flat shapes:
// reactions.count_likes ?? reactions.likes ?? likes.
func toReactions(nested *wireReactions, flatLikes, flatDislikes *int, flatUser nullableString) models.Reactions {
	var r models.Reactions
	if nested != nil {
		r.Likes = firstInt(nested.CountLikes, nested.Likes)
		r.Dislikes = firstInt(nested.CountDislikes, nested.Dislikes)
		r.UserReaction, r.UserReactionSet = toReaction(nested.UserReaction)
	}
	if r.Likes == nil {
		r.Likes = flatLikes
	}
	if r.Dislikes == nil {
		r.Dislikes = flatDislikes
	}
	if !r.UserReactionSet {
		r.UserReaction, r.UserReactionSet = toReaction(flatUser)
	}
	return r
}

func toExecutions(ws []wireExecution) []models.Execution {
	if len(ws) == 0 {
		return nil
	}
	out := make([]models.Execution, 0, len(ws))
	for _, w := range ws {
		out = append(out, models.Execution{
			ID:        w.ID,
			User:      toAuthor(w.User, w.Author),
			Status:    models.TaskStatus(w.Status),
			Text:      firstNonEmpty(w.Text, w.Report),
			CreatedAt: w.CreatedAt.Time,
		})
	}
	return out
}

func toPost(w wirePost) models.Post {
	id := w.ID
	if id == 0 {
		id = w.MessageID
	}
	p := models.Post{
		ID:          id,
		Text:        firstNonEmpty(w.Text, w.Content),
		Type:        models.PostType(w.Type),
		SectionCode: firstNonEmpty(w.SectionCode, w.SectionKey),
		ThemeID:     w.ThemeID,
		Author:      toAuthor(w.Author, w.User),
		CreatedAt:   w.CreatedAt.Time,
		Reactions:   toReactions(w.Reactions, w.Likes, w.Dislikes, w.UserReaction),
		Status:      models.TaskStatus(w.Status),
		Ratio:       w.Ratio,
		IsPartially: w.IsPartially,
		ExpiresAt:   w.ExpiresAt.ptr(),
		Executions:  toExecutions(w.Executions),
	}
	if p.Type == "" {
		p.Type = models.PostTypePost
	}
	if p.IsTask() && p.Status == "" {
		p.Status = models.TaskIdle
	}
	if w.Attachments != nil || w.Files != nil {
		p.Attachments = toAttachments(append(append([]wireAttachment{}, w.Attachments...), w.Files...))
		p.AttachmentsLoaded = true
	}
	p.ReactionsLoaded = !p.Reactions.IsEmpty()
	return p
}

func toComment(w wirePost, postID int64) models.Comment {
	id := w.ID
	if id == 0 {
		id = w.MessageID
	}
	c := models.Comment{
		ID:        id,
		PostID:    postID,
		ParentID:  w.ParentID,
		Text:      firstNonEmpty(w.Text, w.Content),
		Author:    toAuthor(w.Author, w.User),
		CreatedAt: w.CreatedAt.Time,
		Reactions: toReactions(w.Reactions, w.Likes, w.Dislikes, w.UserReaction),
	}
	if w.PostID != 0 {
		c.PostID = w.PostID
	}
	if w.Attachments != nil || w.Files != nil {
		c.Attachments = toAttachments(append(append([]wireAttachment{}, w.Attachments...), w.Files...))
	}
	for _, r := range w.Replies {
		reply := toComment(r, c.PostID)
		// Only one level of nesting is rendered; deeper replies are flattened.
		reply.Replies = nil
		c.Replies = append(c.Replies, reply)
		for _, deeper := range r.Replies {
			flat := toComment(deeper, c.PostID)
			flat.Replies = nil
			c.Replies = append(c.Replies, flat)
		}
	}
	return c
}

func toTheme(w wireTheme) models.Theme {
	return models.Theme{
		ID:       w.ID,
		Name:     firstNonEmpty(w.Name, w.Title),
		Locale:   firstNonEmpty(w.Locale, w.Language),
		Sections: w.Sections,
	}
}

func toUser(w wireUser) models.User {
	return models.User(w)
}

// decodeList unwraps a JSON array that may be bare or nested under one of keys.
func decodeList(body []byte, out interface{}, keys ...string) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '[' {
		return json.Unmarshal(trimmed, out)
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return err
	}
	for _, k := range keys {
		if raw, ok := envelope[k]; ok {
			return decodeList(raw, out, keys...)
		}
	}
	return fmt.Errorf("response has none of %v", keys)
}

// decodeObject unwraps an object that may be bare or nested under one of keys.
func decodeObject(body []byte, out interface{}, keys ...string) error {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return err
	}
	for _, k := range keys {
		if raw, ok := envelope[k]; ok && len(raw) > 0 && raw[0] == '{' {
			return json.Unmarshal(raw, out)
		}
	}
	return json.Unmarshal(body, out)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstInt(values ...*int) *int {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
