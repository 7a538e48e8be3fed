package models

import (
	"time"
)

// PostType discriminates the payload kinds the backend stores as messages
type PostType string

const (
	PostTypePost    PostType = "post"
	PostTypeTask    PostType = "task"
	PostTypeComment PostType = "comment"
)

// Section codes scoping which posts belong together
const (
	SectionIdeas        = "chat_ideas"
	SectionQA           = "chat_qa"
	SectionPublications = "chat_publications"
	SectionTasks        = "chat_tasks"
)

// Sections lists every known section code
var Sections = []string{SectionIdeas, SectionQA, SectionPublications, SectionTasks}

// IsKnownSection reports whether code is one of Sections
func IsKnownSection(code string) bool {
	for _, s := range Sections {
		if s == code {
			return true
		}
	}
	return false
}

// TaskStatus is the lifecycle of a task post
type TaskStatus string

const (
	TaskIdle       TaskStatus = "idle"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// Author is the denormalized user summary attached to posts and comments
type Author struct {
	ID        int64  `json:"id,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// DisplayName returns the best human label for the author
func (a Author) DisplayName() string {
	switch {
	case a.FirstName != "" && a.LastName != "":
		return a.FirstName + " " + a.LastName
	case a.FirstName != "":
		return a.FirstName
	case a.Username != "":
		return "@" + a.Username
	default:
		return "Anonymous"
	}
}

// Post is the unit shared by ideas, questions, publications and tasks.
type Post struct {
	ID          int64        `json:"id"`
	Text        string       `json:"text"`
	Type        PostType     `json:"type"`
	SectionCode string       `json:"section_code"`
	ThemeID     int64        `json:"theme_id"`
	Author      Author       `json:"author"`
	CreatedAt   time.Time    `json:"created_at"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Reactions   Reactions    `json:"reactions"`

	// Set once the attachments / reactions fields came from the backend,
	// either inline in a list response or from a dedicated backfill.
	AttachmentsLoaded bool `json:"-"`
	ReactionsLoaded   bool `json:"-"`

	// Task fields
	Status      TaskStatus  `json:"status,omitempty"`
	Ratio       *float64    `json:"ratio,omitempty"`
	IsPartially bool        `json:"is_partially,omitempty"`
	ExpiresAt   *time.Time  `json:"expires_at,omitempty"`
	Executions  []Execution `json:"executions,omitempty"`
}

// IsTask reports whether the post carries task semantics
func (p Post) IsTask() bool {
	return p.Type == PostTypeTask
}

// Comment is a Post-shaped reply scoped to a parent post. Replies nest one
// level deep.
type Comment struct {
	ID          int64        `json:"id"`
	PostID      int64        `json:"post_id"`
	ParentID    *int64       `json:"parent_id,omitempty"`
	Text        string       `json:"text"`
	Author      Author       `json:"author"`
	CreatedAt   time.Time    `json:"created_at"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Reactions   Reactions    `json:"reactions"`
	Replies     []Comment    `json:"replies,omitempty"`
}

// Execution records a user accepting, working on or completing a task
type Execution struct {
	ID        int64      `json:"id"`
	User      Author     `json:"user"`
	Status    TaskStatus `json:"status"`
	Text      string     `json:"text,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
