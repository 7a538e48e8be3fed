// Package view builds render-ready cards and threads from cached posts. One
// card type serves every section; the differences between sections are
// carried by a Variant.
package view

import "github.com/Vanequal/ideafeed/internal/models"

// Kind names the card flavour of a section
type Kind string

const (
	KindIdea        Kind = "idea"
	KindQuestion    Kind = "question"
	KindPublication Kind = "publication"
	KindTask        Kind = "task"
)

// Variant configures how a card of one kind renders
type Variant struct {
	Kind          Kind   `json:"kind"`
	SectionCode   string `json:"section_code"`
	Title         string `json:"title"`
	CommentsLabel string `json:"comments_label"`
	ShowStatus    bool   `json:"show_status"`
	ShowRatio     bool   `json:"show_ratio"`
	ShowDeadline  bool   `json:"show_deadline"`
	AcceptLabel   string `json:"accept_label,omitempty"`
	CompleteLabel string `json:"complete_label,omitempty"`
}

var variants = map[string]Variant{
	models.SectionIdeas: {
		Kind:          KindIdea,
		SectionCode:   models.SectionIdeas,
		Title:         "Ideas",
		CommentsLabel: "Discussion",
	},
	models.SectionQA: {
		Kind:          KindQuestion,
		SectionCode:   models.SectionQA,
		Title:         "Questions",
		CommentsLabel: "Answers",
	},
	models.SectionPublications: {
		Kind:          KindPublication,
		SectionCode:   models.SectionPublications,
		Title:         "Publications",
		CommentsLabel: "Comments",
	},
	models.SectionTasks: {
		Kind:          KindTask,
		SectionCode:   models.SectionTasks,
		Title:         "Tasks",
		CommentsLabel: "Reports",
		ShowStatus:    true,
		ShowRatio:     true,
		ShowDeadline:  true,
		AcceptLabel:   "Take the task",
		CompleteLabel: "Mark as done",
	},
}

// VariantFor returns the variant of a section. Unknown sections render as
// ideas.
func VariantFor(sectionCode string) Variant {
	if v, ok := variants[sectionCode]; ok {
		return v
	}
	v := variants[models.SectionIdeas]
	v.SectionCode = sectionCode
	return v
}

// VariantOf returns the variant of a post, honoring the task type even
// outside the tasks section
func VariantOf(p models.Post) Variant {
	v := VariantFor(p.SectionCode)
	if p.IsTask() && v.Kind != KindTask {
		task := variants[models.SectionTasks]
		task.SectionCode = v.SectionCode
		return task
	}
	return v
}
