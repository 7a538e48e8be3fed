package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Vanequal/ideafeed/internal/reconcile"
	"github.com/Vanequal/ideafeed/internal/view"
)

// Telegram-like palette
var (
	colorAccent  = lipgloss.Color("#2AABEE")
	colorMuted   = lipgloss.Color("#707579")
	colorLike    = lipgloss.Color("#31B545")
	colorDislike = lipgloss.Color("#E53935")
	colorWarning = lipgloss.Color("#F4D03F")
)

var styles = struct {
	Title   lipgloss.Style
	Muted   lipgloss.Style
	Like    lipgloss.Style
	Dislike lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Card    lipgloss.Style
	Reply   lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
	Muted:   lipgloss.NewStyle().Foreground(colorMuted),
	Like:    lipgloss.NewStyle().Foreground(colorLike),
	Dislike: lipgloss.NewStyle().Foreground(colorDislike),
	Warning: lipgloss.NewStyle().Foreground(colorWarning),
	Error:   lipgloss.NewStyle().Bold(true).Foreground(colorDislike),
	Card: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorAccent).
		Padding(0, 1).
		Width(76),
	Reply: lipgloss.NewStyle().PaddingLeft(2),
}

func renderCard(c view.Card, viewed bool) string {
	meta := []string{fmt.Sprintf("#%d", c.ID), c.Author}
	if !c.CreatedAt.IsZero() {
		meta = append(meta, c.CreatedAt.Local().Format("02 Jan 2006 15:04"))
	}
	if viewed {
		meta = append(meta, "viewed")
	}
	lines := []string{
		styles.Title.Render(c.Variant.Title) + "  " + styles.Muted.Render(strings.Join(meta, " · ")),
		c.SafeText,
	}

	if c.Variant.ShowStatus && c.Status != "" {
		lines = append(lines, renderTask(c))
	}
	for _, a := range c.Attachments {
		lines = append(lines, styles.Muted.Render("📎 "+a.Name+"  "+a.DownloadURL))
	}

	comments := fmt.Sprintf("%s: %d", c.Variant.CommentsLabel, c.CommentCount)
	switch c.CommentStatus {
	case "loading":
		comments += " (loading)"
	case "error":
		comments = styles.Warning.Render(c.Variant.CommentsLabel + ": failed to load")
	}
	lines = append(lines, renderReactions(c.Reactions)+"   "+comments)

	return styles.Card.Render(strings.Join(lines, "\n"))
}

func renderTask(c view.Card) string {
	parts := []string{"Status: " + string(c.Status)}
	if c.Ratio != nil {
		ratio := fmt.Sprintf("Reward: %g", *c.Ratio)
		if c.IsPartially {
			ratio += " (partial allowed)"
		}
		parts = append(parts, ratio)
	}
	line := strings.Join(parts, "  ")
	if c.ExpiresAt != nil {
		deadline := "Deadline: " + c.ExpiresAt.Local().Format("02 Jan 2006 15:04")
		if c.Expired {
			deadline = styles.Warning.Render(deadline + " (expired)")
		}
		line += "\n" + deadline
	}
	return line
}

func renderReactions(d reconcile.Display) string {
	like := fmt.Sprintf("👍 %d", d.Likes)
	dislike := fmt.Sprintf("👎 %d", d.Dislikes)
	if d.LikeActive {
		like = styles.Like.Bold(true).Render(like + " •")
	}
	if d.DislikeActive {
		dislike = styles.Dislike.Bold(true).Render(dislike + " •")
	}
	return like + "  " + dislike
}

func renderThread(t view.Thread) string {
	var b strings.Builder
	b.WriteString(renderCard(t.Card, false))
	b.WriteString("\n")
	if len(t.Comments) == 0 {
		b.WriteString(styles.Muted.Render("No " + strings.ToLower(t.Card.Variant.CommentsLabel) + " yet"))
		b.WriteString("\n")
		return b.String()
	}
	for _, c := range t.Comments {
		b.WriteString(renderComment(c))
	}
	return b.String()
}

func renderComment(c view.Comment) string {
	marker := "💬"
	if c.IsExecution {
		marker = "⚑"
	}
	head := marker + " " + styles.Title.Render(c.Author)
	if !c.CreatedAt.IsZero() {
		head += " " + styles.Muted.Render(c.CreatedAt.Local().Format("02 Jan 15:04"))
	}
	lines := []string{head, c.SafeText}
	for _, a := range c.Attachments {
		lines = append(lines, styles.Muted.Render("📎 "+a.Name+"  "+a.DownloadURL))
	}
	out := strings.Join(lines, "\n") + "\n"
	for _, r := range c.Replies {
		out += styles.Reply.Render(strings.TrimRight(renderComment(r), "\n")) + "\n"
	}
	return out
}

func renderError(err error) string {
	return styles.Error.Render("✗ " + err.Error())
}
