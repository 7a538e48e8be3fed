package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/Vanequal/ideafeed/internal/backend"
	"github.com/Vanequal/ideafeed/internal/feed"
	"github.com/Vanequal/ideafeed/internal/models"
	"github.com/Vanequal/ideafeed/internal/session"
	"github.com/Vanequal/ideafeed/internal/view"
	"github.com/Vanequal/ideafeed/internal/views"
)

// maxUploadBytes caps one attached file
const maxUploadBytes = 20 << 20

// draftBody is the body of every write. It arrives as JSON or, when files
// are attached, as a multipart form.
type draftBody struct {
	Text        string     `json:"text" form:"text"`
	ThemeID     int64      `json:"theme_id" form:"theme_id"`
	UseAI       bool       `json:"use_ai" form:"use_ai"`
	ParentID    *int64     `json:"parent_id" form:"parent_id"`
	Ratio       *float64   `json:"ratio" form:"ratio"`
	IsPartially bool       `json:"is_partially" form:"is_partially"`
	ExpiresAt   *time.Time `json:"expires_at" form:"expires_at" time_format:"2006-01-02T15:04:05Z07:00"`
	Reaction    string     `json:"reaction" form:"reaction"`

	files []backend.File
}

// feedPage is the answer of the feed route
type feedPage struct {
	Cards      []view.Card `json:"cards"`
	Viewed     []int64     `json:"viewed"`
	NextOffset int         `json:"next_offset"`
}

// publishResult is the answer of the create route
type publishResult struct {
	Card       view.Card `json:"card"`
	GPTText    string    `json:"gpt_text,omitempty"`
	AIFallback bool      `json:"ai_fallback,omitempty"`
}

func (r *Router) authTelegram(c *gin.Context) {
	var body struct {
		InitData string `json:"init_data" form:"init_data" binding:"required"`
	}
	if err := c.ShouldBind(&body); err != nil {
		r.sendError(c, NewError(CodeBadRequest, err.Error()))
		return
	}

	token, err := r.auth.AuthTelegram(c.Request.Context(), body.InitData)
	if err != nil {
		r.sendError(c, err)
		return
	}

	data := gin.H{"token": token}
	if exp, ok := session.ExpiresAt(token); ok {
		data["expires_at"] = exp
	}
	sendResponse(c, data)
}

func (r *Router) me(c *gin.Context) {
	u, err := viewerOf(c).svc.FetchMe(c.Request.Context())
	if err != nil {
		r.sendError(c, err)
		return
	}
	sendResponse(c, u)
}

// feed answers the cards of a (section, theme) pair. Without paging
// parameters the cached page is served; refresh=true, a limit or an offset
// go to the backend.
func (r *Router) feed(c *gin.Context) {
	section, err := sectionParam(c)
	if err != nil {
		r.sendError(c, err)
		return
	}
	themeID, err1 := intQuery(c, "theme_id")
	limit, err2 := intQuery(c, "limit")
	offset, err3 := intQuery(c, "offset")
	if err := errors.Join(err1, err2, err3); err != nil {
		r.sendError(c, NewError(CodeBadRequest, err.Error()))
		return
	}

	vw := viewerOf(c)
	ctx := c.Request.Context()
	if offset > 0 || limit > 0 || c.Query("refresh") == "true" {
		if _, err := vw.svc.FetchPostsInSection(ctx, backend.PostsQuery{
			SectionCode: section,
			ThemeID:     themeID,
			Limit:       int(limit),
			Offset:      int(offset),
		}); err != nil {
			r.sendError(c, err)
			return
		}
	}

	posts, err := vw.svc.NewPage(section, themeID).Mount(ctx)
	if err != nil {
		r.sendError(c, err)
		return
	}

	marks, err := r.viewsOf(c, vw)
	if err != nil {
		r.sendError(c, err)
		return
	}
	viewed, err := marks.Viewed()
	if err != nil {
		r.sendError(c, err)
		return
	}
	page := feedPage{
		Cards:      view.BuildCards(vw.svc.Store(), inSection(posts, section), r.cfg.API.BaseURL),
		Viewed:     make([]int64, 0),
		NextOffset: len(posts),
	}
	for _, p := range posts {
		if viewed[p.ID] {
			page.Viewed = append(page.Viewed, p.ID)
		}
	}
	sendResponse(c, page)
}

func (r *Router) thread(c *gin.Context) {
	section, id, themeID, err := postParams(c)
	if err != nil {
		r.sendError(c, err)
		return
	}

	vw := viewerOf(c)
	t, err := vw.svc.LoadThread(c.Request.Context(), id, section, themeID)
	if err != nil {
		r.sendError(c, err)
		return
	}
	sendResponse(c, r.renderThread(vw, withSection(t.Post, section, themeID)))
}

func (r *Router) createPost(c *gin.Context) {
	section, err := sectionParam(c)
	if err != nil {
		r.sendError(c, err)
		return
	}
	body, err := bindDraft(c)
	if err != nil {
		r.sendError(c, err)
		return
	}

	vw := viewerOf(c)
	ctx := c.Request.Context()
	if section == models.SectionTasks {
		p, err := vw.svc.CreateTask(ctx, backend.CreateTaskRequest{
			SectionCode: section,
			ThemeID:     body.ThemeID,
			Text:        body.Text,
			Ratio:       body.Ratio,
			IsPartially: body.IsPartially,
			ExpiresAt:   body.ExpiresAt,
			Files:       body.files,
		})
		if err != nil {
			r.sendError(c, err)
			return
		}
		sendResponse(c, publishResult{Card: r.renderCard(vw, withSection(p, section, body.ThemeID))})
		return
	}

	out, err := vw.svc.PublishPost(ctx, backend.CreatePostRequest{
		SectionCode: section,
		ThemeID:     body.ThemeID,
		Text:        body.Text,
		Files:       body.files,
	}, body.UseAI)
	if err != nil {
		r.sendError(c, err)
		return
	}
	sendResponse(c, publishResult{
		Card:       r.renderCard(vw, withSection(out.Post, section, body.ThemeID)),
		GPTText:    out.GPTText,
		AIFallback: out.AIFallback,
	})
}

func (r *Router) createComment(c *gin.Context) {
	section, id, themeID, err := postParams(c)
	if err != nil {
		r.sendError(c, err)
		return
	}
	body, err := bindDraft(c)
	if err != nil {
		r.sendError(c, err)
		return
	}
	if body.ThemeID > 0 {
		themeID = body.ThemeID
	}

	vw := viewerOf(c)
	ctx := c.Request.Context()
	if feed.IsBlank(body.Text, len(body.files)) {
		r.sendError(c, feed.ErrEmptySubmission)
		return
	}
	post, err := vw.svc.FetchPostByID(ctx, id, section, themeID)
	if err != nil {
		r.sendError(c, err)
		return
	}
	post = withSection(post, section, themeID)

	composer := view.CommentComposer(vw.svc, post, body.ParentID)
	composer.Text, composer.Files = body.Text, body.files
	if err := composer.Submit(ctx); err != nil {
		r.sendError(c, err)
		return
	}
	sendResponse(c, r.renderThread(vw, post))
}

func (r *Router) react(c *gin.Context) {
	section, id, themeID, err := postParams(c)
	if err != nil {
		r.sendError(c, err)
		return
	}
	body, err := bindDraft(c)
	if err != nil {
		r.sendError(c, err)
		return
	}
	reaction, err := models.ParseReaction(body.Reaction)
	if err != nil {
		r.sendError(c, NewError(CodeInvalidRequest, err.Error()))
		return
	}
	if body.ThemeID > 0 {
		themeID = body.ThemeID
	}

	vw := viewerOf(c)
	ctx := c.Request.Context()
	post, err := vw.svc.FetchPostByID(ctx, id, section, themeID)
	if err != nil {
		r.sendError(c, err)
		return
	}
	post = withSection(post, section, themeID)

	if err := vw.buttons.Click(ctx, vw.svc, post, reaction); err != nil {
		r.sendError(c, err)
		return
	}
	sendResponse(c, r.renderCard(vw, post))
}

func (r *Router) acceptTask(c *gin.Context) {
	r.transition(c, (*feed.Service).AcceptTask)
}

func (r *Router) completeTask(c *gin.Context) {
	r.transition(c, (*feed.Service).CompleteTask)
}

type transitionFunc func(*feed.Service, context.Context, backend.TaskTransitionRequest) error

// transition runs a task state change, then reloads the task so the new
// status is rendered
func (r *Router) transition(c *gin.Context, run transitionFunc) {
	section, id, themeID, err := postParams(c)
	if err != nil {
		r.sendError(c, err)
		return
	}
	body, err := bindDraft(c)
	if err != nil {
		r.sendError(c, err)
		return
	}
	if body.ThemeID > 0 {
		themeID = body.ThemeID
	}

	vw := viewerOf(c)
	ctx := c.Request.Context()
	if err := run(vw.svc, ctx, backend.TaskTransitionRequest{
		TaskID:      id,
		SectionCode: section,
		ThemeID:     themeID,
		Text:        body.Text,
		Files:       body.files,
	}); err != nil {
		r.sendError(c, err)
		return
	}

	p, err := vw.svc.RefreshPost(ctx, id, section, themeID)
	if err != nil {
		r.sendError(c, err)
		return
	}
	sendResponse(c, r.renderCard(vw, withSection(p, section, themeID)))
}

// viewsOf returns the view marks of the user confirmed behind the viewer
func (r *Router) viewsOf(c *gin.Context, vw *viewer) (*views.Store, error) {
	id, err := vw.identity(c.Request.Context())
	if err != nil {
		return nil, err
	}
	return r.viewed.For(id), nil
}

func (r *Router) listViews(c *gin.Context) {
	marks, err := r.viewsOf(c, viewerOf(c))
	if err != nil {
		r.sendError(c, err)
		return
	}
	viewed, err := marks.Viewed()
	if err != nil {
		r.sendError(c, err)
		return
	}
	ids := make([]int64, 0, len(viewed))
	for id := range viewed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	sendResponse(c, gin.H{"viewed": ids})
}

func (r *Router) markViewed(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		r.sendError(c, err)
		return
	}
	marks, err := r.viewsOf(c, viewerOf(c))
	if err != nil {
		r.sendError(c, err)
		return
	}
	if err := marks.MarkViewed(id); err != nil {
		r.sendError(c, err)
		return
	}
	sendResponse(c, gin.H{"id": id, "viewed": true})
}

func (r *Router) renderCard(vw *viewer, p models.Post) view.Card {
	return view.BuildCard(vw.svc.Store(), p, view.VariantOf(p), r.cfg.API.BaseURL)
}

func (r *Router) renderThread(vw *viewer, p models.Post) view.Thread {
	return view.BuildThread(vw.svc.Store(), p, view.VariantOf(p), r.cfg.API.BaseURL)
}

// withSection fills in the route's section and theme when the backend
// answer left them out
func withSection(p models.Post, section string, themeID int64) models.Post {
	if p.SectionCode == "" {
		p.SectionCode = section
	}
	if p.ThemeID == 0 {
		p.ThemeID = themeID
	}
	return p
}

func inSection(posts []models.Post, section string) []models.Post {
	out := make([]models.Post, len(posts))
	for i, p := range posts {
		out[i] = withSection(p, section, 0)
	}
	return out
}

func sectionParam(c *gin.Context) (string, error) {
	section := c.Param("section")
	if !models.IsKnownSection(section) {
		return "", NewError(CodeUnknownSection, fmt.Sprintf("unknown section %q", section))
	}
	return section, nil
}

func idParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, NewError(CodeBadRequest, fmt.Sprintf("invalid id %q", c.Param("id")))
	}
	return id, nil
}

func postParams(c *gin.Context) (section string, id, themeID int64, err error) {
	if section, err = sectionParam(c); err != nil {
		return
	}
	if id, err = idParam(c); err != nil {
		return
	}
	if themeID, err = intQuery(c, "theme_id"); err != nil {
		err = NewError(CodeBadRequest, err.Error())
	}
	return
}

func intQuery(c *gin.Context, key string) (int64, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return v, nil
}

// bindDraft reads a write body. An empty body is an empty draft.
func bindDraft(c *gin.Context) (draftBody, error) {
	var body draftBody
	if c.Request.ContentLength == 0 && c.ContentType() != binding.MIMEMultipartPOSTForm {
		return body, nil
	}
	if err := c.ShouldBind(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return body, nil
		}
		return body, NewError(CodeBadRequest, err.Error())
	}

	if c.ContentType() != binding.MIMEMultipartPOSTForm {
		return body, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return body, NewError(CodeBadRequest, err.Error())
	}
	for _, fh := range form.File["files"] {
		f, err := readUpload(fh)
		if err != nil {
			return body, NewError(CodeBadRequest, err.Error())
		}
		body.files = append(body.files, f)
	}
	return body, nil
}

func readUpload(fh *multipart.FileHeader) (backend.File, error) {
	if fh.Size > maxUploadBytes {
		return backend.File{}, fmt.Errorf("file %s exceeds %d bytes", fh.Filename, maxUploadBytes)
	}
	src, err := fh.Open()
	if err != nil {
		return backend.File{}, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes))
	if err != nil {
		return backend.File{}, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	return backend.File{
		Name:     fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}
