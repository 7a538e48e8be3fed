package view

import (
	"path"
	"strings"

	"github.com/Vanequal/ideafeed/internal/backend"
	"github.com/Vanequal/ideafeed/internal/models"
)

// Attachment is an attachment ready to render
type Attachment struct {
	Name        string `json:"name"`
	DownloadURL string `json:"download_url"`
	Extension   string `json:"extension"`
	IsImage     bool   `json:"is_image"`
	IsVideo     bool   `json:"is_video"`
	Size        int64  `json:"size,omitempty"`
}

var (
	imageExtensions = map[string]bool{
		"jpg": true, "jpeg": true, "png": true, "gif": true,
		"webp": true, "bmp": true, "svg": true, "heic": true,
	}
	videoExtensions = map[string]bool{
		"mp4": true, "webm": true, "mov": true, "avi": true,
		"mkv": true, "m4v": true, "3gp": true,
	}
)

// NormalizeAttachment resolves the download URL and media class of a
// stored attachment
func NormalizeAttachment(baseURL string, a models.Attachment) Attachment {
	ext := extension(a.Name)
	if ext == "" {
		ext = extension(a.StoredPath)
	}
	mime := strings.ToLower(a.MimeType)

	name := a.Name
	if name == "" {
		name = path.Base(a.StoredPath)
	}
	return Attachment{
		Name:        name,
		DownloadURL: backend.AttachmentURL(baseURL, a.StoredPath),
		Extension:   ext,
		IsImage:     strings.HasPrefix(mime, "image/") || imageExtensions[ext],
		IsVideo:     strings.HasPrefix(mime, "video/") || videoExtensions[ext],
		Size:        a.Size,
	}
}

// NormalizeAttachments maps NormalizeAttachment over as
func NormalizeAttachments(baseURL string, as []models.Attachment) []Attachment {
	if len(as) == 0 {
		return nil
	}
	out := make([]Attachment, 0, len(as))
	for _, a := range as {
		out = append(out, NormalizeAttachment(baseURL, a))
	}
	return out
}

func extension(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
}
