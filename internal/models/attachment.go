package models

// Attachment references a file stored by the backend. StoredPath is the
// backend-relative path used to build the download URL.
type Attachment struct {
	ID         int64  `json:"id,omitempty"`
	StoredPath string `json:"stored_path"`
	Name       string `json:"name"`
	MimeType   string `json:"mime_type,omitempty"`
	Size       int64  `json:"size,omitempty"`
}

// Theme groups posts within a section
type Theme struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Locale   string   `json:"locale,omitempty"`
	Sections []string `json:"sections,omitempty"`
}

// User is the signed-in Telegram user
type User struct {
	ID         int64  `json:"id"`
	TelegramID int64  `json:"telegram_id,omitempty"`
	Username   string `json:"username,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	PhotoURL   string `json:"photo_url,omitempty"`
}

// Author projects the user onto the post author summary
func (u User) Author() Author {
	return Author{ID: u.ID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName}
}
