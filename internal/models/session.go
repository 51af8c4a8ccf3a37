package models

import "time"

type Mode string

// ModeChat is the only persistent mode; summarize is a one-shot action.
const ModeChat Mode = "chat"

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// SessionSnapshot is a read-only copy of one session's state.
type SessionSnapshot struct {
	ID            string          `json:"id"`
	CreatedAt     time.Time       `json:"created_at"`
	Documents     []*Document     `json:"documents"`
	SelectedID    string          `json:"selected_id,omitempty"`
	SelectedName  string          `json:"selected_name,omitempty"`
	Transcript    []*Message      `json:"transcript"`
	Mode          Mode            `json:"mode"`
	Pending       bool            `json:"pending"`
	Uploading     bool            `json:"uploading"`
	Theme         Theme           `json:"theme"`
	Notifications []*Notification `json:"notifications"`
}
