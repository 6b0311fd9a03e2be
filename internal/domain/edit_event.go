package domain

import "time"

// EditEvent is one observed edit from the recent-changes feed. It is never
// modified after the feed produces it.
type EditEvent struct {
	Wiki      string    `json:"wiki"`
	Page      string    `json:"page"`
	Editor    string    `json:"editor"` // username, or the raw IP address for anonymous edits
	Anonymous bool      `json:"anonymous"`
	URL       string    `json:"url"` // diff URL; empty for log actions
	Comment   string    `json:"comment,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publishable reports whether the edit has a viewable diff.
func (e EditEvent) Publishable() bool {
	return e.URL != ""
}
