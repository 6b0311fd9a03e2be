package feed

import (
	"fmt"
	"net/url"
	"time"

	"anonedits/internal/domain"
	"anonedits/internal/netaddr"
)

// RecentChange is the payload of one EventStreams recentchange message.
type RecentChange struct {
	Meta struct {
		ID     string `json:"id"`
		DT     string `json:"dt"`
		Domain string `json:"domain"`
		Stream string `json:"stream"`
	} `json:"meta"`
	ID               int64     `json:"id"`
	Type             string    `json:"type"`
	Namespace        int       `json:"namespace"`
	Title            string    `json:"title"`
	Comment          string    `json:"comment"`
	Timestamp        int64     `json:"timestamp"`
	User             string    `json:"user"`
	Bot              bool      `json:"bot"`
	ServerURL        string    `json:"server_url"`
	ServerName       string    `json:"server_name"`
	ServerScriptPath string    `json:"server_script_path"`
	Wiki             string    `json:"wiki"`
	Revision         *Revision `json:"revision,omitempty"`
}

type Revision struct {
	Old int64 `json:"old"`
	New int64 `json:"new"`
}

// DiffURL returns the diff page of an edit or page creation, or "" when the
// change has no revision to compare (log entries, categorization).
func (rc RecentChange) DiffURL() string {
	if rc.Type != "edit" && rc.Type != "new" {
		return ""
	}
	if rc.Revision == nil || rc.Revision.New == 0 || rc.ServerURL == "" {
		return ""
	}

	query := url.Values{}
	query.Set("diff", fmt.Sprint(rc.Revision.New))
	if rc.Revision.Old != 0 {
		query.Set("oldid", fmt.Sprint(rc.Revision.Old))
	}
	return rc.ServerURL + rc.ServerScriptPath + "/index.php?" + query.Encode()
}

// EditEvent converts the change to the form the dispatcher consumes.
func (rc RecentChange) EditEvent() domain.EditEvent {
	_, err := netaddr.Parse(rc.User)

	event := domain.EditEvent{
		Wiki:      rc.Wiki,
		Page:      rc.Title,
		Editor:    rc.User,
		Anonymous: err == nil,
		URL:       rc.DiffURL(),
		Comment:   rc.Comment,
	}
	if rc.Timestamp > 0 {
		event.Timestamp = time.Unix(rc.Timestamp, 0).UTC()
	}
	return event
}
