package domain

import "time"

// Notification is the audit record of one hand-off to the publisher.
type Notification struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Account      string `gorm:"size:128;not null;index" json:"account"`
	Wiki         string `gorm:"size:64;not null;index:idx_notification_wiki_page,priority:1" json:"wiki"`
	Page         string `gorm:"size:512;not null;index:idx_notification_wiki_page,priority:2" json:"page"`
	Editor       string `gorm:"size:256;not null" json:"editor"`
	Organization string `gorm:"size:256;not null;default:'';index" json:"organization"`
	Status       string `gorm:"size:1024;not null" json:"status"`
	URL          string `gorm:"size:1024;not null" json:"url"`

	ASN            uint   `gorm:"column:asn;not null;default:0" json:"asn,omitempty"`
	ASOrganization string `gorm:"column:as_organization;size:256;not null;default:''" json:"as_organization,omitempty"`

	Published bool      `gorm:"not null;default:false" json:"published"`
	Error     string    `gorm:"size:1024;not null;default:''" json:"error,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// NewNotification builds the audit record for a delivery and its outcome.
func NewNotification(d Delivery, publishErr error) Notification {
	n := Notification{
		Wiki:           d.Edit.Wiki,
		Page:           d.Edit.Page,
		Editor:         d.Edit.Editor,
		Organization:   d.Organization,
		Status:         d.Status,
		URL:            d.Edit.URL,
		ASN:            d.ASN,
		ASOrganization: d.ASOrganization,
		Published:      publishErr == nil,
	}
	if d.Account != nil {
		n.Account = d.Account.Name
	}
	if publishErr != nil {
		n.Error = publishErr.Error()
	}
	return n
}
