package domain

import "anonedits/internal/attribution"

// MastodonCredentials identify the account a status is posted from.
type MastodonCredentials struct {
	Instance    string `json:"instance" yaml:"instance"`
	AccessToken string `json:"access_token" yaml:"access_token"`
}

func (c *MastodonCredentials) Configured() bool {
	return c != nil && c.Instance != "" && c.AccessToken != ""
}

// Account is one notification target. It is read-only once loaded.
type Account struct {
	Name     string
	Template string
	Budget   int

	// Ranges and Whitelist are optional; nil means not configured.
	Ranges    *attribution.Table
	Whitelist attribution.Whitelist

	Throttle   bool
	Screenshot bool
	Mastodon   *MastodonCredentials

	// Disabled is set when the account failed validation or a credential
	// check. Disabled accounts never publish.
	Disabled error
}

func (a *Account) Enabled() bool {
	return a != nil && a.Disabled == nil
}

func (a *Account) HasRanges() bool {
	return a.Ranges != nil && a.Ranges.Len() > 0
}

func (a *Account) HasWhitelist() bool {
	return a.Whitelist != nil
}

// Delivery is a rendered status ready to hand to a publisher.
type Delivery struct {
	Account      *Account
	Status       string
	Organization string // empty for whitelisted pages
	Edit         EditEvent

	ASN            uint
	ASOrganization string
}
