package attribution

// Whitelist marks pages whose edits are always reported, keyed by wiki then page title.
type Whitelist map[string]map[string]bool

// IsWhitelisted is an exact lookup; there is no prefix or pattern matching.
func (w Whitelist) IsWhitelisted(wiki, page string) bool {
	if w == nil {
		return false
	}
	return w[wiki][page]
}

// Len counts whitelisted pages across all wikis.
func (w Whitelist) Len() int {
	n := 0
	for _, pages := range w {
		for _, on := range pages {
			if on {
				n++
			}
		}
	}
	return n
}
