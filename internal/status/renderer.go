package status

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultBudget is the character limit of the publishing surface.
	DefaultBudget = 140

	// DefaultPlaceholderURL has the width every link is shortened to before
	// the publishing surface counts it.
	DefaultPlaceholderURL = "https://t.co/BzHLWr31Ce"
)

// Render substitutes {name}, {url} and {page}. Anything else in the template,
// including unknown placeholders, is literal text. Substituted values are not
// expanded again.
func Render(template, name, page, url string) string {
	return strings.NewReplacer(
		"{name}", name,
		"{url}", url,
		"{page}", page,
	).Replace(template)
}

// MeasureLength is the length the publishing surface will count for the
// status, using a placeholder link of the shortened width.
func MeasureLength(template, name, placeholderURL, page string) int {
	return utf8.RuneCountInString(Render(template, name, page, placeholderURL))
}

// Renderer fits statuses into a character budget by shortening the page title.
type Renderer struct {
	budget         int
	placeholderURL string
}

// NewRenderer returns a Renderer; a non-positive budget or empty placeholder
// falls back to DefaultBudget and DefaultPlaceholderURL.
func NewRenderer(budget int, placeholderURL string) *Renderer {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if placeholderURL == "" {
		placeholderURL = DefaultPlaceholderURL
	}
	return &Renderer{budget: budget, placeholderURL: placeholderURL}
}

func (r *Renderer) Budget() int {
	return r.budget
}

// Status renders the template with the real url. When the measured length is
// over budget, the page title loses excess+1 characters from its end and the
// template is rendered once more; the result is not measured again.
func (r *Renderer) Status(template, name, page, url string) string {
	length := MeasureLength(template, name, r.placeholderURL, page)
	if length <= r.budget {
		return Render(template, name, page, url)
	}

	excess := length - r.budget
	return Render(template, name, truncate(page, excess+1), url)
}

// truncate drops n characters from the end of s.
func truncate(s string, n int) string {
	runes := []rune(s)
	if n >= len(runes) {
		return ""
	}
	return string(runes[:len(runes)-n])
}
