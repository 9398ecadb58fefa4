package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Slugify builds the URL slug the storefront uses to link a product by title
func Slugify(title string) string {
	folded := cases.Lower(language.Und).String(stripAccents(title))

	var b strings.Builder
	b.Grow(len(folded))
	pendingDash := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

// ShortTitle trims a supplier title for product cards.
// TV titles keep four words, notebooks and phones five, anything else three.
func ShortTitle(title string) string {
	words := strings.Split(title, " ")
	lower := strings.ToLower(title)

	n := 3
	switch {
	case strings.Contains(lower, "tv"):
		n = 4
	case strings.Contains(lower, "notebook"), strings.Contains(lower, "celular"):
		n = 5
	}
	if len(words) < n {
		n = len(words)
	}
	return strings.Join(words[:n], " ")
}
