package catalog

import (
	"slices"
	"sort"
	"strings"
	"unicode"

	"github.com/storefront/backend/internal/domain/shared"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultOtherCategory is the catch-all display bucket
const DefaultOtherCategory = "Otros"

// TaxonomyConfig is the configured category layout of the storefront
type TaxonomyConfig struct {
	// DisplayCategories are the categories shown to shoppers, in menu order
	DisplayCategories []string
	// CombinedCategories maps a display category to extra upstream categories it absorbs
	CombinedCategories map[string][]string
	// OtherCategory is the reserved bucket meaning "not in any relevant category"
	OtherCategory string
}

// DefaultTaxonomyConfig returns the storefront's category layout
func DefaultTaxonomyConfig() TaxonomyConfig {
	return TaxonomyConfig{
		DisplayCategories: []string{
			"Celulares Libres",
			"Notebooks",
			"Computadoras",
			"Television",
			"Tablets",
			"Electrodomesticos",
			"Climatizacion",
			"Bazar",
		},
		CombinedCategories: map[string][]string{
			"Informatica Accesorios": {"Impresoras y Scanner"},
			"Computadoras":           {"Monitores"},
			"Electrodomesticos":      {"Lavado y Secado", "Refrigeracion", "Termotanques y Calefones", "Coccion"},
			"Tablets":                {"Tabletas"},
		},
		OtherCategory: DefaultOtherCategory,
	}
}

// CategoryMatch is a resolved category condition for product queries.
// At most one of Include and Exclude is set; both empty means no condition.
type CategoryMatch struct {
	Include []string
	Exclude []string
}

// IsZero reports whether the match applies no condition
func (m CategoryMatch) IsZero() bool {
	return len(m.Include) == 0 && len(m.Exclude) == 0
}

// Taxonomy is the precomputed, read-only category lookup.
// It is built once at start-up and safe for concurrent use.
type Taxonomy struct {
	display     []string
	combined    map[string][]string
	other       string
	relevant    []string
	relevantSet map[string]struct{}
	// canonical maps a folded name to its configured spelling
	canonical map[string]string
	ignored   []string
}

// NewTaxonomy builds the lookup tables from configuration
func NewTaxonomy(cfg TaxonomyConfig) (*Taxonomy, error) {
	other := strings.TrimSpace(cfg.OtherCategory)
	if other == "" {
		other = DefaultOtherCategory
	}

	t := &Taxonomy{
		combined:    make(map[string][]string, len(cfg.CombinedCategories)),
		other:       other,
		relevantSet: make(map[string]struct{}),
		canonical:   make(map[string]string),
	}

	addRelevant := func(name string) {
		if _, ok := t.relevantSet[name]; ok {
			return
		}
		t.relevantSet[name] = struct{}{}
		t.relevant = append(t.relevant, name)
	}

	for _, name := range cfg.DisplayCategories {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if foldCategory(name) == foldCategory(other) {
			return nil, shared.NewDomainError("INVALID_TAXONOMY", "the other bucket cannot be a display category")
		}
		if _, dup := t.relevantSet[name]; !dup {
			t.display = append(t.display, name)
		}
		addRelevant(name)
		t.canonical[foldCategory(name)] = name
	}

	for key, aliases := range cfg.CombinedCategories {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		// aliases only extend display categories
		if !slices.Contains(t.display, key) {
			t.ignored = append(t.ignored, key)
			continue
		}
		for _, alias := range aliases {
			alias = strings.TrimSpace(alias)
			if alias == "" {
				continue
			}
			addRelevant(alias)
			t.combined[key] = appendUnique(t.combined[key], alias)
		}
	}

	sort.Strings(t.relevant)
	sort.Strings(t.ignored)
	return t, nil
}

// MustNewTaxonomy is NewTaxonomy for static configuration known to be valid
func MustNewTaxonomy(cfg TaxonomyConfig) *Taxonomy {
	t, err := NewTaxonomy(cfg)
	if err != nil {
		panic(err)
	}
	return t
}

// IsRelevant reports whether an upstream category is mirrored locally
func (t *Taxonomy) IsRelevant(category string) bool {
	_, ok := t.relevantSet[category]
	return ok
}

// RelevantCategories returns the sorted union of display categories and their aliases
func (t *Taxonomy) RelevantCategories() []string {
	out := make([]string, len(t.relevant))
	copy(out, t.relevant)
	return out
}

// FilterRelevant keeps the items whose category is relevant, in feed order
func (t *Taxonomy) FilterRelevant(items []UpstreamProduct) []UpstreamProduct {
	out := make([]UpstreamProduct, 0, len(items))
	for _, item := range items {
		if t.IsRelevant(item.Category) {
			out = append(out, item)
		}
	}
	return out
}

// IgnoredCombinedKeys lists combined-category keys that name no display category
func (t *Taxonomy) IgnoredCombinedKeys() []string {
	return slices.Clone(t.ignored)
}

// OtherCategory returns the reserved catch-all name
func (t *Taxonomy) OtherCategory() string {
	return t.other
}

// Categories returns the navigation list: display categories then the other bucket
func (t *Taxonomy) Categories() []string {
	out := make([]string, 0, len(t.display)+1)
	out = append(out, t.display...)
	return append(out, t.other)
}

// Resolve turns a requested display category into a query condition.
// Names are compared without regard to case or accents; unknown names match exactly.
func (t *Taxonomy) Resolve(display string) CategoryMatch {
	display = strings.TrimSpace(display)
	if display == "" {
		return CategoryMatch{}
	}

	key := foldCategory(display)
	if key == foldCategory(t.other) {
		return CategoryMatch{Exclude: t.RelevantCategories()}
	}

	name, ok := t.canonical[key]
	if !ok {
		return CategoryMatch{Include: []string{display}}
	}

	include := []string{name}
	for _, alias := range t.combined[name] {
		include = appendUnique(include, alias)
	}
	return CategoryMatch{Include: include}
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// foldCategory strips accents, folds case and collapses whitespace.
func foldCategory(s string) string {
	return strings.Join(strings.Fields(cases.Fold().String(stripAccents(s))), " ")
}

func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
