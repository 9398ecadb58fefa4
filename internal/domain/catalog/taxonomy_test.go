package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTaxonomy_RelevantSet(t *testing.T) {
	tax, err := NewTaxonomy(DefaultTaxonomyConfig())
	require.NoError(t, err)

	relevant := tax.RelevantCategories()
	assert.IsNonDecreasing(t, relevant)
	assert.Contains(t, relevant, "Notebooks")
	assert.Contains(t, relevant, "Refrigeracion")
	assert.Contains(t, relevant, "Monitores")
	assert.NotContains(t, relevant, "Otros")

	// a combined key outside the display list contributes nothing
	assert.False(t, tax.IsRelevant("Informatica Accesorios"))
	assert.False(t, tax.IsRelevant("Impresoras y Scanner"))
	assert.Equal(t, []string{"Informatica Accesorios"}, tax.IgnoredCombinedKeys())

	// 8 display + 6 aliases
	assert.Len(t, relevant, 14)
}

func TestNewTaxonomy_Deduplicates(t *testing.T) {
	tax, err := NewTaxonomy(TaxonomyConfig{
		DisplayCategories:  []string{"Tablets", "Tablets", " "},
		CombinedCategories: map[string][]string{"Tablets": {"Tabletas", "Tabletas", "Tablets"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Tabletas", "Tablets"}, tax.RelevantCategories())
	assert.Equal(t, []string{"Tablets", DefaultOtherCategory}, tax.Categories())
}

func TestNewTaxonomy_RejectsOtherAsDisplay(t *testing.T) {
	_, err := NewTaxonomy(TaxonomyConfig{DisplayCategories: []string{"otros"}})
	require.Error(t, err)
}

func TestTaxonomy_FilterRelevant(t *testing.T) {
	tax := MustNewTaxonomy(DefaultTaxonomyConfig())

	items := []UpstreamProduct{
		{ItemID: 1, Category: "Notebooks"},
		{ItemID: 2, Category: "Herramientas"},
		{ItemID: 3, Category: "Refrigeracion"},
		{ItemID: 4, Category: "notebooks"},
	}

	got := tax.FilterRelevant(items)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ItemID)
	assert.Equal(t, int64(3), got[1].ItemID)
}

func TestTaxonomy_FilterRelevant_EmptyTaxonomy(t *testing.T) {
	tax := MustNewTaxonomy(TaxonomyConfig{})
	got := tax.FilterRelevant([]UpstreamProduct{{ItemID: 1, Category: "Notebooks"}})
	assert.Empty(t, got)
	assert.Empty(t, tax.RelevantCategories())
}

func TestTaxonomy_Resolve(t *testing.T) {
	tax := MustNewTaxonomy(DefaultTaxonomyConfig())

	tests := []struct {
		name    string
		input   string
		include []string
		exclude bool
	}{
		{"empty means no condition", "", nil, false},
		{"plain display category", "Notebooks", []string{"Notebooks"}, false},
		{"combined category", "Electrodomesticos", []string{"Electrodomesticos", "Lavado y Secado", "Refrigeracion", "Termotanques y Calefones", "Coccion"}, false},
		{"accent and case insensitive", "electrodomésticos", []string{"Electrodomesticos", "Lavado y Secado", "Refrigeracion", "Termotanques y Calefones", "Coccion"}, false},
		{"combined key outside display list matches exactly", "Informatica Accesorios", []string{"Informatica Accesorios"}, false},
		{"unknown category matches exactly", "Herramientas", []string{"Herramientas"}, false},
		{"other bucket", "Otros", nil, true},
		{"other bucket any case", "OTROS", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tax.Resolve(tt.input)
			if tt.exclude {
				assert.Empty(t, m.Include)
				assert.Equal(t, tax.RelevantCategories(), m.Exclude)
				assert.NotContains(t, m.Exclude, "Impresoras y Scanner")
				return
			}
			assert.Empty(t, m.Exclude)
			if tt.include == nil {
				assert.True(t, m.IsZero())
				return
			}
			assert.ElementsMatch(t, tt.include, m.Include)
		})
	}
}

func TestTaxonomy_RelevantCategoriesIsACopy(t *testing.T) {
	tax := MustNewTaxonomy(DefaultTaxonomyConfig())
	got := tax.RelevantCategories()
	got[0] = "mutated"
	assert.NotEqual(t, "mutated", tax.RelevantCategories()[0])
}
