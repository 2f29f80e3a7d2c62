package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseSubjects(t *testing.T) {
	tax, err := Preset(TaxonomySubjects)
	require.NoError(t, err)

	cases := map[string]string{
		"Biología":                       "biologia",
		"  \n\nMATEMÁTICAS\nextra":       "matematicas",
		"historia.":                      "historia",
		"Categoría: Biología":            "biologia",
		"1. matematicas":                 "matematicas",
		"\"Biologia\"":                   "biologia",
		"biology":                        "biologia",
		"Biología, porque trata del ADN": "biologia",
		"La biología":                    "biologia",
		"Es historia, no biología":       "historia",
		"":                               "historia",
		"   ":                            "historia",
		"química":                        "historia",
	}
	for raw, want := range cases {
		assert.Equal(t, want, tax.Parse(raw), "raw %q", raw)
	}
}

func TestParseGeneralDefaultsToOther(t *testing.T) {
	tax, err := Preset(TaxonomyGeneral)
	require.NoError(t, err)
	assert.Equal(t, "math", tax.Parse("Math"))
	assert.Equal(t, "entertainment", tax.Parse("entertainment\n"))
	assert.Equal(t, "other", tax.Parse("geography"))
	assert.Equal(t, []string{"math", "history", "entertainment", "other"}, tax.Labels())
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "biologia", Normalize(" Biología "))
	assert.Equal(t, "matematicas", Normalize("MATEMÁTICAS"))
	assert.Equal(t, "espanol", Normalize("Español"))
}

func TestNewTaxonomyValidation(t *testing.T) {
	_, err := NewTaxonomy("x", nil, "a")
	assert.Error(t, err)

	_, err = NewTaxonomy("x", []Category{{Label: "Biología"}}, "biología")
	assert.Error(t, err, "labels must already be normalized")

	_, err = NewTaxonomy("x", []Category{{Label: "a"}, {Label: "b", Aliases: []string{"a"}}}, "a")
	assert.Error(t, err, "alias collision")

	_, err = NewTaxonomy("x", []Category{{Label: "a"}}, "b")
	assert.Error(t, err, "unknown default")

	tax, err := NewTaxonomy("x", []Category{{Label: "fisica", Display: "Física"}}, "Física")
	require.NoError(t, err)
	assert.Equal(t, "fisica", tax.Default)
	assert.Equal(t, "fisica", tax.Parse("FÍSICA"))

	_, err = Preset("nope")
	assert.Error(t, err)
}

func TestParseAlwaysYieldsALabel(t *testing.T) {
	tax, err := Preset(TaxonomySubjects)
	require.NoError(t, err)
	labels := map[string]bool{}
	for _, l := range tax.Labels() {
		labels[l] = true
	}
	rapid.Check(t, func(rt *rapid.T) {
		raw := rapid.String().Draw(rt, "raw")
		if got := tax.Parse(raw); !labels[got] {
			rt.Fatalf("Parse(%q) = %q, not a label", raw, got)
		}
	})
}
