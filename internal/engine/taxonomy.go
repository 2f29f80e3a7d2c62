package engine

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Category is one label of a closed classification set.
type Category struct {
	Label   string   `json:"label" yaml:"label" toml:"label"`
	Display string   `json:"display,omitempty" yaml:"display,omitempty" toml:"display,omitempty"`
	Aliases []string `json:"aliases,omitempty" yaml:"aliases,omitempty" toml:"aliases,omitempty"`
}

func (c Category) display() string {
	if c.Display != "" {
		return c.Display
	}
	return c.Label
}

// Taxonomy is a closed set of categories with a default for unrecognized output.
type Taxonomy struct {
	Name       string
	Categories []Category
	Default    string

	index map[string]string // normalized label or alias -> label
}

// Preset names.
const (
	TaxonomySubjects = "subjects"
	TaxonomyGeneral  = "general"
)

// Preset returns one of the built-in taxonomies.
func Preset(name string) (*Taxonomy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", TaxonomySubjects:
		return NewTaxonomy(TaxonomySubjects, []Category{
			{Label: "historia", Display: "Historia", Aliases: []string{"history"}},
			{Label: "matematicas", Display: "Matemáticas", Aliases: []string{"matematica", "math", "maths", "mathematics"}},
			{Label: "biologia", Display: "Biología", Aliases: []string{"biology"}},
		}, "historia")
	case TaxonomyGeneral:
		return NewTaxonomy(TaxonomyGeneral, []Category{
			{Label: "math", Display: "Math"},
			{Label: "history", Display: "History"},
			{Label: "entertainment", Display: "Entertainment"},
			{Label: "other", Display: "Other"},
		}, "other")
	}
	return nil, fmt.Errorf("unknown taxonomy preset %q", name)
}

// NewTaxonomy validates cats and builds the lookup index. def must be one of
// the labels.
func NewTaxonomy(name string, cats []Category, def string) (*Taxonomy, error) {
	if len(cats) == 0 {
		return nil, fmt.Errorf("taxonomy %q has no categories", name)
	}
	t := &Taxonomy{Name: name, Categories: append([]Category(nil), cats...), index: make(map[string]string)}
	for _, c := range cats {
		label := Normalize(c.Label)
		if label == "" || label != c.Label {
			return nil, fmt.Errorf("taxonomy %q: label %q must be lowercase ascii without diacritics", name, c.Label)
		}
		keys := append([]string{c.Label, c.Display}, c.Aliases...)
		for _, k := range keys {
			k = Normalize(k)
			if k == "" {
				continue
			}
			if prev, dup := t.index[k]; dup && prev != c.Label {
				return nil, fmt.Errorf("taxonomy %q: %q maps to both %q and %q", name, k, prev, c.Label)
			}
			t.index[k] = c.Label
		}
	}
	def = Normalize(def)
	if _, ok := t.lookup(def); !ok {
		return nil, fmt.Errorf("taxonomy %q: default category %q is not a label", name, def)
	}
	t.Default = def
	return t, nil
}

// Labels returns the category labels in declaration order.
func (t *Taxonomy) Labels() []string {
	out := make([]string, len(t.Categories))
	for i, c := range t.Categories {
		out[i] = c.Label
	}
	return out
}

func (t *Taxonomy) lookup(label string) (Category, bool) {
	for _, c := range t.Categories {
		if c.Label == label {
			return c, true
		}
	}
	return Category{}, false
}

// Parse maps a raw completion to a label. Only the first non-blank line is
// considered; output that matches nothing yields t.Default.
func (t *Taxonomy) Parse(raw string) string {
	key := cleanLabel(Normalize(firstLine(raw)))
	if key == "" {
		return t.Default
	}
	if l, ok := t.index[key]; ok {
		return l
	}
	// "la biologia, porque..." -> "biologia"; the first known word wins.
	for _, w := range strings.FieldsFunc(key, func(r rune) bool { return !unicode.IsLetter(r) }) {
		if l, ok := t.index[w]; ok {
			return l
		}
	}
	return t.Default
}

// Normalize lowercases s and strips diacritics ("Biología" -> "biologia").
func Normalize(s string) string {
	// Chained transformers are stateful, so build one per call.
	tr := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(tr, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

func firstLine(s string) string {
	for _, l := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(l) != "" {
			return l
		}
	}
	return ""
}

var labelPrefixes = []string{"category:", "categoria:", "label:", "answer:", "respuesta:"}

// cleanLabel removes list markers, quotes and a leading "category:" style prefix.
func cleanLabel(s string) string {
	trim := func(s string) string {
		return strings.TrimFunc(s, func(r rune) bool {
			return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsDigit(r)
		})
	}
	s = trim(s)
	for _, p := range labelPrefixes {
		if strings.HasPrefix(s, p) {
			s = trim(strings.TrimPrefix(s, p))
			break
		}
	}
	return s
}
