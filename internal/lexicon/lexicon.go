// Package lexicon rewrites domain and regional phrasing into the canonical
// vocabulary the classifiers match against.
package lexicon

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Term maps a phrase to its canonical replacement.
type Term struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Category is an intent label with the keywords that score it.
type Category struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// Tables groups the ordered lookup tables. Sequences, not maps, so
// declaration order is preserved when loaded from YAML.
type Tables struct {
	Terms           []Term     `yaml:"terms"`
	Intents         []Category `yaml:"intents"`
	ConversionTerms []string   `yaml:"conversion_terms"`
}

// DefaultTerms is applied in order; overlapping phrases depend on it.
var DefaultTerms = []Term{
	{From: "paisa", To: "money"},
	{From: "refund chahiye", To: "refund"},
	{From: "daam", To: "price"},
	{From: "khareedna", To: "buy"},
	{From: "booking", To: "booking"},
	{From: "delivery", To: "delivery"},
}

// DefaultIntents in declaration order. Ties resolve to the earlier entry.
var DefaultIntents = []Category{
	{Name: "real_estate_sales", Keywords: []string{"property", "flat", "villa", "floor plan"}},
	{Name: "software_sales", Keywords: []string{"software", "subscription", "demo"}},
	{Name: "insurance_sales", Keywords: []string{"insurance", "policy", "premium"}},
	{Name: "automobile_sales", Keywords: []string{"car", "vehicle", "test drive"}},
	{Name: "generic_sales", Keywords: []string{"buy", "purchase", "order"}},
}

var DefaultConversionTerms = []string{"purchase", "order", "buy", "confirmed"}

// Defaults returns a copy of the built-in tables.
func Defaults() Tables {
	t := Tables{
		Terms:           append([]Term(nil), DefaultTerms...),
		ConversionTerms: append([]string(nil), DefaultConversionTerms...),
	}
	for _, c := range DefaultIntents {
		t.Intents = append(t.Intents, Category{Name: c.Name, Keywords: append([]string(nil), c.Keywords...)})
	}
	return t
}

// Load reads tables from a YAML file. Sections missing from the file keep
// their defaults. An empty path returns the defaults.
func Load(path string) (Tables, error) {
	t := Defaults()
	if path == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read lexicon: %w", err)
	}
	var file Tables
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return t, fmt.Errorf("parse lexicon: %w", err)
	}
	if len(file.Terms) > 0 {
		t.Terms = t.Terms[:0]
		for _, term := range file.Terms {
			from := strings.ToLower(strings.TrimSpace(term.From))
			if from == "" {
				return Defaults(), fmt.Errorf("lexicon term with empty 'from'")
			}
			t.Terms = append(t.Terms, Term{From: from, To: strings.ToLower(term.To)})
		}
	}
	if len(file.Intents) > 0 {
		t.Intents = t.Intents[:0]
		for _, c := range file.Intents {
			if strings.TrimSpace(c.Name) == "" {
				return Defaults(), fmt.Errorf("lexicon intent with empty name")
			}
			kws := make([]string, 0, len(c.Keywords))
			for _, k := range c.Keywords {
				if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
					kws = append(kws, k)
				}
			}
			t.Intents = append(t.Intents, Category{Name: c.Name, Keywords: kws})
		}
	}
	if len(file.ConversionTerms) > 0 {
		t.ConversionTerms = t.ConversionTerms[:0]
		for _, k := range file.ConversionTerms {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				t.ConversionTerms = append(t.ConversionTerms, k)
			}
		}
	}
	return t, nil
}

// Normalizer applies an ordered term table to lower-cased text.
type Normalizer struct {
	terms []Term
}

func NewNormalizer(terms []Term) *Normalizer {
	return &Normalizer{terms: terms}
}

// Normalize lower-cases text and applies each term in declaration order.
func (n *Normalizer) Normalize(text string) string {
	t := strings.ToLower(text)
	for _, term := range n.terms {
		if term.From == "" {
			continue
		}
		t = strings.ReplaceAll(t, term.From, term.To)
	}
	return t
}
