// Package classifier scores call text into intent categories and a
// sentiment polarity using fixed keyword tables.
package classifier

import (
	"regexp"
	"strings"

	"call-insights-go/internal/lexicon"
	"call-insights-go/internal/types"
)

var (
	positivePattern = regexp.MustCompile(`(?i)(good|great|happy|resolved|thank)`)
	negativePattern = regexp.MustCompile(`(?i)(bad|angry|problem|issue|refund)`)
)

type Classifier struct {
	intents    []lexicon.Category
	conversion []string
}

func New(intents []lexicon.Category, conversionTerms []string) *Classifier {
	return &Classifier{intents: intents, conversion: conversionTerms}
}

// Default uses the built-in tables.
func Default() *Classifier {
	t := lexicon.Defaults()
	return New(t.Intents, t.ConversionTerms)
}

// Intents returns exactly one category: the highest scoring one, with ties
// going to the category declared first. Score is the total number of
// keyword occurrences in the normalized text, so repeated mentions count.
// No match yields general_call.
func (c *Classifier) Intents(normalized string) []string {
	best, bestScore := "", 0
	for _, cat := range c.intents {
		score := 0
		for _, k := range cat.Keywords {
			if k != "" {
				score += strings.Count(normalized, k)
			}
		}
		// strict > keeps the earlier category on ties
		if score > bestScore {
			best, bestScore = cat.Name, score
		}
	}
	if bestScore == 0 {
		return []string{types.GeneralCall}
	}
	return []string{best}
}

// Sentiment counts polarity keyword matches over the raw transcript.
// Equal counts, including zero, are neutral.
func Sentiment(raw string) types.Sentiment {
	pos := len(positivePattern.FindAllStringIndex(raw, -1))
	neg := len(negativePattern.FindAllStringIndex(raw, -1))
	switch {
	case pos > neg:
		return types.SentimentPositive
	case neg > pos:
		return types.SentimentNegative
	default:
		return types.SentimentNeutral
	}
}

// Converted reports whether the normalized text contains a conversion term.
func (c *Classifier) Converted(normalized string) bool {
	for _, w := range c.conversion {
		if w != "" && strings.Contains(normalized, w) {
			return true
		}
	}
	return false
}
