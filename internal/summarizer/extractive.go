package summarizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// sentences shorter than this are dropped
const minSentenceLen = 20

var (
	concernKeywords = []string{"problem", "issue", "concern", "refund"}
	actionKeywords  = []string{"send", "email", "schedule", "call", "follow up"}
	outcomeKeywords = []string{"agreed", "scheduled", "confirmed"}
)

// Extractive builds the six-section summary from the transcript's own
// sentences. Blank input yields "".
func Extractive(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	var sentences []string
	for _, s := range splitSentences(text) {
		if utf8.RuneCountInString(s) >= minSentenceLen {
			sentences = append(sentences, s)
		}
	}

	purpose := "General inquiry."
	if len(sentences) > 0 {
		purpose = sentences[0]
	}
	discussion := sentences[:min(3, len(sentences))]

	var concerns, actions, outcome []string
	for _, s := range sentences {
		sl := strings.ToLower(s)
		if containsAny(sl, concernKeywords) {
			concerns = append(concerns, s)
		}
		if containsAny(sl, actionKeywords) {
			actions = append(actions, s)
		}
		if containsAny(sl, outcomeKeywords) {
			outcome = append(outcome, s)
		}
	}

	concern := "No major concerns expressed."
	if len(concerns) > 0 {
		concern = concerns[0]
	}
	response := "Agent provided information."
	if len(actions) > 0 {
		response = strings.Join(actions, " ")
	}
	final := "Customer agreed to review information."
	if len(outcome) > 0 {
		final = outcome[0]
	}
	followUp := "No"
	if len(actions) > 0 {
		followUp = "Yes"
	}

	bodies := []string{purpose, strings.Join(discussion, " "), concern, response, final, followUp}
	var b strings.Builder
	for i, h := range SectionHeaders {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(h)
		b.WriteString("\n- ")
		b.WriteString(bodies[i])
	}
	return strings.TrimSpace(b.String())
}

// splitSentences cuts after '.', '!' or '?' when followed by whitespace.
// Pieces are trimmed; empty pieces are dropped.
func splitSentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
			if i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
					out = append(out, s)
				}
				j := i + 1
				for j < len(runes) && unicode.IsSpace(runes[j]) {
					j++
				}
				start = j
				i = j - 1
			}
		}
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
