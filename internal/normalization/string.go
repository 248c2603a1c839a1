package normalization

import (
	"sort"
	"strings"
	"unicode"
)

func ParseInputString(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}

func ParseInputStringPtr(input *string) *string {
	if input == nil {
		return nil
	}
	normalized := ParseInputString(*input)
	return &normalized
}

// Phrase lowercases, drops punctuation and collapses whitespace.
// "You NEVER listen!" and "you never  listen" normalize identically.
func Phrase(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	space := false
	for _, r := range strings.ToLower(input) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case r == '\'' || r == '’':
			// contractions collapse: "don't" -> "dont"
		default:
			space = true
		}
	}
	return b.String()
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"on": {}, "for": {}, "with": {}, "about": {}, "at": {}, "by": {}, "from": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "it": {}, "its": {},
	"my": {}, "your": {}, "our": {}, "their": {}, "his": {}, "her": {}, "me": {},
	"you": {}, "we": {}, "they": {}, "he": {}, "she": {}, "i": {}, "us": {},
	"again": {}, "over": {}, "who": {}, "what": {}, "when": {}, "not": {},
}

// TopicTokens returns the distinct content tokens of a topic, lightly stemmed.
func TopicTokens(topic string) []string {
	fields := strings.Fields(Phrase(topic))
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, stop := stopwords[f]; stop {
			continue
		}
		f = stem(f)
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// TopicKey is the grouping key for recurring topics.
func TopicKey(topic string) string {
	return strings.Join(TopicTokens(topic), " ")
}

func stem(w string) string {
	switch {
	case len(w) > 4 && strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") && !strings.HasSuffix(w, "us"):
		return w[:len(w)-1]
	default:
		return w
	}
}

// Jaccard is |a∩b| / |a∪b| over distinct strings; two empty sets score 0.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]uint8, len(a)+len(b))
	for _, x := range a {
		set[x] |= 1
	}
	for _, x := range b {
		set[x] |= 2
	}
	inter := 0
	for _, v := range set {
		if v == 3 {
			inter++
		}
	}
	return float64(inter) / float64(len(set))
}
