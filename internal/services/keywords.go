package services

import (
	"context"
	"regexp"
	"sort"
	"strings"

	pkgservices "github.com/counsel-scripture-api/pkg/schema/services"
	"github.com/counsel-scripture-api/pkg/schema/textnorm"
)

var hangulRE = regexp.MustCompile(`[가-힣]`)

// KeywordExtractor tokenizes text and ranks keywords by frequency. Korean
// text is routed through the morphological analyzer when one is available;
// analyzer failure silently falls back to whitespace tokenization.
type KeywordExtractor struct {
	morph *pkgservices.MorphService
}

// NewKeywordExtractor creates a keyword extractor. morph may be nil.
func NewKeywordExtractor(morph *pkgservices.MorphService) *KeywordExtractor {
	return &KeywordExtractor{morph: morph}
}

// MorphEnabled reports whether the morphological analyzer is wired in
func (e *KeywordExtractor) MorphEnabled() bool {
	return e.morph != nil
}

// tokenize splits normalized text on whitespace, dropping purely numeric
// tokens and tokens shorter than 2 characters
func tokenize(text string) []string {
	normalized := textnorm.Normalize(text)
	if normalized == "" {
		return nil
	}
	var tokens []string
	for _, token := range strings.Fields(normalized) {
		if isDigits(token) || len([]rune(token)) < 2 {
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// tokenizeMorph routes Korean text through the analyzer, filtering to
// content-bearing morphemes with the same numeric/length rules. Any analyzer
// problem degrades to plain tokenization; this never fails.
func (e *KeywordExtractor) tokenizeMorph(ctx context.Context, text string) []string {
	normalized := textnorm.Normalize(text)
	if normalized == "" {
		return nil
	}
	if e.morph == nil || !hangulRE.MatchString(normalized) {
		return tokenize(normalized)
	}
	terms, err := e.morph.Tokenize(ctx, normalized)
	if err != nil {
		return tokenize(normalized)
	}
	var tokens []string
	for _, term := range terms {
		if isDigits(term) || len([]rune(term)) < 2 {
			continue
		}
		tokens = append(tokens, term)
	}
	return tokens
}

// ExtractKeywords counts token frequency across all input texts and returns
// the top limit tokens by descending frequency, ties broken by descending
// token length so longer, more specific tokens win.
func (e *KeywordExtractor) ExtractKeywords(ctx context.Context, texts []string, limit int) []string {
	counts := map[string]int{}
	order := map[string]int{}
	for _, text := range texts {
		for _, token := range e.tokenizeMorph(ctx, text) {
			if _, seen := counts[token]; !seen {
				order[token] = len(order)
			}
			counts[token]++
		}
	}

	ranked := make([]string, 0, len(counts))
	for token := range counts {
		ranked = append(ranked, token)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if counts[a] != counts[b] {
			return counts[a] > counts[b]
		}
		if len([]rune(a)) != len([]rune(b)) {
			return len([]rune(a)) > len([]rune(b))
		}
		return order[a] < order[b]
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// InferTopics returns every topic whose lexicon has at least one keyword
// appearing as a substring of text, in lexicon declaration order
func InferTopics(text string) []string {
	var found []string
	for _, entry := range topicLexicon {
		for _, kw := range entry.keywords {
			if strings.Contains(text, kw) {
				found = append(found, entry.topic)
				break
			}
		}
	}
	return found
}

// ExpandTopicsToTerms flattens topics back to their lexicon keywords,
// deduplicated in order
func ExpandTopicsToTerms(topics []string) []string {
	var terms []string
	for _, topic := range topics {
		for _, entry := range topicLexicon {
			if entry.topic == topic {
				terms = append(terms, entry.keywords...)
				break
			}
		}
	}
	return dedupeTerms(terms)
}

// dedupeTerms removes duplicates preserving first-seen order
func dedupeTerms(terms []string) []string {
	seen := map[string]bool{}
	deduped := make([]string, 0, len(terms))
	for _, term := range terms {
		if seen[term] {
			continue
		}
		seen[term] = true
		deduped = append(deduped, term)
	}
	return deduped
}
