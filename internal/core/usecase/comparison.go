package usecase

import (
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/vessellink/veddy/internal/core/domain"
)

// comparisonKeywords gate the detector: without one of these the query is
// never treated as a comparison, whatever the strategies would say.
var comparisonKeywords = []string{
	"비교", "차이", "다른점", "다른 점", "공통점", "장단점",
	"vs", "versus", "compare", "difference",
}

var comparisonPronouns = []string{
	"둘", "두 개", "두개", "양쪽", "이 둘", "both",
}

var semanticPhrases = []string{
	"어느 것", "어느것", "어떤 게", "어떤 것", "뭐가 더", "어느 쪽",
	"which is better", "which one",
}

var (
	// acronymPairRe captures multi-word uppercase subjects around an explicit
	// versus marker, so "IMO DCS vs EU MRV" yields whole phrases.
	acronymPairRe = regexp.MustCompile(`([A-Z][A-Z0-9]+(?:\s+[A-Z][A-Z0-9]+)*)\s*(?:vs\.?|VS\.?|versus|와|과)\s+([A-Z][A-Z0-9]+(?:\s+[A-Z][A-Z0-9]+)*)`)

	// genericPairRe is the loose single-token fallback for everything else.
	genericPairRe = regexp.MustCompile(`([^\s,]+?)\s*(?:vs\.?|VS\.?|versus|와)\s*([^\s,]+)`)

	// historyAcronymRe finds uppercase subject phrases in conversation history.
	historyAcronymRe = regexp.MustCompile(`\b[A-Z][A-Z0-9]+(?:\s+[A-Z][A-Z0-9]+)*\b`)
)

type analyzedQuery struct {
	raw     string
	lowered string
	history string
}

// detectStrategy is one entry in the ordered detection chain. match returns
// at least two topics or nil.
type detectStrategy struct {
	method     string
	confidence float64
	match      func(q analyzedQuery) []string
}

// ComparisonDetector decides whether a query asks to compare two subjects
// and extracts them. Strategies run in fixed priority order; the first one
// that produces two topics wins.
type ComparisonDetector struct {
	strategies []detectStrategy
}

func NewComparisonDetector() *ComparisonDetector {
	return &ComparisonDetector{
		strategies: []detectStrategy{
			{method: "explicit_pair", confidence: 0.95, match: matchExplicitPair},
			{method: "history", confidence: 0.85, match: matchPronounHistory},
			{method: "semantic", confidence: 0.80, match: matchSemanticShape},
			{method: "acronym", confidence: 0.60, match: matchQueryAcronyms},
		},
	}
}

func (d *ComparisonDetector) Detect(query, history string) domain.ComparisonIntent {
	q := analyzedQuery{
		raw:     query,
		lowered: strings.ToLower(query),
		history: history,
	}
	if !hasComparisonKeyword(q.lowered) {
		return domain.ComparisonIntent{}
	}

	for _, strategy := range d.strategies {
		topics := strategy.match(q)
		if len(topics) < 2 {
			continue
		}
		return domain.ComparisonIntent{
			IsComparison: true,
			Topics:       topics[:2],
			Confidence:   strategy.confidence,
			Method:       strategy.method,
		}
	}
	return domain.ComparisonIntent{}
}

func hasComparisonKeyword(lowered string) bool {
	for _, kw := range comparisonKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

func matchExplicitPair(q analyzedQuery) []string {
	for _, re := range []*regexp.Regexp{acronymPairRe, genericPairRe} {
		m := re.FindStringSubmatch(q.raw)
		if m == nil {
			continue
		}
		left, right := cleanTopic(m[1]), cleanTopic(m[2])
		if left != "" && right != "" && left != right {
			return []string{left, right}
		}
	}
	return nil
}

func matchPronounHistory(q analyzedQuery) []string {
	if q.history == "" {
		return nil
	}
	for _, pronoun := range comparisonPronouns {
		if strings.Contains(q.lowered, pronoun) {
			return topicsFromHistory(q.history, 2)
		}
	}
	return nil
}

func matchSemanticShape(q analyzedQuery) []string {
	for _, phrase := range semanticPhrases {
		if strings.Contains(q.lowered, phrase) {
			return topicsFromHistory(q.history, 2)
		}
	}
	return nil
}

func matchQueryAcronyms(q analyzedQuery) []string {
	var topics []string
	seen := make(map[string]bool)
	for _, word := range strings.Fields(q.raw) {
		word = cleanTopic(word)
		if !isUpperToken(word) || seen[word] {
			continue
		}
		seen[word] = true
		topics = append(topics, word)
		if len(topics) == 2 {
			return topics
		}
	}
	return nil
}

// topicsFromHistory returns the most recent max distinct uppercase subjects
// mentioned in the history, in chronological order.
func topicsFromHistory(history string, max int) []string {
	matches := historyAcronymRe.FindAllString(history, -1)
	seen := make(map[string]bool)
	var topics []string
	for i := len(matches) - 1; i >= 0 && len(topics) < max; i-- {
		topic := strings.TrimSpace(matches[i])
		if topic == "" || seen[topic] {
			continue
		}
		seen[topic] = true
		topics = append(topics, topic)
	}
	slices.Reverse(topics)
	return topics
}

func cleanTopic(topic string) string {
	return strings.Trim(topic, " \t?.,!'\"()[]")
}

// isUpperToken reports whether the token is an acronym-looking word: more
// than one rune, at least one letter, no lowercase. Lowercase subjects stay
// unrecognized here on purpose.
func isUpperToken(token string) bool {
	if len([]rune(token)) < 2 {
		return false
	}
	hasLetter := false
	for _, r := range token {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			hasLetter = true
		}
	}
	return hasLetter
}
