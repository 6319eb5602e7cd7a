package features

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/openlead/kestrel/internal/domain"
)

// keywordSpan is one candidate occurrence of a term inside a field.
type keywordSpan struct {
	start  int
	end    int
	term   string
	weight float64
	tier   string
	field  string
}

// matchKeywords finds weighted term matches in the record's text fields.
// Overlapping occurrences resolve in favor of the longer term: when
// "hydraulic pump" matches, the shorter "hydraulic" inside the same span is
// suppressed. Non-overlapping occurrences of the same term each count once
// per field. Secondary-tier terms contribute at half weight.
func matchKeywords(record *domain.Record, kw domain.KeywordConfig) []domain.KeywordMatch {
	fields := []struct {
		name string
		text string
	}{
		{"company", record.Company},
		{"category", record.Category},
		{"description", record.Description},
		{"display_name", record.DisplayName},
	}

	var matches []domain.KeywordMatch
	for _, field := range fields {
		if field.text == "" {
			continue
		}
		matches = append(matches, matchField(field.name, field.text, kw)...)
	}
	return matches
}

func matchField(field, text string, kw domain.KeywordConfig) []domain.KeywordMatch {
	lower := strings.ToLower(text)

	var spans []keywordSpan
	spans = append(spans, findSpans(lower, field, kw.Primary, "primary", 1.0)...)
	spans = append(spans, findSpans(lower, field, kw.Secondary, "secondary", 0.5)...)

	accepted := resolveOverlaps(spans)

	matches := make([]domain.KeywordMatch, 0, len(accepted))
	seen := make(map[string]bool, len(accepted))
	for _, span := range accepted {
		seen[span.term] = true
		matches = append(matches, domain.KeywordMatch{
			Term:   span.term,
			Weight: span.weight,
			Field:  span.field,
			Tier:   span.tier,
		})
	}

	// Fuzzy matching catches spacing variants and typos for terms with no
	// verbatim occurrence. A fuzzy hit counts once per field.
	if kw.Fuzzy {
		matches = append(matches, fuzzyMatches(lower, field, kw.Primary, "primary", 1.0, seen)...)
		matches = append(matches, fuzzyMatches(lower, field, kw.Secondary, "secondary", 0.5, seen)...)
	}

	return matches
}

// findSpans locates every verbatim occurrence of each term.
func findSpans(lower, field string, terms []domain.KeywordTerm, tier string, scale float64) []keywordSpan {
	var spans []keywordSpan
	for _, t := range terms {
		term := strings.ToLower(t.Term)
		if term == "" {
			continue
		}
		for offset := 0; ; {
			idx := strings.Index(lower[offset:], term)
			if idx < 0 {
				break
			}
			start := offset + idx
			spans = append(spans, keywordSpan{
				start:  start,
				end:    start + len(term),
				term:   t.Term,
				weight: t.Weight * scale,
				tier:   tier,
				field:  field,
			})
			offset = start + 1
		}
	}
	return spans
}

// resolveOverlaps keeps the longest span in each overlapping group. Ties break
// by start position for determinism.
func resolveOverlaps(spans []keywordSpan) []keywordSpan {
	if len(spans) == 0 {
		return nil
	}

	sort.Slice(spans, func(i, j int) bool {
		li, lj := spans[i].end-spans[i].start, spans[j].end-spans[j].start
		if li != lj {
			return li > lj
		}
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].term < spans[j].term
	})

	var accepted []keywordSpan
	for _, span := range spans {
		overlaps := false
		for _, a := range accepted {
			if span.start < a.end && a.start < span.end {
				overlaps = true
				break
			}
		}
		if !overlaps {
			accepted = append(accepted, span)
		}
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].start < accepted[j].start })
	return accepted
}

func fuzzyMatches(lower, field string, terms []domain.KeywordTerm, tier string, scale float64, seen map[string]bool) []domain.KeywordMatch {
	var matches []domain.KeywordMatch
	for _, t := range terms {
		if t.Term == "" || seen[t.Term] {
			continue
		}
		if fuzzy.MatchNormalizedFold(t.Term, lower) {
			seen[t.Term] = true
			matches = append(matches, domain.KeywordMatch{
				Term:   t.Term,
				Weight: t.Weight * scale,
				Field:  field,
				Tier:   tier,
			})
		}
	}
	return matches
}

// relevanceScore turns matched keyword weights into a [0,100] dimension
// value around a neutral 50 baseline.
func relevanceScore(matches []domain.KeywordMatch) float64 {
	score := 50.0
	for _, m := range matches {
		score += m.Weight
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
