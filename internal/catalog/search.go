package catalog

import (
	"strings"
	"unicode"

	"github.com/AdamA817/printarr-sub001/internal/models"
)

// Weighted full-text search over the design catalogue. Every design carries
// a precomputed search vector: its title lexemes at weight A and designer
// lexemes at weight B, so a title hit always outranks a designer-only hit.
// Query terms that match no lexeme directly fall back to a trigram
// similarity pass, which catches substring and near-miss queries.

const (
	weightTitle    = 1.0 // weight A
	weightDesigner = 0.4 // weight B

	// trigramThreshold is the minimum fallback similarity for a term to
	// count as a match at all.
	trigramThreshold = 0.3
)

// BuildSearchVector renders the weighted lexeme list stored on a design,
// e.g. "dragon:A v2:A acme:B".
func BuildSearchVector(title, designer string) string {
	var sb strings.Builder
	for _, lex := range searchLexemes(title) {
		sb.WriteString(lex)
		sb.WriteString(":A ")
	}
	for _, lex := range searchLexemes(designer) {
		sb.WriteString(lex)
		sb.WriteString(":B ")
	}
	return strings.TrimSpace(sb.String())
}

// searchLexemes lowercases text and splits it on every non-alphanumeric
// rune.
func searchLexemes(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// searchRank scores a design's vector against a free-text query. Every
// query term must match some lexeme (directly, by prefix, or through the
// trigram fallback) or the design is excluded entirely; matched terms
// accumulate their best weighted score.
func searchRank(vector, query string) float64 {
	terms := searchLexemes(query)
	if len(terms) == 0 || vector == "" {
		return 0
	}
	entries := strings.Fields(vector)

	var rank float64
	for _, term := range terms {
		best := 0.0
		for _, entry := range entries {
			lex, mark, ok := strings.Cut(entry, ":")
			if !ok {
				continue
			}
			weight := weightTitle
			if mark == "B" {
				weight = weightDesigner
			}
			switch {
			case lex == term:
				if weight > best {
					best = weight
				}
			case strings.HasPrefix(lex, term):
				if half := weight / 2; half > best {
					best = half
				}
			default:
				if sim := fallbackSimilarity(term, lex); sim >= trigramThreshold {
					if scored := sim * weight; scored > best {
						best = scored
					}
				}
			}
		}
		if best == 0 {
			return 0
		}
		rank += best
	}
	return rank
}

// fallbackSimilarity scores a term against a lexeme it doesn't share a
// prefix with: containment (the substring-query case) scores by how much of
// the lexeme the term covers, anything else by trigram overlap.
func fallbackSimilarity(term, lex string) float64 {
	if len(term) >= 2 && strings.Contains(lex, term) {
		return float64(len(term)) / float64(len(lex))
	}
	return trigramSimilarity(term, lex)
}

// trigrams pads s with two leading and one trailing space and returns its
// distinct three-byte windows, mirroring pg_trgm's extraction.
func trigrams(s string) map[string]struct{} {
	if s == "" {
		return nil
	}
	padded := "  " + s + " "
	set := make(map[string]struct{}, len(padded))
	for i := 0; i+3 <= len(padded); i++ {
		set[padded[i:i+3]] = struct{}{}
	}
	return set
}

// trigramSimilarity is the Jaccard overlap of the two strings' trigram sets.
func trigramSimilarity(a, b string) float64 {
	ta, tb := trigrams(a), trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	intersection := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	return float64(intersection) / float64(union)
}

// designSearchVector returns a design's stored vector, recomputing it for
// rows persisted before the vector column existed.
func designSearchVector(d models.Design) string {
	if d.SearchVector != "" {
		return d.SearchVector
	}
	return BuildSearchVector(d.EffectiveTitle(), d.EffectiveDesigner())
}
