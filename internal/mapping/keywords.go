package mapping

import "strings"

// keywordCategories relates business vocabulary to schema naming tokens.
// A term whose normalized form contains the category key picks up the
// keyword score when any related token appears in a table or column name.
var keywordCategories = map[string][]string{
	"cash":     {"cash", "flow"},
	"earnings": {"income", "profit", "earnings"},
	"revenue":  {"revenue", "sales", "income"},
	"expense":  {"expense", "cost", "spending"},
	"profit":   {"profit", "margin", "income"},
	"budget":   {"budget", "plan", "forecast"},
	"asset":    {"asset", "inventory", "holding"},
	"debt":     {"debt", "loan", "liability"},
}

// relatedTokens returns the keyword tokens related to term, or nil.
func relatedTokens(normalizedTerm string) []string {
	var tokens []string
	for category, related := range keywordCategories {
		if strings.Contains(normalizedTerm, category) {
			tokens = append(tokens, related...)
		}
	}
	return tokens
}

// normalize lowers a term and folds separators to underscores so that
// "Cash Flow", "cash-flow", and "cash_flow" all compare equal.
func normalize(term string) string {
	term = strings.ToLower(strings.TrimSpace(term))
	term = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.':
			return '_'
		}
		return r
	}, term)
	return term
}

// nameContains reports whether a schema name contains the normalized term,
// comparing both with and without separators.
func nameContains(name, normalizedTerm string) bool {
	name = strings.ToLower(name)
	if strings.Contains(name, normalizedTerm) {
		return true
	}
	flatName := strings.ReplaceAll(name, "_", "")
	flatTerm := strings.ReplaceAll(normalizedTerm, "_", "")
	return flatTerm != "" && strings.Contains(flatName, flatTerm)
}
