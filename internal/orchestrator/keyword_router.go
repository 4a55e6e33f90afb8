package orchestrator

import "strings"

// keywordVocabulary is the curated keyword -> capability map the keyword
// router scans against. Order matters: the first match wins.
var keywordVocabulary = []struct {
	keyword    string
	capability string
}{
	{"weather", "weather.get"},
	{"forecast", "weather.get"},
	{"stock", "stock.price"},
	{"share price", "stock.price"},
	{"flight", "travel.plan"},
	{"hotel", "travel.plan"},
	{"travel", "travel.plan"},
	{"trip", "travel.plan"},
}

// keywordRoute performs the deterministic substring scan fallback: it
// returns a single-task plan for the first vocabulary entry matched, or an
// empty plan if nothing matches.
func keywordRoute(query string) Plan {
	lower := strings.ToLower(query)
	for _, entry := range keywordVocabulary {
		if strings.Contains(lower, entry.keyword) {
			return Plan{
				Tasks: []TaskSpec{{
					TaskID:     "t1",
					Capability: entry.capability,
					Params:     map[string]any{"query": query},
				}},
				Confidence: 1,
				Source:     "keyword_router",
			}
		}
	}
	return Plan{Source: "keyword_router"}
}
