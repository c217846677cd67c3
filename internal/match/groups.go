package match

// KeywordGroup is one curated concept: a canonical name, the textual synonyms
// that mark it present, and an importance weight.
type KeywordGroup struct {
	Name     string
	Weight   float64
	Synonyms []string
}

// DefaultKeywordGroups returns the built-in concept groups used for keyword
// scoring. Operators can extend or replace the set via configuration; scoring
// itself is agnostic to the contents.
func DefaultKeywordGroups() []KeywordGroup {
	return []KeywordGroup{
		{Name: "election", Weight: 1.0, Synonyms: []string{"election", "electoral"}},
		{Name: "president", Weight: 1.0, Synonyms: []string{"president", "presidential", "presidency"}},
		{Name: "republican_side", Weight: 1.0, Synonyms: []string{"trump", "republican", "gop"}},
		{Name: "democrat_side", Weight: 1.0, Synonyms: []string{"biden", "harris", "democrat"}},
		{Name: "win", Weight: 0.8, Synonyms: []string{"win", "wins", "victory"}},
		{Name: "year_2024", Weight: 0.9, Synonyms: []string{"2024"}},
		{Name: "year_2025", Weight: 0.9, Synonyms: []string{"2025"}},
		{Name: "year_2026", Weight: 0.9, Synonyms: []string{"2026"}},
		{Name: "bitcoin", Weight: 1.0, Synonyms: []string{"bitcoin", "btc"}},
		{Name: "ethereum", Weight: 1.0, Synonyms: []string{"ethereum", "eth "}},
		{Name: "price_above", Weight: 0.9, Synonyms: []string{"price above", "exceed", "reach", "above"}},
		{Name: "fed", Weight: 1.0, Synonyms: []string{"federal reserve", "fed ", "interest rate"}},
		{Name: "inflation", Weight: 1.0, Synonyms: []string{"inflation", "cpi"}},
		{Name: "supreme_court", Weight: 1.0, Synonyms: []string{"supreme court", "scotus"}},
		{Name: "recession", Weight: 1.0, Synonyms: []string{"recession", "gdp decline"}},
		{Name: "senate", Weight: 1.0, Synonyms: []string{"senate"}},
		{Name: "house", Weight: 0.9, Synonyms: []string{"house of representatives", "the house"}},
		{Name: "shutdown", Weight: 1.0, Synonyms: []string{"shutdown", "government funding"}},
	}
}

// defaultStopwords are dropped during tokenization alongside tokens of
// length two or less.
var defaultStopwords = map[string]bool{
	"will": true, "the": true, "a": true, "an": true, "of": true,
	"to": true, "in": true, "on": true, "for": true, "and": true,
	"or": true, "be": true, "is": true, "by": true, "at": true,
	"this": true, "that": true,
}
