package theming

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/xaenox/concern-cloud/internal/models"
)

// KeywordThemer groups concerns without a model call. It is deterministic and
// always satisfies the band minimum, which makes it useful offline and in tests.
type KeywordThemer struct {
	categories map[string][]string
}

func NewKeywordThemer() *KeywordThemer {
	return &KeywordThemer{
		categories: map[string][]string{
			"SAMPLE SELECTION":  {"sample", "recruit", "participant", "population", "enrol", "eligib"},
			"RANDOMIZATION":     {"random", "allocation", "assign"},
			"BLINDING":          {"blind", "mask"},
			"MEASUREMENT":       {"measure", "instrument", "scale", "questionnaire", "survey"},
			"DATA INTEGRITY":    {"missing", "dropout", "attrition", "record", "data"},
			"CONTROL VARIABLES": {"control", "confound", "covariate", "baseline"},
			"TIMING":            {"time", "duration", "follow-up", "delay", "schedule"},
			"CONSENT":           {"consent", "ethic", "privacy"},
		},
	}
}

var stopwords = map[string]struct{}{
	"about": {}, "after": {}, "also": {}, "because": {}, "been": {}, "before": {}, "being": {},
	"could": {}, "does": {}, "from": {}, "have": {}, "into": {}, "just": {}, "might": {},
	"more": {}, "most": {}, "only": {}, "other": {}, "over": {}, "should": {}, "some": {},
	"than": {}, "that": {}, "their": {}, "them": {}, "then": {}, "there": {}, "these": {},
	"they": {}, "this": {}, "those": {}, "very": {}, "were": {}, "what": {}, "when": {},
	"where": {}, "which": {}, "while": {}, "will": {}, "with": {}, "would": {}, "your": {},
	"study": {}, "concern": {}, "concerns": {},
}

func tokenize(text string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '-'
	})
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.Trim(w, "-")
		if len(w) < 4 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

type seed struct {
	name  string
	match func(lower string, tokens map[string]struct{}) bool
}

func (k *KeywordThemer) categorySeeds(texts []string) []seed {
	type hit struct {
		name  string
		count int
	}
	var hits []hit
	for name, keywords := range k.categories {
		count := 0
		for _, t := range texts {
			if containsAny(t, keywords) {
				count++
			}
		}
		if count > 0 {
			hits = append(hits, hit{name, count})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].count != hits[j].count {
			return hits[i].count > hits[j].count
		}
		return hits[i].name < hits[j].name
	})

	seeds := make([]seed, len(hits))
	for i, h := range hits {
		keywords := k.categories[h.name]
		seeds[i] = seed{name: h.name, match: func(lower string, _ map[string]struct{}) bool {
			return containsAny(lower, keywords)
		}}
	}
	return seeds
}

func wordSeeds(tokens []map[string]struct{}) []seed {
	df := map[string]int{}
	for _, ts := range tokens {
		for w := range ts {
			df[w]++
		}
	}
	words := make([]string, 0, len(df))
	for w := range df {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if df[words[i]] != df[words[j]] {
			return df[words[i]] > df[words[j]]
		}
		return words[i] < words[j]
	})

	seeds := make([]seed, len(words))
	for i, w := range words {
		w := w
		seeds[i] = seed{name: strings.ToUpper(w), match: func(_ string, ts map[string]struct{}) bool {
			_, ok := ts[w]
			return ok
		}}
	}
	return seeds
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (k *KeywordThemer) Theme(ctx context.Context, concerns []models.ThemedConcern, sessionID string) (*models.ThemeSet, error) {
	n := len(concerns)
	groups, _ := TargetBand(n)
	if groups == 0 {
		return &models.ThemeSet{}, nil
	}

	lower := make([]string, n)
	tokens := make([]map[string]struct{}, n)
	for i, c := range concerns {
		lower[i] = strings.ToLower(c.Text)
		tokens[i] = tokenize(c.Text)
	}

	seeds := k.categorySeeds(lower)
	used := map[string]struct{}{}
	for _, s := range seeds {
		used[s.name] = struct{}{}
	}
	for _, s := range wordSeeds(tokens) {
		if len(seeds) >= groups {
			break
		}
		if _, dup := used[s.name]; dup {
			continue
		}
		seeds = append(seeds, s)
	}
	if len(seeds) > groups {
		seeds = seeds[:groups]
	}
	for len(seeds) < groups {
		seeds = append(seeds, seed{
			name:  fmt.Sprintf("OTHER %d", countOther(seeds)+1),
			match: func(string, map[string]struct{}) bool { return false },
		})
	}

	members := make([][]int, groups)
	for i := range concerns {
		placed := false
		for g, s := range seeds {
			if s.match(lower[i], tokens[i]) {
				members[g] = append(members[g], i)
				placed = true
				break
			}
		}
		if !placed {
			members[smallest(members)] = append(members[smallest(members)], i)
		}
	}

	// Every group must end up non-empty: move the newest member of the
	// largest group into each empty one.
	for g := range members {
		if len(members[g]) > 0 {
			continue
		}
		from := largest(members)
		last := len(members[from]) - 1
		members[g] = append(members[g], members[from][last])
		members[from] = members[from][:last]
	}

	set := &models.ThemeSet{Themes: make([]models.Theme, 0, groups)}
	for g, idx := range members {
		sort.Ints(idx)
		theme := models.Theme{Name: seeds[g].name}
		for _, i := range idx {
			theme.Concerns = append(theme.Concerns, concerns[i])
		}
		set.Themes = append(set.Themes, theme)
	}
	return set, nil
}

func countOther(seeds []seed) int {
	n := 0
	for _, s := range seeds {
		if strings.HasPrefix(s.name, "OTHER ") {
			n++
		}
	}
	return n
}

func smallest(members [][]int) int {
	best := 0
	for g := range members {
		if len(members[g]) < len(members[best]) {
			best = g
		}
	}
	return best
}

func largest(members [][]int) int {
	best := 0
	for g := range members {
		if len(members[g]) > len(members[best]) {
			best = g
		}
	}
	return best
}
