package playmatch

import (
	"strings"

	"github.com/sahilm/fuzzy"

	"playbook/internal/domain"
)

type playTitles []domain.Play

func (p playTitles) String(i int) string { return p[i].Title }
func (p playTitles) Len() int            { return len(p) }

// Search returns plays whose title fuzzily matches term, best match first.
// An empty term returns every play unchanged.
func Search(plays []domain.Play, term string) []domain.Play {
	term = strings.TrimSpace(term)
	if term == "" {
		return plays
	}
	matches := fuzzy.FindFrom(term, playTitles(plays))
	out := make([]domain.Play, 0, len(matches))
	for _, m := range matches {
		out = append(out, plays[m.Index])
	}
	return out
}
