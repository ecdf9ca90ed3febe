// Package playmatch ranks plays against a partial opportunity intent.
package playmatch

import (
	"math"
	"sort"
	"strings"

	"playbook/internal/domain"
)

const (
	weightOffering = 3
	weightSector   = 2
	weightRegion   = 2
	weightStage    = 1

	// AnySector and AnyRegion are query sentinels that switch the criterion off.
	AnySector = "X-SECTOR"
	AnyRegion = "GLOBAL"
)

var (
	sectorWildcards = []string{"all", "cross-sector", "x-sector"}
	regionWildcards = []string{"global", "all"}
)

// Query is the partial intent a play is matched against. Empty values are
// treated as absent.
type Query struct {
	Offering []string `json:"offering,omitempty"`
	Sector   string   `json:"sector,omitempty"`
	Region   string   `json:"region,omitempty"`
	Stage    string   `json:"stage,omitempty"`
}

// Result pairs a play with its 0..100 score.
type Result struct {
	Play  domain.Play `json:"play"`
	Score int         `json:"score"`
}

func (q Query) offerings() []string {
	var out []string
	for _, o := range q.Offering {
		if o = strings.ToLower(strings.TrimSpace(o)); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Empty reports whether no filter is supplied at all.
func (q Query) Empty() bool {
	return len(q.offerings()) == 0 && strings.TrimSpace(q.Sector) == "" &&
		strings.TrimSpace(q.Region) == "" && strings.TrimSpace(q.Stage) == ""
}

// Match scores every play and returns those above zero, best first. Ties
// keep the input order.
func Match(plays []domain.Play, q Query) []Result {
	res := make([]Result, 0, len(plays))
	for _, p := range plays {
		if s := Score(p, q); s > 0 {
			res = append(res, Result{Play: p, Score: s})
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Score > res[j].Score })
	return res
}

// Score computes the weighted percentage for a single play. Criteria only
// count toward the denominator when their filter is supplied.
func Score(p domain.Play, q Query) int {
	if q.Empty() {
		return 100
	}
	var earned, applicable int

	if offs := q.offerings(); len(offs) > 0 {
		applicable += weightOffering
		if offeringMatches(p.Offering, offs) {
			earned += weightOffering
		}
	}
	if sector := norm(q.Sector); sector != "" && sector != strings.ToLower(AnySector) {
		applicable += weightSector
		if wildcardOrContains(p.Sector, sector, sectorWildcards) {
			earned += weightSector
		}
	}
	if region := norm(q.Region); region != "" && region != strings.ToLower(AnyRegion) {
		applicable += weightRegion
		if wildcardOrContains(p.Geo, region, regionWildcards) {
			earned += weightRegion
		}
	}
	if stage := norm(q.Stage); stage != "" {
		applicable += weightStage
		if wildcardOrContains(p.SalesStage, stage, []string{"all"}) {
			earned += weightStage
		}
	}
	if applicable == 0 {
		return 0
	}
	return int(math.Round(100 * float64(earned) / float64(applicable)))
}

func offeringMatches(playOffering string, wanted []string) bool {
	if strings.TrimSpace(playOffering) == "" {
		return false
	}
	for _, entry := range strings.Split(playOffering, ",") {
		entry = norm(entry)
		if entry == "" {
			continue
		}
		for _, w := range wanted {
			if strings.Contains(entry, w) {
				return true
			}
		}
	}
	return false
}

func wildcardOrContains(value, query string, wildcards []string) bool {
	v := norm(value)
	if v == "" {
		return false
	}
	for _, w := range wildcards {
		if v == w {
			return true
		}
	}
	return strings.Contains(v, query)
}

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
