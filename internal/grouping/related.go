package grouping

import (
	"sort"

	"github.com/jengzang/routes-backend-go/internal/models"
	"github.com/jengzang/routes-backend-go/internal/routes"
	"github.com/jengzang/routes-backend-go/internal/spatialindex"
)

// RelatedRoute is a group that shares part of its path with an activity
type RelatedRoute struct {
	RouteID string            `json:"routeId"`
	Name    string            `json:"name"`
	Type    string            `json:"type"`
	Match   models.RouteMatch `json:"match"`
}

// Related compares a signature with the representatives of nearby groups other than
// its own and returns the displayable matches, best first. Sport types are not
// filtered: a ride may share a climb with a run.
func (g *Grouper) Related(sig models.RouteSignature) []RelatedRoute {
	if sig.IsDegenerate() {
		return nil
	}

	own, _ := g.cache.RouteIDFor(sig.ActivityID)
	item := spatialindex.ItemFromBounds(sig.ActivityID, sig.Bounds)
	candidates := make(map[string]bool)
	for _, id := range g.index.FindPotentialMatches(item, CandidatePadding) {
		if routeID, ok := g.cache.RouteIDFor(id); ok && routeID != own {
			candidates[routeID] = true
		}
	}

	var out []RelatedRoute
	for _, group := range g.cache.groups {
		if !candidates[group.ID] {
			continue
		}
		m := g.Match(sig, group.Signature, g.cfg)
		if !routes.IsDisplayable(m.MatchPercentage, g.cfg) {
			continue
		}
		m.RouteID = group.ID
		out = append(out, RelatedRoute{RouteID: group.ID, Name: group.Name, Type: group.Type, Match: m})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Match.MatchPercentage > out[j].Match.MatchPercentage
	})
	return out
}
