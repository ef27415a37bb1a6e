// Package sections finds where individual traces run along a known shared section.
package sections

import (
	"sort"

	"github.com/jengzang/routes-backend-go/internal/models"
	"github.com/jengzang/routes-backend-go/internal/spatial"
	"github.com/paulmach/orb"
)

const (
	// MinOverlapPoints is the shortest run of near points reported as an overlap
	MinOverlapPoints = 3
	// DefaultThreshold is the proximity (meters) used when callers pass zero
	DefaultThreshold = 50.0
	// BoundsPadding is the fraction of the span added on each side by ComputeOverlapBounds
	BoundsPadding = 0.15
)

// ExtractSectionOverlap returns the longest contiguous run of track points lying
// within thresholdMeters of some point of the section, or nil when no run of at
// least MinOverlapPoints exists. A trace crossing the section twice reports only
// its longest pass.
func ExtractSectionOverlap(activityID string, track, section []models.RoutePoint, thresholdMeters float64) *models.SectionOverlap {
	if thresholdMeters <= 0 {
		thresholdMeters = DefaultThreshold
	}
	if len(track) < MinOverlapPoints || len(section) == 0 {
		return nil
	}

	bestStart, bestLen := -1, 0
	runStart := -1
	for i, p := range track {
		if !isNear(p, section, thresholdMeters) {
			runStart = -1
			continue
		}
		if runStart < 0 {
			runStart = i
		}
		if n := i - runStart + 1; n > bestLen {
			bestStart, bestLen = runStart, n
		}
	}
	if bestLen < MinOverlapPoints {
		return nil
	}

	end := bestStart + bestLen - 1
	overlap := make([]models.RoutePoint, bestLen)
	copy(overlap, track[bestStart:end+1])
	return &models.SectionOverlap{
		ActivityID:    activityID,
		OverlapPoints: overlap,
		FullTrack:     track,
		StartIndex:    bestStart,
		EndIndex:      end,
	}
}

// ExtractSectionOverlaps runs ExtractSectionOverlap over every track, dropping
// activities without an overlap. Results are ordered by activity ID.
func ExtractSectionOverlaps(tracks map[string][]models.RoutePoint, section []models.RoutePoint, thresholdMeters float64) []models.SectionOverlap {
	ids := make([]string, 0, len(tracks))
	for id := range tracks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []models.SectionOverlap
	for _, id := range ids {
		if o := ExtractSectionOverlap(id, tracks[id], section, thresholdMeters); o != nil {
			out = append(out, *o)
		}
	}
	return out
}

// ComputeOverlapBounds unions the section with every overlap and pads the result by
// BoundsPadding of its span. ok is false when there is nothing to bound.
func ComputeOverlapBounds(section []models.RoutePoint, overlaps []models.SectionOverlap) (models.Bounds, bool) {
	var bound orb.Bound
	empty := true
	extend := func(points []models.RoutePoint) {
		if len(points) == 0 {
			return
		}
		b := spatial.LineString(points).Bound()
		if empty {
			bound, empty = b, false
			return
		}
		bound = bound.Union(b)
	}

	extend(section)
	for _, o := range overlaps {
		extend(o.OverlapPoints)
	}
	if empty {
		return models.Bounds{}, false
	}

	padLng := (bound.Max.X() - bound.Min.X()) * BoundsPadding
	padLat := (bound.Max.Y() - bound.Min.Y()) * BoundsPadding
	return models.Bounds{
		MinLat: bound.Min.Y() - padLat,
		MaxLat: bound.Max.Y() + padLat,
		MinLng: bound.Min.X() - padLng,
		MaxLng: bound.Max.X() + padLng,
	}, true
}

func isNear(p models.RoutePoint, section []models.RoutePoint, threshold float64) bool {
	for _, s := range section {
		if spatial.Distance(p, s) <= threshold {
			return true
		}
	}
	return false
}
