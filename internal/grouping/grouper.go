// Package grouping clusters matched activities into route groups and derives
// their consensus geometry.
package grouping

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jengzang/routes-backend-go/internal/models"
	"github.com/jengzang/routes-backend-go/internal/routes"
	"github.com/jengzang/routes-backend-go/internal/spatialindex"
	"go.uber.org/zap"
)

// CandidatePadding pads a signature's box (meters) when searching the index for candidates
const CandidatePadding = 100.0

// Outcome is the terminal state of assigning one activity
type Outcome string

// Outcome constants
const (
	OutcomeGrouped   Outcome = "grouped"
	OutcomeNewGroup  Outcome = "new-group"
	OutcomeNoMatch   Outcome = "no-match"
	OutcomeDuplicate Outcome = "already-processed"
)

// MatchFunc computes the full match of a signature against a group representative
type MatchFunc func(sig, representative models.RouteSignature, cfg routes.Config) models.RouteMatch

// Result describes what happened to one activity
type Result struct {
	ActivityID string             `json:"activityId"`
	Outcome    Outcome            `json:"outcome"`
	RouteID    string             `json:"routeId,omitempty"`
	Match      *models.RouteMatch `json:"match,omitempty"`
}

// Grouper assigns activities to route groups. It mutates the cache and the index it
// is given and expects a single writer.
type Grouper struct {
	cache *Cache
	index *spatialindex.Index
	cfg   routes.Config
	log   *zap.Logger

	// Match is the full matcher; replaceable for tests
	Match MatchFunc
	// NewID generates group identifiers
	NewID func() string
}

// NewGrouper creates a grouper over an existing cache and index
func NewGrouper(cache *Cache, index *spatialindex.Index, cfg routes.Config, log *zap.Logger) *Grouper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Grouper{
		cache: cache,
		index: index,
		cfg:   cfg,
		log:   log,
		Match: routes.CompareRoutes,
		NewID: uuid.NewString,
	}
}

// Assign runs candidate search for one signed activity and either joins an existing
// group, creates a new one or records a no-match for degenerate traces.
// Already processed activities are left untouched.
func (g *Grouper) Assign(activity models.Activity, sig models.RouteSignature) (Result, error) {
	res := Result{ActivityID: activity.ID}
	if g.cache.IsProcessed(activity.ID) {
		res.Outcome = OutcomeDuplicate
		res.RouteID, _ = g.cache.RouteIDFor(activity.ID)
		return res, nil
	}

	g.cache.PutSignature(sig)
	if sig.IsDegenerate() {
		g.cache.MarkProcessed(activity.ID)
		res.Outcome = OutcomeNoMatch
		g.log.Info("activity has no usable trace", zap.String("activity_id", activity.ID))
		return res, nil
	}

	item := spatialindex.ItemFromBounds(activity.ID, sig.Bounds)
	if err := g.index.Insert(item); err != nil {
		// still groupable, just invisible to spatial queries
		g.log.Warn("activity not indexed", zap.String("activity_id", activity.ID), zap.Error(err))
	}

	bestID, best := g.bestCandidate(activity, sig, item)
	if best != nil && best.MatchPercentage >= g.cfg.MinGroupingPercentage {
		if err := g.cache.AddToGroup(bestID, activity.ID, activity.Date, *best); err != nil {
			return res, fmt.Errorf("failed to join route %s: %w", bestID, err)
		}
		g.cache.MarkProcessed(activity.ID)
		res.Outcome = OutcomeGrouped
		res.RouteID = bestID
		m, _ := g.cache.Match(activity.ID)
		res.Match = &m
		g.log.Debug("activity grouped",
			zap.String("activity_id", activity.ID),
			zap.String("route_id", bestID),
			zap.Float64("match_percentage", best.MatchPercentage))
		return res, nil
	}

	group := models.RouteGroup{
		ID:        g.NewID(),
		Name:      g.groupName(activity),
		Type:      activity.Type,
		Signature: sig,
	}
	if err := g.cache.CreateGroup(group, activity.Date); err != nil {
		return res, fmt.Errorf("failed to create route for %s: %w", activity.ID, err)
	}
	g.cache.MarkProcessed(activity.ID)
	res.Outcome = OutcomeNewGroup
	res.RouteID = group.ID
	m, _ := g.cache.Match(activity.ID)
	res.Match = &m
	return res, nil
}

// bestCandidate finds the best matching group among those found through the spatial index
func (g *Grouper) bestCandidate(activity models.Activity, sig models.RouteSignature, item spatialindex.Item) (string, *models.RouteMatch) {
	candidates := make(map[string]bool)
	for _, id := range g.index.FindPotentialMatches(item, CandidatePadding) {
		if routeID, ok := g.cache.RouteIDFor(id); ok {
			candidates[routeID] = true
		}
	}
	if len(candidates) == 0 {
		return "", nil
	}

	var reversed *models.RouteSignature
	var bestID string
	var best *models.RouteMatch
	// creation order keeps ties deterministic
	for _, group := range g.cache.groups {
		if !candidates[group.ID] || group.Type != activity.Type {
			continue
		}
		rep := group.Signature
		if !routes.QuickFilterMatch(sig, rep, g.cfg) {
			if reversed == nil {
				r := routes.ReverseSignature(sig)
				reversed = &r
			}
			if !routes.QuickFilterMatch(*reversed, rep, g.cfg) {
				continue
			}
		}

		m := g.Match(sig, rep, g.cfg)
		if best == nil || m.MatchPercentage > best.MatchPercentage {
			bestID = group.ID
			best = &m
		}
	}
	return bestID, best
}

// Consensus returns the consensus polyline of a group, rebuilding it when stale
func (g *Grouper) Consensus(routeID string) ([]models.RoutePoint, error) {
	group, ok := g.cache.Group(routeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRouteNotFound, routeID)
	}
	if !group.ConsensusStale {
		return group.ConsensusPoints, nil
	}

	members := make([]models.RouteSignature, 0, len(group.ActivityIDs))
	for _, id := range group.ActivityIDs {
		sig, ok := g.cache.Signature(id)
		if !ok {
			return nil, fmt.Errorf("missing signature for member %s of %s", id, routeID)
		}
		members = append(members, sig)
	}

	points := BuildConsensus(group.Signature, members, g.cfg)
	if err := g.cache.SetConsensus(routeID, points); err != nil {
		return nil, err
	}
	return points, nil
}

// RebuildIndex refills the spatial index from every stored signature
func (g *Grouper) RebuildIndex() error {
	items := make([]spatialindex.Item, 0, len(g.cache.signatures))
	for _, sig := range g.cache.signatures {
		if sig.IsDegenerate() {
			continue
		}
		items = append(items, spatialindex.ItemFromBounds(sig.ActivityID, sig.Bounds))
	}
	if errs := g.index.Build(items); len(errs) > 0 {
		return fmt.Errorf("%d signatures not indexed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func (g *Grouper) groupName(activity models.Activity) string {
	if activity.Name != "" {
		return activity.Name
	}
	return fmt.Sprintf("Route %d", len(g.cache.groups)+1)
}
