package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jengzang/routes-backend-go/internal/analysis"
	"github.com/jengzang/routes-backend-go/internal/grouping"
	"github.com/jengzang/routes-backend-go/internal/models"
	"github.com/jengzang/routes-backend-go/internal/routes"
	"github.com/jengzang/routes-backend-go/internal/sections"
	"github.com/jengzang/routes-backend-go/internal/spatial"
	"github.com/jengzang/routes-backend-go/internal/spatialindex"
	"go.uber.org/zap"
)

// ErrActivityNotFound is returned when an activity was never processed
var ErrActivityNotFound = errors.New("activity not found")

// ErrMatchBelowThreshold is returned for stored matches too weak to display
var ErrMatchBelowThreshold = errors.New("match below display threshold")

// DefaultTrackCacheSize is the number of raw traces kept for section queries
const DefaultTrackCacheSize = 1000

// CacheStore persists the route cache
type CacheStore interface {
	Save(ctx context.Context, c *grouping.Cache) error
	Load(ctx context.Context, version int) (*grouping.Cache, error)
}

// RouteDetail is a group together with its consensus polyline
type RouteDetail struct {
	models.RouteGroup
	Consensus []models.RoutePoint `json:"consensus"`
}

// SectionResult is the outcome of a section overlap query
type SectionResult struct {
	Overlaps []models.SectionOverlap `json:"overlaps"`
	Bounds   *models.Bounds          `json:"bounds,omitempty"`
	Missing  []string                `json:"missing,omitempty"`
}

// BatchResult summarizes a bulk ingestion
type BatchResult struct {
	Results  []grouping.Result `json:"results"`
	Progress analysis.Progress `json:"progress"`
}

// RouteService owns the route cache, the spatial index and the grouper. All access
// goes through one mutex, so there is a single writer at any time.
type RouteService struct {
	mu      sync.Mutex
	cfg     routes.Config
	version int
	store   CacheStore
	log     *zap.Logger

	gen     *routes.Generator
	cache   *grouping.Cache
	index   *spatialindex.Index
	grouper *grouping.Grouper
	// most recently ingested raw traces; section queries fall back to signature points
	tracks *lru.Cache[string, []models.RoutePoint]

	// BatchSize is the number of activities between progress reports
	BatchSize int
}

// NewRouteService creates a service with an empty cache. store may be nil for an
// in-memory service.
func NewRouteService(cfg routes.Config, version int, store CacheStore, log *zap.Logger) *RouteService {
	if log == nil {
		log = zap.NewNop()
	}
	// only fails for a non-positive size
	tracks, _ := lru.New[string, []models.RoutePoint](DefaultTrackCacheSize)
	s := &RouteService{
		cfg:       cfg,
		version:   version,
		store:     store,
		log:       log,
		gen:       routes.NewGenerator(cfg, log),
		tracks:    tracks,
		BatchSize: analysis.DefaultBatchSize,
	}
	s.reset(grouping.NewCache(version))
	return s
}

func (s *RouteService) reset(cache *grouping.Cache) {
	s.cache = cache
	s.index = spatialindex.New()
	s.grouper = grouping.NewGrouper(cache, s.index, s.cfg, s.log)
}

// Load replaces the in-memory state with the stored cache and rebuilds the index
func (s *RouteService) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	cache, err := s.store.Load(ctx, s.version)
	if err != nil {
		return fmt.Errorf("failed to load route cache: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset(cache)
	if err := s.grouper.RebuildIndex(); err != nil {
		// those activities stay grouped but are invisible to spatial queries
		s.log.Warn("spatial index rebuilt with errors", zap.Error(err))
	}
	s.log.Info("route cache loaded",
		zap.Int("version", cache.Version()),
		zap.Int("processed", cache.ProcessedCount()),
		zap.Int("routes", len(cache.Groups())),
		zap.Int("indexed", s.index.Len()))
	return nil
}

// Save persists the current cache
func (s *RouteService) Save(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Save(ctx, s.cache); err != nil {
		return fmt.Errorf("failed to save route cache: %w", err)
	}
	return nil
}

// ProcessActivity signs one activity and assigns it to a route group
func (s *RouteService) ProcessActivity(activity models.Activity) (grouping.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.process(activity)
}

func (s *RouteService) process(activity models.Activity) (grouping.Result, error) {
	if s.cache.IsProcessed(activity.ID) {
		return s.grouper.Assign(activity, models.RouteSignature{ActivityID: activity.ID})
	}

	sig := s.gen.Generate(activity.ID, activity.Points)
	res, err := s.grouper.Assign(activity, sig)
	if err != nil {
		return res, err
	}
	if len(activity.Points) > 0 {
		s.tracks.Add(activity.ID, activity.Points)
	}
	if err := s.cache.Validate(); err != nil {
		// unreachable unless a cache method is broken
		s.log.Error("route cache inconsistent", zap.String("activity_id", activity.ID), zap.Error(err))
		return res, err
	}
	return res, nil
}

// ProcessActivities processes activities in batches. Each activity takes the lock on
// its own, so reads interleave with a long backfill. Cancellation stops between
// activities and returns the results so far.
func (s *RouteService) ProcessActivities(ctx context.Context, activities []models.Activity, onProgress analysis.ProgressFunc) (BatchResult, error) {
	runner := analysis.NewBatchRunner("route-backfill", s.BatchSize, s.log)
	runner.OnProgress = onProgress

	results := make([]grouping.Result, len(activities))
	progress, err := runner.Run(ctx, len(activities), func(_ context.Context, i int) error {
		res, err := s.ProcessActivity(activities[i])
		results[i] = res
		return err
	})
	return BatchResult{Results: results[:progress.Processed], Progress: progress}, err
}

// Groups returns every route group, optionally restricted to one sport type
func (s *RouteService) Groups(sportType string) []models.RouteGroup {
	s.mu.Lock()
	defer s.mu.Unlock()

	groups := s.cache.Groups()
	if sportType == "" {
		return groups
	}
	out := groups[:0]
	for _, g := range groups {
		if g.Type == sportType {
			out = append(out, g)
		}
	}
	return out
}

// Group returns a route group with its consensus, rebuilding the consensus if stale
func (s *RouteService) Group(routeID string) (RouteDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	consensus, err := s.grouper.Consensus(routeID)
	if err != nil {
		return RouteDetail{}, err
	}
	g, ok := s.cache.Group(routeID)
	if !ok {
		return RouteDetail{}, fmt.Errorf("%w: %s", grouping.ErrRouteNotFound, routeID)
	}
	return RouteDetail{RouteGroup: g, Consensus: consensus}, nil
}

// Rename changes the display name of a route group
func (s *RouteService) Rename(routeID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Rename(routeID, name)
}

// Signature returns the signature of a processed activity
func (s *RouteService) Signature(activityID string) (models.RouteSignature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, ok := s.cache.Signature(activityID)
	if !ok {
		return models.RouteSignature{}, fmt.Errorf("%w: %s", ErrActivityNotFound, activityID)
	}
	return sig, nil
}

// Match returns the route match of a grouped activity. Matches under
// MinMatchPercentage are not shown.
func (s *RouteService) Match(activityID string) (models.RouteMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.cache.Match(activityID)
	if !ok {
		return models.RouteMatch{}, fmt.Errorf("%w: %s", ErrActivityNotFound, activityID)
	}
	if !routes.IsDisplayable(m.MatchPercentage, s.cfg) {
		return models.RouteMatch{}, fmt.Errorf("%w: %s", ErrMatchBelowThreshold, activityID)
	}
	return m, nil
}

// Related returns the other route groups that share part of the activity's path
func (s *RouteService) Related(activityID string) ([]grouping.RelatedRoute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, ok := s.cache.Signature(activityID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActivityNotFound, activityID)
	}
	return s.grouper.Related(sig), nil
}

// Viewport returns the signatures whose boxes intersect the viewport
func (s *RouteService) Viewport(b models.Bounds) ([]models.RouteSignature, error) {
	if !finiteBounds(b) {
		return nil, spatialindex.ErrInvalidBounds
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signatures(s.index.QueryViewport(b)), nil
}

// Radius returns the signatures near a point. The index answer is a superset; with
// exact set, only routes passing within radiusKm of the point are kept.
func (s *RouteService) Radius(lat, lng, radiusKm float64, exact bool) ([]models.RouteSignature, error) {
	if !spatial.IsValidPoint(models.RoutePoint{Lat: lat, Lng: lng}) || radiusKm <= 0 || math.IsInf(radiusKm, 0) {
		return nil, spatialindex.ErrInvalidBounds
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sigs := s.signatures(s.index.QueryRadius(lat, lng, radiusKm))
	if !exact {
		return sigs, nil
	}
	p := models.RoutePoint{Lat: lat, Lng: lng}
	radius := radiusKm * 1000
	out := sigs[:0]
	for _, sig := range sigs {
		if spatial.Distance(p, nearestInBounds(p, sig.Bounds)) > radius {
			continue
		}
		if spatial.PointToPolylineDistance(p, sig.Points) <= radius {
			out = append(out, sig)
		}
	}
	return out, nil
}

// SectionOverlaps finds where each listed activity runs along the section. Activities
// without a stored trace are reported as missing.
func (s *RouteService) SectionOverlaps(section []models.RoutePoint, activityIDs []string, thresholdMeters float64) SectionResult {
	s.mu.Lock()
	tracks := make(map[string][]models.RoutePoint, len(activityIDs))
	var missing []string
	for _, id := range activityIDs {
		if pts, ok := s.tracks.Get(id); ok {
			tracks[id] = pts
		} else if sig, ok := s.cache.Signature(id); ok && !sig.IsDegenerate() {
			tracks[id] = sig.Points
		} else {
			missing = append(missing, id)
		}
	}
	s.mu.Unlock()

	res := SectionResult{
		Overlaps: sections.ExtractSectionOverlaps(tracks, section, thresholdMeters),
		Missing:  missing,
	}
	if b, ok := sections.ComputeOverlapBounds(section, res.Overlaps); ok {
		res.Bounds = &b
	}
	return res
}

// SetTrackCacheSize changes how many raw traces are kept, evicting the oldest
func (s *RouteService) SetTrackCacheSize(n int) {
	if n < 1 {
		n = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks.Resize(n)
}

// Stats summarizes the in-memory state
func (s *RouteService) Stats() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]int{
		"processed": s.cache.ProcessedCount(),
		"routes":    len(s.cache.Groups()),
		"indexed":   s.index.Len(),
		"tracks":    s.tracks.Len(),
	}
}

func (s *RouteService) signatures(ids []string) []models.RouteSignature {
	out := make([]models.RouteSignature, 0, len(ids))
	for _, id := range ids {
		if sig, ok := s.cache.Signature(id); ok {
			out = append(out, sig)
		}
	}
	return out
}

func finiteBounds(b models.Bounds) bool {
	for _, v := range []float64{b.MinLat, b.MaxLat, b.MinLng, b.MaxLng} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func nearestInBounds(p models.RoutePoint, b models.Bounds) models.RoutePoint {
	return models.RoutePoint{
		Lat: math.Max(b.MinLat, math.Min(p.Lat, b.MaxLat)),
		Lng: math.Max(b.MinLng, math.Min(p.Lng, b.MaxLng)),
	}
}
