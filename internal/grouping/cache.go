package grouping

import (
	"errors"
	"fmt"
	"time"

	"github.com/jengzang/routes-backend-go/internal/models"
)

var (
	// ErrRouteNotFound is returned when a group id is unknown
	ErrRouteNotFound = errors.New("route group not found")
	// ErrAlreadyGrouped is returned when an activity is added to a second group
	ErrAlreadyGrouped = errors.New("activity already belongs to a route group")
)

// Cache is the aggregate root of the matching state. Group membership and the
// activity-to-route reverse index are only changed together through its methods.
type Cache struct {
	version           int
	signatures        map[string]models.RouteSignature
	groups            []*models.RouteGroup
	groupIndex        map[string]int
	matches           map[string]models.RouteMatch
	activityToRouteID map[string]string
	processed         map[string]bool
}

// CacheState is the serializable form of a Cache
type CacheState struct {
	Version              int                              `json:"version"`
	Signatures           map[string]models.RouteSignature `json:"signatures"`
	Groups               []models.RouteGroup              `json:"groups"`
	Matches              map[string]models.RouteMatch     `json:"matches"`
	ActivityToRouteID    map[string]string                `json:"activityToRouteId"`
	ProcessedActivityIDs []string                         `json:"processedActivityIds"`
}

// NewCache creates an empty cache for the given schema version
func NewCache(version int) *Cache {
	return &Cache{
		version:           version,
		signatures:        make(map[string]models.RouteSignature),
		groupIndex:        make(map[string]int),
		matches:           make(map[string]models.RouteMatch),
		activityToRouteID: make(map[string]string),
		processed:         make(map[string]bool),
	}
}

// Version returns the cache schema version
func (c *Cache) Version() int {
	return c.version
}

// IsProcessed reports whether the activity has already gone through grouping
func (c *Cache) IsProcessed(activityID string) bool {
	return c.processed[activityID]
}

// MarkProcessed records the activity as handled
func (c *Cache) MarkProcessed(activityID string) {
	c.processed[activityID] = true
}

// ProcessedCount returns the number of processed activities
func (c *Cache) ProcessedCount() int {
	return len(c.processed)
}

// PutSignature stores the signature of an activity
func (c *Cache) PutSignature(sig models.RouteSignature) {
	c.signatures[sig.ActivityID] = sig
}

// Signature returns the signature of an activity
func (c *Cache) Signature(activityID string) (models.RouteSignature, bool) {
	sig, ok := c.signatures[activityID]
	return sig, ok
}

// Signatures returns every stored signature
func (c *Cache) Signatures() []models.RouteSignature {
	out := make([]models.RouteSignature, 0, len(c.signatures))
	for _, sig := range c.signatures {
		out = append(out, sig)
	}
	return out
}

// Match returns the match record of an activity
func (c *Cache) Match(activityID string) (models.RouteMatch, bool) {
	m, ok := c.matches[activityID]
	return m, ok
}

// RouteIDFor returns the group an activity belongs to
func (c *Cache) RouteIDFor(activityID string) (string, bool) {
	id, ok := c.activityToRouteID[activityID]
	return id, ok
}

// Group returns a copy of a group
func (c *Cache) Group(routeID string) (models.RouteGroup, bool) {
	i, ok := c.groupIndex[routeID]
	if !ok {
		return models.RouteGroup{}, false
	}
	return copyGroup(c.groups[i]), true
}

// Groups returns copies of all groups in creation order
func (c *Cache) Groups() []models.RouteGroup {
	out := make([]models.RouteGroup, len(c.groups))
	for i, g := range c.groups {
		out[i] = copyGroup(g)
	}
	return out
}

// CreateGroup adds a new group whose only member is its representative activity
func (c *Cache) CreateGroup(group models.RouteGroup, date time.Time) error {
	activityID := group.Signature.ActivityID
	if _, exists := c.groupIndex[group.ID]; exists {
		return fmt.Errorf("route group %s already exists", group.ID)
	}
	if routeID, ok := c.activityToRouteID[activityID]; ok {
		return fmt.Errorf("%w: %s in %s", ErrAlreadyGrouped, activityID, routeID)
	}

	g := group
	g.ActivityIDs = []string{activityID}
	g.ActivityCount = 1
	g.FirstDate = date
	g.LastDate = date
	g.AverageMatchQuality = 100
	g.ConsensusPoints = nil
	g.ConsensusStale = true

	c.groups = append(c.groups, &g)
	c.groupIndex[g.ID] = len(c.groups) - 1
	c.activityToRouteID[activityID] = g.ID
	c.matches[activityID] = models.RouteMatch{
		ActivityID:      activityID,
		RouteID:         g.ID,
		MatchPercentage: 100,
		Direction:       models.DirectionSame,
		Confidence:      1,
	}
	return nil
}

// AddToGroup appends an activity to a group, updating dates, the running mean of
// match quality, the reverse index and the match record in one step
func (c *Cache) AddToGroup(routeID, activityID string, date time.Time, match models.RouteMatch) error {
	i, ok := c.groupIndex[routeID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRouteNotFound, routeID)
	}
	if current, ok := c.activityToRouteID[activityID]; ok {
		return fmt.Errorf("%w: %s in %s", ErrAlreadyGrouped, activityID, current)
	}

	g := c.groups[i]
	g.ActivityIDs = append(g.ActivityIDs, activityID)
	g.ActivityCount = len(g.ActivityIDs)
	if date.Before(g.FirstDate) {
		g.FirstDate = date
	}
	if date.After(g.LastDate) {
		g.LastDate = date
	}
	g.AverageMatchQuality += (match.MatchPercentage - g.AverageMatchQuality) / float64(g.ActivityCount)
	g.ConsensusStale = true

	match.ActivityID = activityID
	match.RouteID = routeID
	c.activityToRouteID[activityID] = routeID
	c.matches[activityID] = match
	return nil
}

// SetConsensus stores a freshly built consensus polyline and clears the stale flag
func (c *Cache) SetConsensus(routeID string, points []models.RoutePoint) error {
	i, ok := c.groupIndex[routeID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRouteNotFound, routeID)
	}
	c.groups[i].ConsensusPoints = points
	c.groups[i].ConsensusStale = false
	return nil
}

// Rename changes the display name of a group
func (c *Cache) Rename(routeID, name string) error {
	i, ok := c.groupIndex[routeID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRouteNotFound, routeID)
	}
	c.groups[i].Name = name
	return nil
}

// Validate checks that group membership and the reverse index agree. A non-nil
// result is a programming error, never an expected runtime condition.
func (c *Cache) Validate() error {
	members := make(map[string]string)
	for i, g := range c.groups {
		if c.groupIndex[g.ID] != i {
			return fmt.Errorf("group %s is not indexed at position %d", g.ID, i)
		}
		if g.ActivityCount != len(g.ActivityIDs) {
			return fmt.Errorf("group %s count %d != %d members", g.ID, g.ActivityCount, len(g.ActivityIDs))
		}
		for _, id := range g.ActivityIDs {
			if other, dup := members[id]; dup {
				return fmt.Errorf("activity %s is in groups %s and %s", id, other, g.ID)
			}
			members[id] = g.ID
			if c.activityToRouteID[id] != g.ID {
				return fmt.Errorf("reverse index maps %s to %q, group says %s", id, c.activityToRouteID[id], g.ID)
			}
		}
	}
	if len(c.groupIndex) != len(c.groups) {
		return fmt.Errorf("group index has %d entries for %d groups", len(c.groupIndex), len(c.groups))
	}
	for id, routeID := range c.activityToRouteID {
		if members[id] != routeID {
			return fmt.Errorf("reverse index maps %s to %s but no such membership", id, routeID)
		}
	}
	return nil
}

// State returns a deep copy of the cache suitable for serialization
func (c *Cache) State() CacheState {
	st := CacheState{
		Version:              c.version,
		Signatures:           make(map[string]models.RouteSignature, len(c.signatures)),
		Groups:               c.Groups(),
		Matches:              make(map[string]models.RouteMatch, len(c.matches)),
		ActivityToRouteID:    make(map[string]string, len(c.activityToRouteID)),
		ProcessedActivityIDs: make([]string, 0, len(c.processed)),
	}
	for k, v := range c.signatures {
		st.Signatures[k] = v
	}
	for k, v := range c.matches {
		st.Matches[k] = v
	}
	for k, v := range c.activityToRouteID {
		st.ActivityToRouteID[k] = v
	}
	for id := range c.processed {
		st.ProcessedActivityIDs = append(st.ProcessedActivityIDs, id)
	}
	return st
}

// RestoreCache rebuilds a cache from its serialized state and validates it.
// The reverse index is recomputed from group membership and compared with the stored one.
func RestoreCache(st CacheState) (*Cache, error) {
	c := NewCache(st.Version)
	for k, v := range st.Signatures {
		c.signatures[k] = v
	}
	for k, v := range st.Matches {
		c.matches[k] = v
	}
	for _, id := range st.ProcessedActivityIDs {
		c.processed[id] = true
	}
	for i := range st.Groups {
		g := copyGroup(&st.Groups[i])
		c.groups = append(c.groups, &g)
		c.groupIndex[g.ID] = len(c.groups) - 1
		for _, id := range g.ActivityIDs {
			c.activityToRouteID[id] = g.ID
		}
	}
	if st.ActivityToRouteID != nil && len(st.ActivityToRouteID) != len(c.activityToRouteID) {
		return nil, fmt.Errorf("stored reverse index has %d entries, membership has %d",
			len(st.ActivityToRouteID), len(c.activityToRouteID))
	}
	for id, routeID := range st.ActivityToRouteID {
		if c.activityToRouteID[id] != routeID {
			return nil, fmt.Errorf("stored reverse index maps %s to %s, membership says %s", id, routeID, c.activityToRouteID[id])
		}
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("restored cache is inconsistent: %w", err)
	}
	return c, nil
}

func copyGroup(g *models.RouteGroup) models.RouteGroup {
	out := *g
	out.ActivityIDs = append([]string(nil), g.ActivityIDs...)
	if g.ConsensusPoints != nil {
		out.ConsensusPoints = append([]models.RoutePoint(nil), g.ConsensusPoints...)
	}
	return out
}
