// Package spatialindex keeps an R-tree over activity bounding boxes for viewport,
// candidate and radius queries. It is a derived accelerator: signatures remain the
// source of truth and the tree can always be rebuilt from them.
package spatialindex

import (
	"errors"
	"fmt"
	"math"

	"github.com/dhconnelly/rtreego"
	"github.com/jengzang/routes-backend-go/internal/models"
	"github.com/jengzang/routes-backend-go/internal/spatial"
)

const (
	dimensions  = 2
	minChildren = 25
	maxChildren = 50

	// BulkRebuildThreshold is the batch size above which BulkInsert rebuilds the tree
	BulkRebuildThreshold = 100

	kmPerDegree = 111.0
)

// ErrInvalidBounds is returned for boxes with non-finite coordinates
var ErrInvalidBounds = errors.New("invalid bounding box")

// Item is one activity bounding box. X is longitude, Y is latitude.
type Item struct {
	MinX, MinY, MaxX, MaxY float64
	ActivityID             string
}

// ItemFromBounds converts a signature bounding box into an index item
func ItemFromBounds(activityID string, b models.Bounds) Item {
	return Item{MinX: b.MinLng, MinY: b.MinLat, MaxX: b.MaxLng, MaxY: b.MaxLat, ActivityID: activityID}
}

// Bounds returns the item box as lat/lng bounds
func (it Item) Bounds() models.Bounds {
	return models.Bounds{MinLat: it.MinY, MaxLat: it.MaxY, MinLng: it.MinX, MaxLng: it.MaxX}
}

// normalize swaps inverted corners and rejects non-finite boxes
func (it Item) normalize() (Item, error) {
	for _, v := range []float64{it.MinX, it.MinY, it.MaxX, it.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return it, fmt.Errorf("%w: activity %s", ErrInvalidBounds, it.ActivityID)
		}
	}
	if it.MinX > it.MaxX {
		it.MinX, it.MaxX = it.MaxX, it.MinX
	}
	if it.MinY > it.MaxY {
		it.MinY, it.MaxY = it.MaxY, it.MinY
	}
	return it, nil
}

// entry is the value stored in the tree; pointers keep Delete comparisons cheap
type entry struct {
	rect rtreego.Rect
	item Item
}

func (e *entry) Bounds() rtreego.Rect {
	return e.rect
}

// Index is an R-tree keyed by activity bounding box. It is not safe for concurrent
// writers; the owner serializes mutations.
type Index struct {
	tree    *rtreego.Rtree
	entries map[string]*entry
}

// New creates an empty index
func New() *Index {
	return &Index{
		tree:    rtreego.NewTree(dimensions, minChildren, maxChildren),
		entries: make(map[string]*entry),
	}
}

// Len returns the number of indexed activities
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Build clears the index and bulk-loads items. Invalid items are skipped and
// reported in the returned slice.
func (idx *Index) Build(items []Item) []error {
	var errs []error
	entries := make(map[string]*entry, len(items))
	for _, it := range items {
		e, err := newEntry(it)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		entries[it.ActivityID] = e
	}

	objs := make([]rtreego.Spatial, 0, len(entries))
	for _, e := range entries {
		objs = append(objs, e)
	}

	idx.tree = rtreego.NewTree(dimensions, minChildren, maxChildren, objs...)
	idx.entries = entries
	return errs
}

// Insert adds or replaces one item
func (idx *Index) Insert(it Item) error {
	e, err := newEntry(it)
	if err != nil {
		return err
	}
	idx.Remove(it.ActivityID)
	idx.tree.Insert(e)
	idx.entries[it.ActivityID] = e
	return nil
}

// Remove deletes an activity from the index and reports whether it was present
func (idx *Index) Remove(activityID string) bool {
	e, ok := idx.entries[activityID]
	if !ok {
		return false
	}
	idx.tree.Delete(e)
	delete(idx.entries, activityID)
	return true
}

// BulkInsert adds many items. Large batches rebuild the whole tree, which is
// faster than many incremental inserts.
func (idx *Index) BulkInsert(items []Item) []error {
	if len(items) <= BulkRebuildThreshold {
		var errs []error
		for _, it := range items {
			if err := idx.Insert(it); err != nil {
				errs = append(errs, err)
			}
		}
		return errs
	}

	merged := make([]Item, 0, len(idx.entries)+len(items))
	replaced := make(map[string]bool, len(items))
	for _, it := range items {
		replaced[it.ActivityID] = true
	}
	for id, e := range idx.entries {
		if !replaced[id] {
			merged = append(merged, e.item)
		}
	}
	merged = append(merged, items...)
	return idx.Build(merged)
}

// QueryViewport returns the activities whose boxes intersect the viewport. Boxes are
// closed: a box touching the viewport edge, or a zero-width viewport on a box, matches.
func (idx *Index) QueryViewport(b models.Bounds) []string {
	it, err := ItemFromBounds("", b).normalize()
	if err != nil {
		return nil
	}
	rect, err := toRect(closed(it))
	if err != nil {
		return nil
	}
	return idx.search(rect, "")
}

// FindPotentialMatches returns the activities whose boxes intersect the activity's
// box padded by paddingMeters, excluding the activity itself
func (idx *Index) FindPotentialMatches(it Item, paddingMeters float64) []string {
	it, err := it.normalize()
	if err != nil {
		return nil
	}
	padded := spatial.PadBounds(it.Bounds(), paddingMeters)
	rect, err := toRect(closed(ItemFromBounds(it.ActivityID, padded)))
	if err != nil {
		return nil
	}
	return idx.search(rect, it.ActivityID)
}

// QueryRadius returns a candidate superset of the activities within radiusKm of the
// point. The box is sized in degrees with longitude corrected for latitude; callers
// needing an exact circle must post-filter by haversine distance.
func (idx *Index) QueryRadius(lat, lng, radiusKm float64) []string {
	latDelta := radiusKm / kmPerDegree
	lngDelta := latDelta
	if cosLat := math.Cos(lat * math.Pi / 180); cosLat > 1e-6 {
		lngDelta = latDelta / cosLat
	} else {
		lngDelta = 180
	}
	return idx.QueryViewport(models.Bounds{
		MinLat: lat - latDelta,
		MaxLat: lat + latDelta,
		MinLng: lng - lngDelta,
		MaxLng: lng + lngDelta,
	})
}

// Items returns every indexed item
func (idx *Index) Items() []Item {
	out := make([]Item, 0, len(idx.entries))
	for _, e := range idx.entries {
		out = append(out, e.item)
	}
	return out
}

func (idx *Index) search(rect rtreego.Rect, exclude string) []string {
	results := idx.tree.SearchIntersect(rect)
	ids := make([]string, 0, len(results))
	for _, obj := range results {
		e := obj.(*entry)
		if e.item.ActivityID == exclude {
			continue
		}
		ids = append(ids, e.item.ActivityID)
	}
	return ids
}

func newEntry(it Item) (*entry, error) {
	it, err := it.normalize()
	if err != nil {
		return nil, err
	}
	rect, err := toRect(it)
	if err != nil {
		return nil, err
	}
	return &entry{rect: rect, item: it}, nil
}

// closed widens a query box by one ulp per side. rtreego treats touching edges as
// disjoint; the widened box turns that into a closed-interval test.
func closed(it Item) Item {
	it.MinX = math.Nextafter(it.MinX, math.Inf(-1))
	it.MinY = math.Nextafter(it.MinY, math.Inf(-1))
	it.MaxX = math.Nextafter(it.MaxX, math.Inf(1))
	it.MaxY = math.Nextafter(it.MaxY, math.Inf(1))
	return it
}

func toRect(it Item) (rtreego.Rect, error) {
	rect, err := rtreego.NewRectFromPoints(rtreego.Point{it.MinX, it.MinY}, rtreego.Point{it.MaxX, it.MaxY})
	if err != nil {
		return rtreego.Rect{}, fmt.Errorf("%w: %v", ErrInvalidBounds, err)
	}
	return rect, nil
}
