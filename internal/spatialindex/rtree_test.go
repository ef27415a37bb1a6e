package spatialindex

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jengzang/routes-backend-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomItems(r *rand.Rand, n int) []Item {
	items := make([]Item, n)
	for i := range items {
		x := r.Float64()*2 - 1
		y := r.Float64()*2 + 45
		w := r.Float64()*0.05 + 0.001
		h := r.Float64()*0.05 + 0.001
		items[i] = Item{MinX: x, MinY: y, MaxX: x + w, MaxY: y + h, ActivityID: fmt.Sprintf("a%04d", i)}
	}
	return items
}

func bruteForce(items []Item, q models.Bounds) []string {
	var ids []string
	for _, it := range items {
		if it.MaxX < q.MinLng || q.MaxLng < it.MinX || it.MaxY < q.MinLat || q.MaxLat < it.MinY {
			continue
		}
		ids = append(ids, it.ActivityID)
	}
	sort.Strings(ids)
	return ids
}

func sorted(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}

func TestQueryViewport_MatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	items := randomItems(r, 1000)

	for name, build := range map[string]func() *Index{
		"bulk": func() *Index {
			idx := New()
			require.Empty(t, idx.Build(items))
			return idx
		},
		"incremental": func() *Index {
			idx := New()
			for _, it := range items {
				require.NoError(t, idx.Insert(it))
			}
			return idx
		},
	} {
		t.Run(name, func(t *testing.T) {
			idx := build()
			require.Equal(t, len(items), idx.Len())
			for i := 0; i < 50; i++ {
				x := r.Float64()*2 - 1
				y := r.Float64()*2 + 45
				q := models.Bounds{MinLng: x, MinLat: y, MaxLng: x + r.Float64()*0.3, MaxLat: y + r.Float64()*0.3}
				want := bruteForce(items, q)
				got := sorted(idx.QueryViewport(q))
				if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
					t.Fatalf("viewport %d mismatch (-want +got):\n%s", i, diff)
				}
			}
		})
	}
}

func TestInsertRemove(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Insert(Item{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1, ActivityID: "a"}))
	require.NoError(t, idx.Insert(Item{MinX: 5, MinY: 5, MaxX: 6, MaxY: 6, ActivityID: "b"}))

	view := models.Bounds{MinLat: -1, MaxLat: 2, MinLng: -1, MaxLng: 2}
	assert.Equal(t, []string{"a"}, idx.QueryViewport(view))

	assert.True(t, idx.Remove("a"))
	assert.False(t, idx.Remove("a"))
	assert.Empty(t, idx.QueryViewport(view))
	assert.Equal(t, 1, idx.Len())

	// re-inserting an id replaces its box
	require.NoError(t, idx.Insert(Item{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1, ActivityID: "b"}))
	assert.Equal(t, 1, idx.Len())
	assert.Equal(t, []string{"b"}, idx.QueryViewport(view))
}

func TestInsert_NormalizesAndRejects(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Insert(Item{MinX: 1, MinY: 1, MaxX: 0, MaxY: 0, ActivityID: "inverted"}))
	assert.Equal(t, []string{"inverted"}, idx.QueryViewport(models.Bounds{MinLat: 0.4, MaxLat: 0.6, MinLng: 0.4, MaxLng: 0.6}))

	err := idx.Insert(Item{MinX: math.NaN(), MinY: 0, MaxX: 1, MaxY: 1, ActivityID: "nan"})
	assert.ErrorIs(t, err, ErrInvalidBounds)
	err = idx.Insert(Item{MinX: 0, MinY: 0, MaxX: math.Inf(1), MaxY: 1, ActivityID: "inf"})
	assert.ErrorIs(t, err, ErrInvalidBounds)
	assert.Equal(t, 1, idx.Len())

	errs := idx.Build([]Item{
		{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1, ActivityID: "ok"},
		{MinX: math.NaN(), ActivityID: "bad"},
	})
	require.Len(t, errs, 1)
	assert.Equal(t, 1, idx.Len())
}

func TestBulkInsert(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	idx := New()
	require.NoError(t, idx.Insert(Item{MinX: 10, MinY: 10, MaxX: 11, MaxY: 11, ActivityID: "existing"}))

	small := randomItems(r, 20)
	assert.Empty(t, idx.BulkInsert(small))
	assert.Equal(t, 21, idx.Len())

	large := randomItems(r, 500)
	assert.Empty(t, idx.BulkInsert(large))
	assert.Equal(t, 501, idx.Len(), "ids a0000..a0019 are replaced, existing survives the rebuild")
	assert.Equal(t, []string{"existing"}, idx.QueryViewport(models.Bounds{MinLat: 10.2, MaxLat: 10.8, MinLng: 10.2, MaxLng: 10.8}))
}

func TestFindPotentialMatches(t *testing.T) {
	idx := New()
	self := Item{MinX: 7, MinY: 46, MaxX: 7.01, MaxY: 46.01, ActivityID: "self"}
	near := Item{MinX: 7.0105, MinY: 46, MaxX: 7.02, MaxY: 46.01, ActivityID: "near"} // ~40 m east
	far := Item{MinX: 7.05, MinY: 46, MaxX: 7.06, MaxY: 46.01, ActivityID: "far"}
	idx.Build([]Item{self, near, far})

	assert.Equal(t, []string{"near"}, idx.FindPotentialMatches(self, 100))
	assert.Empty(t, idx.FindPotentialMatches(self, 10))
}

func TestQueryRadius(t *testing.T) {
	idx := New()
	idx.Build([]Item{
		{MinX: 7.00, MinY: 60.00, MaxX: 7.001, MaxY: 60.001, ActivityID: "center"},
		// 0.15° of longitude at 60°N is ~8.3 km
		{MinX: 7.15, MinY: 60.00, MaxX: 7.151, MaxY: 60.001, ActivityID: "east"},
		{MinX: 7.00, MinY: 60.20, MaxX: 7.001, MaxY: 60.201, ActivityID: "north"}, // ~22 km
	})

	assert.ElementsMatch(t, []string{"center", "east"}, idx.QueryRadius(60, 7, 10))
	assert.ElementsMatch(t, []string{"center"}, idx.QueryRadius(60, 7, 5))
	assert.ElementsMatch(t, []string{"center", "east", "north"}, idx.QueryRadius(60, 7, 25))
}

func TestQueryViewport_ClosedBoxes(t *testing.T) {
	idx := New()
	require.Empty(t, idx.Build([]Item{
		{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1, ActivityID: "square"},
		{MinX: 3, MinY: 0, MaxX: 3, MaxY: 2, ActivityID: "meridian"}, // zero width
		{MinX: 1.5, MinY: 1.5, MaxX: 1.5, MaxY: 1.5, ActivityID: "point"},
	}))

	for _, tc := range []struct {
		name string
		view models.Bounds
		want []string
	}{
		{"touches east edge", models.Bounds{MinLng: 1, MaxLng: 2, MinLat: 0.2, MaxLat: 0.8}, []string{"square"}},
		{"touches corner", models.Bounds{MinLng: 1, MaxLng: 1.2, MinLat: 1, MaxLat: 1.2}, []string{"square"}},
		{"zero-width viewport", models.Bounds{MinLng: 0.5, MaxLng: 0.5, MinLat: 0.5, MaxLat: 0.5}, []string{"square"}},
		{"edge on zero-width box", models.Bounds{MinLng: 3, MaxLng: 4, MinLat: 1, MaxLat: 1}, []string{"meridian"}},
		{"point box on viewport corner", models.Bounds{MinLng: 1.5, MaxLng: 2.5, MinLat: 1.5, MaxLat: 2.5}, []string{"point"}},
		{"just past the edge", models.Bounds{MinLng: math.Nextafter(1, 2), MaxLng: 1.4, MinLat: 0, MaxLat: 1}, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			items := idx.Items()
			assert.Equal(t, bruteForce(items, tc.view), sorted(idx.QueryViewport(tc.view)))
			assert.Equal(t, tc.want, bruteForce(items, tc.view))
		})
	}
}
