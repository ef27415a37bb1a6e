package spatial

import (
	"fmt"
	"math"
)

// RegionHash returns the identifier of the grid cell containing the point.
// gridSize is the cell edge in degrees (0.005° is roughly 500 m).
// Adjacent points can land in different cells, so the hash is only a pre-filter.
func RegionHash(lat, lng, gridSize float64) string {
	if gridSize <= 0 {
		gridSize = DefaultGridSize
	}
	row := int64(math.Floor(lat / gridSize))
	col := int64(math.Floor(lng / gridSize))
	return fmt.Sprintf("%d:%d", row, col)
}

// DefaultGridSize is the region grid cell size in degrees
const DefaultGridSize = 0.005
