package routes

import (
	"math"

	"github.com/jengzang/routes-backend-go/internal/models"
	"github.com/jengzang/routes-backend-go/internal/spatial"
	"go.uber.org/zap"
)

const (
	maxSimplifyIterations = 5
	targetTolerance       = 0.2 // accept a point count within ±20% of target
	toleranceGrow         = 1.5
	toleranceShrink       = 0.7
)

// Generator turns raw traces into route signatures
type Generator struct {
	cfg Config
	log *zap.Logger
}

// NewGenerator creates a signature generator. A nil logger disables logging.
func NewGenerator(cfg Config, log *zap.Logger) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{cfg: cfg, log: log}
}

// Generate builds the signature of one activity trace. Invalid points are dropped;
// a trace with no valid points yields a zero-valued signature rather than an error.
func (g *Generator) Generate(activityID string, raw []models.RoutePoint) models.RouteSignature {
	points := make([]models.RoutePoint, 0, len(raw))
	for _, p := range raw {
		if spatial.IsValidPoint(p) {
			points = append(points, p)
		}
	}

	if dropped := len(raw) - len(points); dropped > 0 {
		g.log.Warn("dropped invalid GPS points",
			zap.String("activity_id", activityID),
			zap.Int("dropped", dropped),
			zap.Int("total", len(raw)))
	}

	if len(points) == 0 {
		return models.RouteSignature{ActivityID: activityID}
	}

	simplified := g.simplify(points)
	bounds := spatial.ComputeBounds(simplified)
	first := simplified[0]
	last := simplified[len(simplified)-1]

	return models.RouteSignature{
		ActivityID:      activityID,
		Points:          simplified,
		Distance:        spatial.RouteDistance(points, MaxStepDistance),
		Bounds:          bounds,
		Center:          bounds.Center(),
		StartRegionHash: spatial.RegionHash(first.Lat, first.Lng, g.cfg.RegionGridSize),
		EndRegionHash:   spatial.RegionHash(last.Lat, last.Lng, g.cfg.RegionGridSize),
		IsLoop:          len(simplified) >= 2 && spatial.Distance(first, last) < g.cfg.LoopThreshold,
	}
}

// simplify runs Douglas-Peucker with a tolerance adapted towards the target point count
func (g *Generator) simplify(points []models.RoutePoint) []models.RoutePoint {
	target := g.cfg.TargetPoints
	if len(points) <= target {
		out := make([]models.RoutePoint, len(points))
		copy(out, points)
		return out
	}

	lo := float64(target) * (1 - targetTolerance)
	hi := float64(target) * (1 + targetTolerance)
	tolerance := g.cfg.SimplificationTolerance

	var best []models.RoutePoint
	bestDiff := math.MaxInt
	for i := 0; i < maxSimplifyIterations; i++ {
		candidate := spatial.DouglasPeucker(points, tolerance)
		n := len(candidate)
		if diff := absInt(n - target); diff < bestDiff {
			best, bestDiff = candidate, diff
		}
		if float64(n) >= lo && float64(n) <= hi {
			break
		}
		if float64(n) > hi {
			tolerance *= toleranceGrow
		} else {
			tolerance *= toleranceShrink
		}
	}

	if len(best) < 3 && len(points) >= 3 {
		g.log.Debug("simplification collapsed, subsampling",
			zap.Int("input_points", len(points)),
			zap.Int("simplified_points", len(best)))
		return subsample(points, target)
	}
	return best
}

// subsample keeps every stride-th point so that about target points remain; the last point is always kept
func subsample(points []models.RoutePoint, target int) []models.RoutePoint {
	stride := int(math.Ceil(float64(len(points)) / float64(target)))
	if stride < 1 {
		stride = 1
	}

	out := make([]models.RoutePoint, 0, target+1)
	for i := 0; i < len(points); i += stride {
		out = append(out, points[i])
	}
	if (len(points)-1)%stride != 0 {
		out = append(out, points[len(points)-1])
	}
	return out
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
