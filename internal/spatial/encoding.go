package spatial

import (
	"errors"
	"fmt"

	"github.com/jengzang/routes-backend-go/internal/models"
	"github.com/paulmach/orb"
	"github.com/twpayne/go-polyline"
)

// EncodePolyline encodes points in the Google encoded polyline format (precision 5)
func EncodePolyline(points []models.RoutePoint) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Lat, p.Lng}
	}
	return string(polyline.EncodeCoords(coords))
}

// DecodePolyline decodes a Google encoded polyline
func DecodePolyline(encoded string) ([]models.RoutePoint, error) {
	if encoded == "" {
		return nil, errors.New("encoded polyline string is empty")
	}

	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to decode polyline: %w", err)
	}

	points := make([]models.RoutePoint, len(coords))
	for i, c := range coords {
		points[i] = models.RoutePoint{Lat: c[0], Lng: c[1]}
		if !IsValidPoint(points[i]) {
			return nil, fmt.Errorf("decoded polyline contains invalid coordinate at %d", i)
		}
	}
	return points, nil
}

// LineString converts points to an orb line string (x = lng, y = lat)
func LineString(points []models.RoutePoint) orb.LineString {
	ls := make(orb.LineString, len(points))
	for i, p := range points {
		ls[i] = orb.Point{p.Lng, p.Lat}
	}
	return ls
}
