// Package ingest turns GPX documents into activities for the route engine.
package ingest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jengzang/routes-backend-go/internal/models"
	"github.com/tkrajina/gpxgo/gpx"
)

// DefaultType is used for tracks without a <type>
const DefaultType = "Unknown"

// ParseGPX reads a GPX document and returns one activity per track and per route.
// The first activity gets baseID, later ones baseID-2, baseID-3 and so on.
// Tracks and routes without any point are skipped.
func ParseGPX(r io.Reader, baseID string) ([]models.Activity, error) {
	doc, err := gpx.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GPX: %w", err)
	}

	var activities []models.Activity
	add := func(name, sport string, pts []gpx.GPXPoint) {
		if len(pts) == 0 {
			return
		}
		id := baseID
		if n := len(activities); n > 0 {
			id = fmt.Sprintf("%s-%d", baseID, n+1)
		}
		if name == "" {
			name = doc.Name
		}
		if sport == "" {
			sport = DefaultType
		}
		activities = append(activities, models.Activity{
			ID:     id,
			Name:   name,
			Type:   sport,
			Date:   activityDate(doc, pts),
			Points: toRoutePoints(pts),
		})
	}

	for _, track := range doc.Tracks {
		var pts []gpx.GPXPoint
		for _, segment := range track.Segments {
			pts = append(pts, segment.Points...)
		}
		add(track.Name, track.Type, pts)
	}
	for _, route := range doc.Routes {
		add(route.Name, route.Type, route.Points)
	}
	return activities, nil
}

// LoadFile parses a GPX file, using the file name without extension as base ID
func LoadFile(path string) ([]models.Activity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	activities, err := ParseGPX(f, base)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return activities, nil
}

func toRoutePoints(pts []gpx.GPXPoint) []models.RoutePoint {
	out := make([]models.RoutePoint, len(pts))
	for i, p := range pts {
		out[i] = models.RoutePoint{Lat: p.Latitude, Lng: p.Longitude}
	}
	return out
}

func activityDate(doc *gpx.GPX, pts []gpx.GPXPoint) time.Time {
	for _, p := range pts {
		if !p.Timestamp.IsZero() {
			return p.Timestamp.UTC()
		}
	}
	if doc.Time != nil {
		return doc.Time.UTC()
	}
	return time.Time{}
}
