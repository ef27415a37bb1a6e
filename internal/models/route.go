package models

import "time"

// RoutePoint is a single WGS84 coordinate of a trace
type RoutePoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds is an axis-aligned bounding box in degrees
type Bounds struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLng float64 `json:"minLng"`
	MaxLng float64 `json:"maxLng"`
}

// Center returns the midpoint of the box (not the centroid of any points)
func (b Bounds) Center() RoutePoint {
	return RoutePoint{
		Lat: (b.MinLat + b.MaxLat) / 2,
		Lng: (b.MinLng + b.MaxLng) / 2,
	}
}

// Normalize swaps inverted corners so that min <= max on both axes
func (b Bounds) Normalize() Bounds {
	if b.MinLat > b.MaxLat {
		b.MinLat, b.MaxLat = b.MaxLat, b.MinLat
	}
	if b.MinLng > b.MaxLng {
		b.MinLng, b.MaxLng = b.MaxLng, b.MinLng
	}
	return b
}

// RouteSignature is the simplified, metric-annotated form of one activity trace.
// It is built once per activity and never mutated afterwards.
type RouteSignature struct {
	ActivityID      string       `json:"activityId" db:"activity_id"`
	Points          []RoutePoint `json:"points" db:"points_json"`
	Distance        float64      `json:"distance" db:"distance"` // meters, from the unsimplified trace
	Bounds          Bounds       `json:"bounds"`
	Center          RoutePoint   `json:"center"`
	StartRegionHash string       `json:"startRegionHash" db:"start_region"`
	EndRegionHash   string       `json:"endRegionHash" db:"end_region"`
	IsLoop          bool         `json:"isLoop" db:"is_loop"`
}

// IsDegenerate reports whether the signature is too small to compare
func (s RouteSignature) IsDegenerate() bool {
	return len(s.Points) < 2
}

// Start returns the first simplified point
func (s RouteSignature) Start() RoutePoint {
	if len(s.Points) == 0 {
		return RoutePoint{}
	}
	return s.Points[0]
}

// End returns the last simplified point
func (s RouteSignature) End() RoutePoint {
	if len(s.Points) == 0 {
		return RoutePoint{}
	}
	return s.Points[len(s.Points)-1]
}

// MatchDirection describes how a trace traverses a route
type MatchDirection string

// MatchDirection constants
const (
	DirectionSame    MatchDirection = "same"
	DirectionReverse MatchDirection = "reverse"
	DirectionPartial MatchDirection = "partial"
)

// RouteMatch is the result of comparing an activity against a route group.
// Overlap fields are only set for partial matches.
type RouteMatch struct {
	ActivityID      string         `json:"activityId" db:"activity_id"`
	RouteID         string         `json:"routeId,omitempty" db:"route_id"`
	MatchPercentage float64        `json:"matchPercentage" db:"match_percentage"` // 0~100
	Direction       MatchDirection `json:"direction" db:"direction"`
	OverlapStart    *float64       `json:"overlapStart,omitempty" db:"overlap_start"`       // meters along the shorter route
	OverlapEnd      *float64       `json:"overlapEnd,omitempty" db:"overlap_end"`           // meters along the shorter route
	OverlapDistance *float64       `json:"overlapDistance,omitempty" db:"overlap_distance"` // meters
	Confidence      float64        `json:"confidence" db:"confidence"`                      // 0~1
}

// RouteGroup is a cluster of activities believed to follow the same physical route
type RouteGroup struct {
	ID                  string         `json:"id" db:"id"`
	Name                string         `json:"name" db:"name"`
	Type                string         `json:"type" db:"type"` // sport type, groups never mix types
	Signature           RouteSignature `json:"signature"`
	ConsensusPoints     []RoutePoint   `json:"consensusPoints,omitempty" db:"consensus_json"`
	ConsensusStale      bool           `json:"consensusStale" db:"consensus_stale"`
	ActivityIDs         []string       `json:"activityIds"`
	ActivityCount       int            `json:"activityCount" db:"activity_count"`
	FirstDate           time.Time      `json:"firstDate" db:"first_date"`
	LastDate            time.Time      `json:"lastDate" db:"last_date"`
	AverageMatchQuality float64        `json:"averageMatchQuality" db:"average_match_quality"`
}

// HasActivity reports whether the activity is a member of the group
func (g *RouteGroup) HasActivity(activityID string) bool {
	for _, id := range g.ActivityIDs {
		if id == activityID {
			return true
		}
	}
	return false
}

// SectionOverlap is the contiguous portion of a trace lying near a section polyline
type SectionOverlap struct {
	ActivityID    string       `json:"activityId"`
	OverlapPoints []RoutePoint `json:"overlapPoints"`
	FullTrack     []RoutePoint `json:"fullTrack"`
	StartIndex    int          `json:"startIndex"`
	EndIndex      int          `json:"endIndex"`
}

// Activity is a recorded activity handed to the engine by ingestion
type Activity struct {
	ID     string       `json:"id" binding:"required"`
	Name   string       `json:"name"`
	Type   string       `json:"type"` // Run, Ride, Walk, ...
	Date   time.Time    `json:"date"`
	Points []RoutePoint `json:"points"`
}
