package routes

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Config holds the tunables of signature generation, matching and grouping. Start from
// DefaultConfig and override fields; every value is used as given, zero included.
type Config struct {
	SimplificationTolerance float64 `yaml:"simplificationTolerance" json:"simplificationTolerance" validate:"gte=0"` // meters
	TargetPoints            int     `yaml:"targetPoints" json:"targetPoints" validate:"gte=3"`
	DistanceThreshold       float64 `yaml:"distanceThreshold" json:"distanceThreshold" validate:"gt=0"` // meters
	MinMatchPercentage      float64 `yaml:"minMatchPercentage" json:"minMatchPercentage" validate:"gte=0,lte=100"`
	MinGroupingPercentage   float64 `yaml:"minGroupingPercentage" json:"minGroupingPercentage" validate:"gte=0,lte=100"`
	MinBoundsOverlap        float64 `yaml:"minBoundsOverlap" json:"minBoundsOverlap" validate:"gte=0,lte=1"`
	MaxDistanceDifference   float64 `yaml:"maxDistanceDifference" json:"maxDistanceDifference" validate:"gte=0,lte=1"`
	LoopThreshold           float64 `yaml:"loopThreshold" json:"loopThreshold" validate:"gt=0"`         // meters
	RegionGridSize          float64 `yaml:"regionGridSize" json:"regionGridSize" validate:"gt=0"`       // degrees
	EndpointThreshold       float64 `yaml:"endpointThreshold" json:"endpointThreshold" validate:"gt=0"` // meters
	CoverageThreshold       float64 `yaml:"coverageThreshold" json:"coverageThreshold" validate:"gt=0,lte=1"`
	ConsensusStations       int     `yaml:"consensusStations" json:"consensusStations" validate:"gte=2"`
}

// Default values
const (
	DefaultSimplificationTolerance = 10.0
	DefaultTargetPoints            = 100
	DefaultDistanceThreshold       = 50.0
	DefaultMinMatchPercentage      = 20.0
	DefaultMinGroupingPercentage   = 70.0
	DefaultMinBoundsOverlap        = 0.2
	DefaultMaxDistanceDifference   = 0.5
	DefaultLoopThreshold           = 100.0
	DefaultRegionGridSize          = 0.005
	DefaultEndpointThreshold       = 500.0
	DefaultCoverageThreshold       = 0.8
	DefaultConsensusStations       = 100

	// MaxStepDistance is the longest step (meters) counted towards route distance
	MaxStepDistance = 10000.0
)

// DefaultConfig returns a config with every field at its default
func DefaultConfig() Config {
	return Config{
		SimplificationTolerance: DefaultSimplificationTolerance,
		TargetPoints:            DefaultTargetPoints,
		DistanceThreshold:       DefaultDistanceThreshold,
		MinMatchPercentage:      DefaultMinMatchPercentage,
		MinGroupingPercentage:   DefaultMinGroupingPercentage,
		MinBoundsOverlap:        DefaultMinBoundsOverlap,
		MaxDistanceDifference:   DefaultMaxDistanceDifference,
		LoopThreshold:           DefaultLoopThreshold,
		RegionGridSize:          DefaultRegionGridSize,
		EndpointThreshold:       DefaultEndpointThreshold,
		CoverageThreshold:       DefaultCoverageThreshold,
		ConsensusStations:       DefaultConsensusStations,
	}
}

// Validate checks the field ranges
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid route match config: %w", err)
	}
	return nil
}
