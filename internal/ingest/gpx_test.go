package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jengzang/routes-backend-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <metadata><name>Morning</name><time>2024-06-01T05:00:00Z</time></metadata>
  <trk>
    <name>Harbour run</name>
    <type>Run</type>
    <trkseg>
      <trkpt lat="59.3293" lon="18.0686"><time>2024-06-01T06:00:00Z</time></trkpt>
      <trkpt lat="59.3300" lon="18.0690"><time>2024-06-01T06:00:10Z</time></trkpt>
    </trkseg>
    <trkseg>
      <trkpt lat="59.3310" lon="18.0700"><time>2024-06-01T06:00:20Z</time></trkpt>
    </trkseg>
  </trk>
  <trk><name>empty</name><trkseg></trkseg></trk>
  <rte>
    <name>Planned</name>
    <rtept lat="59.30" lon="18.00"/>
    <rtept lat="59.31" lon="18.01"/>
  </rte>
</gpx>`

func TestParseGPX(t *testing.T) {
	acts, err := ParseGPX(strings.NewReader(sample), "stockholm")
	require.NoError(t, err)
	require.Len(t, acts, 2)

	run := acts[0]
	assert.Equal(t, "stockholm", run.ID)
	assert.Equal(t, "Harbour run", run.Name)
	assert.Equal(t, "Run", run.Type)
	assert.Equal(t, time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC), run.Date)
	assert.Equal(t, []models.RoutePoint{
		{Lat: 59.3293, Lng: 18.0686}, {Lat: 59.3300, Lng: 18.0690}, {Lat: 59.3310, Lng: 18.0700},
	}, run.Points)

	planned := acts[1]
	assert.Equal(t, "stockholm-2", planned.ID)
	assert.Equal(t, DefaultType, planned.Type)
	assert.Equal(t, time.Date(2024, 6, 1, 5, 0, 0, 0, time.UTC), planned.Date)
	assert.Len(t, planned.Points, 2)
}

func TestParseGPX_Invalid(t *testing.T) {
	_, err := ParseGPX(strings.NewReader("not xml"), "x")
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evening-ride.gpx")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	acts, err := LoadFile(path)
	require.NoError(t, err)
	require.NotEmpty(t, acts)
	assert.Equal(t, "evening-ride", acts[0].ID)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.gpx"))
	assert.Error(t, err)
}
