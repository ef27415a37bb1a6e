package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jengzang/routes-backend-go/internal/models"
	"github.com/jengzang/routes-backend-go/internal/sections"
	"github.com/jengzang/routes-backend-go/internal/service"
	"github.com/jengzang/routes-backend-go/internal/spatial"
	"github.com/jengzang/routes-backend-go/pkg/response"
)

// SpatialHandler handles map-driven queries
type SpatialHandler struct {
	routeService *service.RouteService
}

// NewSpatialHandler creates a new spatial handler
func NewSpatialHandler(routeService *service.RouteService) *SpatialHandler {
	return &SpatialHandler{routeService: routeService}
}

// SectionRequest is the body of POST /api/v1/sections/overlaps. The section is
// taken from Section, SectionPolyline or the consensus of RouteID, in that order.
type SectionRequest struct {
	Section         []models.RoutePoint `json:"section"`
	SectionPolyline string              `json:"sectionPolyline"`
	RouteID         string              `json:"routeId"`
	ActivityIDs     []string            `json:"activityIds" binding:"required,min=1"`
	ThresholdMeters float64             `json:"thresholdMeters" binding:"gte=0"`
}

// Viewport handles GET /api/v1/spatial/viewport
func (h *SpatialHandler) Viewport(c *gin.Context) {
	var b models.Bounds
	var err error
	for name, dst := range map[string]*float64{"minLat": &b.MinLat, "maxLat": &b.MaxLat, "minLng": &b.MinLng, "maxLng": &b.MaxLng} {
		if *dst, err = floatQuery(c, name); err != nil {
			response.BadRequest(c, "Invalid "+name+" parameter")
			return
		}
	}

	sigs, err := h.routeService.Viewport(b)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, sigs)
}

// Radius handles GET /api/v1/spatial/radius
func (h *SpatialHandler) Radius(c *gin.Context) {
	lat, err := floatQuery(c, "lat")
	if err != nil {
		response.BadRequest(c, "Invalid lat parameter")
		return
	}
	lng, err := floatQuery(c, "lng")
	if err != nil {
		response.BadRequest(c, "Invalid lng parameter")
		return
	}
	radiusKm, err := floatQuery(c, "radiusKm")
	if err != nil {
		response.BadRequest(c, "Invalid radiusKm parameter")
		return
	}
	exact, err := strconv.ParseBool(c.DefaultQuery("exact", "false"))
	if err != nil {
		response.BadRequest(c, "Invalid exact parameter")
		return
	}

	sigs, err := h.routeService.Radius(lat, lng, radiusKm, exact)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, sigs)
}

// SectionOverlaps handles POST /api/v1/sections/overlaps
func (h *SpatialHandler) SectionOverlaps(c *gin.Context) {
	var req SectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	section := req.Section
	switch {
	case len(section) > 0:
	case req.SectionPolyline != "":
		decoded, err := spatial.DecodePolyline(req.SectionPolyline)
		if err != nil {
			response.BadRequest(c, "Invalid section polyline")
			return
		}
		section = decoded
	case req.RouteID != "":
		detail, err := h.routeService.Group(req.RouteID)
		if err != nil {
			writeError(c, err)
			return
		}
		section = detail.Consensus
		if len(section) < 2 {
			section = detail.Signature.Points
		}
	default:
		response.BadRequest(c, "One of section, sectionPolyline or routeId is required")
		return
	}

	threshold := req.ThresholdMeters
	if threshold == 0 {
		threshold = sections.DefaultThreshold
	}
	response.Success(c, h.routeService.SectionOverlaps(section, req.ActivityIDs, threshold))
}

func floatQuery(c *gin.Context, name string) (float64, error) {
	return strconv.ParseFloat(c.Query(name), 64)
}
