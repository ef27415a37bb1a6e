package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jengzang/routes-backend-go/internal/grouping"
	"github.com/jengzang/routes-backend-go/internal/models"
	"github.com/jengzang/routes-backend-go/internal/service"
	"github.com/jengzang/routes-backend-go/internal/spatial"
	"github.com/jengzang/routes-backend-go/internal/spatialindex"
	"github.com/jengzang/routes-backend-go/pkg/response"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
)

// RouteHandler handles HTTP requests for activities and route groups
type RouteHandler struct {
	routeService *service.RouteService
	log          *zap.Logger
}

// NewRouteHandler creates a new route handler
func NewRouteHandler(routeService *service.RouteService, log *zap.Logger) *RouteHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &RouteHandler{
		routeService: routeService,
		log:          log,
	}
}

// ActivityRequest is one activity to ingest. Points may be given as coordinates or as
// an encoded polyline.
type ActivityRequest struct {
	ID       string              `json:"id" binding:"required"`
	Name     string              `json:"name"`
	Type     string              `json:"type"`
	Date     time.Time           `json:"date"`
	Points   []models.RoutePoint `json:"points"`
	Polyline string              `json:"polyline"`
}

// IngestRequest is the body of POST /api/v1/activities
type IngestRequest struct {
	Activities []ActivityRequest `json:"activities" binding:"required,min=1,dive"`
}

// RouteResponse is a route group with encoded geometry for map display
type RouteResponse struct {
	service.RouteDetail
	SignaturePolyline string `json:"signaturePolyline"`
	ConsensusPolyline string `json:"consensusPolyline,omitempty"`
}

// IngestActivities handles POST /api/v1/activities
func (h *RouteHandler) IngestActivities(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	activities := make([]models.Activity, len(req.Activities))
	for i, a := range req.Activities {
		points := a.Points
		if len(points) == 0 && a.Polyline != "" {
			decoded, err := spatial.DecodePolyline(a.Polyline)
			if err != nil {
				response.BadRequest(c, "Invalid polyline for activity "+a.ID)
				return
			}
			points = decoded
		}
		activities[i] = models.Activity{ID: a.ID, Name: a.Name, Type: a.Type, Date: a.Date, Points: points}
	}

	result, err := h.routeService.ProcessActivities(c.Request.Context(), activities, nil)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.routeService.Save(c.Request.Context()); err != nil {
		// grouping already happened in memory; the next save will catch up
		h.log.Error("failed to persist route cache", zap.Error(err))
	}

	response.Created(c, result)
}

// ListRoutes handles GET /api/v1/routes
func (h *RouteHandler) ListRoutes(c *gin.Context) {
	response.Success(c, h.routeService.Groups(c.Query("type")))
}

// GetRoute handles GET /api/v1/routes/:id
func (h *RouteHandler) GetRoute(c *gin.Context) {
	detail, err := h.routeService.Group(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	resp := RouteResponse{
		RouteDetail:       detail,
		SignaturePolyline: spatial.EncodePolyline(detail.Signature.Points),
	}
	if len(detail.Consensus) > 0 {
		resp.ConsensusPolyline = spatial.EncodePolyline(detail.Consensus)
	}
	response.Success(c, resp)
}

// RenameRoute handles PATCH /api/v1/routes/:id
func (h *RouteHandler) RenameRoute(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if err := h.routeService.Rename(c.Param("id"), req.Name); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"id": c.Param("id"), "name": req.Name})
}

// GetRouteGeoJSON handles GET /api/v1/routes/:id/geojson
func (h *RouteHandler) GetRouteGeoJSON(c *gin.Context) {
	detail, err := h.routeService.Group(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	fc := geojson.NewFeatureCollection()
	fc.Append(routeFeature(detail, "signature", detail.Signature.Points))
	if len(detail.Consensus) >= 2 {
		fc.Append(routeFeature(detail, "consensus", detail.Consensus))
	}
	c.JSON(http.StatusOK, fc)
}

// GetSignature handles GET /api/v1/activities/:id/signature
func (h *RouteHandler) GetSignature(c *gin.Context) {
	sig, err := h.routeService.Signature(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, sig)
}

// GetMatch handles GET /api/v1/activities/:id/match
func (h *RouteHandler) GetMatch(c *gin.Context) {
	m, err := h.routeService.Match(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, m)
}

// GetRelated handles GET /api/v1/activities/:id/related
func (h *RouteHandler) GetRelated(c *gin.Context) {
	related, err := h.routeService.Related(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, related)
}

func routeFeature(detail service.RouteDetail, kind string, points []models.RoutePoint) *geojson.Feature {
	f := geojson.NewFeature(spatial.LineString(points))
	f.Properties["routeId"] = detail.ID
	f.Properties["name"] = detail.Name
	f.Properties["type"] = detail.Type
	f.Properties["kind"] = kind
	f.Properties["activityCount"] = detail.ActivityCount
	return f
}

// writeError maps service errors onto HTTP responses
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, grouping.ErrRouteNotFound), errors.Is(err, service.ErrActivityNotFound),
		errors.Is(err, service.ErrMatchBelowThreshold):
		response.NotFound(c, err.Error())
	case errors.Is(err, spatialindex.ErrInvalidBounds):
		response.BadRequest(c, err.Error())
	default:
		// the request logger reports c.Errors
		_ = c.Error(err)
		response.InternalError(c)
	}
}
