package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dremio-gateway/internal/middleware"
	"dremio-gateway/internal/service"
	"dremio-gateway/pkg/response"
)

type DriverController struct {
	dremioService service.DremioService
}

func NewDriverController(dremioService service.DremioService) *DriverController {
	return &DriverController{dremioService: dremioService}
}

// ListDrivers godoc
// @Summary List protocol drivers
// @Description Availability, enablement and capabilities of every protocol.
// @Tags drivers
// @Produce json
// @Success 200 {object} response.StandardResponse{data=[]model.ProtocolDescriptor}
// @Router /api/v1/drivers [get]
func (dc *DriverController) ListDrivers(c *gin.Context) {
	c.JSON(http.StatusOK, response.SuccessResponse(dc.dremioService.ListDrivers(), middleware.GetCorrelationID(c)))
}

// ListProjects godoc
// @Summary List projects
// @Description Projects visible to the configured credential, via the REST API.
// @Tags projects
// @Produce json
// @Success 200 {object} response.StandardResponse{data=[]model.Project}
// @Failure 401 {object} response.StandardResponse
// @Router /api/v1/projects [get]
func (dc *DriverController) ListProjects(c *gin.Context) {
	correlationID := middleware.GetCorrelationID(c)

	projects, err := dc.dremioService.ListProjects(c.Request.Context())
	if err != nil {
		status, body := response.ErrorResponseFromError(err, correlationID)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, response.SuccessResponse(projects, correlationID))
}

// GetStats returns per-protocol query statistics since startup
func (dc *DriverController) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, response.SuccessResponse(dc.dremioService.Stats(), middleware.GetCorrelationID(c)))
}
