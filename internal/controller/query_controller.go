package controller

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"dremio-gateway/internal/middleware"
	"dremio-gateway/internal/model"
	"dremio-gateway/internal/security"
	"dremio-gateway/internal/service"
	"dremio-gateway/internal/utils"
	"dremio-gateway/pkg/response"
)

type QueryController struct {
	dremioService service.DremioService
	validator     *validator.Validate
}

func NewQueryController(dremioService service.DremioService) *QueryController {
	return &QueryController{
		dremioService: dremioService,
		validator:     validator.New(),
	}
}

// ExecuteQuery godoc
// @Summary Run a SQL statement over several protocols
// @Description Runs the statement once per requested protocol and returns a
// per-protocol report. Failures of single protocols are part of the report.
// @Tags queries
// @Accept json
// @Produce json
// @Param request body model.QueryRequest true "Query request"
// @Success 200 {object} response.StandardResponse{data=model.MultiProtocolReport}
// @Failure 400 {object} response.StandardResponse
// @Failure 422 {object} response.StandardResponse
// @Router /api/v1/query [post]
func (qc *QueryController) ExecuteQuery(c *gin.Context) {
	correlationID := middleware.GetCorrelationID(c)

	var req model.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse(
			utils.ErrCodeInvalidRequest,
			"Invalid request body: "+err.Error(),
			"",
			correlationID,
		))
		return
	}

	if err := qc.validator.Struct(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, response.ValidationErrorResponse(
			"Request validation failed", err.Error(), correlationID))
		return
	}

	if len(req.Protocols) > 0 {
		allowed, denied := security.AllowedProtocols(c, req.Protocols)
		if len(denied) > 0 {
			c.JSON(http.StatusForbidden, response.ForbiddenResponse(
				"Token does not permit protocols: "+strings.Join(denied, ", "), correlationID))
			return
		}
		req.Protocols = allowed
	}

	report, err := qc.dremioService.ExecuteQuery(c.Request.Context(), &req)
	if err != nil {
		status, body := response.ErrorResponseFromError(err, correlationID)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, response.SuccessResponse(report, correlationID))
}

// TestConnection godoc
// @Summary Check connectivity per protocol
// @Description Runs "SELECT 1 as test" on every requested protocol.
// @Tags connections
// @Accept json
// @Produce json
// @Param request body model.TestConnectionRequest false "Protocols to check"
// @Success 200 {object} response.StandardResponse
// @Router /api/v1/test-connection [post]
func (qc *QueryController) TestConnection(c *gin.Context) {
	correlationID := middleware.GetCorrelationID(c)

	var req model.TestConnectionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorResponse(
				utils.ErrCodeInvalidRequest,
				"Invalid request body: "+err.Error(),
				"",
				correlationID,
			))
			return
		}
	}

	if err := qc.validator.Struct(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, response.ValidationErrorResponse(
			"Request validation failed", err.Error(), correlationID))
		return
	}

	results, err := qc.dremioService.TestConnections(c.Request.Context(), &req)
	if err != nil {
		status, body := response.ErrorResponseFromError(err, correlationID)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, response.SuccessResponse(results, correlationID))
}
