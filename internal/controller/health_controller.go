package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dremio-gateway/internal/service"
)

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Protocols map[string]string `json:"protocols"`
}

type HealthController struct {
	dremioService service.DremioService
	version       string
}

func NewHealthController(dremioService service.DremioService, version string) *HealthController {
	return &HealthController{
		dremioService: dremioService,
		version:       version,
	}
}

// HealthCheck reports healthy while at least one protocol is usable
func (hc *HealthController) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   "dremio-gateway",
		Version:   hc.version,
		Protocols: make(map[string]string),
	}

	usable := 0
	for _, descriptor := range hc.dremioService.ListDrivers() {
		switch {
		case descriptor.Usable():
			usable++
			resp.Protocols[string(descriptor.Name)] = "enabled"
		case descriptor.Available:
			resp.Protocols[string(descriptor.Name)] = "disabled: " + descriptor.DisabledReason
		default:
			resp.Protocols[string(descriptor.Name)] = "unavailable: " + descriptor.DisabledReason
		}
	}

	statusCode := http.StatusOK
	if usable == 0 {
		resp.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, resp)
}
