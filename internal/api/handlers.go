// Package api exposes the load balancer over HTTP, following
// the fabric's gin handler conventions.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DimaJoyti/contractfabric/internal/cache"
	"github.com/DimaJoyti/contractfabric/internal/common"
	"github.com/DimaJoyti/contractfabric/internal/lb"
	"github.com/DimaJoyti/contractfabric/pkg/logger"
)

// Handler wires the lb.Service and the optional read-through cache to
// gin routes.
type Handler struct {
	lb    *lb.Service
	cache *cache.Cache
	log   *logger.Logger
}

// NewHandler constructs a Handler. cache may be nil when caching is
// disabled (pkg/config.CacheConfig.Enabled == false).
func NewHandler(lbSvc *lb.Service, c *cache.Cache, log *logger.Logger) *Handler {
	return &Handler{lb: lbSvc, cache: c, log: log.Named("api")}
}

type registerInstanceRequest struct {
	ID         string `json:"id" binding:"required"`
	ContractID string `json:"contract_id" binding:"required"`
	Endpoint   string `json:"endpoint" binding:"required"`
	Region     string `json:"region"`
	Weight     int    `json:"weight"`
}

// RegisterInstance handles POST /instances. Registration is idempotent on
// the instance id: a duplicate announce returns the existing registration.
func (h *Handler) RegisterInstance(c *gin.Context) {
	var req registerInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(common.BadRequestError(err.Error()))
		return
	}

	inst := h.lb.RegisterInstance(req.ID, req.ContractID, req.Endpoint, req.Region, req.Weight)
	c.JSON(http.StatusCreated, gin.H{"id": inst.ID, "contract_id": inst.ContractID, "endpoint": inst.Endpoint})
}

// RemoveInstance handles DELETE /instances/:id.
func (h *Handler) RemoveInstance(c *gin.Context) {
	id := c.Param("id")
	if err := h.lb.RemoveInstance(id); err != nil {
		if errors.Is(err, lb.ErrInstanceNotFound) {
			_ = c.Error(common.NotFoundError("instance not found"))
			return
		}
		_ = c.Error(common.InternalServerError(err.Error()))
		return
	}
	c.Status(http.StatusNoContent)
}

type routeRequest struct {
	ContractID string `json:"contract_id" binding:"required"`
	SessionKey string `json:"session_key"`
	RegionHint string `json:"region_hint"`
}

// Route handles POST /route.
func (h *Handler) Route(c *gin.Context) {
	var req routeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(common.BadRequestError(err.Error()))
		return
	}

	result, err := h.lb.Route(c.Request.Context(), req.ContractID, req.SessionKey, req.RegionHint)
	if err != nil {
		if errors.Is(err, lb.ErrNoHealthyInstances) {
			_ = c.Error(common.NewAPIError(http.StatusServiceUnavailable, "no_healthy_instances", err.Error()))
			return
		}
		_ = c.Error(common.InternalServerError(err.Error()))
		return
	}
	c.JSON(http.StatusOK, result)
}

type recordResultRequest struct {
	InstanceID string  `json:"instance_id" binding:"required"`
	Success    bool    `json:"success"`
	ResponseMs float64 `json:"response_ms"`
}

// RecordResult handles POST /results.
func (h *Handler) RecordResult(c *gin.Context) {
	var req recordResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(common.BadRequestError(err.Error()))
		return
	}

	if err := h.lb.RecordResult(req.InstanceID, req.Success, req.ResponseMs); err != nil {
		if errors.Is(err, lb.ErrInstanceNotFound) {
			_ = c.Error(common.NotFoundError("instance not found"))
			return
		}
		_ = c.Error(common.InternalServerError(err.Error()))
		return
	}
	c.Status(http.StatusNoContent)
}

type setAlgorithmRequest struct {
	Algorithm string `json:"algorithm" binding:"required"`
}

// SetAlgorithm handles POST /algorithm.
func (h *Handler) SetAlgorithm(c *gin.Context) {
	var req setAlgorithmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(common.BadRequestError(err.Error()))
		return
	}
	if err := h.lb.SetAlgorithm(lb.AlgorithmName(req.Algorithm)); err != nil {
		_ = c.Error(common.BadRequestError(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"algorithm": h.lb.CurrentAlgorithm()})
}

// Metrics handles GET /metrics/summary, a JSON view distinct from the
// Prometheus /metrics scrape endpoint mounted separately in router.go.
func (h *Handler) Metrics(c *gin.Context) {
	resp := gin.H{
		"instances": h.lb.Snapshot(),
		"algorithm": h.lb.CurrentAlgorithm(),
	}
	if h.cache != nil {
		resp["cache"] = h.cache.Metrics()
	}
	c.JSON(http.StatusOK, resp)
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
