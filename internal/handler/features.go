package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"algodata/internal/connector"
	"algodata/internal/feature"
	"algodata/internal/models"
	"algodata/internal/repository"
)

type FeaturesHandler struct {
	Repo       repository.Repository
	Registry   *connector.Registry
	Features   *feature.Service
	Reconciler Reconciler
	Logger     *zap.Logger
}

func (h *FeaturesHandler) Register(r *gin.Engine) {
	group := r.Group("/api/features")
	group.GET("", h.listFeatures)
	group.POST("", h.createFeature)
	group.PUT("/:id", h.updateFeature)

	execs := r.Group("/api/executions")
	execs.GET("", h.listExecutions)
	execs.POST("", h.createExecution)
	execs.GET("/:id", h.getExecution)
	execs.PUT("/:id", h.updateExecution)
	execs.POST("/:id/run", h.runExecution)
	execs.GET("/:id/results", h.listResults)
}

type featureRequest struct {
	Name          string `json:"name" binding:"required"`
	ConnectorName string `json:"connector_name" binding:"required"`
	Lookback      string `json:"lookback" binding:"required"`
	Schedule      string `json:"schedule" binding:"required"`
	Active        *bool  `json:"active"`
}

func (h *FeaturesHandler) validateFeature(req featureRequest) (int, error) {
	if _, err := h.Registry.Feature(req.ConnectorName); err != nil {
		if errors.Is(err, connector.ErrNotRegistered) {
			return http.StatusUnprocessableEntity, err
		}
		return http.StatusInternalServerError, err
	}
	if _, err := models.ParseLookback(req.Lookback); err != nil {
		return http.StatusUnprocessableEntity, err
	}
	return 0, nil
}

func (h *FeaturesHandler) reconcile(c *gin.Context) {
	if h.Reconciler == nil {
		return
	}
	if err := h.Reconciler.Reconcile(c.Request.Context()); err != nil {
		h.Logger.Warn("schedule reconcile after mutation failed", zap.Error(err))
	}
}

func (h *FeaturesHandler) listFeatures(c *gin.Context) {
	items, err := h.Repo.ListFeatures(c.Request.Context())
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

func (h *FeaturesHandler) createFeature(c *gin.Context) {
	var req featureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if status, err := h.validateFeature(req); err != nil {
		Error(c, status, err.Error(), nil)
		return
	}
	existing, err := h.Repo.GetFeatureByName(c.Request.Context(), req.Name)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if existing != nil {
		Error(c, http.StatusConflict, "feature name already in use", nil)
		return
	}
	item := &models.Feature{
		Name:          req.Name,
		ConnectorName: req.ConnectorName,
		Lookback:      req.Lookback,
		Schedule:      req.Schedule,
		Active:        req.Active == nil || *req.Active,
	}
	if err := h.Repo.CreateFeature(c.Request.Context(), item); err != nil {
		Error(c, http.StatusConflict, err.Error(), nil)
		return
	}
	h.reconcile(c)
	Ok(c, item, nil)
}

func (h *FeaturesHandler) updateFeature(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid feature id", nil)
		return
	}
	item, err := h.Repo.GetFeature(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "feature not found", nil)
		return
	}
	var req featureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if status, err := h.validateFeature(req); err != nil {
		Error(c, status, err.Error(), nil)
		return
	}
	item.Name = req.Name
	item.ConnectorName = req.ConnectorName
	item.Lookback = req.Lookback
	item.Schedule = req.Schedule
	if req.Active != nil {
		item.Active = *req.Active
	}
	if err := h.Repo.UpdateFeature(c.Request.Context(), item); err != nil {
		Error(c, http.StatusConflict, err.Error(), nil)
		return
	}
	h.reconcile(c)
	Ok(c, item, nil)
}

type executionInputRequest struct {
	SourceSymbolID uint64 `json:"source_symbol_id" binding:"required"`
	Period         string `json:"period" binding:"required"`
}

type executionRequest struct {
	Name      string                  `json:"name" binding:"required"`
	FeatureID uint64                  `json:"feature_id" binding:"required"`
	Inputs    []executionInputRequest `json:"inputs" binding:"required,min=1"`
	Active    *bool                   `json:"active"`
}

func (h *FeaturesHandler) listExecutions(c *gin.Context) {
	items, err := h.Repo.ListFeatureExecutions(c.Request.Context())
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

func (h *FeaturesHandler) createExecution(c *gin.Context) {
	var req executionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	feat, err := h.Repo.GetFeature(c.Request.Context(), req.FeatureID)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if feat == nil {
		Error(c, http.StatusUnprocessableEntity, "feature not found", nil)
		return
	}
	item := &models.FeatureExecution{
		Name:      req.Name,
		FeatureID: req.FeatureID,
		Active:    req.Active == nil || *req.Active,
	}
	for _, in := range req.Inputs {
		if !models.ValidPeriod(in.Period) {
			Error(c, http.StatusUnprocessableEntity, "unsupported candle period "+in.Period, nil)
			return
		}
		item.Inputs = append(item.Inputs, models.FeatureExecutionInput{
			SourceSymbolID: in.SourceSymbolID,
			Period:         in.Period,
			Active:         true,
		})
	}
	if err := h.Repo.CreateFeatureExecution(c.Request.Context(), item); err != nil {
		Error(c, http.StatusConflict, err.Error(), nil)
		return
	}
	h.reconcile(c)
	Ok(c, item, nil)
}

func (h *FeaturesHandler) getExecution(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid execution id", nil)
		return
	}
	item, err := h.Repo.GetFeatureExecution(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "execution not found", nil)
		return
	}
	Ok(c, item, nil)
}

type executionUpdateRequest struct {
	Name   *string `json:"name"`
	Active *bool   `json:"active"`
}

func (h *FeaturesHandler) updateExecution(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid execution id", nil)
		return
	}
	item, err := h.Repo.GetFeatureExecution(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "execution not found", nil)
		return
	}
	var req executionUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if req.Name != nil {
		item.Name = *req.Name
	}
	if req.Active != nil {
		item.Active = *req.Active
	}
	if err := h.Repo.UpdateFeatureExecution(c.Request.Context(), item); err != nil {
		Error(c, http.StatusConflict, err.Error(), nil)
		return
	}
	h.reconcile(c)
	Ok(c, item, nil)
}

func (h *FeaturesHandler) runExecution(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid execution id", nil)
		return
	}
	if h.Features == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	if err := h.Features.Run(c.Request.Context(), id); err != nil {
		h.Logger.Warn("manual feature run failed", zap.Uint64("execution", id), zap.Error(err))
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"ran": true}, nil)
}

func (h *FeaturesHandler) listResults(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid execution id", nil)
		return
	}
	from := timeQueryPtr(c, "from")
	if from == nil {
		Error(c, http.StatusBadRequest, "from is required (RFC3339)", nil)
		return
	}
	items, err := h.Repo.ListResultsFrom(c.Request.Context(), id, *from)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}
