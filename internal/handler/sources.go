package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"algodata/internal/connector"
	"algodata/internal/models"
	"algodata/internal/pricedata"
	"algodata/internal/repository"
)

// Reconciler re-converges the cron schedule after a config mutation.
type Reconciler interface {
	Reconcile(ctx context.Context) error
}

type SourcesHandler struct {
	Repo       repository.Repository
	Registry   *connector.Registry
	Prices     *pricedata.Service
	Reconciler Reconciler
	Logger     *zap.Logger
}

func (h *SourcesHandler) Register(r *gin.Engine) {
	group := r.Group("/api/sources")
	group.GET("", h.listSources)
	group.POST("", h.createSource)
	group.GET("/:id", h.getSource)
	group.PUT("/:id", h.updateSource)
	group.GET("/:id/symbols", h.listSourceSymbols)
	group.PUT("/:id/symbols/:symbolID", h.updateSourceSymbol)
	group.POST("/:id/refresh-symbols", h.refreshSymbols)
	group.GET("/:id/periods", h.listSourcePeriods)
	group.POST("/:id/periods", h.createSourcePeriod)
	r.PUT("/api/periods/:id", h.updateSourcePeriod)
}

type sourceRequest struct {
	Name             string         `json:"name" binding:"required"`
	ConnectorName    string         `json:"connector_name" binding:"required"`
	ConnectionParams map[string]any `json:"connection_params"`
	Active           *bool          `json:"active"`
}

// validateConnector instantiates the connector so a misspelled name or a
// malformed param set is rejected at config time, not at the first
// scheduled run.
func (h *SourcesHandler) validateConnector(name string, params map[string]any) (int, error) {
	_, err := h.Registry.Source(name, params)
	if err == nil {
		return 0, nil
	}
	var paramErr *connector.ParamError
	if errors.Is(err, connector.ErrNotRegistered) || errors.As(err, &paramErr) {
		return http.StatusUnprocessableEntity, err
	}
	return http.StatusInternalServerError, err
}

func (h *SourcesHandler) reconcile(c *gin.Context) {
	if h.Reconciler == nil {
		return
	}
	if err := h.Reconciler.Reconcile(c.Request.Context()); err != nil {
		h.Logger.Warn("schedule reconcile after mutation failed", zap.Error(err))
	}
}

func (h *SourcesHandler) listSources(c *gin.Context) {
	items, err := h.Repo.ListSources(c.Request.Context())
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

func (h *SourcesHandler) createSource(c *gin.Context) {
	var req sourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if status, err := h.validateConnector(req.ConnectorName, req.ConnectionParams); err != nil {
		Error(c, status, err.Error(), nil)
		return
	}
	existing, err := h.Repo.GetSourceByName(c.Request.Context(), req.Name)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if existing != nil {
		Error(c, http.StatusConflict, "source name already in use", nil)
		return
	}
	item := &models.Source{
		Name:             req.Name,
		ConnectorName:    req.ConnectorName,
		ConnectionParams: datatypes.JSONMap(req.ConnectionParams),
		Active:           req.Active == nil || *req.Active,
	}
	if err := h.Repo.CreateSource(c.Request.Context(), item); err != nil {
		Error(c, http.StatusConflict, err.Error(), nil)
		return
	}
	h.reconcile(c)
	Ok(c, item, nil)
}

func (h *SourcesHandler) getSource(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid source id", nil)
		return
	}
	item, err := h.Repo.GetSource(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "source not found", nil)
		return
	}
	Ok(c, item, nil)
}

func (h *SourcesHandler) updateSource(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid source id", nil)
		return
	}
	item, err := h.Repo.GetSource(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "source not found", nil)
		return
	}
	var req sourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if status, err := h.validateConnector(req.ConnectorName, req.ConnectionParams); err != nil {
		Error(c, status, err.Error(), nil)
		return
	}
	item.Name = req.Name
	item.ConnectorName = req.ConnectorName
	item.ConnectionParams = datatypes.JSONMap(req.ConnectionParams)
	if req.Active != nil {
		item.Active = *req.Active
	}
	if err := h.Repo.UpdateSource(c.Request.Context(), item); err != nil {
		Error(c, http.StatusConflict, err.Error(), nil)
		return
	}
	h.reconcile(c)
	Ok(c, item, nil)
}

func (h *SourcesHandler) listSourceSymbols(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid source id", nil)
		return
	}
	items, err := h.Repo.ListSourceSymbols(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

type sourceSymbolRequest struct {
	RetrievePriceData bool `json:"retrieve_price_data"`
}

func (h *SourcesHandler) updateSourceSymbol(c *gin.Context) {
	sourceID, ok := uintParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid source id", nil)
		return
	}
	symbolID, ok := uintParam(c, "symbolID")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid symbol id", nil)
		return
	}
	link, err := h.Repo.GetSourceSymbol(c.Request.Context(), sourceID, symbolID)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if link == nil {
		Error(c, http.StatusNotFound, "source symbol not found", nil)
		return
	}
	var req sourceSymbolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	link.RetrievePriceData = req.RetrievePriceData
	if err := h.Repo.UpdateSourceSymbol(c.Request.Context(), link); err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, link, nil)
}

func (h *SourcesHandler) refreshSymbols(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid source id", nil)
		return
	}
	if h.Prices == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	if err := h.Prices.RefreshSymbols(c.Request.Context(), id); err != nil {
		h.Logger.Warn("symbol refresh failed", zap.Uint64("source", id), zap.Error(err))
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"refreshed": true}, nil)
}

func (h *SourcesHandler) listSourcePeriods(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid source id", nil)
		return
	}
	items, err := h.Repo.ListSourcePeriods(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

type sourcePeriodRequest struct {
	Period    string    `json:"period" binding:"required"`
	StartFrom time.Time `json:"start_from" binding:"required"`
	Active    *bool     `json:"active"`
}

func (h *SourcesHandler) createSourcePeriod(c *gin.Context) {
	sourceID, ok := uintParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid source id", nil)
		return
	}
	var req sourcePeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if !models.ValidPeriod(req.Period) {
		Error(c, http.StatusUnprocessableEntity, "unsupported candle period "+req.Period, nil)
		return
	}
	item := &models.SourcePeriod{
		SourceID:  sourceID,
		Period:    req.Period,
		StartFrom: req.StartFrom.UTC(),
		Active:    req.Active != nil && *req.Active,
	}
	if err := h.Repo.CreateSourcePeriod(c.Request.Context(), item); err != nil {
		Error(c, http.StatusConflict, err.Error(), nil)
		return
	}
	h.reconcile(c)
	Ok(c, item, nil)
}

type sourcePeriodUpdateRequest struct {
	StartFrom *time.Time `json:"start_from"`
	Active    *bool      `json:"active"`
}

func (h *SourcesHandler) updateSourcePeriod(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid period id", nil)
		return
	}
	item, err := h.Repo.GetSourcePeriod(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "source period not found", nil)
		return
	}
	var req sourcePeriodUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if req.StartFrom != nil {
		item.StartFrom = req.StartFrom.UTC()
	}
	if req.Active != nil {
		item.Active = *req.Active
	}
	item.Source = nil
	if err := h.Repo.UpdateSourcePeriod(c.Request.Context(), item); err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	h.reconcile(c)
	Ok(c, item, nil)
}
