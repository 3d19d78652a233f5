package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"algodata/internal/cache"
	"algodata/internal/models"
	"algodata/internal/repository"
	"algodata/internal/summary"
)

// QualityHandler serves the data quality dashboard: metrics and heatmap
// series from the latest complete summary batch. Reads go through the cache;
// a batch id pins every response so a batch completing mid-render cannot mix
// generations.
type QualityHandler struct {
	Repo    repository.Repository
	Summary *summary.Service
	Cache   *cache.Cache
	Logger  *zap.Logger
}

func (h *QualityHandler) Register(r *gin.Engine) {
	group := r.Group("/api/quality")
	group.GET("/metrics", h.listMetrics)
	group.GET("/metrics/all-sources", h.listMetricsAllSources)
	group.GET("/heatmap", h.heatmap)
	group.GET("/batches", h.listBatches)
	group.POST("/batches/run", h.runBatch)
}

func (h *QualityHandler) latestBatch(c *gin.Context) (*models.SummaryBatch, bool) {
	batch, err := h.Repo.LatestCompleteSummaryBatch(c.Request.Context())
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return nil, false
	}
	if batch == nil {
		Error(c, http.StatusNotFound, "no complete summary batch yet", nil)
		return nil, false
	}
	return batch, true
}

func batchMeta(batch *models.SummaryBatch, count int) map[string]any {
	return map[string]any{
		"batch_id":   batch.ID,
		"batch_time": batch.Time,
		"count":      count,
	}
}

func (h *QualityHandler) listMetrics(c *gin.Context) {
	batch, ok := h.latestBatch(c)
	if !ok {
		return
	}
	key := fmt.Sprintf("quality:metrics:%d", batch.ID)
	var items []models.SummaryMetric
	if !h.Cache.GetJSON(c.Request.Context(), key, &items) {
		var err error
		items, err = h.Repo.ListSummaryMetrics(c.Request.Context(), batch.ID)
		if err != nil {
			Error(c, http.StatusInternalServerError, err.Error(), nil)
			return
		}
		h.Cache.SetJSON(c.Request.Context(), key, items)
	}
	Ok(c, items, batchMeta(batch, len(items)))
}

func (h *QualityHandler) listMetricsAllSources(c *gin.Context) {
	batch, ok := h.latestBatch(c)
	if !ok {
		return
	}
	key := fmt.Sprintf("quality:metrics-all:%d", batch.ID)
	var items []models.SummaryMetricAllSources
	if !h.Cache.GetJSON(c.Request.Context(), key, &items) {
		var err error
		items, err = h.Repo.ListSummaryMetricsAllSources(c.Request.Context(), batch.ID)
		if err != nil {
			Error(c, http.StatusInternalServerError, err.Error(), nil)
			return
		}
		h.Cache.SetJSON(c.Request.Context(), key, items)
	}
	Ok(c, items, batchMeta(batch, len(items)))
}

func (h *QualityHandler) heatmap(c *gin.Context) {
	granularity := c.DefaultQuery("aggregation", "days")
	valid := false
	for _, g := range models.AggregationPeriods {
		if g == granularity {
			valid = true
			break
		}
	}
	if !valid {
		Error(c, http.StatusBadRequest, "unsupported aggregation period "+granularity, nil)
		return
	}
	batch, ok := h.latestBatch(c)
	if !ok {
		return
	}
	key := fmt.Sprintf("quality:heatmap:%d:%s", batch.ID, granularity)
	var items []models.SummaryAggregation
	if !h.Cache.GetJSON(c.Request.Context(), key, &items) {
		var err error
		items, err = h.Repo.ListSummaryAggregations(c.Request.Context(), batch.ID, granularity)
		if err != nil {
			Error(c, http.StatusInternalServerError, err.Error(), nil)
			return
		}
		h.Cache.SetJSON(c.Request.Context(), key, items)
	}
	Ok(c, items, batchMeta(batch, len(items)))
}

func (h *QualityHandler) listBatches(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	items, err := h.Repo.ListSummaryBatches(c.Request.Context(), limit)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

func (h *QualityHandler) runBatch(c *gin.Context) {
	if h.Summary == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	if err := h.Summary.RunBatch(c.Request.Context()); err != nil {
		h.Logger.Warn("manual summary batch failed", zap.Error(err))
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"ran": true}, nil)
}
