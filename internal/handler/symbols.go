package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"algodata/internal/repository"
)

type SymbolsHandler struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (h *SymbolsHandler) Register(r *gin.Engine) {
	r.GET("/api/symbols", h.listSymbols)
	r.GET("/api/candles", h.listCandles)
}

func (h *SymbolsHandler) listSymbols(c *gin.Context) {
	items, err := h.Repo.ListSymbols(c.Request.Context())
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

func (h *SymbolsHandler) listCandles(c *gin.Context) {
	params := repository.ListCandlesParams{
		SourceSymbolID: uintQuery(c, "source_symbol_id"),
		Period:         c.Query("period"),
		From:           timeQueryPtr(c, "from"),
		To:             timeQueryPtr(c, "to"),
		Limit:          intQuery(c, "limit", 1000),
		Offset:         intQuery(c, "offset", 0),
	}
	if params.SourceSymbolID == 0 {
		Error(c, http.StatusBadRequest, "source_symbol_id is required", nil)
		return
	}
	items, err := h.Repo.ListCandles(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}
