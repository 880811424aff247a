package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"eve-arbitrage/internal/logger"
	"eve-arbitrage/internal/ranking"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

const maxHistoryLimit = 1000

// RoutesQuery is the query string of GET /api/routes. PageSize is a pointer so
// an explicit zero is rejected while an absent value takes the configured default.
type RoutesQuery struct {
	Page     int    `form:"page,default=1" binding:"min=1"`
	PageSize *int   `form:"page_size" binding:"omitempty,min=1"`
	Category string `form:"category"`
}

// HistoryQuery is the query string of GET /api/history.
type HistoryQuery struct {
	Limit int `form:"limit,default=20" binding:"min=1,max=1000"`
}

// queryField reports which form key a bind error belongs to. Validation
// errors name the struct field; parse errors carry the raw value, which is
// matched against the given keys in struct order.
func queryField(c *gin.Context, err error, fields map[string]string, keys ...string) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fields[verrs[0].Field()]
	}
	var nerr *strconv.NumError
	if errors.As(err, &nerr) {
		for _, k := range keys {
			if c.Query(k) == nerr.Num {
				return k
			}
		}
	}
	if len(keys) > 0 {
		return keys[0]
	}
	return ""
}

var routesQueryFields = map[string]string{"Page": "page", "PageSize": "page_size"}

// handleRoutes handles GET /api/routes?page=&page_size=&category=
func (s *Server) handleRoutes(c *gin.Context) {
	var q RoutesQuery
	sizeMsg := fmt.Sprintf("page_size must be an integer between 1 and %d", s.deps.Config.MaxPageSize)
	if err := c.ShouldBindQuery(&q); err != nil {
		if queryField(c, err, routesQueryFields, "page", "page_size") == "page_size" {
			writeError(c, http.StatusBadRequest, CodeInvalidPageSize, sizeMsg)
			return
		}
		writeError(c, http.StatusBadRequest, CodeInvalidPage, "page must be an integer >= 1")
		return
	}
	page, size := q.Page, s.deps.Config.DefaultPageSize
	if q.PageSize != nil {
		size = *q.PageSize
	}
	if size > s.deps.Config.MaxPageSize {
		writeError(c, http.StatusBadRequest, CodeInvalidPageSize, sizeMsg)
		return
	}
	filter, err := ranking.NewFilter(q.Category)
	if err != nil {
		writeError(c, http.StatusBadRequest, CodeInvalidCategory, err.Error())
		return
	}

	batch, err := s.deps.Store.GetLatestBatch(c.Request.Context(), s.deps.Config.BatchMaxAge)
	if err != nil {
		logger.Error("API", fmt.Sprintf("Load latest batch: %v", err))
		writeError(c, http.StatusInternalServerError, CodeInternal, "failed to load results")
		return
	}
	if batch == nil {
		writeError(c, http.StatusServiceUnavailable, CodeNoData, "no route results have been published yet")
		return
	}

	p, err := s.indexFor(batch).Page(filter, page, size)
	if err != nil {
		writeError(c, http.StatusBadRequest, CodeInvalidPageSize, err.Error())
		return
	}
	routes := make([]RouteDTO, 0, len(p.Routes))
	for i := range p.Routes {
		routes = append(routes, routeDTO(&p.Routes[i]))
	}
	c.JSON(http.StatusOK, RoutesResponse{
		RunID:       batch.RunID,
		GeneratedAt: batch.CreatedAt,
		AgeSeconds:  s.deps.Now().Sub(batch.CreatedAt).Seconds(),
		Routes:      routes,
		Pagination:  p.Pagination,
		Summary:     summaryDTO(p.Summary),
		Locations:   batch.Summary.Locations,
	})
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(c *gin.Context) {
	ctx := c.Request.Context()
	result := gin.H{"running": false}
	if s.deps.Runs != nil {
		result["running"] = s.deps.Runs.Running()
		if last := s.deps.Runs.LastRun(); last != nil {
			result["last_run"] = last
		}
	}
	if s.deps.Catalog != nil {
		result["catalog"] = gin.H{
			"locations": len(s.deps.Catalog.Locations),
			"items":     len(s.deps.Catalog.Items),
			"carriers":  len(s.deps.Catalog.Carriers),
		}
	}
	if s.deps.Upstream != nil {
		result["esi_ok"] = s.deps.Upstream.HealthCheck(ctx)
	}

	batch, err := s.deps.Store.GetLatestBatch(ctx, 0)
	if err != nil {
		logger.Error("API", fmt.Sprintf("Load latest batch: %v", err))
		writeError(c, http.StatusInternalServerError, CodeInternal, "failed to load results")
		return
	}
	if batch != nil {
		h := headerDTO(batch.Header())
		result["latest"] = h
		result["age_seconds"] = s.deps.Now().Sub(batch.CreatedAt).Seconds()
	}
	c.JSON(http.StatusOK, result)
}

// handleCategories handles GET /api/categories
func (s *Server) handleCategories(c *gin.Context) {
	batch, err := s.deps.Store.GetLatestBatch(c.Request.Context(), s.deps.Config.BatchMaxAge)
	if err != nil {
		writeError(c, http.StatusInternalServerError, CodeInternal, "failed to load results")
		return
	}
	var breakdown []ranking.CategoryBreakdown
	if batch != nil {
		breakdown = batch.Summary.Breakdown
	}
	c.JSON(http.StatusOK, categoryDTOs(s.deps.Catalog, breakdown))
}

// handleHistory handles GET /api/history?limit=
func (s *Server) handleHistory(c *gin.Context) {
	var q HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, http.StatusBadRequest, CodeInvalidLimit,
			fmt.Sprintf("limit must be an integer between 1 and %d", maxHistoryLimit))
		return
	}
	headers, err := s.deps.Store.History(c.Request.Context(), q.Limit)
	if err != nil {
		logger.Error("API", fmt.Sprintf("Load history: %v", err))
		writeError(c, http.StatusInternalServerError, CodeInternal, "failed to load history")
		return
	}
	out := make([]HeaderDTO, 0, len(headers))
	for _, h := range headers {
		out = append(out, headerDTO(h))
	}
	c.JSON(http.StatusOK, out)
}

// handleTrigger handles POST /api/runs
func (s *Server) handleTrigger(c *gin.Context) {
	if s.deps.Trigger == nil {
		writeError(c, http.StatusServiceUnavailable, CodeUnavailable, "manual runs are disabled")
		return
	}
	if !s.deps.Trigger.Trigger() {
		writeError(c, http.StatusConflict, CodeRunInProgress, "a run is already in progress or queued")
		return
	}
	logger.Info("API", "Manual run queued")
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}
