package reward

import (
	"net/http"
	"strconv"

	"smallbiznis-reward/pkg/db/pagination"
	"smallbiznis-reward/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Handler exposes the reward service over HTTP. Errors are attached to
// the gin context and rendered by middleware.Error.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/v1/rewards")
	g.GET("/ranking", h.ComputeRanking)
	g.POST("/distributions", h.ExecuteDistribution)
	g.GET("/runs", h.ListRuns)
	g.GET("/runs/:id", h.GetRun)
	g.POST("/runs/:id/distribute", h.ResumeDistribution)

	r.GET("/v1/users/:id/rewards", h.GetUserRewards)
}

func requireDate(c *gin.Context) (string, bool) {
	date := c.Query("date")
	if date == "" {
		_ = c.Error(errutil.ValidationFailed("date is required", nil, errutil.WithDetail("date", "expected YYYY-MM-DD")))
		return "", false
	}
	return date, true
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		_ = c.Error(errutil.BadRequest("invalid id", err, errutil.WithDetail("id", "expected a positive integer")))
		return 0, false
	}
	return id, true
}

func (h *Handler) ComputeRanking(c *gin.Context) {
	date, ok := requireDate(c)
	if !ok {
		return
	}

	res, err := h.svc.ComputeRanking(c.Request.Context(), date)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ExecuteDistribution(c *gin.Context) {
	date, ok := requireDate(c)
	if !ok {
		return
	}

	res, err := h.svc.ExecuteDistribution(c.Request.Context(), date)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListRuns(c *gin.Context) {
	date, ok := requireDate(c)
	if !ok {
		return
	}

	runs, err := h.svc.GetRuns(c.Request.Context(), date)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *Handler) GetRun(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	run, err := h.svc.GetRun(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *Handler) ResumeDistribution(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	res, err := h.svc.ResumeDistribution(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetUserRewards(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(errutil.BadRequest("invalid pagination", err, errutil.WithDetail("limit", err.Error())))
		return
	}

	res, err := h.svc.GetUserRewards(c.Request.Context(), id, page)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}
