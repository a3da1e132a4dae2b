package statushttp

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/fare"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/store/farelog"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/store/runlog"
)

// Router 挂载状态查询路由；数据端来自运行档案与交互日志。
type Router struct {
	Archive    *farelog.Store
	RunLog     *runlog.Store
	reportPath string
	chartPath  string
}

func NewRouter(archive *farelog.Store, runLog *runlog.Store, reportPath, chartPath string) *Router {
	return &Router{
		Archive:    archive,
		RunLog:     runLog,
		reportPath: strings.TrimSpace(reportPath),
		chartPath:  strings.TrimSpace(chartPath),
	}
}

func (r *Router) Register(router *gin.Engine) {
	if router == nil {
		return
	}
	api := router.Group("/api")
	api.GET("/fares/latest", r.handleLatestFares)
	api.GET("/fares/history", r.handleFareHistory)
	api.GET("/fares/stats", r.handleFareStats)
	api.GET("/destinations", r.handleDestinations)
	api.GET("/runs", r.handleRecentRuns)
	api.GET("/runs/:id/exchanges", r.handleRunExchanges)
	api.GET("/exchanges", r.handleRecentExchanges)

	router.GET("/report", r.handleReport)
	router.GET("/chart", r.handleChart)
}

type observationView struct {
	RunID       string `json:"run_id,omitempty"`
	Destination string `json:"destination"`
	Currency    string `json:"currency"`
	AmountMinor int64  `json:"amount_minor"`
	Display     string `json:"display"`
	ObservedAt  string `json:"observed_at"`
}

func toObservationView(o farelog.Observation) observationView {
	return observationView{
		RunID:       o.RunID,
		Destination: o.Destination,
		Currency:    o.CurrencyCode,
		AmountMinor: o.AmountMinor,
		Display:     o.CurrencyCode + " " + fare.FormatAmount(o.AmountMinor),
		ObservedAt:  o.ObservedAt.UTC().Format(time.RFC3339),
	}
}

type runView struct {
	RunID       string `json:"run_id"`
	Status      string `json:"status"`
	Steps       int    `json:"steps"`
	RecordCount int    `json:"record_count"`
	Error       string `json:"error,omitempty"`
	StartedAt   string `json:"started_at"`
	FinishedAt  string `json:"finished_at"`
}

func toRunView(run farelog.RunRecord) runView {
	return runView{
		RunID:       run.RunID,
		Status:      run.Status,
		Steps:       run.Steps,
		RecordCount: run.RecordCount,
		Error:       run.ErrorText,
		StartedAt:   run.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt:  run.FinishedAt.UTC().Format(time.RFC3339),
	}
}

func (r *Router) handleLatestFares(c *gin.Context) {
	if r.Archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "运行档案未启用"})
		return
	}
	obs, err := r.Archive.LatestObservations(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	views := make([]observationView, 0, len(obs))
	for _, o := range obs {
		views = append(views, toObservationView(o))
	}
	c.JSON(http.StatusOK, gin.H{"fares": views})
}

func (r *Router) handleFareHistory(c *gin.Context) {
	if r.Archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "运行档案未启用"})
		return
	}
	destination := strings.TrimSpace(c.Query("destination"))
	if destination == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "destination 必填"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	obs, err := r.Archive.SeriesByDestination(c.Request.Context(), destination, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	views := make([]observationView, 0, len(obs))
	for _, o := range obs {
		views = append(views, toObservationView(o))
	}
	c.JSON(http.StatusOK, gin.H{"destination": destination, "points": views})
}

func (r *Router) handleFareStats(c *gin.Context) {
	if r.Archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "运行档案未启用"})
		return
	}
	destination := strings.TrimSpace(c.Query("destination"))
	if destination == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "destination 必填"})
		return
	}
	stats, found, err := r.Archive.Stats(c.Request.Context(), destination)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "该目的地暂无观测"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"destination": stats.Destination,
		"count":       stats.Count,
		"min_minor":   stats.MinMinor,
		"max_minor":   stats.MaxMinor,
		"mean":        stats.Mean.String(),
	})
}

func (r *Router) handleDestinations(c *gin.Context) {
	if r.Archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "运行档案未启用"})
		return
	}
	names, err := r.Archive.Destinations(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"destinations": names})
}

func (r *Router) handleRecentRuns(c *gin.Context) {
	if r.Archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "运行档案未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	runs, err := r.Archive.RecentRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	views := make([]runView, 0, len(runs))
	for _, run := range runs {
		views = append(views, toRunView(run))
	}
	c.JSON(http.StatusOK, gin.H{"runs": views})
}

func (r *Router) handleRunExchanges(c *gin.Context) {
	if r.RunLog == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "交互日志未启用"})
		return
	}
	runID := strings.TrimSpace(c.Param("id"))
	if runID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "run id 必填"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	records, err := r.RunLog.ListByRun(c.Request.Context(), runID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runID, "exchanges": records})
}

func (r *Router) handleRecentExchanges(c *gin.Context) {
	if r.RunLog == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "交互日志未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	records, err := r.RunLog.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"exchanges": records})
}

func (r *Router) handleReport(c *gin.Context) {
	r.serveFile(c, r.reportPath, "text/markdown; charset=utf-8", "报表尚未生成")
}

func (r *Router) handleChart(c *gin.Context) {
	r.serveFile(c, r.chartPath, "text/html; charset=utf-8", "走势图尚未生成")
}

func (r *Router) serveFile(c *gin.Context, path, contentType, missingMsg string) {
	if path == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": missingMsg})
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": missingMsg})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, contentType, data)
}
