package statushttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/logger"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/store/farelog"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/store/runlog"
)

// Server 暴露追踪器的状态查询接口：最新票价、历史序列、运行档案、
// 渲染好的报表与走势图。只读，不触发查价。
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig 描述状态服务的依赖。Archive/RunLog 可为 nil（未启用归档时
// 对应接口返回 503），报表与图表按路径直接读文件。
type ServerConfig struct {
	Addr       string
	Archive    *farelog.Store
	RunLog     *runlog.Store
	ReportPath string
	ChartPath  string
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Archive == nil && cfg.ReportPath == "" {
		return nil, errors.New("status server 需要 archive 或 report 路径之一")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8787"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	statusRouter := NewRouter(cfg.Archive, cfg.RunLog, cfg.ReportPath, cfg.ChartPath)
	statusRouter.Register(router)

	return &Server{addr: cfg.Addr, router: router}, nil
}

// requestLogger 记录接口访问，便于排查谁在刷状态页。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		client := c.ClientIP()
		c.Next()
		dur := time.Since(start)
		status := c.Writer.Status()
		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", method, fullPath, status, client, dur)
	}
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start 启动 HTTP 服务，直到 ctx 取消或监听出错。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
