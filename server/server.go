package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chaos-io/bgcompose/compose"
	"github.com/chaos-io/bgcompose/config"
	"github.com/gin-gonic/gin"
)

// Server 通过 HTTP 暴露 Compositor，一次只处理一个请求
type Server struct {
	compositor *compose.Compositor
	mu         sync.Mutex
	maxUpload  int64
	engine     *gin.Engine
}

func New(c *compose.Compositor, cfg config.ServerConfig) *Server {
	s := &Server{
		compositor: c,
		maxUpload:  cfg.MaxUploadMB << 20,
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())
	engine.MaxMultipartMemory = s.maxUpload

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.POST("/v1/remove", s.remove)

	s.engine = engine
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run 阻塞直到 ctx 取消，然后优雅退出
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) remove(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)

	dir, err := os.MkdirTemp("", "bgcompose-*")
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	defer func() {
		_ = os.RemoveAll(dir)
	}()

	req := compose.Request{
		InputPath:       filepath.Join(dir, "input"),
		OutputPath:      filepath.Join(dir, "output.png"),
		BackgroundType:  c.DefaultPostForm("background_type", compose.BackgroundTransparent),
		BackgroundColor: c.PostForm("background_color"),
	}

	if err := saveFormFile(c, "image", req.InputPath); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if req.BackgroundType == compose.BackgroundImage {
		req.BackgroundImagePath = filepath.Join(dir, "background")
		if err := saveFormFile(c, "background_image", req.BackgroundImagePath); err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}
	}
	if err := req.Validate(); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	err = s.compositor.Process(c.Request.Context(), req)
	s.mu.Unlock()
	if err != nil {
		abort(c, statusOf(err), err)
		return
	}

	c.File(req.OutputPath)
}

func saveFormFile(c *gin.Context, field, dst string) error {
	file, err := c.FormFile(field)
	if err != nil {
		return fmt.Errorf("form file %q: %w", field, err)
	}
	return c.SaveUploadedFile(file, dst)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, compose.ErrInvalidRequest), errors.Is(err, compose.ErrColorParse):
		return http.StatusBadRequest
	case errors.Is(err, compose.ErrBackend):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, status int, err error) {
	slog.Error("request failed", "path", c.FullPath(), "status", status, "err", err)
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}
