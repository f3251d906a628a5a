package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/OCAP2/mapsync/internal/pipeline"
	"github.com/OCAP2/mapsync/pkg/core"
)

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.health)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/data", s.getData)
	s.router.POST("/markers", s.createMarker)
	s.router.PATCH("/markers/:id", s.patchMarker)
	s.router.DELETE("/markers/:id", s.deleteMarker)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.started).String(),
		"service": "mapsync",
		"version": s.version,
	})
}

func (s *Server) getData(c *gin.Context) {
	snapshot, err := s.mutator.Snapshot(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	snapshot.Normalize()
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) createMarker(c *gin.Context) {
	f, ok := s.readFields(c)
	if !ok {
		return
	}
	m, err := s.mutator.Create(c.Request.Context(), f, s.actor(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) patchMarker(c *gin.Context) {
	f, ok := s.readFields(c)
	if !ok {
		return
	}
	m, err := s.mutator.Patch(c.Request.Context(), c.Param("id"), f, s.actor(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) deleteMarker(c *gin.Context) {
	if _, err := s.mutator.Delete(c.Request.Context(), c.Param("id"), s.actor(c)); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// readFields decodes the request body. Anything that is not a JSON object
// is rejected; field-level type mismatches are left to the decoder.
func (s *Server) readFields(c *gin.Context) (core.Fields, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return core.Fields{}, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return core.Fields{}, false
	}

	f, err := core.ParseFields(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return core.Fields{}, false
	}
	return f, true
}

// actor returns the attributed user for audit records. The header is free
// text and only ever used for descriptions.
func (s *Server) actor(c *gin.Context) string {
	who := strings.TrimSpace(c.GetHeader(s.cfg.ActorHeader))
	if who == "" {
		return "anon"
	}
	if r := []rune(who); len(r) > s.cfg.ActorMaxLen {
		who = string(r[:s.cfg.ActorMaxLen])
	}
	return who
}

func (s *Server) fail(c *gin.Context, err error) {
	if errors.Is(err, pipeline.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	s.logger.Error("request failed", "method", c.Request.Method, "path", routePath(c), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
