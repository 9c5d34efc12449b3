package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/example/visual-compare/internal/comparator"
	"github.com/example/visual-compare/internal/tools"
	"github.com/example/visual-compare/internal/usecase"
)

// MaxBodySize bounds the tool argument document.
const MaxBodySize = 64 << 10

// ComparisonService is the use case behind the comparison routes.
type ComparisonService interface {
	CompareImages(ctx context.Context, req comparator.ComparisonRequest) (*usecase.Outcome, error)
	GetResult(ctx context.Context, requestID string) (*usecase.Outcome, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
}

// requestBuilder is implemented by tools whose invocations are recorded by
// the comparison service.
type requestBuilder interface {
	Request(args map[string]string) (comparator.ComparisonRequest, error)
}

// RegisterRoutes wires the tool service endpoints.
func RegisterRoutes(router *gin.Engine, registry *tools.Registry, svc ComparisonService, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	protected := router.Group("/")
	protected.Use(authMiddleware)

	protected.GET("/tools", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tools": registry.Definitions()})
	})

	protected.POST("/tools/:name/invoke", func(c *gin.Context) {
		tool, err := registry.Get(c.Param("name"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodySize)
		var args map[string]string
		if err := c.ShouldBindJSON(&args); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "arguments too large"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "arguments must be a JSON object of strings"})
			return
		}

		builder, ok := tool.(requestBuilder)
		if !ok {
			out, err := tool.Invoke(c.Request.Context(), args)
			if err != nil {
				c.JSON(statusForError(err), gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"result": out})
			return
		}

		req, err := builder.Request(args)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		outcome, err := svc.CompareImages(c.Request.Context(), req)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"request_id": outcome.RequestID,
			"result":     outcome.Result,
			"failed":     outcome.Failed,
		})
	})

	protected.GET("/result/:id", func(c *gin.Context) {
		outcome, err := svc.GetResult(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, outcome)
	})

	protected.GET("/metrics", func(c *gin.Context) {
		summary, err := svc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, tools.ErrMissingArgument):
		return http.StatusBadRequest
	case errors.Is(err, comparator.ErrFileNotFound):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
