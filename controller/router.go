package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const requestIDHeader = "X-Request-ID"

// NewRouter wires the chat API routes, CORS, request ids, /health and
// /metrics onto a gin engine.
func NewRouter(c *RAGController) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), requestID(), cors())

	router.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "docchat",
			"version": "1.0.0",
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/documents", c.GetDocuments)
	router.POST("/upload", c.UploadDocument)
	router.POST("/delete_doc", c.DeleteDocument)
	router.POST("/rebuild_index", c.RebuildIndex)
	router.GET("/history", c.GetHistory)
	router.POST("/clear_history", c.ClearHistory)
	router.POST("/chat", c.Chat)

	return router
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+requestIDHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}
