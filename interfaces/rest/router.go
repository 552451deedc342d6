// Package rest provides the HTTP front end of the registry and the facts
// document server.
package rest

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/felixgeelhaar/agent-registry/infrastructure/logging"
)

// NewRouter returns the registry API router.
func NewRouter(api *API) *gin.Engine {
	router := newEngine("rest")

	router.GET("/", api.Banner)
	router.POST("/register", api.RegisterAgent)
	router.GET("/list", api.ListAgents)
	router.GET("/search", api.SearchAgents)
	router.GET("/lookup/:agent_id", api.LookupAgent)
	router.PUT("/update/:agent_id", api.UpdateAgent)
	router.DELETE("/agents/:agent_id", api.DeleteAgent)
	router.GET("/health", api.Health)

	return router
}

// NewFactsRouter returns the router that serves published facts documents.
func NewFactsRouter(api *API) *gin.Engine {
	router := newEngine("facts")

	router.GET("/health", api.Health)
	router.GET("/facts/:username", api.Facts)
	router.GET("/:file", api.FactsDocument)

	return router
}

func newEngine(component string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(component))
	return router
}

// requestLogger logs each request at debug level, failures at warn.
func requestLogger(component string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logging.Debug()
		if status >= 500 {
			event = logging.Warn()
		}
		event.
			Add(logging.Component(component)).
			Add(logging.Str("method", c.Request.Method)).
			Add(logging.Str("path", c.Request.URL.Path)).
			Add(logging.Str("status", strconv.Itoa(status))).
			Add(logging.Duration(time.Since(start))).
			Msg("request")
	}
}
